package reqctx

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestFrom_EmptyContext(t *testing.T) {
	if _, ok := From(context.Background()); ok {
		t.Fatal("From on an empty context should report absence")
	}
}

func TestMustFrom_PanicsOutsideScope(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("MustFrom outside a bound scope should panic")
		}
	}()
	MustFrom(context.Background())
}

func TestWith_RoundTrip(t *testing.T) {
	store := &Store{RequestID: "req-1", Service: "crm", Domain: "users", Action: "v1/users"}
	ctx := With(context.Background(), store)

	got := MustFrom(ctx)
	if got != store {
		t.Fatalf("MustFrom returned %p, want %p", got, store)
	}
	if got.Authenticated() {
		t.Error("store without session should not report authenticated")
	}
}

func TestWith_ConcurrentRequestIsolation(t *testing.T) {
	const requests = 200

	var wg sync.WaitGroup
	errs := make(chan error, requests)

	for i := 0; i < requests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()

			id := fmt.Sprintf("req-%d", i)
			ctx := With(context.Background(), &Store{RequestID: id})

			// Interleave with other goroutines mid-flight.
			time.Sleep(time.Millisecond)

			// Nested calls, including ones spawned onto new goroutines with
			// the same ctx, must observe this request's store.
			done := make(chan string, 1)
			go func() {
				done <- MustFrom(ctx).RequestID
			}()

			if got := <-done; got != id {
				errs <- fmt.Errorf("request %s observed foreign store %s", id, got)
				return
			}
			if got := MustFrom(ctx).RequestID; got != id {
				errs <- fmt.Errorf("request %s observed foreign store %s", id, got)
			}
		}(i)
	}

	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
