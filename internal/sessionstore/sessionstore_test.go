package sessionstore

import (
	"context"
	"testing"
	"time"
)

func TestKeyComposition(t *testing.T) {
	if got := Key("GW_01", "u1", "s1"); got != "service:GW_01:userId:u1:sessionId:s1" {
		t.Errorf("Key = %q", got)
	}
	if got := Key("GW_01", "u1", ""); got != "service:GW_01:userId:u1" {
		t.Errorf("Key without session = %q", got)
	}
	if got := UserPattern("GW_01", "u1"); got != "service:GW_01:userId:u1:*" {
		t.Errorf("UserPattern = %q", got)
	}
}

func TestMemory_Lifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(time.Minute)

	sessionID, err := store.Open(ctx, "u1", Record{"role": "admin"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if sessionID == "" {
		t.Fatal("session id should not be empty")
	}

	rec, err := store.Get(ctx, "u1", sessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if rec == nil || rec["role"] != "admin" {
		t.Errorf("unexpected record: %#v", rec)
	}

	if rec, _ := store.Get(ctx, "u1", "unknown"); rec != nil {
		t.Error("unknown session should read as nil")
	}

	if err := store.SetField(ctx, "u1", sessionID, "connectionId", "c1"); err != nil {
		t.Fatalf("SetField failed: %v", err)
	}
	rec, _ = store.Get(ctx, "u1", sessionID)
	if rec["connectionId"] != "c1" {
		t.Errorf("connectionId not updated: %#v", rec)
	}

	n, err := store.Count(ctx, "u1")
	if err != nil || n != 1 {
		t.Errorf("Count = %d, %v", n, err)
	}

	found, err := store.FindByUser(ctx, "u1")
	if err != nil || found == nil {
		t.Errorf("FindByUser = %#v, %v", found, err)
	}
	if found, _ := store.FindByUser(ctx, "ghost"); found != nil {
		t.Error("FindByUser for unknown user should be nil")
	}

	if err := store.Delete(ctx, "u1", sessionID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if rec, _ := store.Get(ctx, "u1", sessionID); rec != nil {
		t.Error("deleted session should read as nil")
	}
}

func TestMemory_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	store := NewMemory(-time.Second)

	sessionID, err := store.Open(ctx, "u1", Record{"role": "admin"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if rec, _ := store.Get(ctx, "u1", sessionID); rec != nil {
		t.Error("expired session should read as nil")
	}
	if n, _ := store.Count(ctx, "u1"); n != 0 {
		t.Errorf("expired session counted: %d", n)
	}
}
