package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/chassisworks/chassis/internal/agents"
	"github.com/chassisworks/chassis/internal/domain"
	"github.com/chassisworks/chassis/internal/errdefs"
	"github.com/chassisworks/chassis/internal/reqctx"
	"github.com/chassisworks/chassis/internal/schema"
	"github.com/chassisworks/chassis/internal/scrambler"
	"github.com/chassisworks/chassis/internal/sessionstore"
)

type envelope struct {
	Type string                 `json:"type"`
	Data map[string]interface{} `json:"data"`
}

func testServices(t *testing.T) schema.Services {
	t.Helper()

	r := schema.NewRegistry(nil)
	r.Init()
	err := r.SetBusinessLogic([]schema.ServiceStructure{{
		Service: "crm",
		Domains: []schema.DomainStructure{{
			Domain: "users",
			Documents: schema.Documents{
				Router: schema.RouterStructure{
					"profile": {
						"GET": {Handler: func(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
							return domain.JSON(http.StatusOK, map[string]interface{}{
								"params": req.Params,
								"query":  req.Query,
							}), nil
						}},
					},
					"orders": {
						"GET": {
							Params: []string{"userId", "orderId"},
							Handler: func(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
								return domain.JSON(http.StatusOK, req.Params), nil
							},
						},
					},
					"me": {
						"GET": {
							Scope: domain.ScopePrivateUser,
							Handler: func(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
								store := reqctx.MustFrom(ctx)
								out := map[string]interface{}{"authenticated": store.Authenticated()}
								if store.Authenticated() {
									out["userId"] = store.Session.UserID
								}
								return domain.JSON(http.StatusOK, out), nil
							},
						},
					},
					"nothing": {
						"DELETE": {Handler: func(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
							return nil, nil
						}},
					},
					"away": {
						"GET": {Handler: func(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
							return domain.Redirect(http.StatusFound, "https://elsewhere.example.com"), nil
						}},
					},
					"invalid": {
						"POST": {Handler: func(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
							return nil, errdefs.Validation(
								errdefs.FieldError{Message: "email is required", Key: "email"},
								errdefs.FieldError{Message: "name is too short", Key: "name", Value: "x"},
							)
						}},
					},
					"teapot": {
						"GET": {Handler: func(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
							return nil, &errdefs.SchemaException{
								StatusCode: http.StatusTeapot,
								Message:    "out of coffee",
								Code:       "NO_COFFEE",
								AddHeaders: map[string]string{"Retry-After": "60"},
								Silent:     true,
							}
						}},
					},
					"boom": {
						"GET": {Handler: func(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
							return nil, context.DeadlineExceeded
						}},
					},
					"weird": {
						"GET": {Handler: func(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
							return &domain.Response{Format: "xml"}, nil
						}},
					},
				},
			},
		}},
	}})
	if err != nil {
		t.Fatalf("SetBusinessLogic failed: %v", err)
	}
	services, err := r.Services()
	if err != nil {
		t.Fatalf("Services failed: %v", err)
	}
	return services
}

type harness struct {
	dispatcher *Dispatcher
	scrambler  *scrambler.Scrambler
	sessions   sessionstore.Store
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	scr, err := scrambler.New(scrambler.Config{Secret: "dispatch-secret", Salt: 4})
	if err != nil {
		t.Fatalf("scrambler.New failed: %v", err)
	}
	sessions := sessionstore.NewMemory(time.Minute)
	factory := agents.NewFactory(scr, sessions, nil, nil)

	d := New(testServices(t), factory, scr, sessions, Options{
		APIPrefix:          "/api/v1",
		SupportedLanguages: []string{"en", "ru"},
		DefaultLanguage:    "en",
	}, nil)

	return &harness{dispatcher: d, scrambler: scr, sessions: sessions}
}

func (h *harness) do(t *testing.T, method, target string, headers map[string]string, body string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(domain.HeaderServiceName, "crm")
	req.Header.Set(domain.HeaderDomainName, "users")
	for k, v := range headers {
		if v == "" {
			req.Header.Del(k)
			continue
		}
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	h.dispatcher.Router().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("response is not an envelope: %v: %s", err, rec.Body.String())
		}
	}
	return rec, env
}

func TestHandle_MissingHeaderNamesIt(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodGet, "/api/v1/", map[string]string{
		domain.HeaderDomainName: "",
		domain.HeaderActionName: "profile",
	}, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	msg, _ := env.Data["message"].(string)
	if !strings.Contains(msg, domain.HeaderDomainName) {
		t.Errorf("message %q does not name the missing header", msg)
	}
	if strings.Contains(msg, domain.HeaderActionName) {
		t.Errorf("message %q names the wrong header", msg)
	}
}

func TestHandle_NotFoundStages(t *testing.T) {
	h := newHarness(t)

	cases := []struct {
		name    string
		headers map[string]string
		stage   string
	}{
		{"service", map[string]string{domain.HeaderServiceName: "billing", domain.HeaderActionName: "profile"}, "service"},
		{"domain", map[string]string{domain.HeaderDomainName: "orders", domain.HeaderActionName: "profile"}, "domain"},
		{"action", map[string]string{domain.HeaderActionName: "missing"}, "action"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, env := h.do(t, http.MethodGet, "/api/v1/", tc.headers, "")
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			if got := env.Data["stage"]; got != tc.stage {
				t.Errorf("stage = %v, want %q", got, tc.stage)
			}
		})
	}
}

func TestHandle_PathParamBinding(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodGet, "/api/v1/users/42/orders/7", map[string]string{
		domain.HeaderActionName: "orders",
	}, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, env)
	}
	if env.Data["userId"] != "42" || env.Data["orderId"] != "7" {
		t.Errorf("params = %v", env.Data)
	}
}

func TestHandle_QueryCoercion(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodGet, "/api/v1/?age=30&active=true&tags=a,b", map[string]string{
		domain.HeaderActionName: "profile",
	}, "")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %v", rec.Code, env)
	}
	query, _ := env.Data["query"].(map[string]interface{})
	if query == nil {
		t.Fatalf("data = %v", env.Data)
	}
	if query["age"] != float64(30) {
		t.Errorf("age = %v (%T), want 30", query["age"], query["age"])
	}
	if query["active"] != true {
		t.Errorf("active = %v (%T), want true", query["active"], query["active"])
	}
	tags, _ := query["tags"].([]interface{})
	if len(tags) != 2 || tags[0] != "a" || tags[1] != "b" {
		t.Errorf("tags = %v", query["tags"])
	}
}

func TestHandle_LanguageNegotiation(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodGet, "/api/v1/", map[string]string{
		domain.HeaderActionName: "profile",
		"Accept-Language":       "fr",
	}, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	msg, _ := env.Data["message"].(string)
	if !strings.Contains(msg, "en, ru") {
		t.Errorf("message %q does not list supported languages", msg)
	}
}

func TestHandle_AuthGate(t *testing.T) {
	h := newHarness(t)

	t.Run("missing token", func(t *testing.T) {
		rec, env := h.do(t, http.MethodGet, "/api/v1/", map[string]string{
			domain.HeaderActionName: "me",
		}, "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		if env.Data["code"] != "missing_token" {
			t.Errorf("code = %v", env.Data["code"])
		}
	})

	t.Run("expired token distinguished", func(t *testing.T) {
		foreign, err := scrambler.New(scrambler.Config{Secret: "other-secret", Salt: 4})
		if err != nil {
			t.Fatal(err)
		}
		info, err := foreign.AccessToken(map[string]interface{}{"userId": "u1"})
		if err != nil {
			t.Fatal(err)
		}
		rec, env := h.do(t, http.MethodGet, "/api/v1/", map[string]string{
			domain.HeaderActionName:  "me",
			domain.HeaderAccessToken: info.Token,
		}, "")
		if rec.Code != http.StatusForbidden {
			t.Fatalf("status = %d, want 403", rec.Code)
		}
		if env.Data["code"] != "token_expired" {
			t.Errorf("code = %v", env.Data["code"])
		}
	})

	t.Run("valid token without session proceeds anonymous", func(t *testing.T) {
		info, err := h.scrambler.AccessToken(map[string]interface{}{
			"userId": "u1", "sessionId": "gone",
		})
		if err != nil {
			t.Fatal(err)
		}
		rec, env := h.do(t, http.MethodGet, "/api/v1/", map[string]string{
			domain.HeaderActionName:  "me",
			domain.HeaderAccessToken: info.Token,
		}, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %v", rec.Code, env)
		}
		if env.Data["authenticated"] != false {
			t.Errorf("authenticated = %v, want false", env.Data["authenticated"])
		}
	})

	t.Run("valid token with session binds it", func(t *testing.T) {
		sessionID, err := h.sessions.Open(context.Background(), "u2", sessionstore.Record{"role": "admin"})
		if err != nil {
			t.Fatal(err)
		}
		info, err := h.scrambler.AccessToken(map[string]interface{}{
			"userId": "u2", "sessionId": sessionID,
		})
		if err != nil {
			t.Fatal(err)
		}
		rec, env := h.do(t, http.MethodGet, "/api/v1/", map[string]string{
			domain.HeaderActionName:  "me",
			domain.HeaderAccessToken: info.Token,
		}, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d: %v", rec.Code, env)
		}
		if env.Data["authenticated"] != true || env.Data["userId"] != "u2" {
			t.Errorf("data = %v", env.Data)
		}
	})
}

func TestHandle_ResponseFormats(t *testing.T) {
	h := newHarness(t)

	t.Run("nil response is 204", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodDelete, "/api/v1/", map[string]string{
			domain.HeaderActionName: "nothing",
		}, "")
		if rec.Code != http.StatusNoContent {
			t.Errorf("status = %d, want 204", rec.Code)
		}
		if rec.Body.Len() != 0 {
			t.Errorf("body = %q, want empty", rec.Body.String())
		}
	})

	t.Run("redirect", func(t *testing.T) {
		rec, _ := h.do(t, http.MethodGet, "/api/v1/", map[string]string{
			domain.HeaderActionName: "away",
		}, "")
		if rec.Code != http.StatusFound {
			t.Errorf("status = %d, want 302", rec.Code)
		}
		if loc := rec.Header().Get("Location"); loc != "https://elsewhere.example.com" {
			t.Errorf("location = %q", loc)
		}
	})

	t.Run("unhandled format is 500", func(t *testing.T) {
		rec, env := h.do(t, http.MethodGet, "/api/v1/", map[string]string{
			domain.HeaderActionName: "weird",
		}, "")
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		msg, _ := env.Data["message"].(string)
		if !strings.Contains(msg, "unhandled response format") {
			t.Errorf("message = %q", msg)
		}
	})
}

func TestHandle_ErrorTranslation(t *testing.T) {
	h := newHarness(t)

	t.Run("validation", func(t *testing.T) {
		rec, env := h.do(t, http.MethodPost, "/api/v1/", map[string]string{
			domain.HeaderActionName: "invalid",
		}, `{"name":"x"}`)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
		if env.Type != domain.TypeValidation {
			t.Errorf("type = %q", env.Type)
		}
		fields, _ := env.Data["errors"].([]interface{})
		if len(fields) != 2 {
			t.Fatalf("errors = %v", env.Data["errors"])
		}
		first, _ := fields[0].(map[string]interface{})
		if first["key"] != "email" {
			t.Errorf("first error = %v, order not preserved", first)
		}
	})

	t.Run("schema exception", func(t *testing.T) {
		rec, env := h.do(t, http.MethodGet, "/api/v1/", map[string]string{
			domain.HeaderActionName: "teapot",
		}, "")
		if rec.Code != http.StatusTeapot {
			t.Fatalf("status = %d, want declared 418", rec.Code)
		}
		if env.Type != domain.TypeException || env.Data["code"] != "NO_COFFEE" {
			t.Errorf("envelope = %+v", env)
		}
		if rec.Header().Get("Retry-After") != "60" {
			t.Errorf("declared header not attached")
		}
	})

	t.Run("unknown error is 500", func(t *testing.T) {
		rec, env := h.do(t, http.MethodGet, "/api/v1/", map[string]string{
			domain.HeaderActionName: "boom",
		}, "")
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("status = %d, want 500", rec.Code)
		}
		msg, _ := env.Data["message"].(string)
		if msg == "" {
			t.Error("raw error not surfaced")
		}
	})
}

func TestBindParams(t *testing.T) {
	got := bindParams("/api/users/42/orders/7", "/api", []string{"userId", "orderId"})
	if got["userId"] != "42" || got["orderId"] != "7" {
		t.Errorf("params = %v", got)
	}

	if got := bindParams("/api/users/42", "/api", nil); len(got) != 0 {
		t.Errorf("params = %v, want empty", got)
	}
}

func TestParseQueryRepeatedKeys(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?n=1&n=2&flag=false&name=bob", nil)
	got := parseQuery(req.URL.Query())

	ns, _ := got["n"].([]interface{})
	if len(ns) != 2 || ns[0] != float64(1) || ns[1] != float64(2) {
		t.Errorf("n = %v", got["n"])
	}
	if got["flag"] != false {
		t.Errorf("flag = %v", got["flag"])
	}
	if got["name"] != "bob" {
		t.Errorf("name = %v", got["name"])
	}
}
