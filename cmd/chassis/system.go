package main

import (
	"context"
	"net/http"
	"time"

	"github.com/chassisworks/chassis/internal/domain"
	"github.com/chassisworks/chassis/internal/errdefs"
	"github.com/chassisworks/chassis/internal/reqctx"
	"github.com/chassisworks/chassis/internal/schema"
	"github.com/chassisworks/chassis/internal/storage"
)

var startedAt = time.Now()

// systemServices declares the built-in service: a status domain and a minimal
// account domain exercising tokens, sessions and the user repository.
func systemServices() []schema.ServiceStructure {
	return []schema.ServiceStructure{{
		Service: "system",
		Domains: []schema.DomainStructure{
			statusDomain(),
			accountDomain(),
		},
	}}
}

func statusDomain() schema.DomainStructure {
	return schema.DomainStructure{
		Domain: "status",
		Documents: schema.Documents{
			Router: schema.RouterStructure{
				"health": {
					"GET": {Handler: healthHandler},
				},
				"whoami": {
					"GET": {Scope: domain.ScopePrivateUser, Handler: whoamiHandler},
				},
			},
			Dictionaries: []schema.DictionaryStructure{{
				Language: "en",
				Dictionary: schema.Dictionary{
					"status": map[string]interface{}{
						"healthy": "The gateway is healthy",
					},
				},
			}},
		},
	}
}

func healthHandler(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
	return domain.JSON(http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(startedAt).String(),
	}), nil
}

func whoamiHandler(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
	store := reqctx.MustFrom(ctx)
	if !store.Authenticated() {
		return domain.JSON(http.StatusOK, map[string]interface{}{"anonymous": true}), nil
	}
	return domain.JSON(http.StatusOK, map[string]interface{}{
		"anonymous": false,
		"userId":    store.Session.UserID,
		"sessionId": store.Session.SessionID,
	}), nil
}

func accountDomain() schema.DomainStructure {
	return schema.DomainStructure{
		Domain: "account",
		Documents: schema.Documents{
			Entity: &schema.EntityDescriptor{
				Model: "User",
				Produce: func(ag *domain.Agents) storage.EntityDefinition {
					return storage.EntityDefinition{
						Model: "User",
						Table: "users",
						DDL: `CREATE TABLE IF NOT EXISTS users (
	id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`,
					}
				},
			},
			Repository: schema.RepositoryStructure{
				"findByEmail": findUserByEmail,
				"create":      createUser,
			},
			Validators: schema.ValidatorStructure{
				"credentials": {In: validateCredentials},
			},
			Router: schema.RouterStructure{
				"register": {
					"POST": {Handler: registerHandler},
				},
				"login": {
					"POST": {Handler: loginHandler},
				},
				"logout": {
					"DELETE": {Scope: domain.ScopePrivateUser, Handler: logoutHandler},
				},
			},
			Dictionaries: []schema.DictionaryStructure{{
				Language: "en",
				Dictionary: schema.Dictionary{
					"errors": map[string]interface{}{
						"emailTaken":  "Account {{email}} already exists",
						"badLogin":    "Email or password is incorrect",
						"notLoggedIn": "No active session",
					},
				},
			}},
		},
	}
}

type userRow struct {
	ID           string `db:"id"`
	Email        string `db:"email"`
	PasswordHash string `db:"password_hash"`
}

func findUserByEmail(ctx context.Context, repo *storage.Repo, args ...interface{}) (interface{}, error) {
	email, _ := args[0].(string)
	var row userRow
	if err := repo.Get(ctx, &row, "SELECT id, email, password_hash FROM users WHERE email = $1", email); err != nil {
		return nil, err
	}
	return &row, nil
}

func createUser(ctx context.Context, repo *storage.Repo, args ...interface{}) (interface{}, error) {
	email, _ := args[0].(string)
	hash, _ := args[1].(string)
	var id string
	if err := repo.Get(ctx, &id,
		"INSERT INTO users (email, password_hash) VALUES ($1, $2) RETURNING id", email, hash); err != nil {
		return nil, err
	}
	return id, nil
}

func validateCredentials(ctx context.Context, payload interface{}) error {
	body, _ := payload.(map[string]interface{})
	var fields []errdefs.FieldError
	if email, _ := body["email"].(string); email == "" {
		fields = append(fields, errdefs.FieldError{Message: "email is required", Key: "email"})
	}
	if password, _ := body["password"].(string); len(password) < 8 {
		fields = append(fields, errdefs.FieldError{Message: "password must be at least 8 characters", Key: "password"})
	}
	if len(fields) > 0 {
		return errdefs.Validation(fields...)
	}
	return nil
}

func credentials(req *domain.Request) (string, string) {
	body, _ := req.Body.(map[string]interface{})
	email, _ := body["email"].(string)
	password, _ := body["password"].(string)
	return email, password
}

func registerHandler(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
	validators, err := ag.Schema.Validator(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := validators.Call(ctx, schema.ValidatorKey("credentials", domain.ValidatorIn), req.Body); err != nil {
		return nil, err
	}

	email, password := credentials(req)
	repo, err := ag.Schema.Repository(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := repo.Call(ctx, "findByEmail", email); err == nil {
		message, rerr := ag.Schema.Resource(ctx, "errors:emailTaken", map[string]string{"email": email}, "")
		if rerr != nil {
			message = "account already exists"
		}
		return nil, &errdefs.SchemaException{
			StatusCode: http.StatusConflict,
			Message:    message,
			Code:       "ACCOUNT_EXISTS",
		}
	}

	hash, err := ag.Functionality.HashPassword(password)
	if err != nil {
		return nil, err
	}
	id, err := repo.Call(ctx, "create", email, hash)
	if err != nil {
		return nil, err
	}
	return domain.JSON(http.StatusCreated, map[string]interface{}{"userId": id}), nil
}

func loginHandler(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
	validators, err := ag.Schema.Validator(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := validators.Call(ctx, schema.ValidatorKey("credentials", domain.ValidatorIn), req.Body); err != nil {
		return nil, err
	}

	email, password := credentials(req)
	repo, err := ag.Schema.Repository(ctx)
	if err != nil {
		return nil, err
	}

	badLogin := func() error {
		message, rerr := ag.Schema.Resource(ctx, "errors:badLogin", nil, "")
		if rerr != nil {
			message = "email or password is incorrect"
		}
		return &errdefs.SchemaException{
			StatusCode: http.StatusUnauthorized,
			Message:    message,
			Code:       "BAD_LOGIN",
			Silent:     true,
		}
	}

	found, err := repo.Call(ctx, "findByEmail", email)
	if err != nil {
		return nil, badLogin()
	}
	row, ok := found.(*userRow)
	if !ok {
		return nil, badLogin()
	}
	match, err := ag.Functionality.ComparePassword(password, row.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !match {
		return nil, badLogin()
	}

	sessionID, err := ag.Functionality.OpenSession(ctx, row.ID, map[string]interface{}{
		"email": row.Email,
	})
	if err != nil {
		return nil, err
	}
	claims := map[string]interface{}{"userId": row.ID, "sessionId": sessionID}
	access, err := ag.Functionality.AccessToken(claims)
	if err != nil {
		return nil, err
	}
	refresh, err := ag.Functionality.RefreshToken(claims)
	if err != nil {
		return nil, err
	}

	return domain.JSON(http.StatusOK, map[string]interface{}{
		"userId":       row.ID,
		"sessionId":    sessionID,
		"accessToken":  access.Token,
		"refreshToken": refresh.Token,
	}), nil
}

func logoutHandler(ctx context.Context, req *domain.Request, ag *domain.Agents) (*domain.Response, error) {
	store := reqctx.MustFrom(ctx)
	if !store.Authenticated() {
		message, rerr := ag.Schema.Resource(ctx, "errors:notLoggedIn", nil, "")
		if rerr != nil {
			message = "no active session"
		}
		return nil, &errdefs.SchemaException{
			StatusCode: http.StatusBadRequest,
			Message:    message,
			Code:       "NO_SESSION",
		}
	}
	if err := ag.Functionality.CloseSession(ctx, store.Session.UserID, store.Session.SessionID); err != nil {
		return nil, err
	}
	return domain.Status(http.StatusNoContent), nil
}
