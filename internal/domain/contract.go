// Package domain defines the contract between the gateway core and business
// schema code: the request/response shapes handlers see, the handler and
// validator signatures the registry stores, and the capability agent
// interfaces injected into every invocation.
package domain

import (
	"context"
	"net/http"

	"github.com/chassisworks/chassis/internal/storage"
)

// Scope is the authentication requirement of a route.
type Scope string

const (
	ScopePublic              Scope = "public:route"
	ScopePrivateUser         Scope = "private:user"
	ScopePrivateOrganization Scope = "private:organization"
)

// Private reports whether the scope requires an authenticated caller.
func (s Scope) Private() bool {
	return s == ScopePrivateUser || s == ScopePrivateOrganization
}

// Request is the transport-neutral request a handler receives.
type Request struct {
	Method  string
	Path    string
	URL     string
	Headers http.Header
	// Params are path segments bound positionally against the route's
	// declared parameter names.
	Params map[string]string
	// Query holds coerced query values: numeric strings become float64,
	// "true"/"false" become bool, arrays are coerced element-wise.
	Query map[string]interface{}
	// Body is the decoded JSON body, or nil when the request had none.
	Body interface{}
}

// ResponseFormat tags the response union.
type ResponseFormat string

const (
	FormatJSON     ResponseFormat = "json"
	FormatStatus   ResponseFormat = "status"
	FormatRedirect ResponseFormat = "redirect"
)

// Response type markers used in the JSON envelope.
const (
	TypeOK         = "OK"
	TypeError      = "ERROR"
	TypeException  = "EXCEPTION"
	TypeValidation = "VALIDATION"
)

// Response is the tagged union a handler returns. A nil *Response maps to
// 204 No Content.
type Response struct {
	Format  ResponseFormat
	Status  int
	Type    string
	Data    interface{}
	Headers map[string]string
	// URL is only meaningful for FormatRedirect.
	URL string
}

// JSON builds a json-format response.
func JSON(status int, data interface{}) *Response {
	return &Response{Format: FormatJSON, Status: status, Type: TypeOK, Data: data}
}

// Status builds a status-only response.
func Status(status int) *Response {
	return &Response{Format: FormatStatus, Status: status}
}

// Redirect builds a redirect response.
func Redirect(status int, url string) *Response {
	return &Response{Format: FormatRedirect, Status: status, URL: url}
}

// Handler is a route handler. It receives the transport-neutral request, the
// per-request capability agents, and the request context carrying the ambient
// store.
type Handler func(ctx context.Context, req *Request, ag *Agents) (*Response, error)

// RepoHandler is a registered repository operation. The schema agent injects
// a live repository bound to the owning domain's model.
type RepoHandler func(ctx context.Context, repo *storage.Repo, args ...interface{}) (interface{}, error)

// ValidatorScope distinguishes input from output validators.
type ValidatorScope string

const (
	ValidatorIn  ValidatorScope = "in"
	ValidatorOut ValidatorScope = "out"
)

// ValidatorFn validates a payload; it returns an *errdefs.ValidationError on
// failure and nil when the payload is acceptable.
type ValidatorFn func(ctx context.Context, payload interface{}) error

// TokenInfo is a minted token together with its unique id.
type TokenInfo struct {
	Token string
	ID    string
}

// Agents bundles the capability facades handed to every handler invocation.
type Agents struct {
	Functionality FunctionalityAgent
	Schema        SchemaAgent
	Integration   IntegrationAgent
}

// FunctionalityAgent exposes cross-cutting operations: token minting and
// verification, password hashing, and session record management.
type FunctionalityAgent interface {
	AccessToken(payload map[string]interface{}) (TokenInfo, error)
	RefreshToken(payload map[string]interface{}) (TokenInfo, error)
	VerifyToken(token string) (map[string]interface{}, error)
	HashPassword(password string) (string, error)
	ComparePassword(candidate, hashed string) (bool, error)
	RandomHash() (string, error)

	OpenSession(ctx context.Context, userID string, payload map[string]interface{}) (string, error)
	CloseSession(ctx context.Context, userID, sessionID string) error
	SessionCount(ctx context.Context, userID string) (int, error)
}

// Facade exposes exactly the operations a domain registered, by name.
type Facade interface {
	Has(name string) bool
	Names() []string
	Call(ctx context.Context, name string, args ...interface{}) (interface{}, error)
}

// SchemaAgent resolves per-domain capabilities from the ambient request
// context: repositories, validators, and localized resources.
type SchemaAgent interface {
	Repository(ctx context.Context) (Facade, error)
	RepositoryOf(ctx context.Context, domain string) (Facade, error)
	Validator(ctx context.Context) (Facade, error)
	ValidatorOf(ctx context.Context, domain string) (Facade, error)
	Resource(ctx context.Context, key string, substitutions map[string]string, language string) (string, error)
	ResourceOf(ctx context.Context, domain, key string, substitutions map[string]string, language string) (string, error)
}

// Mail is an outbound message handed to the mail collaborator.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// MailSender delivers mail. Delivery itself is an external collaborator; the
// gateway only defines the interface.
type MailSender interface {
	Send(ctx context.Context, mail Mail) error
}

// IntegrationAgent exposes external integrations to handlers.
type IntegrationAgent interface {
	Mail() MailSender
}
