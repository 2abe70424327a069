// Package dispatcher implements the HTTP entry point: one catch-all route
// under the API prefix that resolves the addressing headers against the
// schema registry, authenticates the caller, invokes the resolved handler and
// translates the response union and the error taxonomy into transport
// responses.
package dispatcher

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/chassisworks/chassis/internal/agents"
	"github.com/chassisworks/chassis/internal/domain"
	"github.com/chassisworks/chassis/internal/errdefs"
	"github.com/chassisworks/chassis/internal/reqctx"
	"github.com/chassisworks/chassis/internal/schema"
	"github.com/chassisworks/chassis/internal/scrambler"
	"github.com/chassisworks/chassis/internal/sessionstore"
	"github.com/chassisworks/chassis/pkg/logger"
)

// Options configures the dispatch pipeline.
type Options struct {
	APIPrefix          string
	SupportedLanguages []string
	DefaultLanguage    string
}

// Dispatcher owns the catch-all HTTP route.
type Dispatcher struct {
	services schema.Services
	agents   *agents.Factory
	scr      *scrambler.Scrambler
	sessions sessionstore.Store
	opts     Options
	log      *logger.Logger
}

// New builds a dispatcher over the resolved schema lookup tables.
func New(services schema.Services, factory *agents.Factory, scr *scrambler.Scrambler, sessions sessionstore.Store, opts Options, log *logger.Logger) *Dispatcher {
	if log == nil {
		log = logger.NewDefault("dispatcher")
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = "en"
	}
	if len(opts.SupportedLanguages) == 0 {
		opts.SupportedLanguages = []string{opts.DefaultLanguage}
	}
	return &Dispatcher{
		services: services,
		agents:   factory,
		scr:      scr,
		sessions: sessions,
		opts:     opts,
		log:      log,
	}
}

// Router returns a mux router with the catch-all route mounted under the API
// prefix. Middleware is attached by the caller.
func (d *Dispatcher) Router() *mux.Router {
	r := mux.NewRouter()
	r.PathPrefix(d.opts.APIPrefix).HandlerFunc(d.Handle)
	return r
}

// Handle runs the dispatch pipeline for one inbound request.
func (d *Dispatcher) Handle(w http.ResponseWriter, r *http.Request) {
	serviceName := r.Header.Get(domain.HeaderServiceName)
	domainName := r.Header.Get(domain.HeaderDomainName)
	actionName := r.Header.Get(domain.HeaderActionName)

	if serviceName == "" {
		d.writeError(w, errdefs.MissingHeader(domain.HeaderServiceName))
		return
	}
	if domainName == "" {
		d.writeError(w, errdefs.MissingHeader(domain.HeaderDomainName))
		return
	}
	if actionName == "" {
		d.writeError(w, errdefs.MissingHeader(domain.HeaderActionName))
		return
	}

	domains, ok := d.services[serviceName]
	if !ok {
		d.writeError(w, errdefs.NotFound(errdefs.StageService, serviceName))
		return
	}
	st, ok := domains[domainName]
	if !ok {
		d.writeError(w, errdefs.NotFound(errdefs.StageDomain, domainName))
		return
	}
	route, ok := st.Routes[schema.RouteKey(actionName, r.Method)]
	if !ok {
		d.writeError(w, errdefs.NotFound(errdefs.StageAction, actionName))
		return
	}

	params := bindParams(r.URL.Path, d.opts.APIPrefix, route.Params)
	query := parseQuery(r.URL.Query())

	language := d.opts.DefaultLanguage
	if accept := r.Header.Get("Accept-Language"); accept != "" {
		if !contains(d.opts.SupportedLanguages, accept) {
			writeEnvelope(w, http.StatusBadRequest, domain.TypeError, map[string]interface{}{
				"message": fmt.Sprintf("language %q is not supported, supported languages: %s",
					accept, strings.Join(d.opts.SupportedLanguages, ", ")),
			})
			return
		}
		language = accept
	}

	store := &reqctx.Store{
		RequestID: uuid.NewString(),
		IP:        clientIP(r),
		Path:      r.URL.Path,
		Service:   serviceName,
		Domain:    domainName,
		Action:    actionName,
		Method:    r.Method,
		Language:  language,
		Schema:    d.services,
	}
	ctx := reqctx.With(r.Context(), store)

	if route.Scope.Private() {
		token := r.Header.Get(domain.HeaderAccessToken)
		if token == "" {
			writeEnvelope(w, http.StatusForbidden, domain.TypeError, map[string]interface{}{
				"message": "missing access token",
				"code":    "missing_token",
			})
			return
		}

		payload, err := d.scr.Verify(token)
		if err != nil {
			d.writeError(w, err)
			return
		}

		userID, _ := payload["userId"].(string)
		sessionID, _ := payload["sessionId"].(string)
		record, err := d.sessions.Get(ctx, userID, sessionID)
		if err != nil {
			d.log.WithError(err).WithField("request_id", store.RequestID).Warn("session lookup failed")
		}
		// A valid token without a matching session record is not fatal;
		// the handler runs anonymous.
		if record != nil {
			store.Session = &reqctx.SessionView{
				UserID:    userID,
				SessionID: sessionID,
				Payload:   record,
			}
		}
	}

	body, err := decodeBody(r)
	if err != nil {
		writeEnvelope(w, http.StatusBadRequest, domain.TypeError, map[string]interface{}{
			"message": "invalid json body",
		})
		return
	}

	req := &domain.Request{
		Method:  r.Method,
		Path:    r.URL.Path,
		URL:     r.URL.String(),
		Headers: r.Header,
		Params:  params,
		Query:   query,
		Body:    body,
	}

	resp, err := route.Handler(ctx, req, d.agents.Bundle())
	if err != nil {
		d.writeError(w, err)
		return
	}
	d.writeResponse(w, resp)
}

func (d *Dispatcher) writeResponse(w http.ResponseWriter, resp *domain.Response) {
	if resp == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}

	switch resp.Format {
	case domain.FormatJSON:
		status := resp.Status
		if status == 0 {
			status = http.StatusOK
		}
		typ := resp.Type
		if typ == "" {
			typ = domain.TypeOK
		}
		writeEnvelope(w, status, typ, resp.Data)
	case domain.FormatStatus:
		status := resp.Status
		if status == 0 {
			status = http.StatusNoContent
		}
		w.WriteHeader(status)
	case domain.FormatRedirect:
		status := resp.Status
		if status == 0 {
			status = http.StatusFound
		}
		w.Header().Set("Location", resp.URL)
		w.WriteHeader(status)
	default:
		d.log.WithField("format", string(resp.Format)).Error("unhandled response format")
		writeEnvelope(w, http.StatusInternalServerError, domain.TypeError, map[string]interface{}{
			"message": fmt.Sprintf("unhandled response format %q", resp.Format),
		})
	}
}

// writeError translates the error taxonomy exactly once, at this boundary.
func (d *Dispatcher) writeError(w http.ResponseWriter, err error) {
	if ae, ok := errdefs.AsAddressing(err); ok {
		writeEnvelope(w, http.StatusBadRequest, domain.TypeError, map[string]interface{}{
			"message": ae.Error(),
			"header":  ae.Header,
		})
		return
	}
	if nf, ok := errdefs.AsNotFound(err); ok {
		writeEnvelope(w, http.StatusBadRequest, domain.TypeError, map[string]interface{}{
			"message": nf.Error(),
			"stage":   string(nf.Stage),
		})
		return
	}
	if ve, ok := errdefs.AsValidation(err); ok {
		writeEnvelope(w, http.StatusBadRequest, domain.TypeValidation, map[string]interface{}{
			"errors": ve.Errors,
		})
		return
	}
	if errdefs.IsTokenExpired(err) {
		writeEnvelope(w, http.StatusForbidden, domain.TypeError, map[string]interface{}{
			"message": "access token expired",
			"code":    "token_expired",
		})
		return
	}
	if se, ok := errdefs.AsSchemaException(err); ok {
		for _, header := range se.RemoveHeaders {
			w.Header().Del(header)
		}
		for key, value := range se.AddHeaders {
			w.Header().Set(key, value)
		}
		status := se.StatusCode
		if status == 0 {
			status = http.StatusBadRequest
		}
		if !se.Silent {
			d.log.WithField("code", se.Code).WithField("status", status).Warn(se.Message)
		}
		if se.Redirect != "" {
			w.Header().Set("Location", se.Redirect)
		}
		writeEnvelope(w, status, domain.TypeException, map[string]interface{}{
			"message": se.Message,
			"code":    se.Code,
			"data":    se.Data,
		})
		return
	}

	d.log.WithError(err).Error("unhandled dispatch error")
	writeEnvelope(w, http.StatusInternalServerError, domain.TypeError, map[string]interface{}{
		"message": err.Error(),
	})
}

func writeEnvelope(w http.ResponseWriter, status int, typ string, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"type": typ,
		"data": data,
	})
}

func decodeBody(r *http.Request) (interface{}, error) {
	if r.Body == nil {
		return nil, nil
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}
	var body interface{}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}
	return body, nil
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
