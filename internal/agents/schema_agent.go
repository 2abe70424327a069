package agents

import (
	"context"
	"fmt"
	"sort"

	"github.com/chassisworks/chassis/internal/domain"
	"github.com/chassisworks/chassis/internal/errdefs"
	"github.com/chassisworks/chassis/internal/localization"
	"github.com/chassisworks/chassis/internal/reqctx"
	"github.com/chassisworks/chassis/internal/schema"
	"github.com/chassisworks/chassis/internal/storage"
)

// schemaAgent resolves per-domain capabilities from the ambient request
// store. Facades are rebuilt on every access: they are derived from the
// currently active domain, which varies per request.
type schemaAgent struct {
	connector *storage.Connector
}

func (a *schemaAgent) Repository(ctx context.Context) (domain.Facade, error) {
	return a.RepositoryOf(ctx, reqctx.MustFrom(ctx).Domain)
}

func (a *schemaAgent) RepositoryOf(ctx context.Context, domainName string) (domain.Facade, error) {
	st, err := a.domainStorage(ctx, domainName)
	if err != nil {
		return nil, err
	}
	if len(st.RepoHandlers) == 0 {
		return nil, fmt.Errorf("agents: domain %q has no repository handlers", domainName)
	}
	repo, err := a.connector.Repository(st.Model)
	if err != nil {
		return nil, err
	}

	members := make(map[string]member, len(st.RepoHandlers))
	for name, handler := range st.RepoHandlers {
		handler := handler
		members[name] = func(ctx context.Context, args ...interface{}) (interface{}, error) {
			return handler(ctx, repo, args...)
		}
	}
	return facade{domain: domainName, members: members}, nil
}

func (a *schemaAgent) Validator(ctx context.Context) (domain.Facade, error) {
	return a.ValidatorOf(ctx, reqctx.MustFrom(ctx).Domain)
}

func (a *schemaAgent) ValidatorOf(ctx context.Context, domainName string) (domain.Facade, error) {
	st, err := a.domainStorage(ctx, domainName)
	if err != nil {
		return nil, err
	}
	if len(st.Validators) == 0 {
		return nil, fmt.Errorf("agents: domain %q has no validators", domainName)
	}

	members := make(map[string]member, len(st.Validators))
	for key, validator := range st.Validators {
		handler := validator.Handler
		members[key] = func(ctx context.Context, args ...interface{}) (interface{}, error) {
			var payload interface{}
			if len(args) > 0 {
				payload = args[0]
			}
			return nil, handler(ctx, payload)
		}
	}
	return facade{domain: domainName, members: members}, nil
}

func (a *schemaAgent) Resource(ctx context.Context, key string, substitutions map[string]string, language string) (string, error) {
	return a.ResourceOf(ctx, reqctx.MustFrom(ctx).Domain, key, substitutions, language)
}

func (a *schemaAgent) ResourceOf(ctx context.Context, domainName, key string, substitutions map[string]string, language string) (string, error) {
	store := reqctx.MustFrom(ctx)
	if language == "" {
		language = store.Language
	}
	return localization.ResolveFor(store.Schema, store.Service, domainName, language, key, substitutions)
}

func (a *schemaAgent) domainStorage(ctx context.Context, domainName string) (*schema.DomainStorage, error) {
	store := reqctx.MustFrom(ctx)

	domains, ok := store.Schema[store.Service]
	if !ok {
		return nil, errdefs.NotFound(errdefs.StageService, store.Service)
	}
	st, ok := domains[domainName]
	if !ok {
		return nil, errdefs.NotFound(errdefs.StageDomain, domainName)
	}
	return st, nil
}

type member func(ctx context.Context, args ...interface{}) (interface{}, error)

// facade exposes exactly the member names a domain registered; calling an
// unregistered operation is an error, never a dispatch into foreign code.
type facade struct {
	domain  string
	members map[string]member
}

func (f facade) Has(name string) bool {
	_, ok := f.members[name]
	return ok
}

func (f facade) Names() []string {
	names := make([]string, 0, len(f.members))
	for name := range f.members {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (f facade) Call(ctx context.Context, name string, args ...interface{}) (interface{}, error) {
	m, ok := f.members[name]
	if !ok {
		return nil, fmt.Errorf("agents: operation %q not registered in domain %q", name, f.domain)
	}
	return m(ctx, args...)
}
