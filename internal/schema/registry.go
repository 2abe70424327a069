package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/chassisworks/chassis/internal/domain"
	"github.com/chassisworks/chassis/internal/storage"
	"github.com/chassisworks/chassis/pkg/logger"
)

// Route is a resolved route entry.
type Route struct {
	Path    string
	Method  string
	Handler domain.Handler
	Scope   domain.Scope
	Params  []string
}

// Validator is a resolved validator entry.
type Validator struct {
	Scope   domain.ValidatorScope
	Handler domain.ValidatorFn
}

// DomainStorage holds everything one domain registered.
type DomainStorage struct {
	Routes       map[string]Route
	Validators   map[string]Validator
	RepoHandlers map[string]domain.RepoHandler
	Dictionaries map[string]Dictionary
	Emitters     map[string]EmitterDescriptor
	WsListeners  map[string]WsListener
	Entity       *EntityDescriptor
	Model        string
}

// Domains maps domain name -> storage.
type Domains map[string]*DomainStorage

// Services maps service name -> attached domains.
type Services map[string]Domains

// RouteKey builds the route lookup key for a path and HTTP method.
func RouteKey(path, method string) string {
	return path + "{{" + strings.ToUpper(method) + "}}"
}

// ValidatorKey builds the validator lookup key for a handler name and scope.
func ValidatorKey(handler string, scope domain.ValidatorScope) string {
	return handler + "{{" + string(scope) + "}}"
}

// Registry builds and owns the service -> domain -> DomainStorage maps. It is
// populated once at startup and read-only afterwards, so concurrent readers
// need no locking beyond the initialization guard.
type Registry struct {
	mu       sync.RWMutex
	services Services
	domains  Domains
	log      *logger.Logger

	entitiesCollected bool
}

// NewRegistry creates an uninitialized registry.
func NewRegistry(log *logger.Logger) *Registry {
	if log == nil {
		log = logger.NewDefault("schema")
	}
	return &Registry{log: log}
}

// Init allocates the empty maps. Must precede SetBusinessLogic.
func (r *Registry) Init() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = make(Services)
	r.domains = make(Domains)
	r.entitiesCollected = false
}

// Destroy clears all maps so the registry can be re-initialized.
func (r *Registry) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.services = nil
	r.domains = nil
	r.entitiesCollected = false
}

// Services returns the resolved lookup tables.
func (r *Registry) Services() (Services, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.services == nil {
		return nil, errors.New("schema: registry not initialized")
	}
	return r.services, nil
}

// ServiceNames returns the sorted list of registered service names.
func (r *Registry) ServiceNames() ([]string, error) {
	services, err := r.Services()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// SetBusinessLogic ingests the service descriptors, merging each domain's
// documents into its DomainStorage and attaching the domain to the service.
// Duplicate route or validator registrations are build-time errors.
func (r *Registry) SetBusinessLogic(services []ServiceStructure) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.services == nil || r.domains == nil {
		return errors.New("schema: registry not initialized")
	}

	for _, service := range services {
		for _, d := range service.Domains {
			name := d.Domain
			docs := d.Documents

			st := r.domainStorage(name)

			if docs.Router != nil {
				if err := setRoutes(st, name, docs.Router); err != nil {
					return err
				}
			}
			if docs.Validators != nil {
				if err := setValidators(st, name, docs.Validators); err != nil {
					return err
				}
			}
			for _, dict := range docs.Dictionaries {
				st.Dictionaries[dict.Language] = dict.Dictionary
			}
			for event, em := range docs.Emitter {
				em.Event = event
				st.Emitters[event] = em
			}
			for event, listener := range docs.WsListeners {
				st.WsListeners[event] = listener
			}
			if docs.Entity != nil {
				if st.Entity != nil {
					return fmt.Errorf("schema: entity schema already registered in domain %q", name)
				}
				st.Entity = docs.Entity
				st.Model = docs.Entity.Model
			}
			if docs.Repository != nil {
				if docs.Entity == nil && st.Entity == nil {
					return fmt.Errorf("schema: repository handlers require an entity schema in domain %q", name)
				}
				for hname, handler := range docs.Repository {
					st.RepoHandlers[hname] = handler
				}
			}

			sStorage, ok := r.services[service.Service]
			if !ok {
				sStorage = make(Domains)
				r.services[service.Service] = sStorage
			}
			sStorage[name] = st
		}
	}

	r.log.WithField("services", len(r.services)).Info("business logic registered")
	return nil
}

// EntityDefinitions invokes every registered entity producer with the agent
// bundle and collects model -> definition for the storage connector. It may
// be called exactly once per initialization; the connector consumes the
// result in a single explicit Connect call.
func (r *Registry) EntityDefinitions(ag *domain.Agents) (map[string]storage.EntityDefinition, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.services == nil {
		return nil, errors.New("schema: registry not initialized")
	}
	if r.entitiesCollected {
		return nil, errors.New("schema: entity definitions already collected")
	}

	entities := make(map[string]storage.EntityDefinition)
	for _, domains := range r.services {
		for name, st := range domains {
			if st.Entity == nil {
				continue
			}
			def := st.Entity.Produce(ag)
			if def.Model == "" {
				def.Model = st.Entity.Model
			}
			if def.Model != st.Entity.Model {
				return nil, fmt.Errorf("schema: entity producer for domain %q returned model %q, registered as %q",
					name, def.Model, st.Entity.Model)
			}
			entities[def.Model] = def
		}
	}

	r.entitiesCollected = true
	return entities, nil
}

func (r *Registry) domainStorage(name string) *DomainStorage {
	st, ok := r.domains[name]
	if !ok {
		st = &DomainStorage{
			Routes:       make(map[string]Route),
			Validators:   make(map[string]Validator),
			RepoHandlers: make(map[string]domain.RepoHandler),
			Dictionaries: make(map[string]Dictionary),
			Emitters:     make(map[string]EmitterDescriptor),
			WsListeners:  make(map[string]WsListener),
		}
		r.domains[name] = st
	}
	return st
}

func setRoutes(st *DomainStorage, domainName string, router RouterStructure) error {
	for path, methods := range router {
		for method, desc := range methods {
			key := RouteKey(path, method)
			if _, exists := st.Routes[key]; exists {
				return fmt.Errorf("schema: route %q with http method %q already exists in domain %q",
					path, strings.ToUpper(method), domainName)
			}
			scope := desc.Scope
			if scope == "" {
				scope = domain.ScopePublic
			}
			st.Routes[key] = Route{
				Path:    path,
				Method:  strings.ToUpper(method),
				Handler: desc.Handler,
				Scope:   scope,
				Params:  desc.Params,
			}
		}
	}
	return nil
}

func setValidators(st *DomainStorage, domainName string, validators ValidatorStructure) error {
	for handler, pair := range validators {
		if pair.In != nil {
			key := ValidatorKey(handler, domain.ValidatorIn)
			if _, exists := st.Validators[key]; exists {
				return fmt.Errorf("schema: validator %q for input params already exists in domain %q",
					handler, domainName)
			}
			st.Validators[key] = Validator{Scope: domain.ValidatorIn, Handler: pair.In}
		}
		if pair.Out != nil {
			key := ValidatorKey(handler, domain.ValidatorOut)
			if _, exists := st.Validators[key]; exists {
				return fmt.Errorf("schema: validator %q for output params already exists in domain %q",
					handler, domainName)
			}
			st.Validators[key] = Validator{Scope: domain.ValidatorOut, Handler: pair.Out}
		}
	}
	return nil
}
