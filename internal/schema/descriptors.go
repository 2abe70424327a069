// Package schema turns declarative service/domain descriptors into the
// runtime lookup tables the dispatcher and capability agents resolve against.
package schema

import (
	"context"

	"github.com/chassisworks/chassis/internal/domain"
	"github.com/chassisworks/chassis/internal/storage"
)

// RouteDescriptor declares one action: handler, auth scope and the ordered
// path-parameter names bound positionally by the dispatcher.
type RouteDescriptor struct {
	Handler domain.Handler
	Scope   domain.Scope
	Params  []string
}

// RouterStructure maps action path -> HTTP method -> route descriptor.
type RouterStructure map[string]map[string]RouteDescriptor

// ValidatorPair declares the optional input and output validators for one
// handler name.
type ValidatorPair struct {
	In  domain.ValidatorFn
	Out domain.ValidatorFn
}

// ValidatorStructure maps handler name -> validator pair.
type ValidatorStructure map[string]ValidatorPair

// Dictionary is a nested tree of localized strings. Leaves are strings,
// branches are nested maps.
type Dictionary map[string]interface{}

// DictionaryStructure declares one language's dictionary for a domain.
type DictionaryStructure struct {
	Language   string
	Dictionary Dictionary
}

// EmitterDescriptor declares an event a domain emits.
type EmitterDescriptor struct {
	Service string
	Domain  string
	Event   string
	Scope   domain.Scope
}

// EmitterStructure maps event name -> emitter descriptor.
type EmitterStructure map[string]EmitterDescriptor

// WsListener handles a websocket event addressed to a domain.
type WsListener func(ctx context.Context, payload interface{}, ag *domain.Agents) error

// WsListenerStructure maps event name -> listener.
type WsListenerStructure map[string]WsListener

// EntityDescriptor binds a model name to a schema producer. The producer is
// invoked lazily, exactly once at startup, with the capability agent bundle.
type EntityDescriptor struct {
	Model   string
	Produce func(ag *domain.Agents) storage.EntityDefinition
}

// RepositoryStructure maps repository handler name -> handler.
type RepositoryStructure map[string]domain.RepoHandler

// Documents carries every declaration a domain contributes.
type Documents struct {
	Router       RouterStructure
	Validators   ValidatorStructure
	Dictionaries []DictionaryStructure
	Emitter      EmitterStructure
	WsListeners  WsListenerStructure
	Entity       *EntityDescriptor
	Repository   RepositoryStructure
}

// DomainStructure is one named domain with its documents.
type DomainStructure struct {
	Domain    string
	Documents Documents
}

// ServiceStructure is a top-level service bundling domains.
type ServiceStructure struct {
	Service string
	Domains []DomainStructure
}
