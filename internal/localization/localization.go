// Package localization resolves localized string resources out of the nested
// dictionaries domains register with the schema registry.
package localization

import (
	"fmt"
	"strings"

	"github.com/chassisworks/chassis/internal/schema"
)

// Resolve walks the dictionary with a colon-separated resource key. A single
// segment must resolve directly to a string leaf; multiple segments walk the
// nested tree. The optional substitution map fills {{name}} placeholders in
// the final string.
func Resolve(dict schema.Dictionary, key string, substitutions map[string]string) (string, error) {
	if dict == nil {
		return "", fmt.Errorf("localization: dictionary not set")
	}

	segments := strings.Split(key, ":")

	if len(segments) == 1 {
		leaf, ok := dict[key].(string)
		if !ok {
			return "", fmt.Errorf("localization: resource %q is not a string leaf", key)
		}
		return substitute(leaf, substitutions), nil
	}

	var node interface{} = dict
	for i, segment := range segments {
		branch, ok := asBranch(node)
		if !ok {
			return "", fmt.Errorf("localization: resource %q: segment %q is a leaf, not a branch", key, segments[i-1])
		}
		node, ok = branch[segment]
		if !ok {
			return "", fmt.Errorf("localization: resource %q: segment %q not found", key, segment)
		}
	}

	leaf, ok := node.(string)
	if !ok {
		return "", fmt.Errorf("localization: resource %q does not resolve to a string", key)
	}
	return substitute(leaf, substitutions), nil
}

// ResolveFor resolves a resource for a specific domain and language out of
// the registry's lookup tables.
func ResolveFor(services schema.Services, service, domainName, language, key string, substitutions map[string]string) (string, error) {
	domains, ok := services[service]
	if !ok {
		return "", fmt.Errorf("localization: service %q not found", service)
	}
	st, ok := domains[domainName]
	if !ok {
		return "", fmt.Errorf("localization: domain %q not found", domainName)
	}
	dict, ok := st.Dictionaries[language]
	if !ok {
		return "", fmt.Errorf("localization: domain %q has no %q dictionary", domainName, language)
	}
	return Resolve(dict, key, substitutions)
}

func asBranch(v interface{}) (map[string]interface{}, bool) {
	switch b := v.(type) {
	case schema.Dictionary:
		return b, true
	case map[string]interface{}:
		return b, true
	}
	return nil, false
}

func substitute(s string, substitutions map[string]string) string {
	for name, value := range substitutions {
		s = strings.ReplaceAll(s, "{{"+name+"}}", value)
	}
	return s
}
