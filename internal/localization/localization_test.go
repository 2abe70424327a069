package localization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chassisworks/chassis/internal/schema"
)

func testDict() schema.Dictionary {
	return schema.Dictionary{
		"greeting": "Hello",
		"errors": map[string]interface{}{
			"user": map[string]interface{}{
				"notFound": "User {{id}} not found",
			},
		},
	}
}

func TestResolve_SingleSegmentLeaf(t *testing.T) {
	got, err := Resolve(testDict(), "greeting", nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello", got)
}

func TestResolve_SingleSegmentBranchFails(t *testing.T) {
	_, err := Resolve(testDict(), "errors", nil)
	assert.Error(t, err, "single-segment key resolving to a branch should fail")
}

func TestResolve_NestedWithSubstitution(t *testing.T) {
	got, err := Resolve(testDict(), "errors:user:notFound", map[string]string{"id": "42"})
	require.NoError(t, err)
	assert.Equal(t, "User 42 not found", got)
}

func TestResolve_MissingIntermediate(t *testing.T) {
	_, err := Resolve(testDict(), "errors:order:notFound", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order", "error should name the missing segment")
}

func TestResolveFor(t *testing.T) {
	services := schema.Services{
		"crm": schema.Domains{
			"users": &schema.DomainStorage{
				Dictionaries: map[string]schema.Dictionary{"en": testDict()},
			},
		},
	}

	got, err := ResolveFor(services, "crm", "users", "en", "errors:user:notFound", map[string]string{"id": "7"})
	require.NoError(t, err)
	assert.Equal(t, "User 7 not found", got)

	_, err = ResolveFor(services, "crm", "users", "ru", "greeting", nil)
	assert.Error(t, err, "unsupported dictionary language should fail")

	_, err = ResolveFor(services, "crm", "orders", "en", "greeting", nil)
	assert.Error(t, err, "unknown domain should fail")
}
