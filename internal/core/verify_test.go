package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avular-robenv/internal/types"
)

func TestVerify(t *testing.T) {
	resolver := fakeResolver{unresolved: map[string]bool{"b": true, "libmissing": true}}
	modules := []types.Module{mod("a", "libfoo"), mod("b", "libmissing"), mod("c", "libmissing")}
	_, external := Discover(modules)

	failures, err := Verify(t.Context(), resolver, modules, external, 3, WithCancelToken(NewCancelToken()), WithInterruptSignals())
	require.NoError(t, err)

	require.Len(t, failures, 2)
	assert.Equal(t, "b", failures[0].Name)
	assert.Equal(t, "for itself", failures[0].Reason())
	assert.Equal(t, "libmissing", failures[1].Name)
	assert.Equal(t, "required by [b, c]", failures[1].Reason())

	var notResolvable *types.NotResolvableError
	assert.ErrorAs(t, failures[1].Err, &notResolvable)
}

func TestVerify_AllResolved(t *testing.T) {
	modules := []types.Module{mod("a"), mod("b", "a")}
	_, external := Discover(modules)

	failures, err := Verify(t.Context(), fakeResolver{}, modules, external, 2, WithCancelToken(NewCancelToken()), WithInterruptSignals())
	require.NoError(t, err)
	assert.Empty(t, failures)
}
