package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avular-robenv/internal/types"
)

func TestVersionCacheDebVersion(t *testing.T) {
	cache := newVersionCache()

	v1, err := cache.debVersion("1.0.0-0focal")
	require.NoError(t, err)

	// Second call should hit cache
	v2, err := cache.debVersion("1.0.0-0focal")
	require.NoError(t, err)
	assert.Equal(t, v1, v2)
	assert.Len(t, cache.deb, 1)
}

func TestVersionCacheDebVersionInvalid(t *testing.T) {
	cache := newVersionCache()
	_, err := cache.debVersion("not-a-version!!!")
	require.Error(t, err)
}

func TestVersionCacheMatchesInvalidConstraint(t *testing.T) {
	cache := newVersionCache()
	alt := types.RelationshipAlternative{Name: "pkg", Op: types.RelationOpLaterEq, Version: "bad version!!"}
	assert.False(t, cache.matches(alt, "1.0"))
}

func TestParsePipRequirement(t *testing.T) {
	tests := []struct {
		input   string
		want    PipRequirement
		wantErr bool
	}{
		{input: "requests", want: PipRequirement{Name: "requests"}},
		{input: "Flask_SQLAlchemy", want: PipRequirement{Name: "flask-sqlalchemy"}},
		{input: "requests >= 2.28, < 3", want: PipRequirement{Name: "requests", Specifiers: ">=2.28,<3"}},
		{input: "numpy==1.24.*", want: PipRequirement{Name: "numpy", Specifiers: "==1.24.*"}},
		{input: "requests>=banana", wantErr: true},
		{input: ">=1.0", wantErr: true},
		{input: "", wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParsePipRequirement(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want.Name+tt.want.Specifiers, got.String())
		})
	}
}
