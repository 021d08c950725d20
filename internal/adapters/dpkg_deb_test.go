package adapters

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"avular-robenv/internal/types"
)

const testContentsListing = `drwxr-xr-x root/root         0 2024-03-01 10:00 ./
drwxr-xr-x root/root         0 2024-03-01 10:00 ./opt/
drwxr-xr-x root/root         0 2024-03-01 10:00 ./opt/ros/noetic/share/my_pkg/
-rw-r--r-- root/root      1432 2024-03-01 10:00 ./opt/ros/noetic/share/my_pkg/package.xml
-rw-r--r-- root/root        12 2024-03-01 10:00 ./opt/ros/noetic/share/my_pkg/launch/with space.launch
lrwxrwxrwx root/root         0 2024-03-01 10:00 ./opt/ros/noetic/lib/libmy.so -> libmy.so.1
hrw-r--r-- root/root         0 2024-03-01 10:00 ./opt/ros/noetic/lib/copy.so link to ./opt/ros/noetic/lib/libmy.so.1
`

func TestParseContents(t *testing.T) {
	entries, err := ParseContents(testContentsListing)
	require.NoError(t, err)

	want := []types.ContentEntry{
		{Path: "./opt", Kind: types.ContentKindDir},
		{Path: "./opt/ros/noetic/share/my_pkg", Kind: types.ContentKindDir},
		{Path: "./opt/ros/noetic/share/my_pkg/package.xml", Kind: types.ContentKindFile},
		{Path: "./opt/ros/noetic/share/my_pkg/launch/with space.launch", Kind: types.ContentKindFile},
		{Path: "./opt/ros/noetic/lib/libmy.so", Kind: types.ContentKindSymlink, Target: "libmy.so.1"},
		{Path: "./opt/ros/noetic/lib/copy.so", Kind: types.ContentKindFile},
	}
	if diff := cmp.Diff(want, entries); diff != "" {
		t.Fatalf("contents mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "opt/ros/noetic/lib/libmy.so", entries[4].RelativePath())
}

func TestParseContents_RejectsGarbage(t *testing.T) {
	_, err := ParseContents("this is not a listing\n")
	require.Error(t, err)
}

func TestParseRelationships(t *testing.T) {
	tests := []struct {
		name  string
		field string
		want  []types.Relationship
	}{
		{name: "empty", field: "", want: nil},
		{
			name:  "plain and constrained",
			field: "libc6 (>= 2.31), ros-noetic-roscpp",
			want: []types.Relationship{
				{Alternatives: []types.RelationshipAlternative{{Name: "libc6", Op: types.RelationOpLaterEq, Version: "2.31"}}},
				{Alternatives: []types.RelationshipAlternative{{Name: "ros-noetic-roscpp"}}},
			},
		},
		{
			name:  "alternatives",
			field: "python3 | python3-minimal (<< 4)",
			want: []types.Relationship{
				{Alternatives: []types.RelationshipAlternative{
					{Name: "python3"},
					{Name: "python3-minimal", Op: types.RelationOpEarlier, Version: "4"},
				}},
			},
		},
		{
			name:  "architecture and profile qualifiers",
			field: "libfoo:amd64 (= 1.0-1) [amd64] <!nocheck>, libbar [linux-any]",
			want: []types.Relationship{
				{Alternatives: []types.RelationshipAlternative{{Name: "libfoo", Op: types.RelationOpEq, Version: "1.0-1"}}},
				{Alternatives: []types.RelationshipAlternative{{Name: "libbar"}}},
			},
		},
		{
			name:  "obsolete operator",
			field: "libold (> 1.0)",
			want: []types.Relationship{
				{Alternatives: []types.RelationshipAlternative{{Name: "libold", Op: types.RelationOpLaterEq, Version: "1.0"}}},
			},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRelationships(tt.field)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("relationships mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseRelationships_Invalid(t *testing.T) {
	for _, field := range []string{"libfoo (>= )", "libfoo (~ 1.0)", " | libbar", "libfoo )1.0("} {
		_, err := ParseRelationships(field)
		assert.Error(t, err, field)
	}
}

func TestParseQueryStatus(t *testing.T) {
	version, ok, err := parseQueryStatus("ii |2.31-0ubuntu9")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "2.31-0ubuntu9", version)

	_, ok, err = parseQueryStatus("rc |1.0")
	require.NoError(t, err)
	assert.False(t, ok)

	_, ok, err = parseQueryStatus("")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParseControlFields(t *testing.T) {
	output := "Package: ros-noetic-my-pkg\nVersion: 1.2.3-0focal\nArchitecture: amd64\nDescription: first line\n continued here\n"
	got := ParseControlFields(output)
	want := map[string]string{
		"Package":      "ros-noetic-my-pkg",
		"Version":      "1.2.3-0focal",
		"Architecture": "amd64",
		"Description":  "first line\ncontinued here",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("control fields mismatch (-want +got):\n%s", diff)
	}
}
