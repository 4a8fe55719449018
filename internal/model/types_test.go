package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestParseVersion verifies parsing of valid version tags, including
// "v0" which denotes a project with no pushed versions yet.
func TestParseVersion(t *testing.T) {
	tests := []struct {
		tag  string
		want int
	}{
		{"v0", 0},
		{"v1", 1},
		{"v42", 42},
	}

	for _, tc := range tests {
		n, err := ParseVersion(tc.tag)
		require.NoError(t, err, "ParseVersion(%q)", tc.tag)
		assert.Equal(t, tc.want, n, "ParseVersion(%q)", tc.tag)
	}
}

// TestParseVersionInvalid verifies rejection of malformed tags.
func TestParseVersionInvalid(t *testing.T) {
	for _, tag := range []string{"", "v", "12", "vv1", "v-1", "v1.2"} {
		_, err := ParseVersion(tag)
		assert.Error(t, err, "ParseVersion(%q) should fail", tag)
	}
}

// TestFormatVersion verifies the tag form round-trips through parsing.
func TestFormatVersion(t *testing.T) {
	assert.Equal(t, "v7", FormatVersion(7))

	n, err := ParseVersion(FormatVersion(123))
	require.NoError(t, err)
	assert.Equal(t, 123, n)
}

// TestParseProjectName verifies splitting of "namespace/name" project
// identifiers and rejection of anything else.
func TestParseProjectName(t *testing.T) {
	ns, name, err := ParseProjectName("alice/survey")
	require.NoError(t, err)
	assert.Equal(t, "alice", ns)
	assert.Equal(t, "survey", name)

	for _, full := range []string{"", "survey", "/survey", "alice/", "a/b/c"} {
		_, _, err := ParseProjectName(full)
		assert.Error(t, err, "ParseProjectName(%q) should fail", full)
	}
}

// TestChangesCount verifies counting and emptiness across all change types.
func TestChangesCount(t *testing.T) {
	var empty Changes
	assert.True(t, empty.Empty())
	assert.Equal(t, 0, empty.Count())

	c := Changes{
		Added:   []FileInfo{{Path: "a.txt"}},
		Removed: []FileInfo{{Path: "b.txt"}},
		Updated: []FileInfo{{Path: "c.txt"}},
		Renamed: []FileInfo{{Path: "d.txt", NewPath: "e.txt"}},
	}
	assert.False(t, c.Empty())
	assert.Equal(t, 4, c.Count())
}

// TestChangesTotalSize verifies that only added and updated files
// contribute to the transfer size — removals and renames move no bytes.
func TestChangesTotalSize(t *testing.T) {
	c := Changes{
		Added:   []FileInfo{{Path: "a", Size: 100}},
		Updated: []FileInfo{{Path: "b", Size: 50}},
		Removed: []FileInfo{{Path: "c", Size: 999}},
		Renamed: []FileInfo{{Path: "d", NewPath: "e", Size: 999}},
	}
	assert.Equal(t, int64(150), c.TotalSize())
}

// TestProjectInfoFullName verifies the namespace/name display form.
func TestProjectInfoFullName(t *testing.T) {
	p := ProjectInfo{Namespace: "alice", Name: "survey"}
	assert.Equal(t, "alice/survey", p.FullName())
}
