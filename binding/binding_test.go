package binding

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInterpolate(t *testing.T) {
	data := map[string]interface{}{
		"user": map[string]interface{}{
			"name": "Ada",
			"tags": []interface{}{"math", "engines"},
		},
		"count": 3,
	}
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "no placeholders", "no placeholders"},
		{"field", "Hello, ${user.name}!", "Hello, Ada!"},
		{"index", "${user.tags[1]}", "engines"},
		{"number", "${count} items", "3 items"},
		{"missing kept", "${user.email}", "${user.email}"},
		{"default", "${user.email|n/a}", "n/a"},
		{"default unused", "${user.name|anon}", "Ada"},
		{"out of range", "${user.tags[5]|none}", "none"},
		{"spaces", "${ user.name }", "Ada"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Interpolate(tc.in, data))
		})
	}
}

func TestInterpolateNilData(t *testing.T) {
	assert.Equal(t, "${a}", Interpolate("${a}", nil))
	assert.Equal(t, "x", Interpolate("${a|x}", nil))
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "data.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"user":{"name":"Ada"}}`), 0o644))
	yamlPath := filepath.Join(dir, "data.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("user:\n  name: Grace\n"), 0o644))

	data, err := LoadFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "Ada", Interpolate("${user.name}", data))

	data, err = LoadFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "Grace", Interpolate("${user.name}", data))

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{`), 0o644))
	_, err = LoadFile(bad)
	require.Error(t, err)

	_, err = LoadFile(filepath.Join(dir, "nope.json"))
	require.Error(t, err)
}
