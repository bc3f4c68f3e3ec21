package secrets

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeKV struct {
	reads int
	data  map[string]map[string]any
}

func (f *fakeKV) Get(path string) (map[string]any, error) {
	f.reads++
	v, ok := f.data[path]
	if !ok {
		return nil, errors.New("not found")
	}
	return v, nil
}

func TestEnvSecretResolution(t *testing.T) {
	t.Setenv("API_TOKEN", "xyz")
	r, err := New([]string{"API_TOKEN"}, nil, nil, nil)
	require.NoError(t, err)
	v, ok := r.Get("API_TOKEN")
	require.True(t, ok)
	require.Equal(t, "xyz", v)
}

func TestMissingEnvSecretIsFatal(t *testing.T) {
	_, err := New([]string{"DOES_NOT_EXIST_XYZ"}, nil, nil, nil)
	require.Error(t, err)
}

func TestKVSecretsAreBatchedByPath(t *testing.T) {
	backend := &fakeKV{data: map[string]map[string]any{
		"secret/uri": {"bearer_token": "abc123", "other": "y"},
	}}
	refs := map[string]string{
		"UPLOAD_TOKEN": "secret/uri#bearer_token",
		"OTHER_FIELD":  "secret/uri#other",
	}
	r, err := New(nil, refs, backend, nil)
	require.NoError(t, err)
	require.Equal(t, 1, backend.reads, "one read per distinct path even with two fields requested")

	v, ok := r.Get("UPLOAD_TOKEN")
	require.True(t, ok)
	require.Equal(t, "abc123", v)
}

func TestBindingsForInjectsAndRedactRemoves(t *testing.T) {
	t.Setenv("API_TOKEN", "xyz")
	bindings := Bindings{"uri": {"bearer_token": "API_TOKEN"}}
	r, err := New([]string{"API_TOKEN"}, nil, nil, bindings)
	require.NoError(t, err)

	injected := r.BindingsFor("uri")
	require.Equal(t, "xyz", injected["bearer_token"])

	params := map[string]any{"url": "http://x", "bearer_token": "xyz", "password": "hunter2"}
	redacted := r.Redact(params, "uri")
	require.NotContains(t, redacted, "bearer_token")
	require.NotContains(t, redacted, "password")
	require.Contains(t, redacted, "url")
}

func TestRedactMasksAuthorizationHeader(t *testing.T) {
	r, err := New(nil, nil, nil, nil)
	require.NoError(t, err)
	params := map[string]any{"headers.Authorization": "Bearer xyz", "headers.Accept": "json"}
	redacted := r.Redact(params, "uri")
	require.NotContains(t, redacted, "headers.Authorization")
	require.Contains(t, redacted, "headers.Accept")
}
