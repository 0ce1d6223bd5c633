package credential

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	credmodel "github.com/linkflow-ai/linkflow-ai/internal/credential/domain/model"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
)

type fakeStore struct {
	creds map[string]*credmodel.Credential
	data  map[string]map[string]interface{}
}

func (f *fakeStore) GetCredential(ctx context.Context, id string) (*credmodel.Credential, error) {
	c, ok := f.creds[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return c, nil
}

func (f *fakeStore) GetCredentialData(ctx context.Context, id string) (map[string]interface{}, error) {
	return f.data[id], nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{creds: map[string]*credmodel.Credential{}, data: map[string]map[string]interface{}{}}
}

func TestResolver_ResolveUnknownCredential(t *testing.T) {
	r := NewResolver(newFakeStore())
	_, err := r.Resolve(context.Background(), "missing", nil)
	var notFound *CredentialNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, "missing", notFound.CredentialID)
}

func TestResolver_ResolveExpiredCredential(t *testing.T) {
	store := newFakeStore()
	past := time.Now().Add(-time.Hour)
	store.creds["c1"] = &credmodel.Credential{ID: "c1", Type: credmodel.CredentialTypeHTTPBasicAuth, ExpiresAt: &past}
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), "c1", nil)
	var expired *CredentialExpired
	require.ErrorAs(t, err, &expired)
}

func TestResolver_ResolveTypeMismatch(t *testing.T) {
	store := newFakeStore()
	store.creds["c1"] = &credmodel.Credential{ID: "c1", Type: credmodel.CredentialTypeHTTPBasicAuth}
	store.data["c1"] = map[string]interface{}{"username": "u", "password": "p"}
	r := NewResolver(store)

	_, err := r.Resolve(context.Background(), "c1", []string{string(credmodel.CredentialTypeOAuth2)})
	var mismatch *CredentialTypeMismatch
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "httpBasicAuth", mismatch.ActualType)
}

func TestResolver_ResolveSuccess(t *testing.T) {
	store := newFakeStore()
	store.creds["c1"] = &credmodel.Credential{ID: "c1", Type: credmodel.CredentialTypeHTTPBasicAuth}
	store.data["c1"] = map[string]interface{}{"username": "u", "password": "p"}
	r := NewResolver(store)

	data, err := r.Resolve(context.Background(), "c1", []string{string(credmodel.CredentialTypeHTTPBasicAuth)})
	require.NoError(t, err)
	assert.Equal(t, "u", data["username"])
}

// ResolveAll delivers each resolved credential under the node's own
// declared field name, never a hardcoded literal like "authentication"
// rather than a hardcoded literal.
func TestResolver_ResolveAllUsesDeclaredFieldNames(t *testing.T) {
	store := newFakeStore()
	store.creds["cred-basic"] = &credmodel.Credential{ID: "cred-basic", Type: credmodel.CredentialTypeHTTPBasicAuth}
	store.data["cred-basic"] = map[string]interface{}{"username": "u", "password": "p"}
	r := NewResolver(store)

	node := workflowmodel.Node{
		ID:          "n1",
		Credentials: map[string]string{"myCustomAuthField": "cred-basic"},
	}

	resolved, err := r.ResolveAll(context.Background(), node)
	require.NoError(t, err)
	require.Contains(t, resolved, "myCustomAuthField")
	_, hasHardcoded := resolved["authentication"]
	assert.False(t, hasHardcoded, "resolver must never hardcode the field name")
}

func TestResolver_ResolveAllPropagatesFailure(t *testing.T) {
	r := NewResolver(newFakeStore())
	node := workflowmodel.Node{ID: "n1", Credentials: map[string]string{"auth": "missing"}}

	_, err := r.ResolveAll(context.Background(), node)
	require.Error(t, err)
}
