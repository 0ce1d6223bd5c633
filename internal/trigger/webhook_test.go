package trigger

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linkflow-ai/linkflow-ai/internal/facade"
)

func TestAuthenticate_LegacyInlineNone(t *testing.T) {
	b := webhookBinding{authentication: "none"}
	r := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	assert.NoError(t, authenticate(r, b))
}

func TestAuthenticate_LegacyInlineBasicSuccess(t *testing.T) {
	b := webhookBinding{
		authentication: "basic",
		authConfig:     map[string]interface{}{"username": "admin", "password": "secret"},
	}
	r := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	r.SetBasicAuth("admin", "secret")
	assert.NoError(t, authenticate(r, b))
}

func TestAuthenticate_LegacyInlineBasicFailure(t *testing.T) {
	b := webhookBinding{
		authentication: "basic",
		authConfig:     map[string]interface{}{"username": "admin", "password": "secret"},
	}
	r := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	r.SetBasicAuth("admin", "wrong")
	assert.ErrorIs(t, authenticate(r, b), errAuthFailed)
}

func TestAuthenticate_LegacyInlineHeaderAuth(t *testing.T) {
	b := webhookBinding{
		authentication: "header",
		authConfig:     map[string]interface{}{"headerName": "X-Api-Key", "headerValue": "topsecret"},
	}
	ok := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	ok.Header.Set("X-Api-Key", "topsecret")
	assert.NoError(t, authenticate(ok, b))

	bad := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	bad.Header.Set("X-Api-Key", "wrong")
	assert.Error(t, authenticate(bad, b))
}

func TestAuthenticate_LegacyInlineQueryAuth(t *testing.T) {
	b := webhookBinding{
		authentication: "query",
		authConfig:     map[string]interface{}{"queryParam": "token", "value": "abc123"},
	}
	ok := httptest.NewRequest(http.MethodGet, "/webhook/x?token=abc123", nil)
	assert.NoError(t, authenticate(ok, b))

	bad := httptest.NewRequest(http.MethodGet, "/webhook/x?token=wrong", nil)
	assert.Error(t, authenticate(bad, b))
}

func TestAuthenticate_LegacyInlineUnsupportedType(t *testing.T) {
	b := webhookBinding{authentication: "oauth2"}
	r := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	assert.ErrorIs(t, authenticate(r, b), errUnsupportedAuthType)
}

// A credential-id-shaped authentication string routes through the
// credential-backed path rather than the legacy inline one, and fails
// closed when no resolver has been installed.
func TestAuthenticate_CredentialBackedRequiresResolver(t *testing.T) {
	resolveCredential = nil
	b := webhookBinding{authentication: "cred-0123456789abcdef"}
	r := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	assert.ErrorIs(t, authenticate(r, b), errAuthUnavailable)
}

func TestAuthenticate_CredentialBackedBasicAuth(t *testing.T) {
	defer SetCredentialResolver(nil)
	SetCredentialResolver(func(credentialID string, allowedTypes []string) (map[string]interface{}, string, error) {
		return map[string]interface{}{"username": "svc", "password": "pw"}, "httpBasicAuth", nil
	})

	b := webhookBinding{authentication: "cred-0123456789abcdef"}
	ok := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	ok.SetBasicAuth("svc", "pw")
	assert.NoError(t, authenticate(ok, b))

	bad := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	bad.SetBasicAuth("svc", "wrongpw")
	assert.ErrorIs(t, authenticate(bad, b), errAuthFailed)
}

func TestAuthenticate_CredentialBackedHeaderAuth(t *testing.T) {
	defer SetCredentialResolver(nil)
	SetCredentialResolver(func(credentialID string, allowedTypes []string) (map[string]interface{}, string, error) {
		return map[string]interface{}{"headerName": "X-Signature", "headerValue": "sig-value"}, "httpHeaderAuth", nil
	})

	b := webhookBinding{authentication: "cred-0123456789abcdef"}
	r := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	r.Header.Set("X-Signature", "sig-value")
	assert.NoError(t, authenticate(r, b))
}

func TestAuthenticate_CredentialResolverError(t *testing.T) {
	defer SetCredentialResolver(nil)
	SetCredentialResolver(func(credentialID string, allowedTypes []string) (map[string]interface{}, string, error) {
		return nil, "", errors.New("resolver failure")
	})

	b := webhookBinding{authentication: "cred-0123456789abcdef"}
	r := httptest.NewRequest(http.MethodPost, "/webhook/x", nil)
	assert.ErrorIs(t, authenticate(r, b), errAuthFailed)
}

func TestParseBody_JSON(t *testing.T) {
	v := parseBody("application/json; charset=utf-8", []byte(`{"a":1}`))
	m, ok := v.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), m["a"])
}

func TestParseBody_NonJSONFallsBackToString(t *testing.T) {
	v := parseBody("text/plain", []byte("hello"))
	assert.Equal(t, "hello", v)
}

func TestParseBody_Empty(t *testing.T) {
	assert.Nil(t, parseBody("application/json", nil))
}

// The immediate response to a successful webhook hit carries the
// minted executionId alongside webhookId/testMode, even though the
// triggered run itself is dispatched fire-and-forget.
func TestHandle_ResponseIncludesExecutionID(t *testing.T) {
	d := &Dispatcher{webhooks: map[string]webhookBinding{
		"hook-1": {workflowID: "wf-1", nodeID: "trigger-1", method: "POST", authentication: "none"},
	}}
	exec := &fakeExecutor{resp: &facade.Response{ExecutionID: "ignored", Status: "completed"}}
	h := NewWebhookHandler(d, exec, nil)

	router := mux.NewRouter()
	h.RegisterRoutes(router)

	req := httptest.NewRequest(http.MethodPost, "/webhook/hook-1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var envelope struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	assert.True(t, envelope.Success)
	assert.Equal(t, "hook-1", envelope.Data["webhookId"])
	assert.Equal(t, false, envelope.Data["testMode"])
	execID, ok := envelope.Data["executionId"].(string)
	require.True(t, ok)
	assert.NotEmpty(t, execID)
}
