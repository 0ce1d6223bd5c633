package trigger

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/linkflow-ai/linkflow-ai/internal/engine"
	"github.com/linkflow-ai/linkflow-ai/internal/facade"
	"github.com/linkflow-ai/linkflow-ai/internal/platform/response"
)

// credentialIDPattern distinguishes a credential id (UUID or CUID-ish
// token) from the literal "none" or a legacy inline auth label ("basic",
// "header", "query").
var credentialIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{16,}$`)

var (
	errAuthFailed          = errors.New("authentication failed")
	errAuthUnavailable     = errors.New("credential resolver not configured")
	errUnsupportedAuthType = errors.New("unsupported webhook authentication type")
)

// WebhookHandler serves {METHOD} /webhook/{webhookId}[?test=true]. It
// owns no trigger state itself; all routing comes from the Dispatcher's
// webhook bindings.
type WebhookHandler struct {
	dispatcher *Dispatcher
	executor   Executor
	bus        *engine.EventBus
}

// NewWebhookHandler creates the webhook ingestion handler.
func NewWebhookHandler(d *Dispatcher, executor Executor, bus *engine.EventBus) *WebhookHandler {
	return &WebhookHandler{dispatcher: d, executor: executor, bus: bus}
}

// RegisterRoutes mounts the webhook ingestion route.
func (h *WebhookHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/webhook/{webhookId}", h.handle)
}

func (h *WebhookHandler) handle(w http.ResponseWriter, r *http.Request) {
	webhookID := mux.Vars(r)["webhookId"]

	binding, ok := h.dispatcher.Webhook(webhookID)
	if !ok {
		response.Error(w, response.ErrNotFound.WithDetails("webhookId", webhookID))
		return
	}

	if binding.method != "ANY" && !strings.EqualFold(binding.method, r.Method) {
		response.ErrorWithMessage(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "method not accepted by this webhook")
		return
	}

	if err := authenticate(r, binding); err != nil {
		response.Error(w, response.ErrUnauthorized.WithDetails("reason", err.Error()))
		return
	}

	body, headers, query := readRequest(r)
	triggerData := map[string]interface{}{
		"body":    body,
		"headers": headers,
		"query":   query,
		"method":  r.Method,
		"path":    r.URL.Path,
	}

	testMode := r.URL.Query().Get("test") == "true" || r.URL.Query().Get("visualize") == "true"

	// Minted here, before dispatch, rather than left to the engine: the
	// response goes out before the triggered run finishes, so the id
	// has to exist up front for the caller to poll progress/status by.
	executionID := uuid.New().String()
	req := facade.Request{
		WorkflowID:    binding.workflowID,
		TriggerNodeID: binding.nodeID,
		InputData:     triggerData,
		ExecutionID:   executionID,
	}

	if testMode && h.bus != nil {
		h.bus.Publish(engine.WorkflowTopic(binding.workflowID), engine.BusEvent{
			Type:       engine.EventWebhookTestTriggered,
			WorkflowID: binding.workflowID,
			NodeID:     binding.nodeID,
			Data: map[string]interface{}{
				"webhookId": webhookID,
			},
		})
	}

	// Fire-and-forget: the HTTP response never waits for the workflow to
	// finish.
	go h.executor.Execute(context.Background(), req)

	response.OK(w, map[string]interface{}{
		"executionId": executionID,
		"webhookId":   webhookID,
		"testMode":    testMode,
	})
}

// resolveCredential resolves a webhook's configured credential id to its
// decrypted data. Installed once from cmd/server/main.go; kept as a
// package-level hook so this file doesn't need to import the credential
// package's full DataStore plumbing.
var resolveCredential func(credentialID string, allowedTypes []string) (data map[string]interface{}, credType string, err error)

// SetCredentialResolver installs the function webhook auth uses to
// resolve a credential id to its decrypted data and declared type.
func SetCredentialResolver(fn func(credentialID string, allowedTypes []string) (map[string]interface{}, string, error)) {
	resolveCredential = fn
}

// authenticate validates r against binding.authentication, supporting
// both the credential-backed form and the legacy inline shape kept for
// backward compatibility.
func authenticate(r *http.Request, b webhookBinding) error {
	auth := b.authentication
	if auth == "" || !credentialIDPattern.MatchString(auth) {
		return checkLegacyInline(r, b)
	}
	return checkCredentialAuth(r, b)
}

func checkCredentialAuth(r *http.Request, b webhookBinding) error {
	if resolveCredential == nil {
		return errAuthUnavailable
	}
	data, credType, err := resolveCredential(b.authentication, []string{"httpBasicAuth", "httpHeaderAuth", "webhookQueryAuth"})
	if err != nil {
		return errAuthFailed
	}

	switch credType {
	case "httpBasicAuth":
		user, pass, ok := r.BasicAuth()
		wantUser, _ := data["username"].(string)
		wantPass, _ := data["password"].(string)
		if !ok || !constantTimeEq(user, wantUser) || !constantTimeEq(pass, wantPass) {
			return errAuthFailed
		}
		return nil
	case "httpHeaderAuth":
		headerName, _ := data["headerName"].(string)
		wantValue, _ := data["headerValue"].(string)
		if headerName == "" || !constantTimeEq(r.Header.Get(headerName), wantValue) {
			return errAuthFailed
		}
		return nil
	case "webhookQueryAuth":
		queryParam, _ := data["queryParam"].(string)
		wantValue, _ := data["value"].(string)
		if queryParam == "" || !constantTimeEq(r.URL.Query().Get(queryParam), wantValue) {
			return errAuthFailed
		}
		return nil
	default:
		return errUnsupportedAuthType
	}
}

// checkLegacyInline authenticates against inline fields stored directly
// on the trigger node's parameters (authentication: "basic" plus sibling
// username/password), the shape older workflows used before credentials
// backed webhook auth.
func checkLegacyInline(r *http.Request, b webhookBinding) error {
	switch b.authentication {
	case "", "none":
		return nil
	case "basic":
		user, pass, ok := r.BasicAuth()
		wantUser, _ := b.authConfig["username"].(string)
		wantPass, _ := b.authConfig["password"].(string)
		if !ok || !constantTimeEq(user, wantUser) || !constantTimeEq(pass, wantPass) {
			return errAuthFailed
		}
		return nil
	case "header":
		headerName, _ := b.authConfig["headerName"].(string)
		wantValue, _ := b.authConfig["headerValue"].(string)
		if headerName == "" || !constantTimeEq(r.Header.Get(headerName), wantValue) {
			return errAuthFailed
		}
		return nil
	case "query":
		queryParam, _ := b.authConfig["queryParam"].(string)
		wantValue, _ := b.authConfig["value"].(string)
		if queryParam == "" || !constantTimeEq(r.URL.Query().Get(queryParam), wantValue) {
			return errAuthFailed
		}
		return nil
	default:
		return errUnsupportedAuthType
	}
}

func constantTimeEq(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func readRequest(r *http.Request) (interface{}, map[string]string, map[string]string) {
	var body interface{}
	if r.Body != nil {
		raw, _ := io.ReadAll(io.LimitReader(r.Body, 10<<20))
		body = parseBody(r.Header.Get("Content-Type"), raw)
	}

	headers := make(map[string]string, len(r.Header))
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	q := r.URL.Query()
	query := make(map[string]string, len(q))
	for k := range q {
		query[k] = q.Get(k)
	}

	return body, headers, query
}

func parseBody(contentType string, raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	if strings.Contains(contentType, "application/json") {
		var v interface{}
		if err := json.Unmarshal(raw, &v); err == nil {
			return v
		}
	}
	return string(raw)
}
