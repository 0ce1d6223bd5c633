package credential

import (
	"context"
	"fmt"

	credmodel "github.com/linkflow-ai/linkflow-ai/internal/credential/domain/model"
	workflowmodel "github.com/linkflow-ai/linkflow-ai/internal/workflow/domain/model"
)

// CredentialNotFound, CredentialTypeMismatch and CredentialExpired are
// typed resolution failures, so callers (the façade's error mapper) can
// match them without string matching. Any error from fetching the
// credential record is reported as CredentialNotFound, whatever its
// cause; a failure to load the decrypted data is returned as a plain
// wrapped error.
type CredentialNotFound struct {
	CredentialID string
}

func (e *CredentialNotFound) Error() string {
	return fmt.Sprintf("credential %s not found", e.CredentialID)
}

type CredentialTypeMismatch struct {
	CredentialID string
	ActualType   string
	AllowedTypes []string
}

func (e *CredentialTypeMismatch) Error() string {
	return fmt.Sprintf("credential %s has type %s, not in allowed set %v", e.CredentialID, e.ActualType, e.AllowedTypes)
}

type CredentialExpired struct {
	CredentialID string
}

func (e *CredentialExpired) Error() string {
	return fmt.Sprintf("credential %s has expired", e.CredentialID)
}

// DataStore is the read side the Resolver needs: fetch a credential's
// record and its decrypted field data. Satisfied by
// internal/credential/app/service.CredentialService.
type DataStore interface {
	GetCredential(ctx context.Context, id string) (*credmodel.Credential, error)
	GetCredentialData(ctx context.Context, id string) (map[string]interface{}, error)
}

// Resolver resolves the credentials a node declares into the field-keyed
// map the node runtime receives as ExecutionInput.Credentials. It never
// hardcodes a field name: a node's Credentials map is {fieldName:
// credentialId}, and the resolved value is delivered back under that
// same fieldName.
type Resolver struct {
	store DataStore
}

// NewResolver creates a new credential resolver.
func NewResolver(store DataStore) *Resolver {
	return &Resolver{store: store}
}

// Resolve fetches and decrypts one credential, verifying its type is
// among allowedTypes when that list is non-empty. An empty allowedTypes
// list accepts the credential's declared type unconditionally, for
// custom/unknown node-credential type names the core doesn't enumerate.
func (r *Resolver) Resolve(ctx context.Context, credentialID string, allowedTypes []string) (map[string]interface{}, error) {
	cred, err := r.store.GetCredential(ctx, credentialID)
	if err != nil {
		return nil, &CredentialNotFound{CredentialID: credentialID}
	}
	if cred.IsExpired() {
		return nil, &CredentialExpired{CredentialID: credentialID}
	}
	if len(allowedTypes) > 0 && !containsType(allowedTypes, string(cred.Type)) {
		return nil, &CredentialTypeMismatch{CredentialID: credentialID, ActualType: string(cred.Type), AllowedTypes: allowedTypes}
	}

	data, err := r.store.GetCredentialData(ctx, credentialID)
	if err != nil {
		return nil, fmt.Errorf("resolve credential %s: %w", credentialID, err)
	}
	return data, nil
}

// ResolveAll resolves every credential a node declares, keyed by the
// node's own field name for that credential rather than by credential
// type or id. The scheduler passes the returned map straight through as
// ExecutionInput.Credentials.
func (r *Resolver) ResolveAll(ctx context.Context, node workflowmodel.Node) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(node.Credentials))
	for fieldName, credentialID := range node.Credentials {
		data, err := r.Resolve(ctx, credentialID, nil)
		if err != nil {
			return nil, fmt.Errorf("node %s field %s: %w", node.ID, fieldName, err)
		}
		resolved[fieldName] = data
	}
	return resolved, nil
}

func containsType(types []string, t string) bool {
	for _, candidate := range types {
		if candidate == t {
			return true
		}
	}
	return false
}
