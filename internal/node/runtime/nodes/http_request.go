// Package nodes provides built-in node implementations
package nodes

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/linkflow-ai/linkflow-ai/internal/node/runtime"
)

// HTTPRequestNode implements HTTP request functionality
type HTTPRequestNode struct {
	client *http.Client
}

// NewHTTPRequestNode creates a new HTTP request node
func NewHTTPRequestNode() *HTTPRequestNode {
	return &HTTPRequestNode{
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetType returns the node type
func (n *HTTPRequestNode) GetType() string {
	return "httpRequest"
}

// GetMetadata returns node metadata
func (n *HTTPRequestNode) GetMetadata() runtime.NodeMetadata {
	return runtime.NodeMetadata{
		Type:        "httpRequest",
		Name:        "HTTP Request",
		Description: "Make HTTP requests to external APIs and services",
		Category:    "core",
		Icon:        "globe",
		Color:       "#4CAF50",
		Version:     "1.0.0",
		Inputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Required: false, Description: "Input data"},
		},
		Outputs: []runtime.PortDefinition{
			{Name: "main", Type: "any", Description: "Response data"},
			{Name: "error", Type: "any", Description: "Error output"},
		},
		CredentialTypes: []runtime.CredentialTypeDeclaration{
			{FieldName: "authentication", AllowedTypes: []string{"httpBasicAuth", "httpHeaderAuth", "apiKey", "oauth2"}, Required: false},
		},
		Properties: []runtime.PropertyDefinition{
			{Name: "method", Type: "options", Required: true, Default: "GET", Description: "HTTP method", Options: []runtime.PropertyOption{
				{Label: "GET", Value: "GET"},
				{Label: "POST", Value: "POST"},
				{Label: "PUT", Value: "PUT"},
				{Label: "PATCH", Value: "PATCH"},
				{Label: "DELETE", Value: "DELETE"},
				{Label: "HEAD", Value: "HEAD"},
				{Label: "OPTIONS", Value: "OPTIONS"},
			}},
			{Name: "url", Type: "string", Required: true, Description: "Request URL", Placeholder: "https://api.example.com/endpoint"},
			{Name: "authentication", Type: "options", Default: "none", Description: "Authentication type", Options: []runtime.PropertyOption{
				{Label: "None", Value: "none"},
				{Label: "Basic Auth", Value: "basic"},
				{Label: "Bearer Token", Value: "bearer"},
				{Label: "API Key", Value: "apiKey"},
				{Label: "OAuth2", Value: "oauth2"},
			}},
			{Name: "headers", Type: "json", Description: "Request headers"},
			{Name: "queryParams", Type: "json", Description: "Query parameters"},
			{Name: "body", Type: "json", Description: "Request body (for POST/PUT/PATCH)"},
			{Name: "bodyType", Type: "options", Default: "json", Description: "Body content type", Options: []runtime.PropertyOption{
				{Label: "JSON", Value: "json"},
				{Label: "Form Data", Value: "form"},
				{Label: "Form URL Encoded", Value: "urlencoded"},
				{Label: "Raw", Value: "raw"},
			}},
			{Name: "timeout", Type: "number", Default: 30, Description: "Request timeout in seconds"},
			{Name: "continueOnFail", Type: "bool", Default: false, Description: "Continue workflow even if this request fails"},
			{Name: "responseType", Type: "options", Default: "auto", Description: "Response type", Options: []runtime.PropertyOption{
				{Label: "Auto-detect", Value: "auto"},
				{Label: "JSON", Value: "json"},
				{Label: "Text", Value: "text"},
				{Label: "Binary", Value: "binary"},
			}},
		},
		IsTrigger: false,
	}
}

// Validate validates the node configuration
func (n *HTTPRequestNode) Validate(config map[string]interface{}) error {
	if _, ok := config["url"]; !ok {
		return fmt.Errorf("url is required")
	}
	return nil
}

// Execute performs one HTTP call per node execution and reports the
// response as a single item on "main", or the error shape on "error"
// when continueOnFail is set.
func (n *HTTPRequestNode) Execute(ctx context.Context, input *runtime.ExecutionInput) (*runtime.ExecutionOutput, error) {
	params := input.Parameters
	method := getStringConfig(params, "method", "GET")
	urlStr := getStringConfig(params, "url", "")
	headers := getMapConfig(params, "headers")
	queryParams := getMapConfig(params, "queryParams")
	body := params["body"]
	bodyType := getStringConfig(params, "bodyType", "json")
	timeout := getIntConfig(params, "timeout", 30)
	authType := getStringConfig(params, "authentication", "none")
	responseType := getStringConfig(params, "responseType", "auto")
	continueOnFail := getBoolConfig(params, "continueOnFail", false)

	fail := func(err error) (*runtime.ExecutionOutput, error) {
		if continueOnFail {
			return &runtime.ExecutionOutput{Outputs: map[string][]runtime.Item{
				"error": {{JSON: map[string]interface{}{"message": err.Error()}}},
			}}, nil
		}
		return nil, err
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return fail(fmt.Errorf("invalid URL: %w", err))
	}

	if len(queryParams) > 0 {
		q := parsedURL.Query()
		for k, v := range queryParams {
			q.Set(k, fmt.Sprintf("%v", v))
		}
		parsedURL.RawQuery = q.Encode()
	}

	var bodyReader io.Reader
	var contentType string

	if body != nil && (method == "POST" || method == "PUT" || method == "PATCH") {
		switch bodyType {
		case "json":
			jsonBody, err := json.Marshal(body)
			if err != nil {
				return fail(fmt.Errorf("failed to marshal JSON body: %w", err))
			}
			bodyReader = bytes.NewReader(jsonBody)
			contentType = "application/json"
		case "form", "urlencoded":
			formData := url.Values{}
			if m, ok := body.(map[string]interface{}); ok {
				for k, v := range m {
					formData.Set(k, fmt.Sprintf("%v", v))
				}
			}
			bodyReader = strings.NewReader(formData.Encode())
			contentType = "application/x-www-form-urlencoded"
		case "raw":
			bodyReader = strings.NewReader(fmt.Sprintf("%v", body))
			contentType = "text/plain"
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, parsedURL.String(), bodyReader)
	if err != nil {
		return fail(fmt.Errorf("failed to create request: %w", err))
	}

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, fmt.Sprintf("%v", v))
	}

	if err := n.applyAuthentication(req, authType, params, input.Credentials); err != nil {
		return fail(fmt.Errorf("authentication error: %w", err))
	}

	client := n.client
	if timeout > 0 {
		client = &http.Client{Timeout: time.Duration(timeout) * time.Second}
	}

	if input.Context != nil && input.Context.Logger != nil {
		input.Context.Logger.Info(fmt.Sprintf("%s %s", method, parsedURL.String()))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fail(fmt.Errorf("request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fail(fmt.Errorf("failed to read response: %w", err))
	}

	var responseData interface{}
	item := runtime.Item{}

	contentTypeHeader := resp.Header.Get("Content-Type")
	if responseType == "auto" {
		switch {
		case strings.Contains(contentTypeHeader, "application/json"):
			responseType = "json"
		case strings.Contains(contentTypeHeader, "text/"):
			responseType = "text"
		default:
			responseType = "binary"
		}
	}

	switch responseType {
	case "json":
		if err := json.Unmarshal(respBody, &responseData); err != nil {
			responseData = string(respBody)
		}
	case "text":
		responseData = string(respBody)
	case "binary":
		item.Binary = map[string]runtime.BinaryData{
			"body": {MimeType: contentTypeHeader, Data: respBody},
		}
		responseData = map[string]interface{}{
			"size":     len(respBody),
			"mimeType": contentTypeHeader,
		}
	}

	respHeaders := make(map[string]interface{}, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	item.JSON = map[string]interface{}{
		"statusCode":    resp.StatusCode,
		"statusMessage": resp.Status,
		"headers":       respHeaders,
		"body":          responseData,
		"ok":            resp.StatusCode >= 200 && resp.StatusCode < 300,
	}

	return runtime.NewOutput([]runtime.Item{item}), nil
}

func (n *HTTPRequestNode) applyAuthentication(req *http.Request, authType string, config, credentials map[string]interface{}) error {
	switch authType {
	case "basic":
		username := getStringConfig(config, "basicAuthUser", "")
		password := getStringConfig(config, "basicAuthPassword", "")
		if credentials != nil {
			if u, ok := credentials["username"].(string); ok {
				username = u
			}
			if p, ok := credentials["password"].(string); ok {
				password = p
			}
		}
		req.SetBasicAuth(username, password)

	case "bearer":
		token := getStringConfig(config, "bearerToken", "")
		if credentials != nil {
			if t, ok := credentials["token"].(string); ok {
				token = t
			}
		}
		req.Header.Set("Authorization", "Bearer "+token)

	case "apiKey":
		keyName := getStringConfig(config, "apiKeyName", "X-API-Key")
		keyValue := getStringConfig(config, "apiKeyValue", "")
		keyLocation := getStringConfig(config, "apiKeyLocation", "header")

		if credentials != nil {
			if k, ok := credentials["key"].(string); ok {
				keyValue = k
			}
		}

		if keyLocation == "header" {
			req.Header.Set(keyName, keyValue)
		} else if keyLocation == "query" {
			q := req.URL.Query()
			q.Set(keyName, keyValue)
			req.URL.RawQuery = q.Encode()
		}

	case "oauth2":
		accessToken := ""
		if credentials != nil {
			if t, ok := credentials["access_token"].(string); ok {
				accessToken = t
			}
		}
		if accessToken != "" {
			req.Header.Set("Authorization", "Bearer "+accessToken)
		}
	}

	return nil
}

// Helper functions shared by several node implementations in this package.

func getStringConfig(config map[string]interface{}, key, defaultVal string) string {
	if v, ok := config[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultVal
}

func getIntConfig(config map[string]interface{}, key string, defaultVal int) int {
	if v, ok := config[key]; ok {
		switch val := v.(type) {
		case int:
			return val
		case float64:
			return int(val)
		}
	}
	return defaultVal
}

func getBoolConfig(config map[string]interface{}, key string, defaultVal bool) bool {
	if v, ok := config[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return defaultVal
}

func getMapConfig(config map[string]interface{}, key string) map[string]interface{} {
	if v, ok := config[key]; ok {
		if m, ok := v.(map[string]interface{}); ok {
			return m
		}
	}
	return make(map[string]interface{})
}

func init() {
	runtime.Register(NewHTTPRequestNode())
}
