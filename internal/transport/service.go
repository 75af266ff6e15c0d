package transport

import (
	"context"
	"fmt"
	"sort"

	"github.com/bytedance/sonic"
)

// ServiceError is returned when a service reports a failed run.
type ServiceError struct {
	URL     string
	Status  string
	Message string
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("service %s: status %s: %s", e.URL, e.Status, e.Message)
	}
	return fmt.Sprintf("service %s: status %s", e.URL, e.Status)
}

// serviceParam is one named value in a CSIP-style payload.
type serviceParam struct {
	Name  string `json:"name"`
	Value any    `json:"value"`
}

type serviceRequest struct {
	Metainfo  map[string]any `json:"metainfo"`
	Parameter []serviceParam `json:"parameter"`
}

type serviceResponse struct {
	Metainfo map[string]any   `json:"metainfo"`
	Result   []map[string]any `json:"result"`
}

// ServiceClient calls CSIP-style services: parameters go out as a
// name/value list and results come back the same way.
type ServiceClient struct {
	http *HTTPClient
}

// NewServiceClient creates a service client on top of an HTTP client.
func NewServiceClient(client *HTTPClient) *ServiceClient {
	return &ServiceClient{http: client}
}

// Call posts params to url and returns the result entries keyed by name.
// Every entry is the full object the service returned, "value" included.
func (s *ServiceClient) Call(ctx context.Context, url string, params map[string]any) (map[string]any, error) {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	payload := serviceRequest{Metainfo: map[string]any{}, Parameter: make([]serviceParam, 0, len(names))}
	for _, name := range names {
		payload.Parameter = append(payload.Parameter, serviceParam{Name: name, Value: params[name]})
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode service request: %w", err)
	}

	resp, err := s.http.Call(ctx, &Request{
		Method:  "POST",
		URL:     url,
		Headers: map[string]string{"Content-Type": ContentTypeJSON, "Accept": ContentTypeJSON},
		Body:    body,
	})
	if err != nil {
		return nil, err
	}

	var decoded serviceResponse
	if err := sonic.Unmarshal(resp.Body, &decoded); err != nil {
		return nil, fmt.Errorf("decode service response: %w", err)
	}

	if status, _ := decoded.Metainfo["status"].(string); status == "Failed" {
		msg, _ := decoded.Metainfo["error"].(string)
		return nil, &ServiceError{URL: url, Status: status, Message: msg}
	}

	out := make(map[string]any, len(decoded.Result))
	for _, entry := range decoded.Result {
		name, ok := entry["name"].(string)
		if !ok {
			continue
		}
		out[name] = entry
	}
	return out, nil
}
