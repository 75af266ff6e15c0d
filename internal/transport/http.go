// Package transport holds the clients tasks use to reach the outside world:
// HTTP, CSIP-style services, shell processes and the JavaScript host.
package transport

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/valyala/fasthttp"

	"yqhp/jobflow/pkg/utils"
)

const (
	defaultHTTPTimeout = 30 * time.Second

	ContentTypeJSON = "application/json"
	ContentTypeForm = "application/x-www-form-urlencoded"
)

// HTTPConfig configures an HTTPClient.
type HTTPConfig struct {
	Timeout             time.Duration `yaml:"timeout" env:"JF_HTTP_TIMEOUT"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host" env:"JF_HTTP_MAX_CONNS_PER_HOST"`
	MaxIdleConnDuration time.Duration `yaml:"max_idle_conn_duration"`
	InsecureSkipVerify  bool          `yaml:"insecure_skip_verify" env:"JF_HTTP_INSECURE"`
}

// DefaultHTTPConfig returns the default client settings.
func DefaultHTTPConfig() HTTPConfig {
	return HTTPConfig{
		Timeout:             defaultHTTPTimeout,
		MaxConnsPerHost:     100,
		MaxIdleConnDuration: 90 * time.Second,
	}
}

// Request is an outgoing HTTP request.
type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	// Query is appended to the URL.
	Query map[string]any
	// Form is sent url-encoded when Body is empty.
	Form map[string]any
	Body []byte
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}

// JSON decodes the body. Integers decode as int64.
func (r *Response) JSON() (any, error) {
	if len(r.Body) == 0 {
		return nil, fmt.Errorf("empty response body")
	}
	v, err := oj.Parse(r.Body)
	if err != nil {
		return nil, fmt.Errorf("decode response body: %w", err)
	}
	return v, nil
}

// StatusError is returned for responses with status >= 400.
type StatusError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("%s %s: status %d %s: %s", e.Method, e.URL, e.StatusCode, fasthttp.StatusMessage(e.StatusCode), body)
}

// HTTPClient is a thin fasthttp wrapper honouring context deadlines.
type HTTPClient struct {
	client  *fasthttp.Client
	timeout time.Duration
}

// NewHTTPClient creates a client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultHTTPTimeout
	}
	return &HTTPClient{
		client: &fasthttp.Client{
			MaxConnsPerHost:        cfg.MaxConnsPerHost,
			MaxIdleConnDuration:    cfg.MaxIdleConnDuration,
			ReadTimeout:            cfg.Timeout,
			WriteTimeout:           cfg.Timeout,
			TLSConfig:              &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}, //nolint:gosec
			DisablePathNormalizing: true,
		},
		timeout: cfg.Timeout,
	}
}

func (c *HTTPClient) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

// Call sends req and reads the whole response. A status >= 400 yields a
// *StatusError together with the response.
func (c *HTTPClient) Call(ctx context.Context, r *Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	method := strings.ToUpper(r.Method)
	if method == "" {
		method = fasthttp.MethodGet
	}
	requestURL := withQuery(r.URL, r.Query)

	req.Header.SetMethod(method)
	req.SetRequestURI(requestURL)
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}

	switch {
	case len(r.Body) > 0:
		req.SetBody(r.Body)
	case len(r.Form) > 0:
		req.SetBodyString(encodeValues(r.Form))
		if len(req.Header.ContentType()) == 0 {
			req.Header.SetContentType(ContentTypeForm)
		}
	}

	deadline := c.deadline(ctx)
	if err := c.client.DoDeadline(req, resp, deadline); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if err == fasthttp.ErrTimeout || time.Now().After(deadline) {
			return nil, fmt.Errorf("%s %s: %w", method, requestURL, context.DeadlineExceeded)
		}
		return nil, fmt.Errorf("%s %s: %w", method, requestURL, err)
	}

	out := &Response{
		StatusCode: resp.StatusCode(),
		Headers:    make(map[string]string),
		Body:       append([]byte(nil), resp.Body()...),
	}
	resp.Header.VisitAll(func(key, value []byte) {
		k := string(key)
		if _, exists := out.Headers[k]; !exists {
			out.Headers[k] = string(value)
		}
	})

	if out.StatusCode >= 400 {
		return out, &StatusError{Method: method, URL: requestURL, StatusCode: out.StatusCode, Body: string(out.Body)}
	}
	return out, nil
}

// Head sends a HEAD request and returns the status code.
func (c *HTTPClient) Head(ctx context.Context, rawURL string) (int, error) {
	resp, err := c.Call(ctx, &Request{Method: fasthttp.MethodHead, URL: rawURL})
	if resp != nil {
		return resp.StatusCode, err
	}
	return 0, err
}

// Extract evaluates a JSONPath expression against a decoded body and
// returns the first match.
func Extract(data any, expr string) (any, bool, error) {
	path, err := jp.ParseString(expr)
	if err != nil {
		return nil, false, fmt.Errorf("invalid JSONPath expression '%s': %w", expr, err)
	}
	results := path.Get(data)
	if len(results) == 0 {
		return nil, false, nil
	}
	return results[0], true, nil
}

func withQuery(rawURL string, query map[string]any) string {
	if len(query) == 0 {
		return rawURL
	}
	sep := "?"
	if strings.Contains(rawURL, "?") {
		sep = "&"
	}
	return rawURL + sep + encodeValues(query)
}

// encodeValues url-encodes values in key order.
func encodeValues(values map[string]any) string {
	keys := utils.SortedKeys(values)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(Stringify(values[k])))
	}
	return strings.Join(parts, "&")
}

// Stringify renders a value the way it is passed to processes and forms.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case map[string]any, []any:
		return oj.JSON(val, &oj.Options{Sort: true})
	default:
		return fmt.Sprintf("%v", val)
	}
}
