package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Result is the outcome of an HTTP action invocation. Response mirrors the
// shape workflow steps bind to variables: success, status_code, headers,
// body (parsed JSON when the response looks like JSON or parse_json was
// requested), and error when the response status isn't 2xx. Metadata carries
// request bookkeeping that isn't part of the response itself.
type Result struct {
	Response interface{}
	Metadata map[string]interface{}
}

// parseJSONString is assigned its real implementation by operations.go's
// init(), keeping JSON decoding swappable in tests without an interface.
var parseJSONString func(jsonStr string, target *interface{}) error

// HTTPAction executes get/post/put/patch/delete/request operations against
// a shared *http.Client, enforcing the scheme and private-IP policy from
// Config on every request and redirect hop.
type HTTPAction struct {
	cfg    *Config
	client *http.Client
}

// New builds an HTTPAction from cfg, falling back to DefaultConfig when cfg
// is nil.
func New(cfg *Config) (*HTTPAction, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxResponseSize <= 0 {
		cfg.MaxResponseSize = 10 * 1024 * 1024
	}
	if cfg.MaxRedirects <= 0 {
		cfg.MaxRedirects = 10
	}

	c := &HTTPAction{cfg: cfg}
	c.client = &http.Client{
		Timeout:       cfg.Timeout,
		CheckRedirect: c.checkRedirect,
	}
	return c, nil
}

// Execute dispatches operation against inputs.
func (c *HTTPAction) Execute(ctx context.Context, operation string, inputs map[string]interface{}) (*Result, error) {
	switch operation {
	case "get":
		return c.get(ctx, inputs)
	case "post":
		return c.post(ctx, inputs)
	case "put":
		return c.put(ctx, inputs)
	case "patch":
		return c.patch(ctx, inputs)
	case "delete":
		return c.delete(ctx, inputs)
	case "request":
		return c.request(ctx, inputs)
	default:
		return nil, fmt.Errorf("unknown http operation: %q", operation)
	}
}

// checkRedirect enforces MaxRedirects and, when BlockPrivateIPs is set,
// refuses to follow a redirect into RFC1918/loopback/link-local space. The
// initial request URL is not subject to this check, only hops the server
// directs us to.
func (c *HTTPAction) checkRedirect(req *http.Request, via []*http.Request) error {
	if len(via) >= c.cfg.MaxRedirects {
		return fmt.Errorf("stopped after %d redirects", c.cfg.MaxRedirects)
	}
	if c.cfg.BlockPrivateIPs && isPrivateHost(req.URL.Hostname()) {
		return &SecurityBlockedError{URL: req.URL.String(), Reason: "redirect target is a private or loopback address"}
	}
	return nil
}

// validateAndPrepareRequest builds an *http.Request for method/rawURL,
// rejecting disallowed schemes and hosts before any network activity
// happens.
func (c *HTTPAction) validateAndPrepareRequest(ctx context.Context, method, rawURL string, body io.Reader, inputs map[string]interface{}) (*http.Request, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, &InvalidURLError{URL: rawURL, Reason: err.Error()}
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, &InvalidURLError{URL: rawURL, Reason: fmt.Sprintf("unsupported scheme %q", parsed.Scheme)}
	}
	if c.cfg.RequireHTTPS && parsed.Scheme != "https" {
		return nil, &SecurityBlockedError{URL: rawURL, Reason: "HTTPS is required"}
	}
	if len(c.cfg.AllowedHosts) > 0 && !hostAllowed(parsed.Hostname(), c.cfg.AllowedHosts) {
		return nil, &SecurityBlockedError{URL: rawURL, Reason: "host not in allowed list"}
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, &InvalidURLError{URL: rawURL, Reason: err.Error()}
	}

	if headers, ok := inputs["headers"].(map[string]interface{}); ok {
		for k, v := range headers {
			if s, ok := v.(string); ok {
				req.Header.Set(k, s)
			}
		}
	}

	return req, nil
}

// executeRequest performs req, enforcing MaxResponseSize and translating
// transport-level failures into the package's typed errors.
func (c *HTTPAction) executeRequest(req *http.Request, inputs map[string]interface{}) (*Result, error) {
	start := time.Now()
	resp, err := c.client.Do(req)
	duration := time.Since(start)
	if err != nil {
		if sbe, ok := asSecurityBlockedError(err); ok {
			return nil, sbe
		}
		var urlErr *url.Error
		if errors.As(err, &urlErr) && urlErr.Timeout() {
			return nil, &TimeoutError{URL: req.URL.String(), Timeout: c.cfg.Timeout.String()}
		}
		return nil, &NetworkError{URL: req.URL.String(), Reason: err.Error()}
	}
	defer resp.Body.Close()

	limited := io.LimitReader(resp.Body, c.cfg.MaxResponseSize+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, &NetworkError{URL: req.URL.String(), Reason: err.Error()}
	}
	if int64(len(raw)) > c.cfg.MaxResponseSize {
		return nil, &NetworkError{URL: req.URL.String(), Reason: fmt.Sprintf("response exceeds max size of %d bytes", c.cfg.MaxResponseSize)}
	}

	headers := make(map[string]interface{}, len(resp.Header))
	for k, v := range resp.Header {
		if len(v) == 1 {
			headers[k] = v[0]
		} else {
			headers[k] = v
		}
	}

	var bodyValue interface{} = string(raw)
	wantJSON, _ := inputs["parse_json"].(bool)
	if (wantJSON || looksLikeJSON(resp.Header.Get("Content-Type"))) && len(raw) > 0 {
		var parsed interface{}
		if err := parseJSONString(string(raw), &parsed); err == nil {
			bodyValue = parsed
		}
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	response := map[string]interface{}{
		"success":     success,
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        bodyValue,
	}
	if !success {
		response["error"] = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	}

	return &Result{
		Response: response,
		Metadata: map[string]interface{}{
			"duration_ms": duration.Milliseconds(),
			"url":         req.URL.String(),
			"method":      req.Method,
		},
	}, nil
}

func looksLikeJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}

// hostAllowed matches host against patterns, supporting exact names and
// "*.example.com"-style wildcards.
func hostAllowed(host string, patterns []string) bool {
	for _, pattern := range patterns {
		if strings.Contains(pattern, "*") {
			glob := strings.ReplaceAll(pattern, "*", "**")
			if matched, err := doublestar.Match(glob, host); err == nil && matched {
				return true
			}
			continue
		}
		if host == pattern {
			return true
		}
	}
	return false
}

var privateCIDRs = parseCIDRs(
	"10.0.0.0/8",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func parseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

// isPrivateHost reports whether host is a literal IP in a private, loopback,
// or link-local range. Hostnames are left unresolved here; DNS rebinding
// protection for named hosts is the resolver's job, not this check's.
func isPrivateHost(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, n := range privateCIDRs {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// asSecurityBlockedError unwraps the *url.Error http.Client wraps
// CheckRedirect failures in.
func asSecurityBlockedError(err error) (*SecurityBlockedError, bool) {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if sbe, ok := urlErr.Err.(*SecurityBlockedError); ok {
			return sbe, true
		}
	}
	var sbe *SecurityBlockedError
	if errors.As(err, &sbe) {
		return sbe, true
	}
	return nil, false
}
