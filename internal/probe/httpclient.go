package probe

import (
	"context"
	"crypto/tls"
	"io"
	"net/http"
	"time"

	"github.com/DiscordGSM/GameServerMonitor/internal/errs"
	"github.com/DiscordGSM/GameServerMonitor/internal/state"
)

// HTTPClient wraps either the process-wide shared *http.Client or a
// dedicated one owned by a single strategy, mirroring the dedicated-vs-
// shared server lifecycle in the teacher's internal/servers/grpc.Server:
// most callers reuse the shared instance from component J (internal/state)
// and never own a connection's lifetime; a strategy that needs bespoke
// timeouts/TLS gets a dedicated client instead.
type HTTPClient struct {
	c         *http.Client
	dedicated bool
}

// Shared returns an HTTPClient backed by the process-wide client.
func Shared() *HTTPClient {
	return &HTTPClient{c: state.DefaultHTTPClient()}
}

// Dedicated returns an HTTPClient that owns its own *http.Client with the
// given timeout, for strategies whose upstream needs different transport
// settings than the shared default.
func Dedicated(timeout time.Duration) *HTTPClient {
	return &HTTPClient{c: state.NewDedicatedHTTPClient(timeout), dedicated: true}
}

// DedicatedInsecure is Dedicated but skips TLS certificate verification,
// for admin APIs served over self-signed HTTPS (Satisfactory's local
// management API is the one strategy that needs this).
func DedicatedInsecure(timeout time.Duration) *HTTPClient {
	c := state.NewDedicatedHTTPClient(timeout)
	c.Transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	return &HTTPClient{c: c, dedicated: true}
}

// Get issues a GET request bounded by ctx and returns the response body.
// content-type is sniffed loosely by callers (spec.md §4.B: "some servers
// return JSON as text/*"), so this returns raw bytes rather than decoding.
func (h *HTTPClient) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "build http request", err)
	}
	return h.do(req)
}

// PostJSON issues a POST with a raw JSON body bounded by ctx.
func (h *HTTPClient) PostJSON(ctx context.Context, url string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "build http request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return h.do(req)
}

// PostJSONWithHeaders is PostJSON plus caller-supplied headers, for
// endpoints that require a bearer token alongside a JSON body (Satisfactory's
// local admin API).
func (h *HTTPClient) PostJSONWithHeaders(ctx context.Context, url string, body io.Reader, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "build http request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return h.do(req)
}

// GetWithHeaders is Get plus caller-supplied headers, for endpoints that
// need a bearer token or other auth header (e.g. the Epic Online Services
// matchmaking lookups the asa/palworld strategies perform).
func (h *HTTPClient) GetWithHeaders(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "build http request", err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return h.do(req)
}

// PostForm issues a POST with an application/x-www-form-urlencoded body
// and caller-supplied headers (e.g. HTTP Basic auth for an OAuth2
// client-credentials exchange).
func (h *HTTPClient) PostForm(ctx context.Context, url string, form io.Reader, headers map[string]string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, form)
	if err != nil {
		return nil, errs.New(errs.InvalidInput, "build http request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return h.do(req)
}

func (h *HTTPClient) do(req *http.Request) ([]byte, error) {
	resp, err := h.c.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return nil, errs.New(errs.Timeout, "http request canceled", ctxErr)
		}
		return nil, errs.New(errs.Transport, "http request failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.New(errs.Transport, "read http response body", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, errs.New(errs.NotFound, "http 404", nil)
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, errs.New(errs.Permission, "http permission denied", nil)
	}
	if resp.StatusCode >= 400 {
		return data, errs.New(errs.Transport, "http status "+resp.Status, nil)
	}

	return data, nil
}
