package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"watchpost/internal/models"
)

// HTTPProbe performs liveness and latency checks against API targets.
type HTTPProbe struct {
	timeout time.Duration
}

// NewHTTPProbe creates an HTTP probe with a bounded per-check timeout.
func NewHTTPProbe(timeout time.Duration) *HTTPProbe {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPProbe{timeout: timeout}
}

// Kind returns the target kind this probe handles
func (h *HTTPProbe) Kind() string {
	return models.KindAPI
}

// Check performs one GET against the target URL. Any status in
// [200,500) counts as up: a client error still proves the service is
// answering. 5xx and transport failures are down.
func (h *HTTPProbe) Check(ctx context.Context, in Input) Result {
	result := Result{
		Outcome:   models.OutcomeDown,
		CheckedAt: time.Now().UTC(),
	}

	client, err := h.newClient(in.Proxy)
	if err != nil {
		result.Error = strPtr(fmt.Sprintf("invalid proxy configuration: %v", err))
		return result
	}

	reqCtx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, in.Target.URL, nil)
	if err != nil {
		result.Error = strPtr(fmt.Sprintf("failed to create request: %v", err))
		return result
	}

	start := time.Now()
	resp, err := client.Do(req)
	latency := int(time.Since(start).Milliseconds())
	result.LatencyMS = intPtr(latency)

	if err != nil {
		if isTimeout(err) {
			// 408 sentinel preserves "no real response" for timeouts
			result.StatusCode = intPtr(http.StatusRequestTimeout)
			result.Error = strPtr(fmt.Sprintf("request timed out after %s", h.timeout))
		} else {
			result.Error = strPtr(fmt.Sprintf("request failed: %v", err))
		}
		return result
	}
	defer resp.Body.Close()

	result.StatusCode = intPtr(resp.StatusCode)
	if resp.StatusCode >= 200 && resp.StatusCode < 500 {
		result.Outcome = models.OutcomeUp
	} else {
		result.Error = strPtr(fmt.Sprintf("unexpected status code: %d", resp.StatusCode))
	}

	return result
}

// newClient builds a client for one check, routing through the given
// proxy when set. A fresh client per check keeps per-target proxy
// settings from leaking across targets.
func (h *HTTPProbe) newClient(proxy *models.Proxy) (*http.Client, error) {
	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: h.timeout,
		}).DialContext,
	}

	if proxy != nil {
		proxyURL, err := buildProxyURL(proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &http.Client{
		Timeout:   h.timeout,
		Transport: transport,
	}, nil
}

func buildProxyURL(p *models.Proxy) (*url.URL, error) {
	scheme := p.Protocol
	if scheme == "" {
		scheme = "http"
	}
	u := &url.URL{
		Scheme: scheme,
		Host:   fmt.Sprintf("%s:%d", p.Host, p.Port),
	}
	if p.Username != "" {
		u.User = url.UserPassword(p.Username, p.Password)
	}
	if _, err := url.Parse(u.String()); err != nil {
		return nil, err
	}
	return u, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
