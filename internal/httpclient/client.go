// Package httpclient provides the bounded outbound HTTP client used by
// the API layer: per-request timeouts, response size limits, and an
// optional strict SSRF guard for portals resolved from user input.
package httpclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/idna"

	"github.com/docmesh/sharekit/internal/config"
)

var (
	ErrBlockedHost      = errors.New("request blocked by SSRF protection")
	ErrHostUnresolvable = errors.New("host could not be resolved")
	ErrResponseTooLarge = errors.New("response body too large")
	ErrInvalidURL       = errors.New("invalid URL")
)

// Client is the outbound HTTP client. Authorized API requests never
// follow redirects: a 3xx from the portal is surfaced as-is so the
// bearer token cannot leak to a third host.
type Client struct {
	cfg        *config.OutboundHTTPConfig
	token      string
	httpClient *http.Client
}

// New creates a client from outbound settings. token, when non-empty,
// is attached to every request as a bearer Authorization header.
func New(cfg *config.OutboundHTTPConfig, token string) *Client {
	if cfg == nil {
		defaults := config.DefaultConfig().OutboundHTTP
		defaults.SSRFMode = "strict"
		cfg = &defaults
	}

	c := &Client{cfg: cfg, token: token}

	dialer := &net.Dialer{
		Timeout: time.Duration(cfg.ConnectTimeoutMS) * time.Millisecond,
	}

	transport := &http.Transport{
		// Proxy env vars are ignored; the portal is dialed directly.
		Proxy: nil,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if c.strictSSRF() {
				if err := c.checkAddr(addr); err != nil {
					return nil, err
				}
			}
			return dialer.DialContext(ctx, network, addr)
		},
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		MaxIdleConns:    10,
		IdleConnTimeout: 30 * time.Second,
	}

	c.httpClient = &http.Client{
		Transport: transport,
		Timeout:   time.Duration(cfg.TimeoutMS) * time.Millisecond,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return c
}

func (c *Client) strictSSRF() bool {
	return strings.EqualFold(c.cfg.SSRFMode, "strict")
}

// checkAddr validates a dial address (host:port or bare host).
func (c *Client) checkAddr(addr string) error {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return c.checkHost(host)
}

// checkHost validates that the host does not resolve to a private,
// loopback, or link-local address. Unicode hostnames are normalized to
// their ASCII (punycode) form first, so a lookalike label cannot dodge
// the name checks.
func (c *Client) checkHost(host string) error {
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}

	if ascii, err := idna.Lookup.ToASCII(host); err == nil {
		host = ascii
	}

	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") {
		return fmt.Errorf("%w: localhost is blocked", ErrBlockedHost)
	}

	// IP literal: no DNS lookup needed.
	if ip := net.ParseIP(host); ip != nil {
		if !allowedIP(ip) {
			return fmt.Errorf("%w: IP %s is blocked", ErrBlockedHost, ip)
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		// Fail closed.
		return fmt.Errorf("%w: %s: %v", ErrHostUnresolvable, host, err)
	}
	for _, ip := range ips {
		if !allowedIP(ip) {
			return fmt.Errorf("%w: %s resolves to blocked IP %s", ErrBlockedHost, host, ip)
		}
	}
	return nil
}

func allowedIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() {
		return false
	}
	if ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return false
	}
	return true
}

// Do performs a request with timeout, SSRF, and auth handling applied.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.strictSSRF() {
		if err := c.checkHost(req.URL.Host); err != nil {
			return nil, err
		}
	}
	if c.token != "" && req.Header.Get("Authorization") == "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return c.httpClient.Do(req)
}

// DoJSON sends method+url with an optional JSON body and decodes the
// JSON response into out (skipped when out is nil). The response body
// is read under the configured size limit. The returned response has a
// drained, closed body; callers use it for status inspection only.
func (c *Client) DoJSON(ctx context.Context, method, url string, body any, out any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := c.readLimited(resp.Body)
	if err != nil {
		return resp, err
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp, fmt.Errorf("failed to decode response body: %w", err)
		}
	}
	return resp, nil
}

func (c *Client) readLimited(r io.Reader) ([]byte, error) {
	limited := io.LimitReader(r, c.cfg.MaxResponseBytes+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > c.cfg.MaxResponseBytes {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

// IsBlockedHostError reports whether err is an SSRF blocking error.
func IsBlockedHostError(err error) bool {
	return errors.Is(err, ErrBlockedHost) || errors.Is(err, ErrHostUnresolvable)
}
