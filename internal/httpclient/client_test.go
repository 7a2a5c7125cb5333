package httpclient_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/docmesh/sharekit/internal/config"
	"github.com/docmesh/sharekit/internal/httpclient"
)

func testConfig() *config.OutboundHTTPConfig {
	cfg := config.DefaultConfig().OutboundHTTP
	return &cfg
}

func TestDoJSON_RoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token, got %q", r.Header.Get("Authorization"))
		}
		var in map[string]string
		json.NewDecoder(r.Body).Decode(&in)
		json.NewEncoder(w).Encode(map[string]string{"echo": in["msg"]})
	}))
	defer srv.Close()

	c := httpclient.New(testConfig(), "tok")
	var out map[string]string
	resp, err := c.DoJSON(context.Background(), http.MethodPost, srv.URL, map[string]string{"msg": "hello"}, &out)
	if err != nil {
		t.Fatalf("DoJSON failed: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("unexpected status %d", resp.StatusCode)
	}
	if out["echo"] != "hello" {
		t.Errorf("unexpected body: %v", out)
	}
}

func TestDoJSON_ResponseTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 2048)))
	}))
	defer srv.Close()

	cfg := testConfig()
	cfg.MaxResponseBytes = 1024
	c := httpclient.New(cfg, "")

	_, err := c.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil)
	if err != httpclient.ErrResponseTooLarge {
		t.Errorf("expected ErrResponseTooLarge, got %v", err)
	}
}

func TestDo_NoRedirectFollowing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://example.invalid/", http.StatusFound)
	}))
	defer srv.Close()

	c := httpclient.New(testConfig(), "tok")
	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := c.Do(req)
	if err != nil {
		t.Fatalf("Do failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusFound {
		t.Errorf("redirect must be surfaced, not followed; got status %d", resp.StatusCode)
	}
}

func TestStrictSSRF_BlocksLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	cfg := testConfig()
	cfg.SSRFMode = "strict"
	c := httpclient.New(cfg, "")

	req, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	_, err := c.Do(req)
	if !httpclient.IsBlockedHostError(err) {
		t.Errorf("expected SSRF block for loopback test server, got %v", err)
	}
}

func TestStrictSSRF_BlocksLocalhostNames(t *testing.T) {
	cfg := testConfig()
	cfg.SSRFMode = "strict"
	c := httpclient.New(cfg, "")

	for _, host := range []string{"localhost", "sub.localhost", "127.0.0.1", "[::1]", "10.1.2.3"} {
		req, _ := http.NewRequest(http.MethodGet, "http://"+host+"/api", nil)
		if _, err := c.Do(req); !httpclient.IsBlockedHostError(err) {
			t.Errorf("host %s should be blocked, got %v", host, err)
		}
	}
}
