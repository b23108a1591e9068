package validator

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/trawlhq/trawl/internal/config"
	"github.com/trawlhq/trawl/internal/model"
)

func TestClassifyBasic(t *testing.T) {
	c := NewAnonymityChecker("", config.AnonymityModeBasic)

	cases := []struct {
		name    string
		headers map[string]string
		want    model.Anonymity
	}{
		{"xff leaks client", map[string]string{"X-Forwarded-For": "1.2.3.4"}, model.AnonymityTransparent},
		{"via reveals proxy", map[string]string{"Via": "1.1 squid"}, model.AnonymityAnonymous},
		{"clean headers", map[string]string{"Host": "x", "User-Agent": "curl"}, model.AnonymityElite},
		{"xff beats via", map[string]string{"X-Forwarded-For": "1.2.3.4", "Via": "1.1 squid"}, model.AnonymityTransparent},
		// Basic mode ignores the extended header set.
		{"x-real-ip ignored", map[string]string{"X-Real-Ip": "1.2.3.4"}, model.AnonymityElite},
		{"proxy-connection ignored", map[string]string{"Proxy-Connection": "keep-alive"}, model.AnonymityElite},
	}
	for _, tc := range cases {
		if got := c.classify(tc.headers); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestClassifyEnhanced(t *testing.T) {
	c := NewAnonymityChecker("", config.AnonymityModeEnhanced)

	cases := []struct {
		name    string
		headers map[string]string
		want    model.Anonymity
	}{
		{"forwarded leaks client", map[string]string{"Forwarded": "for=1.2.3.4"}, model.AnonymityTransparent},
		{"x-real-ip leaks client", map[string]string{"X-Real-Ip": "1.2.3.4"}, model.AnonymityTransparent},
		{"proxy-connection reveals proxy", map[string]string{"Proxy-Connection": "keep-alive"}, model.AnonymityAnonymous},
		{"clean headers", map[string]string{"Host": "x"}, model.AnonymityElite},
	}
	for _, tc := range cases {
		if got := c.classify(tc.headers); got != tc.want {
			t.Errorf("%s: got %s, want %s", tc.name, got, tc.want)
		}
	}
}

func TestCheckAgainstReflectionEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"headers":{"Host":"httpbin.org","X-Forwarded-For":"9.9.9.9"}}`))
	}))
	defer srv.Close()

	c := NewAnonymityChecker(srv.URL, config.AnonymityModeBasic)
	got, err := c.Check(context.Background(), srv.Client())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if got != model.AnonymityTransparent {
		t.Fatalf("got %s, want transparent", got)
	}
}

func TestCheckNon200IsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewAnonymityChecker(srv.URL, config.AnonymityModeBasic)
	if _, err := c.Check(context.Background(), srv.Client()); err == nil {
		t.Fatal("expected error for non-200 probe")
	}
}
