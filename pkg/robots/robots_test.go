package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/FranksOps/kwscout/pkg/httpclient"
)

func newClient(t *testing.T) *httpclient.Client {
	t.Helper()
	c, err := httpclient.New(httpclient.Config{})
	if err != nil {
		t.Fatalf("httpclient.New: %v", err)
	}
	return c
}

func TestAuditor_Allowed(t *testing.T) {
	var fetches int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&fetches, 1)
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte(`
User-agent: *
Disallow: /search
Allow: /search/help

User-agent: BadBot
Disallow: /
`))
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	a := NewAuditor(newClient(t), nil)
	ctx := context.Background()

	tests := []struct {
		path, ua string
		want     bool
	}{
		{"/", "GoodBot", true},
		{"/search?p=x", "GoodBot", false},
		{"/search/help", "GoodBot", true},
		{"/", "BadBot", false},
	}
	for _, tt := range tests {
		got, err := a.Allowed(ctx, ts.URL+tt.path, tt.ua)
		if err != nil {
			t.Fatalf("Allowed(%s): %v", tt.path, err)
		}
		if got != tt.want {
			t.Errorf("Allowed(%s, %s) = %v, want %v", tt.path, tt.ua, got, tt.want)
		}
	}
	if n := atomic.LoadInt32(&fetches); n != 1 {
		t.Errorf("expected robots.txt to be fetched once, got %d", n)
	}
}

func TestAuditor_MissingRobotsAllows(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	a := NewAuditor(newClient(t), nil)
	ok, err := a.Allowed(context.Background(), ts.URL+"/search", "kwscout")
	if err != nil || !ok {
		t.Errorf("expected allow on 404, got %v %v", ok, err)
	}
}

func TestAuditor_Nil(t *testing.T) {
	var a *Auditor
	if ok, err := a.Allowed(context.Background(), "http://example.com/", "x"); !ok || err != nil {
		t.Error("nil auditor should allow")
	}
}
