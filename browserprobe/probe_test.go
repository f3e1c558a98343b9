package browserprobe

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"strings"
	"testing"
	"time"
)

func TestProbeRejectsBeforeLaunch(t *testing.T) {
	p := New(Config{AllowedHosts: []string{"example.com"}, ExecPath: "/nonexistent/chrome"})
	ctx := context.Background()

	if _, err := p.Probe(ctx, Request{URL: "https://blocked.test/"}); !errors.Is(err, ErrHostNotAllowed) {
		t.Fatalf("expected ErrHostNotAllowed, got %v", err)
	}
	if _, err := p.Probe(ctx, Request{URL: "https://example.com/", Actions: []Action{{Type: "click"}}}); err == nil {
		t.Fatalf("expected action validation error")
	}
	if _, err := p.Probe(ctx, Request{URL: "https://example.com/", StorageStatePath: "/nonexistent/state.json"}); err == nil {
		t.Fatalf("expected storage state error")
	}
}

func findChrome(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"chromium", "chromium-browser", "google-chrome", "google-chrome-stable", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skip("no chrome binary found")
	return ""
}

func TestProbeIntegration(t *testing.T) {
	chrome := findChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><head><title>Probe Page</title></head><body>
<input id="name"><button id="go" onclick="document.getElementById('out').innerText='hello '+document.getElementById('name').value">Go</button>
<div id="out"></div>
<script>console.log("ready"); fetch("/missing");</script>
</body></html>`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	p := New(Config{AllowedHosts: []string{"127.0.0.1"}, ExecPath: chrome, Headless: true})
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	res, err := p.Probe(ctx, Request{
		URL:     srv.URL + "/",
		WaitFor: "#go",
		Actions: []Action{
			{Type: "type", Selector: "#name", Text: "world"},
			{Type: "click", Selector: "#go"},
			{Type: "sleep", Ms: 200},
		},
		ExpectText: "hello world",
	})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if !res.OK {
		t.Fatalf("probe failed: %s", res.Failure)
	}
	if res.Title != "Probe Page" {
		t.Fatalf("unexpected title %q", res.Title)
	}
	if !strings.Contains(res.HTMLSnippet, "<title>Probe Page</title>") {
		t.Fatalf("html snippet missing title: %q", res.HTMLSnippet)
	}
	if res.ScreenshotBase64 == "" {
		t.Fatalf("expected screenshot")
	}

	res, err = p.Probe(ctx, Request{URL: srv.URL + "/", ExpectText: "not on the page"})
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if res.OK || !strings.Contains(res.Failure, "expected text not found") {
		t.Fatalf("expected text failure, got %+v", res)
	}
}
