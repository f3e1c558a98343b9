package browserprobe

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHostAllowed(t *testing.T) {
	allowed := []string{"example.com", "*.test.local", " Docs.Example.org "}
	cases := []struct {
		host string
		want bool
	}{
		{"example.com", true},
		{"EXAMPLE.com.", true},
		{"www.example.com", false},
		{"a.test.local", true},
		{"a.b.test.local", true},
		{"test.local", false},
		{"evil-test.local", false},
		{"docs.example.org", true},
		{"", false},
	}
	for _, c := range cases {
		if got := HostAllowed(c.host, allowed); got != c.want {
			t.Fatalf("HostAllowed(%q) = %v, want %v", c.host, got, c.want)
		}
	}
	if HostAllowed("example.com", nil) {
		t.Fatalf("empty allowlist must reject everything")
	}
}

func TestCheckURL(t *testing.T) {
	allowed := []string{"example.com"}
	if u, err := CheckURL("https://example.com/a?b=c", allowed); err != nil || u.Path != "/a" {
		t.Fatalf("unexpected result: %v %v", u, err)
	}
	if _, err := CheckURL("https://other.com/", allowed); !errors.Is(err, ErrHostNotAllowed) {
		t.Fatalf("expected ErrHostNotAllowed, got %v", err)
	}
	if _, err := CheckURL("file:///etc/passwd", allowed); err == nil || errors.Is(err, ErrHostNotAllowed) {
		t.Fatalf("expected scheme error, got %v", err)
	}
	if _, err := CheckURL("javascript:alert(1)", allowed); err == nil {
		t.Fatalf("expected error for javascript url")
	}
}

func TestValidateActions(t *testing.T) {
	ok := []Action{
		{Type: "click", Selector: "#go"},
		{Type: "type", Selector: "input", Text: "hello"},
		{Type: "waitFor", Selector: ".done"},
		{Type: "press", Key: "Enter"},
		{Type: "press", Key: "a"},
		{Type: "sleep", Ms: 250},
	}
	if err := ValidateActions(ok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bad := []Action{
		{Type: "click"},
		{Type: "type", Text: "x"},
		{Type: "press", Key: "NotAKey"},
		{Type: "sleep", Ms: -1},
		{Type: "sleep", Ms: 60000},
		{Type: "hover", Selector: "a"},
	}
	for _, a := range bad {
		if err := ValidateActions([]Action{a}); err == nil {
			t.Fatalf("expected error for %+v", a)
		}
	}
}

func TestKeyFor(t *testing.T) {
	if k, ok := keyFor("enter"); !ok || k == "" {
		t.Fatalf("enter not resolved")
	}
	if k, ok := keyFor("x"); !ok || k != "x" {
		t.Fatalf("single char: got %q %v", k, ok)
	}
	if _, ok := keyFor(""); ok {
		t.Fatalf("empty key must not resolve")
	}
}

func TestRequestTimeout(t *testing.T) {
	if got := (Request{}).Timeout(); got != DefaultTimeout {
		t.Fatalf("default: got %s", got)
	}
	if got := (Request{TimeoutMs: 5000}).Timeout(); got != 5*time.Second {
		t.Fatalf("explicit: got %s", got)
	}
	if got := (Request{TimeoutMs: 10 * 60 * 1000}).Timeout(); got != MaxTimeout {
		t.Fatalf("clamped: got %s", got)
	}
}

func TestLoadStorageState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	data := `{"cookies":[{"name":"sid","value":"abc","domain":"example.com","path":"/","expires":-1,"httpOnly":true,"secure":true}],
"origins":[{"origin":"https://example.com","localStorage":[{"name":"k","value":"v"}]}]}`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}
	st, err := LoadStorageState(path)
	if err != nil {
		t.Fatalf("LoadStorageState: %v", err)
	}
	if len(st.Cookies) != 1 || st.Cookies[0].Name != "sid" || !st.Cookies[0].HTTPOnly {
		t.Fatalf("unexpected cookies: %+v", st.Cookies)
	}
	if len(st.Origins) != 1 || st.Origins[0].LocalStorage[0].Value != "v" {
		t.Fatalf("unexpected origins: %+v", st.Origins)
	}

	if _, err := LoadStorageState(filepath.Join(dir, "missing.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
	if err := os.WriteFile(path, []byte("{"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadStorageState(path); err == nil {
		t.Fatalf("expected parse error")
	}
}
