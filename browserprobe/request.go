package browserprobe

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chromedp/chromedp/kb"
)

const (
	DefaultTimeout = 30 * time.Second
	MaxTimeout     = 120 * time.Second
	maxSleep       = 30 * time.Second
)

// ErrHostNotAllowed is returned for URLs whose host is not allowlisted.
var ErrHostNotAllowed = errors.New("browserprobe: host not allowed")

// Action is one scripted step run after navigation.
type Action struct {
	Type     string `json:"type" jsonschema:"enum=click,enum=type,enum=waitFor,enum=press,enum=sleep"`
	Selector string `json:"selector,omitempty" jsonschema_description:"CSS selector for click, type and waitFor"`
	Text     string `json:"text,omitempty" jsonschema_description:"Text to type"`
	Key      string `json:"key,omitempty" jsonschema_description:"Key name for press, e.g. Enter or Tab"`
	Ms       int    `json:"ms,omitempty" jsonschema_description:"Milliseconds for sleep"`
}

// Cookie is set on the browser before navigation.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain,omitempty"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"httpOnly,omitempty"`
}

// Request describes one probe.
type Request struct {
	URL       string `json:"url" jsonschema:"required" jsonschema_description:"Page to open; the host must be allowlisted"`
	WaitFor   string `json:"waitFor,omitempty" jsonschema_description:"CSS selector to wait for after navigation"`
	TimeoutMs int    `json:"timeoutMs,omitempty" jsonschema:"minimum=1000,maximum=120000" jsonschema_description:"Overall timeout in milliseconds"`
	// Cookies are scoped to the URL's host when Domain is empty.
	Cookies []Cookie `json:"cookies,omitempty"`
	// StorageStatePath points to a saved session state file (cookies plus
	// per-origin localStorage).
	StorageStatePath string   `json:"storageStatePath,omitempty"`
	Actions          []Action `json:"actions,omitempty"`
	ExpectText       string   `json:"expectText,omitempty" jsonschema_description:"Text that must appear in the page body"`
}

// Timeout returns the effective overall timeout.
func (r Request) Timeout() time.Duration {
	if r.TimeoutMs <= 0 {
		return DefaultTimeout
	}
	d := time.Duration(r.TimeoutMs) * time.Millisecond
	if d > MaxTimeout {
		return MaxTimeout
	}
	return d
}

// HostAllowed reports whether host matches an allowlist entry. An entry
// "example.com" matches only that host; "*.example.com" matches any
// subdomain but not the apex.
func HostAllowed(host string, allowed []string) bool {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	if host == "" {
		return false
	}
	for _, a := range allowed {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if suffix, ok := strings.CutPrefix(a, "*."); ok {
			if strings.HasSuffix(host, "."+suffix) {
				return true
			}
			continue
		}
		if host == a {
			return true
		}
	}
	return false
}

// CheckURL parses raw and verifies it is http(s) with an allowlisted host.
func CheckURL(raw string, allowed []string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("browserprobe: invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("browserprobe: unsupported scheme %q", u.Scheme)
	}
	if !HostAllowed(u.Hostname(), allowed) {
		return nil, fmt.Errorf("%w: %s", ErrHostNotAllowed, u.Hostname())
	}
	return u, nil
}

var keyNames = map[string]string{
	"enter":      kb.Enter,
	"tab":        kb.Tab,
	"escape":     kb.Escape,
	"backspace":  kb.Backspace,
	"delete":     kb.Delete,
	"arrowup":    kb.ArrowUp,
	"arrowdown":  kb.ArrowDown,
	"arrowleft":  kb.ArrowLeft,
	"arrowright": kb.ArrowRight,
	"home":       kb.Home,
	"end":        kb.End,
	"pageup":     kb.PageUp,
	"pagedown":   kb.PageDown,
	"space":      " ",
}

// keyFor resolves a key name. Single characters are sent as-is.
func keyFor(name string) (string, bool) {
	if k, ok := keyNames[strings.ToLower(name)]; ok {
		return k, true
	}
	if len([]rune(name)) == 1 {
		return name, true
	}
	return "", false
}

// ValidateActions checks every action for the fields its type requires.
func ValidateActions(actions []Action) error {
	for i, a := range actions {
		switch a.Type {
		case "click", "type", "waitFor":
			if a.Selector == "" {
				return fmt.Errorf("browserprobe: action %d (%s) requires selector", i, a.Type)
			}
		case "press":
			if _, ok := keyFor(a.Key); !ok {
				return fmt.Errorf("browserprobe: action %d (press) has unknown key %q", i, a.Key)
			}
		case "sleep":
			if a.Ms < 0 || time.Duration(a.Ms)*time.Millisecond > maxSleep {
				return fmt.Errorf("browserprobe: action %d (sleep) ms must be between 0 and %d", i, maxSleep.Milliseconds())
			}
		default:
			return fmt.Errorf("browserprobe: action %d has unknown type %q", i, a.Type)
		}
	}
	return nil
}

// StorageState is a saved browser session: cookies plus localStorage per
// origin, in the format written by Playwright's storageState().
type StorageState struct {
	Cookies []struct {
		Name     string  `json:"name"`
		Value    string  `json:"value"`
		Domain   string  `json:"domain"`
		Path     string  `json:"path"`
		Expires  float64 `json:"expires"`
		HTTPOnly bool    `json:"httpOnly"`
		Secure   bool    `json:"secure"`
	} `json:"cookies"`
	Origins []struct {
		Origin       string `json:"origin"`
		LocalStorage []struct {
			Name  string `json:"name"`
			Value string `json:"value"`
		} `json:"localStorage"`
	} `json:"origins"`
}

// LoadStorageState reads a storage state file.
func LoadStorageState(path string) (*StorageState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("browserprobe: read storage state: %w", err)
	}
	var st StorageState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("browserprobe: parse storage state: %w", err)
	}
	return &st, nil
}
