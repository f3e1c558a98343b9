// Package httpx holds the outbound HTTP plumbing shared by every upstream
// client: an instrumented client, bounded body reads and a status error that
// carries a truncated response body for diagnostics.
package httpx

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/elnormous/contenttype"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// MaxResponseSize bounds JSON response body reads.
const MaxResponseSize int64 = 32 << 20

// MaxErrorBody is the number of body bytes kept on a StatusError.
const MaxErrorBody = 500

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s request failed: HTTP %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed: HTTP %d: %s", e.Service, e.StatusCode, e.Body)
}

// NewClient returns an http.Client whose transport emits OpenTelemetry spans.
// A zero timeout means no client-level timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
}

// CheckResponse returns a *StatusError when res is not 2xx. The body is read
// (bounded) and truncated to MaxErrorBody bytes.
func CheckResponse(service string, res *http.Response) error {
	if res.StatusCode >= 200 && res.StatusCode < 300 {
		return nil
	}
	data, _ := io.ReadAll(io.LimitReader(res.Body, MaxErrorBody+utf8.UTFMax))
	return &StatusError{
		Service:    service,
		StatusCode: res.StatusCode,
		Body:       Truncate(strings.TrimSpace(string(data)), MaxErrorBody),
	}
}

// DecodeJSON reads res.Body (bounded by MaxResponseSize) and decodes it into
// v. A declared Content-Type that is not JSON is rejected; a missing one is
// tolerated.
func DecodeJSON(res *http.Response, v any) error {
	if ct := res.Header.Get("Content-Type"); ct != "" {
		mt, err := contenttype.ParseMediaType(ct)
		if err != nil {
			return fmt.Errorf("invalid content type %q: %w", ct, err)
		}
		if !isJSON(mt) {
			return fmt.Errorf("unexpected content type %q", ct)
		}
	}
	data, err := io.ReadAll(io.LimitReader(res.Body, MaxResponseSize))
	if err != nil {
		return fmt.Errorf("reading response body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}
	return nil
}

func isJSON(mt contenttype.MediaType) bool {
	if mt.Type != "application" {
		return false
	}
	return mt.Subtype == "json" || strings.HasSuffix(mt.Subtype, "+json")
}

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
