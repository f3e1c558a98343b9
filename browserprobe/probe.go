// Package browserprobe opens a page in an isolated headless Chrome, runs a
// short scripted interaction and reports what it saw: title, an HTML
// snippet, console output, failed requests and a screenshot.
//
// Every probe launches its own browser process with a fresh profile, and the
// process is torn down on every exit path. Only allowlisted hosts can be
// probed.
package browserprobe

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

const (
	htmlSnippetRunes = 2000
	maxLogEntries    = 200
	evidenceTimeout  = 5 * time.Second
)

// Config controls which hosts may be probed and how Chrome is launched.
type Config struct {
	AllowedHosts []string
	// ExecPath overrides the Chrome binary. Empty uses chromedp's lookup.
	ExecPath string
	Headless bool
}

// Result is the probe report. OK is false when navigation, an action or
// the expected-text check failed; Failure says which.
type Result struct {
	OK               bool     `json:"ok"`
	Failure          string   `json:"failure,omitempty"`
	FinalURL         string   `json:"finalUrl,omitempty"`
	Title            string   `json:"title"`
	HTMLSnippet      string   `json:"htmlSnippet"`
	ConsoleLogs      []string `json:"consoleLogs"`
	RequestErrors    []string `json:"requestErrors"`
	ScreenshotBase64 string   `json:"screenshotBase64,omitempty"`
}

// Prober runs probes. It is safe for concurrent use; probes do not share
// browser state.
type Prober struct {
	cfg Config
	log *slog.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Prober) {
		if l != nil {
			p.log = l
		}
	}
}

// New returns a Prober.
func New(cfg Config, opts ...Option) *Prober {
	p := &Prober{cfg: cfg, log: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// events collects console and network output from the page.
type events struct {
	mu       sync.Mutex
	console  []string
	failures []string
	urls     map[network.RequestID]string
}

func (e *events) addConsole(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.console) < maxLogEntries {
		e.console = append(e.console, s)
	}
}

func (e *events) addFailure(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.failures) < maxLogEntries {
		e.failures = append(e.failures, s)
	}
}

func (e *events) listen(ev any) {
	switch ev := ev.(type) {
	case *runtime.EventConsoleAPICalled:
		parts := make([]string, 0, len(ev.Args))
		for _, arg := range ev.Args {
			switch {
			case len(arg.Value) > 0:
				var s string
				if json.Unmarshal([]byte(arg.Value), &s) == nil {
					parts = append(parts, s)
				} else {
					parts = append(parts, string(arg.Value))
				}
			case arg.Description != "":
				parts = append(parts, arg.Description)
			default:
				parts = append(parts, string(arg.Type))
			}
		}
		e.addConsole(fmt.Sprintf("[%s] %s", ev.Type, strings.Join(parts, " ")))
	case *runtime.EventExceptionThrown:
		msg := ev.ExceptionDetails.Text
		if ev.ExceptionDetails.Exception != nil && ev.ExceptionDetails.Exception.Description != "" {
			msg = ev.ExceptionDetails.Exception.Description
		}
		e.addConsole("[exception] " + msg)
	case *network.EventRequestWillBeSent:
		e.mu.Lock()
		e.urls[ev.RequestID] = ev.Request.URL
		e.mu.Unlock()
	case *network.EventResponseReceived:
		if ev.Response.Status >= 400 {
			e.addFailure(fmt.Sprintf("%d %s", ev.Response.Status, ev.Response.URL))
		}
	case *network.EventLoadingFailed:
		e.mu.Lock()
		u := e.urls[ev.RequestID]
		e.mu.Unlock()
		e.addFailure(fmt.Sprintf("%s %s", ev.ErrorText, u))
	}
}

func (e *events) snapshot() (console, failures []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string{}, e.console...), append([]string{}, e.failures...)
}

// Probe validates req, then runs it in a fresh browser. Validation problems
// (bad URL, host not allowlisted, malformed actions, unreadable storage
// state) are returned as errors before Chrome is started; failures inside
// the page are reported on the Result.
func (p *Prober) Probe(ctx context.Context, req Request) (*Result, error) {
	target, err := CheckURL(req.URL, p.cfg.AllowedHosts)
	if err != nil {
		return nil, err
	}
	if err := ValidateActions(req.Actions); err != nil {
		return nil, err
	}
	var state *StorageState
	if req.StorageStatePath != "" {
		if state, err = LoadStorageState(req.StorageStatePath); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	allocOpts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	allocOpts = append(allocOpts, chromedp.Flag("headless", p.cfg.Headless))
	if p.cfg.ExecPath != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(p.cfg.ExecPath))
	}
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocOpts...)
	defer cancelAlloc()
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	ev := &events{urls: make(map[network.RequestID]string)}
	chromedp.ListenTarget(browserCtx, ev.listen)

	// Start the browser on a context without the probe deadline so evidence
	// can still be collected after a timeout.
	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		return nil, fmt.Errorf("browserprobe: start browser: %w", err)
	}

	res := &Result{}
	runCtx, cancelRun := context.WithTimeout(browserCtx, req.Timeout())
	defer cancelRun()

	if err := p.run(runCtx, target, req, state, res); err != nil {
		res.Failure = err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			res.Failure = fmt.Sprintf("timed out after %s: %v", req.Timeout(), err)
		}
	} else {
		res.OK = true
	}

	p.collectEvidence(browserCtx, res)
	res.ConsoleLogs, res.RequestErrors = ev.snapshot()

	p.log.InfoContext(ctx, "browserprobe.probe.done",
		slog.String("host", target.Hostname()),
		slog.Bool("ok", res.OK),
		slog.Int64("dur_ms", time.Since(start).Milliseconds()),
	)
	return res, nil
}

func (p *Prober) run(ctx context.Context, target *url.URL, req Request, state *StorageState, res *Result) error {
	if err := p.applyCookies(ctx, target, req.Cookies, state); err != nil {
		return err
	}
	if state != nil {
		if err := p.applyLocalStorage(ctx, state); err != nil {
			return err
		}
	}

	if err := chromedp.Run(ctx, chromedp.Navigate(target.String())); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	var location string
	if err := chromedp.Run(ctx, chromedp.Location(&location)); err == nil {
		res.FinalURL = location
		if _, err := CheckURL(location, p.cfg.AllowedHosts); err != nil {
			return fmt.Errorf("redirected off the allowlist: %w", err)
		}
	}
	if req.WaitFor != "" {
		if err := chromedp.Run(ctx, chromedp.WaitVisible(req.WaitFor, chromedp.ByQuery)); err != nil {
			return fmt.Errorf("waitFor %q: %w", req.WaitFor, err)
		}
	}

	for i, a := range req.Actions {
		if err := chromedp.Run(ctx, actionTask(a)); err != nil {
			return fmt.Errorf("action %d (%s): %w", i, a.Type, err)
		}
	}

	if req.ExpectText != "" {
		var body string
		if err := chromedp.Run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &body)); err != nil {
			return fmt.Errorf("read page text: %w", err)
		}
		if !strings.Contains(body, req.ExpectText) {
			return fmt.Errorf("expected text not found: %q", req.ExpectText)
		}
	}
	return nil
}

func actionTask(a Action) chromedp.Action {
	switch a.Type {
	case "click":
		return chromedp.Click(a.Selector, chromedp.ByQuery)
	case "type":
		return chromedp.SendKeys(a.Selector, a.Text, chromedp.ByQuery)
	case "waitFor":
		return chromedp.WaitVisible(a.Selector, chromedp.ByQuery)
	case "press":
		key, _ := keyFor(a.Key)
		return chromedp.KeyEvent(key)
	case "sleep":
		return chromedp.Sleep(time.Duration(a.Ms) * time.Millisecond)
	default:
		return chromedp.ActionFunc(func(context.Context) error {
			return fmt.Errorf("unknown action %q", a.Type)
		})
	}
}

func (p *Prober) applyCookies(ctx context.Context, target *url.URL, cookies []Cookie, state *StorageState) error {
	var params []*network.CookieParam
	for _, c := range cookies {
		cp := &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		}
		if cp.Domain == "" {
			cp.URL = target.String()
		}
		params = append(params, cp)
	}
	if state != nil {
		for _, c := range state.Cookies {
			params = append(params, &network.CookieParam{
				Name:     c.Name,
				Value:    c.Value,
				Domain:   c.Domain,
				Path:     c.Path,
				Secure:   c.Secure,
				HTTPOnly: c.HTTPOnly,
			})
		}
	}
	if len(params) == 0 {
		return nil
	}
	if err := chromedp.Run(ctx, network.SetCookies(params)); err != nil {
		return fmt.Errorf("set cookies: %w", err)
	}
	return nil
}

// applyLocalStorage visits each allowlisted origin in the saved state and
// restores its localStorage entries. Origins off the allowlist are skipped.
func (p *Prober) applyLocalStorage(ctx context.Context, state *StorageState) error {
	for _, o := range state.Origins {
		if len(o.LocalStorage) == 0 {
			continue
		}
		if _, err := CheckURL(o.Origin, p.cfg.AllowedHosts); err != nil {
			p.log.WarnContext(ctx, "browserprobe.storage_state.skip_origin", slog.String("origin", o.Origin))
			continue
		}
		entries := make(map[string]string, len(o.LocalStorage))
		for _, kv := range o.LocalStorage {
			entries[kv.Name] = kv.Value
		}
		payload, err := json.Marshal(entries)
		if err != nil {
			return err
		}
		script := fmt.Sprintf(`(() => { const e = %s; for (const k in e) localStorage.setItem(k, e[k]); return true; })()`, payload)
		var ok bool
		if err := chromedp.Run(ctx,
			chromedp.Navigate(o.Origin),
			chromedp.Evaluate(script, &ok),
		); err != nil {
			return fmt.Errorf("restore localStorage for %s: %w", o.Origin, err)
		}
	}
	return nil
}

// collectEvidence captures title, HTML and a screenshot on a short fresh
// deadline. Errors are ignored; partial evidence is still useful.
func (p *Prober) collectEvidence(browserCtx context.Context, res *Result) {
	ctx, cancel := context.WithTimeout(browserCtx, evidenceTimeout)
	defer cancel()

	var title, html string
	var shot []byte
	_ = chromedp.Run(ctx, chromedp.Title(&title))
	_ = chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery))
	_ = chromedp.Run(ctx, chromedp.CaptureScreenshot(&shot))

	res.Title = title
	if utf8.RuneCountInString(html) > htmlSnippetRunes {
		n := 0
		for i := range html {
			if n == htmlSnippetRunes {
				html = html[:i]
				break
			}
			n++
		}
	}
	res.HTMLSnippet = html
	if len(shot) > 0 {
		res.ScreenshotBase64 = base64.StdEncoding.EncodeToString(shot)
	}
}
