package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/ggoodman/registry-mcp/docindex"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	chdir(t, t.TempDir())
	for _, k := range []string{
		"OPENAI_API_KEY", "VECTOR_URL", "VECTOR_TOKEN", "CACHE_URL", "CACHE_TOKEN",
		"OTEL_EXPORTER_OTLP_ENDPOINT", "REGISTRY_AUTH_MODE", "CHUNK_SIZE", "CHUNK_OVERLAP",
		"LOG_LEVEL", "LOG_FORMAT", "MAX_CONCURRENT_CALLS", "SHUTDOWN_GRACE",
	} {
		t.Setenv(k, "")
	}
}

func TestServeOverStdio(t *testing.T) {
	isolateEnv(t)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize"}`,
		`{"jsonrpc":"2.0","id":2,"method":"list_tools"}`,
		`{"jsonrpc":"2.0","id":3,"method":"call_tool","params":{"name":"get_entity","arguments":{"orgnr":"12345"}}}`,
	}, "\n") + "\n"
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetIn(strings.NewReader(in))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"--log-level", "debug"})

	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("execute: %v (stderr: %s)", err, errOut.String())
	}

	byID := map[string]map[string]json.RawMessage{}
	sc := bufio.NewScanner(&out)
	sc.Buffer(make([]byte, 1<<20), 1<<20)
	for sc.Scan() {
		var msg map[string]json.RawMessage
		if err := json.Unmarshal(sc.Bytes(), &msg); err != nil {
			t.Fatalf("bad output line %q: %v", sc.Text(), err)
		}
		byID[string(msg["id"])] = msg
	}
	if len(byID) != 3 {
		t.Fatalf("expected 3 responses, got %d: %s", len(byID), out.String())
	}

	var list struct {
		Tools []struct {
			Name string `json:"name"`
		} `json:"tools"`
	}
	if err := json.Unmarshal(byID["2"]["result"], &list); err != nil {
		t.Fatalf("list_tools result: %v", err)
	}
	if len(list.Tools) != 6 {
		t.Fatalf("expected 6 tools, got %d", len(list.Tools))
	}

	var callErr struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(byID["3"]["error"], &callErr); err != nil {
		t.Fatalf("call_tool error: %v", err)
	}
	if callErr.Code != -32000 || !strings.Contains(callErr.Message, "9 digits") {
		t.Fatalf("unexpected error: %+v", callErr)
	}
	if out.Len() == 0 || !strings.Contains(errOut.String(), "run_id=") {
		t.Fatalf("expected logs on stderr, got %q", errOut.String())
	}
}

func TestIndexRequiresProviders(t *testing.T) {
	isolateEnv(t)
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs([]string{"index", "--docs-root", t.TempDir()})
	if err := cmd.ExecuteContext(context.Background()); !errors.Is(err, docindex.ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestFlagValidation(t *testing.T) {
	isolateEnv(t)
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"search", "--chunk-size", "100", "--chunk-overlap", "150", "anything"})
	if err := cmd.ExecuteContext(context.Background()); err == nil || !strings.Contains(err.Error(), "CHUNK_OVERLAP") {
		t.Fatalf("expected overlap validation error, got %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(&buf, "warn", "json")
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	log.Info("hidden")
	log.Warn("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("unexpected output: %q", buf.String())
	}
	if _, err := newLogger(&buf, "loud", "text"); err == nil {
		t.Fatalf("expected level error")
	}
	if _, err := newLogger(&buf, "info", "xml"); err == nil {
		t.Fatalf("expected format error")
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatal(err)
		}
	})
}
