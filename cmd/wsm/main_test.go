package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vango-dev/wsm/internal/config"
	wsmerrors "github.com/vango-dev/wsm/internal/errors"
	"github.com/vango-dev/wsm/internal/source"
	"github.com/vango-dev/wsm/pkg/protocol"
	"github.com/vango-dev/wsm/pkg/server"
	"github.com/vango-dev/wsm/pkg/session"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// writeConfig saves a default wsm.json with the given log level and returns
// its path.
func writeConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), config.ConfigFileName)
	cfg := config.New()
	cfg.Log.Level = "error"
	if err := cfg.SaveTo(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func errCode(err error) string {
	var e *wsmerrors.Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version", "--short"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if got := out.String(); got != "dev\n" {
		t.Errorf("output = %q, want %q", got, "dev\n")
	}
}

func TestInitCommand(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, config.ConfigFileName)
	run := func(args ...string) error {
		cmd := newRootCmd()
		cmd.SetArgs(append([]string{"init", dir}, args...))
		return cmd.Execute()
	}

	if err := run(); err != nil {
		t.Fatalf("init error = %v", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Address != config.DefaultServerAddress || cfg.Log.Level != "info" {
		t.Errorf("created config = %+v", cfg)
	}

	if err := run(); errCode(err) != "W043" {
		t.Fatalf("second init error = %v, want W043", err)
	}

	cfg.Log.Level = "debug"
	if err := cfg.Save(); err != nil {
		t.Fatal(err)
	}
	if err := run("--url", "ws://localhost:9000/_ws"); err != nil {
		t.Fatalf("init --url error = %v", err)
	}
	cfg, err = config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.URL != "ws://localhost:9000/_ws" {
		t.Errorf("URL = %q", cfg.URL)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q, want the existing value kept", cfg.Log.Level)
	}

	if err := run("--force"); err != nil {
		t.Fatalf("init --force error = %v", err)
	}
	cfg, err = config.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.URL != "" || cfg.Log.Level != "info" {
		t.Errorf("forced config kept old values: URL=%q level=%q", cfg.URL, cfg.Log.Level)
	}
}

func TestErrorStyle(t *testing.T) {
	f, err := os.CreateTemp(t.TempDir(), "stderr")
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	tests := []struct {
		name      string
		logFormat string
		noColor   bool
		file      *os.File
		want      wsmerrors.Style
	}{
		{"json log format", "json", false, f, wsmerrors.StyleJSON},
		{"json wins over no-color", "JSON", true, f, wsmerrors.StyleJSON},
		{"no color", "text", true, f, wsmerrors.StyleCompact},
		{"regular file", "", false, f, wsmerrors.StyleCompact},
		{"no file", "", false, nil, wsmerrors.StyleCompact},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := errorStyle(tt.logFormat, tt.noColor, tt.file); got != tt.want {
				t.Errorf("errorStyle() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSessionErr(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{session.ErrRetriesExhausted, "W002"},
		{fmt.Errorf("wrapped: %w", session.ErrHeartbeatTimeout), "W003"},
		{session.ErrSessionClosed, "W004"},
		{session.ErrInvalidConfig, "W042"},
		{protocol.ErrInvalidCloseCode, "W020"},
		{protocol.ErrReservedCloseCode, "W020"},
		{protocol.ErrInvalidData, "W021"},
		{errors.New("dial tcp: refused"), "W001"},
	}
	for _, tt := range tests {
		if got := errCode(sessionErr(tt.err)); got != tt.want {
			t.Errorf("sessionErr(%v) code = %q, want %q", tt.err, got, tt.want)
		}
	}
	if sessionErr(nil) != nil {
		t.Error("sessionErr(nil) != nil")
	}
}

func TestLoadPayload(t *testing.T) {
	cfg := config.New()
	cfg.Source.MaxBytes = 8
	ctx := context.Background()

	path := filepath.Join(t.TempDir(), "p.txt")
	os.WriteFile(path, []byte("file"), 0644)
	big := filepath.Join(t.TempDir(), "big.txt")
	os.WriteFile(big, []byte("0123456789"), 0644)

	tests := []struct {
		name     string
		ref      string
		args     []string
		stdin    string
		want     string
		wantCode string
	}{
		{"argument", "", []string{"hello"}, "", "hello", ""},
		{"nothing", "", nil, "", "", "W080"},
		{"both", path, []string{"x"}, "", "", "W080"},
		{"file", path, nil, "", "file", ""},
		{"stdin", "-", nil, "piped", "piped", ""},
		{"too large", big, nil, "", "", "W061"},
		{"missing", path + ".nope", nil, "", "", "W060"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := loadPayload(ctx, cfg, tt.ref, tt.args, strings.NewReader(tt.stdin))
			if tt.wantCode != "" {
				if code := errCode(err); code != tt.wantCode {
					t.Errorf("error = %v, want code %s", err, tt.wantCode)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadPayload() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSourceErr(t *testing.T) {
	if got := errCode(sourceErr(source.ErrTooLarge, "x")); got != "W061" {
		t.Errorf("too large code = %q", got)
	}
	if got := errCode(sourceErr(errors.New("denied"), "s3://b/k")); got != "W062" {
		t.Errorf("s3 code = %q", got)
	}
	if got := errCode(sourceErr(errors.New("denied"), "./f")); got != "W060" {
		t.Errorf("file code = %q", got)
	}
}

func TestJSONOrString(t *testing.T) {
	if v, ok := jsonOrString([]byte(`{"a":1}`)).(json.RawMessage); !ok || string(v) != `{"a":1}` {
		t.Errorf("valid JSON not passed through: %#v", v)
	}
	if v, ok := jsonOrString([]byte("plain")).(string); !ok || v != "plain" {
		t.Errorf("plain text not kept as string: %#v", v)
	}
}

func TestSendCommand(t *testing.T) {
	type received struct {
		kind string
		body string
	}
	got := make(chan received, 4)

	s := server.New(&server.Config{
		Logger:     discardLogger(),
		OnText:     func(p *server.Peer, text string) { got <- received{"text", text} },
		OnEnvelope: func(p *server.Peer, env protocol.Envelope) { got <- received{env.Type, string(env.Data)} },
	})
	srv := httptest.NewServer(s)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/_ws"
	cfgPath := writeConfig(t)

	tests := []struct {
		name string
		args []string
		want received
	}{
		{"text", []string{"send", "--config", cfgPath, "--url", url, "hello"}, received{"text", "hello"}},
		{"envelope", []string{"send", "--config", cfgPath, "--url", url, "--type", "chat", `{"m":1}`}, received{"chat", `{"m":1}`}},
		{"http url", []string{"send", "--config", cfgPath, "--url", srv.URL + "/_ws", "--type", "note", "hi"}, received{"note", `"hi"`}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(tt.args)
			if err := cmd.Execute(); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
			select {
			case r := <-got:
				if r != tt.want {
					t.Errorf("server received %+v, want %+v", r, tt.want)
				}
			case <-time.After(2 * time.Second):
				t.Fatal("server received nothing")
			}
		})
	}
}

func TestSendCommand_InvalidCloseCode(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"send", "--config", writeConfig(t), "--url", "ws://127.0.0.1:1/_ws", "--close-code", "1000", "x"})
	err := cmd.Execute()
	if code := errCode(err); code != "W020" {
		t.Errorf("Execute() error = %v, want W020", err)
	}
}

func TestServeEcho(t *testing.T) {
	cfg := config.New()
	s, err := newServer(cfg, serveOptions{echo: true, metricsPath: "/metrics"}, discardLogger())
	if err != nil {
		t.Fatalf("newServer() error = %v", err)
	}
	srv := httptest.NewServer(s)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/_ws", nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	read := func() []byte {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("ReadMessage() error = %v", err)
		}
		return msg
	}
	read() // ping
	read() // connected

	tests := []struct {
		name string
		in   []byte
		want []byte
	}{
		{"text", []byte("\x01hello"), []byte("\x01hello")},
		{"binary", []byte{0x02, 1, 2, 3}, []byte{0x02, 1, 2, 3}},
		{"envelope", []byte("\x01" + `{"type":"a","data":[1]}`), []byte("\x01" + `{"type":"a","data":[1]}`)},
		{"signal", []byte("\x01" + `{"type":"tick"}`), []byte("\x01" + `{"type":"tick"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.BinaryMessage, tt.in); err != nil {
				t.Fatal(err)
			}
			if got := read(); !bytes.Equal(got, tt.want) {
				t.Errorf("echo = %q, want %q", got, tt.want)
			}
		})
	}
}
