package config

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/siriusu/siriusu/internal/testutil"
)

func TestParse_Defaults(t *testing.T) {
	c, err := Parse([]byte("bds_directory: /srv/bds\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.BDSDirectory != "/srv/bds" {
		t.Errorf("bds_directory = %q", c.BDSDirectory)
	}
	if c.Executable != "bedrock_server.exe" || c.ServerHost != "127.0.0.1" || c.ServerPort != 3000 {
		t.Errorf("defaults not applied: %+v", c)
	}
	if !c.SandboxEnabled() {
		t.Error("safe_path should default to enabled")
	}
	if c.LogLevel != "info" || c.LogFormat != "text" {
		t.Errorf("log defaults = %q/%q", c.LogLevel, c.LogFormat)
	}
	if c.Addr() != "127.0.0.1:3000" || c.URL() != "http://127.0.0.1:3000" {
		t.Errorf("addr = %q url = %q", c.Addr(), c.URL())
	}
}

func TestParse_ExplicitValues(t *testing.T) {
	data := `
bds_directory: D:/bds
server_host: 0.0.0.0
server_port: 8080
server_token: secret
safe_path: false
log_level: trace
log_format: json
data_id: world-1
plugin:
  prefix: "!"
  admins: [steve]
rate_limit:
  requests_per_second: 5
  burst: 10
`
	c, err := Parse([]byte(data))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if c.SandboxEnabled() {
		t.Error("safe_path: false must disable the sandbox")
	}
	if c.ServerPort != 8080 || c.LogLevel != "trace" || c.LogFormat != "json" {
		t.Errorf("unexpected values: %+v", c)
	}
	if c.RateLimit.RequestsPerSecond != 5 || c.RateLimit.Burst != 10 {
		t.Errorf("rate_limit = %+v", c.RateLimit)
	}

	pc := c.PluginConfig()
	if pc.ServerURL != "http://0.0.0.0:8080" || pc.ServerToken != "secret" || pc.DataID != "world-1" {
		t.Errorf("plugin config = %+v", pc)
	}
	if pc.Plugin["prefix"] != "!" {
		t.Errorf("plugin map not forwarded: %+v", pc.Plugin)
	}

	sc := c.SupervisorConfig()
	if sc.Dir != "D:/bds" || sc.Executable != "bedrock_server.exe" {
		t.Errorf("supervisor config = %+v", sc)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr string
	}{
		{"unknown log level", "log_level: verbose\n", "invalid log level: verbose. Expected one of: fatal, error, warn, info, record, debug, trace, silent"},
		{"bad format", "log_format: xml\n", "invalid log format"},
		{"bad port", "server_port: 70000\n", "server_port 70000 out of range"},
		{"negative rate", "rate_limit:\n  burst: -1\n", "rate_limit"},
		{"not yaml", "log_level: [\n", "failed to deserialize config"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			testutil.AssertErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	testutil.AssertErrorContains(t, err, "cannot find siriusu.yaml at current directory")
}

func TestDefault_RoundTrip(t *testing.T) {
	data, err := Default().Marshal()
	if err != nil {
		t.Fatal(err)
	}
	c, err := Parse(data)
	if err != nil {
		t.Fatalf("default config does not parse: %v\n%s", err, data)
	}
	if c.ServerPort != 3000 || !c.SandboxEnabled() {
		t.Errorf("round trip lost defaults: %+v", c)
	}
}

func TestRedacted(t *testing.T) {
	c := Default()
	c.ServerToken = "tok"
	if r := c.Redacted(); r.ServerToken == "tok" {
		t.Error("token not redacted")
	}
	if c.ServerToken != "tok" {
		t.Error("Redacted modified the original")
	}
}

func TestDotEnvAndDevOverrides(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	if err := os.WriteFile(envFile, []byte("BDS_DIR=/from/dotenv\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv(EnvBDSDir, "")
	os.Unsetenv(EnvBDSDir)

	if err := LoadDotEnv(envFile); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	c := Default()
	c.BDSDirectory = "/from/file"
	c.ApplyDevOverrides()
	if c.BDSDirectory != "/from/dotenv" {
		t.Errorf("bds_directory = %q, want /from/dotenv", c.BDSDirectory)
	}

	if err := LoadDotEnv(filepath.Join(dir, "missing.env")); err != nil {
		t.Errorf("missing .env should be ignored: %v", err)
	}

	t.Setenv(EnvMode, "development")
	if !IsDevMode() {
		t.Error("IsDevMode = false with SIRIUSU_ENV=development")
	}
	t.Setenv(EnvMode, "production")
	if IsDevMode() {
		t.Error("IsDevMode = true with SIRIUSU_ENV=production")
	}
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changes := make(chan *Config, 4)
	errc := make(chan error, 1)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() {
		errc <- Watch(ctx, path, logger, func(c *Config) { changes <- c })
	}()

	// Keep writing until the watcher is established and reports the change.
	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case c := <-changes:
			if c.LogLevel == "debug" {
				cancel()
				if err := <-errc; err != nil {
					t.Errorf("Watch returned %v", err)
				}
				return
			}
		case <-tick.C:
			if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("no reload observed")
		}
	}
}

func TestWatch_SkipsInvalidChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var logs testutil.SyncBuffer
	logger := slog.New(slog.NewTextHandler(&logs, nil))
	called := make(chan struct{}, 1)
	go func() {
		_ = Watch(ctx, path, logger, func(*Config) { called <- struct{}{} })
	}()

	deadline := time.After(10 * time.Second)
	tick := time.NewTicker(200 * time.Millisecond)
	defer tick.Stop()
	for !strings.Contains(logs.String(), "ignoring invalid config change") {
		select {
		case <-called:
			t.Fatal("onChange called for invalid config")
		case <-tick.C:
			if err := os.WriteFile(path, []byte("log_level: loud\n"), 0o644); err != nil {
				t.Fatal(err)
			}
		case <-deadline:
			t.Fatal("invalid change was not reported")
		}
	}
}
