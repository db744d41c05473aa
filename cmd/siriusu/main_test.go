package main

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/siriusu/siriusu/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestConfigInitAndCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "siriusu.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	if !strings.Contains(out, "Created") {
		t.Errorf("init output = %q", out)
	}

	if _, err := execute(t, "config", "init", "--config", path); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Errorf("second init err = %v, want already exists", err)
	}

	out, err = execute(t, "config", "check", "--config", path)
	if err != nil {
		t.Fatalf("config check: %v", err)
	}
	for _, want := range []string{"is valid", "server_port: 3000", "log_level: info"} {
		if !strings.Contains(out, want) {
			t.Errorf("check output missing %q:\n%s", want, out)
		}
	}
}

func TestConfigCheckMissingFile(t *testing.T) {
	_, err := execute(t, "config", "check", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil || !strings.Contains(err.Error(), "cannot find nope.yaml") {
		t.Errorf("err = %v", err)
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "siriusu version "+version) {
		t.Errorf("version output = %q", out)
	}
}

func TestApplyReload(t *testing.T) {
	level := new(slog.LevelVar)
	current := config.Default()
	next := config.Default()
	next.LogLevel = "trace"
	next.ServerPort = 4000

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	applyReload(logger, level, current, next)

	if level.Level() != slog.Level(-8) {
		t.Errorf("level = %v, want trace", level.Level())
	}
	if current.LogLevel != "trace" {
		t.Errorf("current log level = %q", current.LogLevel)
	}
	if !strings.Contains(buf.String(), "take effect after a restart") {
		t.Errorf("port change not reported:\n%s", buf.String())
	}

	buf.Reset()
	applyReload(logger, level, current, current)
	if buf.Len() != 0 {
		t.Error("no-op reload logged")
	}
}

func TestOnReload_DevOverrides(t *testing.T) {
	t.Setenv(config.EnvBDSDir, t.TempDir())

	current := config.Default()
	current.ApplyDevOverrides()
	next := config.Default()

	var buf bytes.Buffer
	onReload(slog.New(slog.NewTextHandler(&buf, nil)), new(slog.LevelVar), current, true)(next)
	if buf.Len() != 0 {
		t.Errorf("unchanged file reported as changed in dev mode:\n%s", buf.String())
	}
	if next.BDSDirectory != current.BDSDirectory {
		t.Errorf("reloaded bds_directory = %q, want %q", next.BDSDirectory, current.BDSDirectory)
	}
}
