package sandbox

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/siriusu/siriusu/internal/apperr"
	"github.com/siriusu/siriusu/internal/testutil"
)

// layout builds:
//
//	<tmp>/root/docs/readme.txt
//	<tmp>/root/link-in  -> <tmp>/root/docs
//	<tmp>/root/link-out -> <tmp>/outside
//	<tmp>/root/dangling -> <tmp>/root/missing
//	<tmp>/outside/secret.txt
func layout(t *testing.T) (root, outside string) {
	t.Helper()
	base := testutil.CanonicalTempDir(t)
	root = filepath.Join(base, "root")
	outside = filepath.Join(base, "outside")

	testutil.WriteTree(t, root, map[string]string{"docs/readme.txt": "hello"})
	testutil.WriteTree(t, outside, map[string]string{"secret.txt": "s3cret"})

	mustSymlink(t, filepath.Join(root, "docs"), filepath.Join(root, "link-in"))
	mustSymlink(t, outside, filepath.Join(root, "link-out"))
	mustSymlink(t, filepath.Join(root, "missing"), filepath.Join(root, "dangling"))
	return root, outside
}

func mustSymlink(t *testing.T, target, link string) {
	t.Helper()
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
}

func TestResolve(t *testing.T) {
	root, outside := layout(t)
	guard, err := NewGuard(root, true)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	tests := []struct {
		name      string
		candidate string
		want      string
		kind      apperr.Kind
	}{
		{name: "empty is root", candidate: "", want: root},
		{name: "dot is root", candidate: ".", want: root},
		{name: "relative file", candidate: "docs/readme.txt", want: filepath.Join(root, "docs", "readme.txt")},
		{name: "dot segments", candidate: "./docs/../docs/./readme.txt", want: filepath.Join(root, "docs", "readme.txt")},
		{name: "absolute inside", candidate: filepath.Join(root, "docs"), want: filepath.Join(root, "docs")},
		{name: "symlink inside", candidate: "link-in/readme.txt", want: filepath.Join(root, "docs", "readme.txt")},
		{name: "parent escape", candidate: "../outside/secret.txt", kind: apperr.PathEscapesSandbox},
		{name: "nested parent escape", candidate: "docs/../../outside", kind: apperr.PathEscapesSandbox},
		{name: "absolute outside", candidate: filepath.Join(outside, "secret.txt"), kind: apperr.PathEscapesSandbox},
		{name: "symlink escape", candidate: "link-out/secret.txt", kind: apperr.PathEscapesSandbox},
		{name: "missing", candidate: "nope.txt", kind: apperr.InvalidPath},
		{name: "dangling symlink", candidate: "dangling", kind: apperr.InvalidPath},
		{name: "null byte", candidate: "docs\x00/readme.txt", kind: apperr.InvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guard.Resolve(tt.candidate)
			if tt.kind != apperr.KindUnknown {
				testutil.AssertErrorKind(t, err, tt.kind)
				return
			}
			if err != nil {
				t.Fatalf("Resolve(%q): %v", tt.candidate, err)
			}
			if got != tt.want {
				t.Errorf("Resolve(%q) = %q, want %q", tt.candidate, got, tt.want)
			}
		})
	}
}

func TestResolveIdempotent(t *testing.T) {
	root, _ := layout(t)
	guard, err := NewGuard(root, true)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	for _, candidate := range []string{"", "docs", "link-in", "docs/../docs/readme.txt"} {
		first, err := guard.Resolve(candidate)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", candidate, err)
		}
		second, err := guard.Resolve(first)
		if err != nil {
			t.Fatalf("Resolve(%q) second pass: %v", first, err)
		}
		if first != second {
			t.Errorf("Resolve not idempotent for %q: %q then %q", candidate, first, second)
		}
	}
}

func TestResolveDisabledGuard(t *testing.T) {
	root, outside := layout(t)
	guard, err := NewGuard(root, false)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	got, err := guard.Resolve("../outside/secret.txt")
	if err != nil {
		t.Fatalf("disabled guard should allow escape: %v", err)
	}
	if want := filepath.Join(outside, "secret.txt"); got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}

	// Resolution failures still surface.
	_, err = guard.Resolve("nope.txt")
	testutil.AssertErrorKind(t, err, apperr.InvalidPath)
}

func TestResolveTarget(t *testing.T) {
	root, _ := layout(t)
	guard, err := NewGuard(root, true)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	tests := []struct {
		name      string
		candidate string
		want      string
		kind      apperr.Kind
	}{
		{name: "existing file", candidate: "docs/readme.txt", want: filepath.Join(root, "docs", "readme.txt")},
		{name: "new file", candidate: "docs/new.txt", want: filepath.Join(root, "docs", "new.txt")},
		{name: "new nested dirs", candidate: "a/b/c.json", want: filepath.Join(root, "a", "b", "c.json")},
		{name: "through inner symlink", candidate: "link-in/new.txt", want: filepath.Join(root, "docs", "new.txt")},
		{name: "escape to new path", candidate: "../elsewhere/x.txt", kind: apperr.PathEscapesSandbox},
		{name: "escape through symlink", candidate: "link-out/new.txt", kind: apperr.PathEscapesSandbox},
		{name: "dangling symlink", candidate: "dangling/x.txt", kind: apperr.InvalidPath},
		{name: "dot-dot in existing dirs", candidate: "docs/../docs/new.txt", want: filepath.Join(root, "docs", "new.txt")},
		{name: "dot-dot through inner symlink", candidate: "link-in/../new.txt", want: filepath.Join(root, "new.txt")},
		{name: "dot-dot through outer symlink", candidate: "link-out/../new.txt", kind: apperr.PathEscapesSandbox},
		{name: "dot-dot after missing dir", candidate: "a/../b.txt", kind: apperr.InvalidPath},
		{name: "below a file", candidate: "docs/readme.txt/x", kind: apperr.InvalidPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := guard.ResolveTarget(tt.candidate)
			if tt.kind != apperr.KindUnknown {
				testutil.AssertErrorKind(t, err, tt.kind)
				return
			}
			if err != nil {
				t.Fatalf("ResolveTarget(%q): %v", tt.candidate, err)
			}
			if got != tt.want {
				t.Errorf("ResolveTarget(%q) = %q, want %q", tt.candidate, got, tt.want)
			}
		})
	}
}

func TestResolveTargetAgreesWithResolve(t *testing.T) {
	root, outside := layout(t)
	guard, err := NewGuard(root, false)
	if err != nil {
		t.Fatalf("NewGuard: %v", err)
	}

	for _, candidate := range []string{"link-out/..", "link-in/..", "link-out/secret.txt", "docs/../link-in"} {
		want, err := guard.Resolve(candidate)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", candidate, err)
		}
		got, err := guard.ResolveTarget(candidate)
		if err != nil {
			t.Fatalf("ResolveTarget(%q): %v", candidate, err)
		}
		if got != want {
			t.Errorf("ResolveTarget(%q) = %q, Resolve = %q", candidate, got, want)
		}
	}

	got, err := guard.ResolveTarget("link-out/../new.txt")
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(filepath.Dir(outside), "new.txt"); got != want {
		t.Errorf("disabled guard ResolveTarget = %q, want %q", got, want)
	}
}

func TestNewGuardRejectsFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewGuard(file, true); err == nil {
		t.Error("expected error for non-directory root")
	}
	if _, err := NewGuard(filepath.Join(dir, "missing"), true); err == nil {
		t.Error("expected error for missing root")
	}
}

func TestWithin(t *testing.T) {
	tests := []struct {
		root, p string
		want    bool
	}{
		{"/srv/data", "/srv/data", true},
		{"/srv/data", "/srv/data/x", true},
		{"/srv/data", "/srv/database", false},
		{"/srv/data", "/srv", false},
		{"/", "/anything", true},
	}
	for _, tt := range tests {
		if got := Within(tt.root, tt.p); got != tt.want {
			t.Errorf("Within(%q, %q) = %v, want %v", tt.root, tt.p, got, tt.want)
		}
	}
}
