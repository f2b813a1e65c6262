package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestWithinDir(t *testing.T) {
	tmpDir := t.TempDir()
	dataDir := filepath.Join(tmpDir, "data")
	otherDir := filepath.Join(tmpDir, "other")
	for _, d := range []string{dataDir, otherDir} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", d, err)
		}
	}
	if err := os.WriteFile(filepath.Join(otherDir, "capture.txt"), []byte("31000\n"), 0o644); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	link := filepath.Join(dataDir, "captures")
	if err := os.Symlink(otherDir, link); err != nil {
		t.Fatalf("symlink: %v", err)
	}

	tests := []struct {
		name    string
		path    string
		dir     string
		wantErr bool
	}{
		{"file in dir", filepath.Join(dataDir, "history.db"), dataDir, false},
		{"nested new file", filepath.Join(dataDir, "plots", "a.png"), dataDir, false},
		{"dir itself", dataDir, dataDir, false},
		{"dot dot", filepath.Join(dataDir, "..", "x.db"), dataDir, true},
		{"relative escape", "../../../etc/passwd", dataDir, true},
		{"absolute outside", "/etc/passwd", dataDir, true},
		{"through symlink", filepath.Join(link, "capture.txt"), dataDir, true},
		{"symlink itself", link, dataDir, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := WithinDir(tt.path, tt.dir)
			if (err != nil) != tt.wantErr {
				t.Fatalf("WithinDir(%q, %q) error = %v, wantErr %v", tt.path, tt.dir, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrOutsideDir) {
				t.Errorf("error %v does not wrap ErrOutsideDir", err)
			}
		})
	}
}

func TestWithinAnyDir(t *testing.T) {
	a, b := t.TempDir(), t.TempDir()

	if err := WithinAnyDir(filepath.Join(b, "history.db"), []string{a, b}); err != nil {
		t.Errorf("second dir rejected: %v", err)
	}
	if err := WithinAnyDir("/etc/shadow", []string{a, b}); !errors.Is(err, ErrOutsideDir) {
		t.Errorf("expected ErrOutsideDir, got %v", err)
	}
	if err := WithinAnyDir(filepath.Join(a, "x"), nil); err == nil {
		t.Error("expected error with no directories")
	}
}

func TestValidateDataPath(t *testing.T) {
	extra := t.TempDir()
	if err := ValidateDataPath(filepath.Join(extra, "capture.txt"), extra); err != nil {
		t.Errorf("extra dir rejected: %v", err)
	}
	if err := ValidateDataPath(filepath.Join(os.TempDir(), "history.db")); err != nil {
		t.Errorf("temp dir rejected: %v", err)
	}
	if err := ValidateDataPath("/etc/passwd"); err == nil {
		t.Error("expected /etc/passwd to be rejected")
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"hrv local", "hrv_local"},
		{"kubios/../../etc", "kubios_.._.._etc"},
		{"", "unknown"},
		{"***", "unknown"},
		{"  spaced  out ", "spaced_out"},
		{".hidden_", "hidden"},
		{"Ünïcode", "n_code"},
	}
	for _, tt := range tests {
		if got := SanitizeFilename(tt.in); got != tt.want {
			t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
