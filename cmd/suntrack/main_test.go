package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/ymadsen/suntrack/internal/command"
	"github.com/ymadsen/suntrack/internal/config"
)

// ---------- webPortFlag ----------

func TestWebPortFlag_EmptyString(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if err := w.Set(""); err != nil {
		t.Fatalf("Set(\"\"): %v", err)
	}
	if w.port() != 8080 {
		t.Errorf("port = %d, want default 8080", w.port())
	}
}

func TestWebPortFlag_ValidPorts(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"1", 1},
		{"8980", 8980},
		{"65535", 65535},
	}
	for _, tc := range cases {
		w := &webPortFlag{defaultPort: 8080}
		if err := w.Set(tc.in); err != nil {
			t.Errorf("Set(%q): %v", tc.in, err)
			continue
		}
		if w.port() != tc.want {
			t.Errorf("Set(%q) port = %d, want %d", tc.in, w.port(), tc.want)
		}
	}
}

func TestWebPortFlag_InvalidPorts(t *testing.T) {
	for _, in := range []string{"0", "-1", "65536", "abc", "80.0"} {
		w := &webPortFlag{defaultPort: 8080}
		if err := w.Set(in); err == nil {
			t.Errorf("Set(%q): expected error, got nil", in)
		}
	}
}

func TestWebPortFlag_String(t *testing.T) {
	w := &webPortFlag{defaultPort: 8080}
	if got := w.String(); got != "0" {
		t.Errorf("unset String() = %q, want \"0\"", got)
	}
	if err := w.Set("9000"); err != nil {
		t.Fatal(err)
	}
	if got := w.String(); got != "9000" {
		t.Errorf("String() = %q, want \"9000\"", got)
	}
}

// ---------- openChannel ----------

func TestOpenChannel_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commands.txt")
	if err := os.WriteFile(path, []byte("SUN_DIR:Op\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := &config.Config{}
	ch, err := openChannel(cfg, path)
	if err != nil {
		t.Fatalf("openChannel: %v", err)
	}
	defer ch.Close()

	dir, ok, err := ch.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok || dir != command.Up {
		t.Errorf("Next = (%v, %v), want (Up, true)", dir, ok)
	}
	if _, _, err := ch.Next(); err != io.EOF {
		t.Errorf("expected EOF at end of file, got %v", err)
	}
}

func TestOpenChannel_MissingFile(t *testing.T) {
	cfg := &config.Config{}
	if _, err := openChannel(cfg, filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Error("expected error for missing input file, got nil")
	}
}

func TestOpenChannel_Stdin(t *testing.T) {
	cfg := &config.Config{}
	ch, err := openChannel(cfg, "-")
	if err != nil {
		t.Fatalf("openChannel(-): %v", err)
	}
	if ch == nil {
		t.Fatal("expected a channel over stdin")
	}
}
