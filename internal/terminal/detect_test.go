package terminal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestIsTerminalBuffer(t *testing.T) {
	if IsTerminal(&bytes.Buffer{}) {
		t.Fatalf("buffer must not be a terminal")
	}
}

func TestIsTerminalRegularFile(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "out.txt"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer func() { _ = f.Close() }()
	if IsTerminal(f) {
		t.Fatalf("regular file must not be a terminal")
	}
}
