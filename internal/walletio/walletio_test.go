package walletio

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTrimsWhitespaceAroundSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.seed")
	if err := os.WriteFile(path, []byte("  some seed phrase\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	w, err := Load(path, "pw")
	if err != nil {
		t.Fatal(err)
	}
	if w.Seed() != "some seed phrase" {
		t.Fatalf("got %q", w.Seed())
	}
	if w.SerializationPassword() != "pw" {
		t.Fatalf("got %q", w.SerializationPassword())
	}
}

func TestLoadRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.seed")
	if err := os.WriteFile(path, []byte("   \n"), 0o600); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path, ""); err == nil {
		t.Fatal("expected an error loading an empty wallet file")
	}
}

func TestIncrementInitializationCount(t *testing.T) {
	w := &DummyWallet{}
	if w.InitializationCount() != 0 {
		t.Fatalf("expected 0, got %d", w.InitializationCount())
	}
	n, err := w.IncrementInitializationCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || w.InitializationCount() != 1 {
		t.Fatalf("expected 1, got %d (reported %d)", w.InitializationCount(), n)
	}
}
