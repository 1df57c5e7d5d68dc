// Package walletio is the seam between this repo and wallet file I/O: the
// actual file format, key derivation, and encryption at rest are an
// out-of-scope external collaborator. This package specifies only the
// operations the rest of the codebase invokes on a wallet.
package walletio

import (
	"fmt"
	"os"
	"strings"
)

// Wallet is the subset of wallet behavior the Bridge and sensor runtime
// depend on: a seed phrase for the channel cryptography library, a
// password for encrypting serialized channel state at rest, and a
// monotonic initialization counter persisted alongside that state.
type Wallet interface {
	Seed() string
	SerializationPassword() string
	InitializationCount() uint32
	IncrementInitializationCount() (uint32, error)
}

// FileWallet reads a seed phrase from a plain file on disk and keeps the
// initialization counter in memory only - a real deployment's wallet
// persists the counter itself, which this repo never needs to reach into.
type FileWallet struct {
	seed     string
	password string
	initCnt  uint32
}

// Load reads seed from filePath. The file is treated as an opaque blob: its
// entire trimmed contents are the seed phrase. password is supplied
// separately since the reference wallet formats keep it out of the seed
// file.
func Load(filePath, password string) (*FileWallet, error) {
	raw, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("walletio: read %q: %w", filePath, err)
	}
	seed := strings.TrimSpace(string(raw))
	if seed == "" {
		return nil, fmt.Errorf("walletio: %q contains no seed", filePath)
	}
	return &FileWallet{seed: seed, password: password}, nil
}

func (w *FileWallet) Seed() string                 { return w.seed }
func (w *FileWallet) SerializationPassword() string { return w.password }
func (w *FileWallet) InitializationCount() uint32   { return w.initCnt }

// IncrementInitializationCount bumps and returns the new counter value.
func (w *FileWallet) IncrementInitializationCount() (uint32, error) {
	w.initCnt++
	return w.initCnt, nil
}

// DummyWallet is a fixed, insecure stand-in for development and tests; it
// is never usable against a real channel-cryptography deployment.
type DummyWallet struct {
	initCnt uint32
}

const dummySeed = "this is a dummy seed used only for local development and tests"

func (w *DummyWallet) Seed() string                 { return dummySeed }
func (w *DummyWallet) SerializationPassword() string { return "" }
func (w *DummyWallet) InitializationCount() uint32   { return w.initCnt }

func (w *DummyWallet) IncrementInitializationCount() (uint32, error) {
	w.initCnt++
	return w.initCnt, nil
}

var (
	_ Wallet = (*FileWallet)(nil)
	_ Wallet = (*DummyWallet)(nil)
)
