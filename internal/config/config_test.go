package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iotaledger/meter-bridge/internal/dispatch"
)

const sampleYAML = `
node:
  url: http://localhost:14265
indexer:
  url: http://localhost:9200
object_store:
  bucket: meter-bridge-payloads
wallet:
  file: /etc/meter-bridge/wallet.seed
  password: hunter2
server:
  listen_addr: :8080
database:
  path: /var/lib/meter-bridge/bridge.db
error_handling:
  strategy: buffer-messages-on-validation-errors
buffered:
  interval_seconds: 45
indexing:
  interval_seconds: 1800
  budget_seconds: 300
logging:
  level: debug
`

func writeSample(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "bridge.yaml")
	if err := os.WriteFile(path, []byte(sampleYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadParsesEveryField(t *testing.T) {
	cfg, err := Load(writeSample(t))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Node.URL != "http://localhost:14265" {
		t.Errorf("node.url: got %q", cfg.Node.URL)
	}
	if cfg.Wallet.File != "/etc/meter-bridge/wallet.seed" || cfg.Wallet.Password != "hunter2" {
		t.Errorf("wallet: got %+v", cfg.Wallet)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("server.listen_addr: got %q", cfg.Server.ListenAddr)
	}

	strategy, err := cfg.ErrorHandlingStrategy()
	if err != nil {
		t.Fatal(err)
	}
	if strategy != dispatch.BufferMessagesOnValidationErrors {
		t.Errorf("expected buffering strategy, got %v", strategy)
	}

	if got := cfg.BufferedInterval(time.Minute); got != 45*time.Second {
		t.Errorf("buffered interval: got %v", got)
	}
	if got := cfg.IndexingInterval(time.Hour); got != 1800*time.Second {
		t.Errorf("indexing interval: got %v", got)
	}
	if got := cfg.IndexingBudget(10*time.Minute); got != 300*time.Second {
		t.Errorf("indexing budget: got %v", got)
	}
}

func TestUnsetDurationsFallBackToDefaults(t *testing.T) {
	cfg := &Config{}
	if got := cfg.BufferedInterval(30 * time.Second); got != 30*time.Second {
		t.Errorf("expected fallback, got %v", got)
	}
	if got := cfg.IndexingInterval(time.Hour); got != time.Hour {
		t.Errorf("expected fallback, got %v", got)
	}
	if got := cfg.IndexingBudget(10 * time.Minute); got != 10*time.Minute {
		t.Errorf("expected fallback, got %v", got)
	}
}

func TestErrorHandlingStrategyDefaultsToAlwaysReturnErrors(t *testing.T) {
	cfg := &Config{}
	strategy, err := cfg.ErrorHandlingStrategy()
	if err != nil {
		t.Fatal(err)
	}
	if strategy != dispatch.AlwaysReturnErrors {
		t.Errorf("expected default strategy, got %v", strategy)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
