package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	log, err := New(&Config{LogFile: path, MaxSize: 1, Development: true})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	log.Info("balance refreshed", zap.String("wallet_id", "wallet-1"))
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "balance refreshed") {
		t.Errorf("log file missing entry: %s", data)
	}
	if !strings.Contains(string(data), "wallet-1") {
		t.Errorf("log file missing field: %s", data)
	}
}

func TestNewNilConfigUsesDefaults(t *testing.T) {
	// Switch to a temp dir so the default log file lands there.
	old, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })

	log, err := New(nil)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	log.Info("started")
	_ = log.Sync()

	if _, err := os.Stat(DefaultConfig().LogFile); err != nil {
		t.Errorf("default log file not created: %v", err)
	}
}

func TestWithWorkflowAddsCorrelation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.log")
	log, err := New(&Config{LogFile: path})
	if err != nil {
		t.Fatal(err)
	}

	log.WithWorkflow("wf-1").Info("transition")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "wf-1") {
		t.Errorf("missing workflow id: %s", data)
	}
	if !strings.Contains(string(data), "correlation_id") {
		t.Errorf("missing correlation id: %s", data)
	}
}
