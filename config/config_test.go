package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, v interface{}) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"hubID":  1,
		"realm":  0,
		"domain": "hub.example.com",
		"secKey": "zSECRETKEY",
		"dbPath": "test.db",
	})

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HubID != 1 {
		t.Fatalf("expected hubID 1, got %d", cfg.HubID)
	}
	if cfg.RequestTimeout.Duration != 30*time.Second {
		t.Fatalf("expected default RequestTimeout of 30s, got %v", cfg.RequestTimeout.Duration)
	}
	if !cfg.VerifySignature || !cfg.VerifyHubID || !cfg.VerifyTimestamp {
		t.Fatalf("expected verify flags to default true")
	}
}

func TestLoadRejectsOutOfRangeHubID(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"hubID":  5000,
		"domain": "hub.example.com",
		"secKey": "zSECRETKEY",
		"dbPath": "test.db",
	})
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for hubID out of [0,4095] range")
	}
}

func TestLoadRejectsMissingDomain(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"hubID":  1,
		"secKey": "zSECRETKEY",
		"dbPath": "test.db",
	})
	if _, err := Load(path); err == nil {
		t.Fatalf("expected error for missing domain")
	}
}

func TestConfigDurationUnmarshal(t *testing.T) {
	path := writeConfig(t, map[string]interface{}{
		"hubID":          1,
		"domain":         "hub.example.com",
		"secKey":         "zSECRETKEY",
		"dbPath":         "test.db",
		"requestTimeout": "5s",
	})
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RequestTimeout.Duration != 5*time.Second {
		t.Fatalf("expected 5s, got %v", cfg.RequestTimeout.Duration)
	}
}
