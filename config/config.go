// Package config loads the hub's configuration from a single JSON file,
// in the shape of boulder's cmd.Config / cmd.AppShell pattern (cmd/shell.go,
// cmd/config.go): one struct unmarshalled from a file named on the command
// line, with no package-level defaults or mutable globals. Per spec.md §9
// ("Global mutable state -> explicit config object"), the resulting
// HubConfig is constructed once at startup and passed explicitly into the
// validator, sequencer, and receipt builder.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/iscc/iscc-hub/isccid"
)

// ConfigDuration is a time.Duration that unmarshals from a JSON string
// ("30s", "5m"), matching cmd.ConfigDuration in the teacher.
type ConfigDuration struct {
	time.Duration
}

func (d *ConfigDuration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("config: invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// HubConfig is the hub's full runtime configuration, read once at startup
// from the ISCC_HUB_* settings named in spec.md §6.
type HubConfig struct {
	// HubID is this deployment's 12-bit hub identifier (ISCC_HUB_ID).
	HubID int `json:"hubID"`
	// Realm selects the ISCC-ID header SubType bits (ISCC_HUB_REALM).
	Realm isccid.Realm `json:"realm"`
	// Domain is the host portion of did:web:<domain> (ISCC_HUB_DOMAIN).
	Domain string `json:"domain"`
	// SecKey is the multibase-encoded Ed25519 secret key used to sign
	// receipts (ISCC_HUB_SECKEY).
	SecKey string `json:"secKey"`
	// DBPath is the event-log storage file path (ISCC_HUB_DB_NAME).
	DBPath string `json:"dbPath"`

	// ListenAddress is the HTTP listen address for the declaration API.
	ListenAddress string `json:"listenAddress"`

	// DebugAddr is the listen address for the Prometheus /metrics
	// endpoint, mirroring cmd.StatsAndLogging's DebugAddr. Empty disables
	// the metrics listener.
	DebugAddr string `json:"debugAddr"`

	// EnableTracing turns on OTLP span export for the declaration API,
	// configured the standard OTel way via OTEL_EXPORTER_OTLP_* env vars.
	EnableTracing bool `json:"enableTracing"`

	// RequestTimeout bounds per-request processing at the API edge
	// (spec.md §5, "Cancellation / timeouts").
	RequestTimeout ConfigDuration `json:"requestTimeout"`

	// VerifySignature, VerifyHubID, and VerifyTimestamp gate the
	// corresponding validator checks (spec.md §4.B); all three default to
	// enabled in production and are only disabled by tests and fixture
	// generation tooling.
	VerifySignature bool `json:"verifySignature"`
	VerifyHubID     bool `json:"verifyHubID"`
	VerifyTimestamp bool `json:"verifyTimestamp"`

	// SequencerMaxRetries and SequencerRetryBase/Cap tune the bounded
	// exponential backoff on write-lock contention (spec.md §4.D).
	SequencerMaxRetries int            `json:"sequencerMaxRetries"`
	SequencerRetryBase  ConfigDuration `json:"sequencerRetryBase"`
	SequencerRetryCap   ConfigDuration `json:"sequencerRetryCap"`
}

// Load reads and validates a HubConfig from the JSON file at path.
func Load(path string) (*HubConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	cfg := Default()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a HubConfig with the non-zero defaults every deployment
// should start from (mirroring cmd/shell.go's reliance on explicit
// per-service JSON over zero values for anything safety-relevant).
func Default() *HubConfig {
	return &HubConfig{
		Realm:               isccid.RealmSandbox,
		ListenAddress:       ":8080",
		RequestTimeout:      ConfigDuration{30 * time.Second},
		VerifySignature:     true,
		VerifyHubID:         true,
		VerifyTimestamp:     true,
		SequencerMaxRetries: 10,
		SequencerRetryBase:  ConfigDuration{500 * time.Microsecond},
		SequencerRetryCap:   ConfigDuration{50 * time.Millisecond},
	}
}

// Validate checks the configured hub id, realm, domain, and key are within
// the bounds spec.md §4.A and §6 require.
func (c *HubConfig) Validate() error {
	if c.HubID < 0 || c.HubID > isccid.MaxHubID {
		return fmt.Errorf("config: hubID must be in [0, %d], got %d", isccid.MaxHubID, c.HubID)
	}
	if c.Realm != isccid.RealmSandbox && c.Realm != isccid.RealmOperational {
		return fmt.Errorf("config: realm must be 0 or 1, got %d", c.Realm)
	}
	if c.Domain == "" {
		return fmt.Errorf("config: domain must not be empty")
	}
	if c.SecKey == "" {
		return fmt.Errorf("config: secKey must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("config: dbPath must not be empty")
	}
	return nil
}
