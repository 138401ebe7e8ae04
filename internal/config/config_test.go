package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const sampleYAML = `
log_level: debug
ingest:
  rest:
    enabled: true
    addr: ":9090"
analysis:
  groups:
    - name: sat
      sensors: [SA-TEMP-1, SA-TEMP-2, SA-TEMP-3]
      required_eligible: 2
      agree_eps: 0.5
      optional_sensors: [SA-TEMP-3]
  pairs:
    - name: AHU-1 CHW Valve
      group: valve
      col_a: CHWC-VLV
      col_b: CHWC-VLV-POS
      pair_type: cmd_pos
      eps: 10
  alerting:
    confirm_after: 3
    clear_after: 6
    cooldown: 1800000000000
storage:
  enabled: true
  driver: sqlite
  dsn: "file:test.db"
`

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, "cfg.yaml", sampleYAML))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
	if cfg.Ingest.REST.Addr != ":9090" {
		t.Fatalf("rest addr = %q", cfg.Ingest.REST.Addr)
	}
	if len(cfg.Analysis.Groups) != 1 || cfg.Analysis.Groups[0].Name != "sat" {
		t.Fatalf("groups = %+v", cfg.Analysis.Groups)
	}
	if !cfg.Analysis.Groups[0].Optional("SA-TEMP-3") {
		t.Fatal("optional sensor not parsed")
	}
	if len(cfg.Analysis.Pairs) != 1 || cfg.Analysis.Pairs[0].PairType != "cmd_pos" {
		t.Fatalf("pairs = %+v", cfg.Analysis.Pairs)
	}
	if cfg.Analysis.Alerting.Cooldown != 30*time.Minute {
		t.Fatalf("cooldown = %v", cfg.Analysis.Alerting.Cooldown)
	}
	// Defaults still applied for unset fields.
	if cfg.Ingest.ChannelBuffer != 10000 {
		t.Fatalf("channel buffer = %d", cfg.Ingest.ChannelBuffer)
	}
	if cfg.Analysis.Window.MaxHistory != 10 {
		t.Fatalf("window max history = %d", cfg.Analysis.Window.MaxHistory)
	}
}

func TestLoadJSONSniffing(t *testing.T) {
	cfg, err := Load(writeConfig(t, "cfg.json", `{"log_level": "warn"}`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level = %q", cfg.LogLevel)
	}
}

func TestValidateRejectsBadGroups(t *testing.T) {
	bad := `
analysis:
  groups:
    - name: sat
      sensors: [a]
      required_eligible: 3
`
	if _, err := Load(writeConfig(t, "bad.yaml", bad)); err == nil {
		t.Fatal("required_eligible above sensor count should fail validation")
	}

	dup := `
analysis:
  groups:
    - name: sat
      sensors: [a, b]
    - name: sat
      sensors: [c, d]
`
	if _, err := Load(writeConfig(t, "dup.yaml", dup)); err == nil {
		t.Fatal("duplicate group name should fail validation")
	}
}

func TestValidateRejectsBadStorage(t *testing.T) {
	bad := `
storage:
  enabled: true
  driver: mongodb
  dsn: whatever
`
	if _, err := Load(writeConfig(t, "bad.yaml", bad)); err == nil {
		t.Fatal("unknown storage driver should fail validation")
	}
}

func TestManagerReload(t *testing.T) {
	path := writeConfig(t, "cfg.yaml", sampleYAML)
	m, err := NewManager(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Get().LogLevel != "debug" {
		t.Fatalf("initial log level = %q", m.Get().LogLevel)
	}

	if err := os.WriteFile(path, []byte(`log_level: error`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(); err != nil {
		t.Fatal(err)
	}
	if m.Get().LogLevel != "error" {
		t.Fatalf("reloaded log level = %q", m.Get().LogLevel)
	}
}
