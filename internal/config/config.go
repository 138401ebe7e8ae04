package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"sensorfuse/internal/classify"
	"sensorfuse/internal/faults"
	"sensorfuse/internal/model"
	"sensorfuse/internal/pairs"
	"sensorfuse/internal/window"
)

type Config struct {
	LogLevel string         `json:"log_level" yaml:"log_level"`
	Ingest   IngestConfig   `json:"ingest" yaml:"ingest"`
	Analysis AnalysisConfig `json:"analysis" yaml:"analysis"`
	API      APIConfig      `json:"api" yaml:"api"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
	Status   StatusConfig   `json:"status" yaml:"status"`
	Alerts   AlertsConfig   `json:"alerts" yaml:"alerts"`
}

type IngestConfig struct {
	ChannelBuffer int           `json:"channel_buffer" yaml:"channel_buffer"`
	DedupeWindow  time.Duration `json:"dedupe_window" yaml:"dedupe_window"`
	REST          RESTConfig    `json:"rest" yaml:"rest"`
	Kafka         KafkaConfig   `json:"kafka" yaml:"kafka"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type KafkaConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
	GroupID string   `json:"group_id" yaml:"group_id"`
}

// AnalysisConfig carries everything the per-building pipeline needs: group
// definitions, classification limits, debounce thresholds, pair checks and
// the subsystem dependency graph.
type AnalysisConfig struct {
	Groups           []model.GroupSpec          `json:"groups" yaml:"groups"`
	SensorLimits     map[string]classify.Limits `json:"sensor_limits" yaml:"sensor_limits"`
	Window           window.Params              `json:"window" yaml:"window"`
	Alerting         AlertingConfig             `json:"alerting" yaml:"alerting"`
	Pairs            []pairs.SensorPair         `json:"pairs" yaml:"pairs"`
	Subsystems       []faults.Subsystem         `json:"subsystems,omitempty" yaml:"subsystems"`
	StaleAfter       time.Duration              `json:"stale_after" yaml:"stale_after"`
	TemporalAlpha    float64                    `json:"temporal_alpha" yaml:"temporal_alpha"`
	TemporalSmooth   bool                       `json:"temporal_smooth" yaml:"temporal_smooth"`
	DefaultNoise     float64                    `json:"default_noise_floor" yaml:"default_noise_floor"`
	DefaultAgreeEps  float64                    `json:"default_agree_eps" yaml:"default_agree_eps"`
	DefaultRequired  int                        `json:"default_required_eligible" yaml:"default_required_eligible"`
	DefaultPairEps   float64                    `json:"default_pair_eps" yaml:"default_pair_eps"`
	DefaultPairType  string                     `json:"default_pair_type" yaml:"default_pair_type"`
	DefaultPairGroup string                     `json:"default_pair_group" yaml:"default_pair_group"`
}

type AlertingConfig struct {
	ConfirmAfter int           `json:"confirm_after" yaml:"confirm_after"`
	ClearAfter   int           `json:"clear_after" yaml:"clear_after"`
	Cooldown     time.Duration `json:"cooldown" yaml:"cooldown"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

type StatusConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

type AlertsConfig struct {
	StoreLimit int `json:"store_limit" yaml:"store_limit"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			DedupeWindow:  30 * time.Second,
			REST:          RESTConfig{Enabled: true, Addr: ":8080"},
			Kafka:         KafkaConfig{Enabled: false},
		},
		Analysis: AnalysisConfig{
			Window: window.DefaultParams(),
			Alerting: AlertingConfig{
				ConfirmAfter: 3,
				ClearAfter:   6,
				Cooldown:     30 * time.Minute,
			},
			StaleAfter:       5 * time.Minute,
			TemporalAlpha:    0.7,
			DefaultAgreeEps:  1.0,
			DefaultRequired:  2,
			DefaultPairEps:   0.15,
			DefaultPairType:  pairs.TypeMeasSetp,
			DefaultPairGroup: "custom",
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:sensorfuse.db?_pragma=busy_timeout(5000)"},
		Status:  StatusConfig{StoreLimit: 5000},
		Alerts:  AlertsConfig{StoreLimit: 1000},
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Ingest.DedupeWindow <= 0 {
		cfg.Ingest.DedupeWindow = 30 * time.Second
	}
	if cfg.Status.StoreLimit <= 0 {
		cfg.Status.StoreLimit = 5000
	}
	if cfg.Alerts.StoreLimit <= 0 {
		cfg.Alerts.StoreLimit = 1000
	}
	a := &cfg.Analysis
	if a.StaleAfter <= 0 {
		a.StaleAfter = 5 * time.Minute
	}
	if a.TemporalAlpha <= 0 || a.TemporalAlpha > 1 {
		a.TemporalAlpha = 0.7
	}
	if a.DefaultAgreeEps <= 0 {
		a.DefaultAgreeEps = 1.0
	}
	if a.DefaultRequired <= 0 {
		a.DefaultRequired = 2
	}
	if a.DefaultPairEps <= 0 {
		a.DefaultPairEps = 0.15
	}
	if a.DefaultPairType == "" {
		a.DefaultPairType = pairs.TypeMeasSetp
	}
	if a.DefaultPairGroup == "" {
		a.DefaultPairGroup = "custom"
	}
	for i := range a.Groups {
		if a.Groups[i].RequiredEligible <= 0 {
			a.Groups[i].RequiredEligible = a.DefaultRequired
		}
		if a.Groups[i].AgreeEps <= 0 {
			a.Groups[i].AgreeEps = a.DefaultAgreeEps
		}
	}
	for i := range a.Pairs {
		if a.Pairs[i].Eps <= 0 {
			a.Pairs[i].Eps = a.DefaultPairEps
		}
		if a.Pairs[i].PairType == "" {
			a.Pairs[i].PairType = a.DefaultPairType
		}
		if a.Pairs[i].Group == "" {
			a.Pairs[i].Group = a.DefaultPairGroup
		}
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.Topic == "" || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers, topic, group_id")
		}
	}
	if cfg.Storage.Enabled {
		if cfg.Storage.Driver != "sqlite" && cfg.Storage.Driver != "postgres" {
			return fmt.Errorf("storage.driver must be sqlite or postgres, got %q", cfg.Storage.Driver)
		}
		if cfg.Storage.DSN == "" {
			return errors.New("storage.dsn required when storage.enabled is true")
		}
	}
	seen := map[string]bool{}
	for _, g := range cfg.Analysis.Groups {
		if g.Name == "" {
			return errors.New("analysis.groups entries require a name")
		}
		if seen[g.Name] {
			return fmt.Errorf("analysis.groups has duplicate name %q", g.Name)
		}
		seen[g.Name] = true
		if len(g.Sensors) == 0 {
			return fmt.Errorf("analysis.groups[%s] requires sensors", g.Name)
		}
		if g.RequiredEligible > len(g.Sensors) {
			return fmt.Errorf("analysis.groups[%s] required_eligible %d exceeds sensor count %d", g.Name, g.RequiredEligible, len(g.Sensors))
		}
	}
	seenPairs := map[string]bool{}
	for _, p := range cfg.Analysis.Pairs {
		if p.Name == "" || p.ColA == "" || p.ColB == "" {
			return errors.New("analysis.pairs entries require name, col_a, col_b")
		}
		if seenPairs[p.Name] {
			return fmt.Errorf("analysis.pairs has duplicate name %q", p.Name)
		}
		seenPairs[p.Name] = true
	}
	if cfg.Analysis.Alerting.ClearAfter > 0 && cfg.Analysis.Alerting.ClearAfter < cfg.Analysis.Alerting.ConfirmAfter {
		return errors.New("analysis.alerting.clear_after must be >= confirm_after")
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if err := Save(m.path, cfg); err != nil {
		return err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
