package config

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Settings represents the application configuration persisted to disk.
type Settings struct {
	Server    ServerSettings    `json:"server"`
	Backend   BackendSettings   `json:"backend"`
	Playback  PlaybackSettings  `json:"playback"`
	Downloads DownloadsSettings `json:"downloads"`
	Database  DatabaseSettings  `json:"database"`
	Log       LogConfig         `json:"log"`
}

type ServerSettings struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	APIToken string `json:"apiToken"` // optional; empty disables the token check
}

// BackendSettings points at the podcast generation backend.
type BackendSettings struct {
	BaseURL        string `json:"baseUrl"`
	Token          string `json:"token"`
	TimeoutSeconds int    `json:"timeoutSeconds"`
}

// PlaybackSettings holds the poll intervals and retry budgets for the
// orchestration engine. Values are seconds; fractional values are allowed so
// tests can shrink them.
type PlaybackSettings struct {
	PositionLogIntervalSeconds    float64 `json:"positionLogIntervalSeconds"`
	ReadinessPollIntervalSeconds  float64 `json:"readinessPollIntervalSeconds"`
	TransitionPollIntervalSeconds float64 `json:"transitionPollIntervalSeconds"`
	GenerationMaxAttempts         int     `json:"generationMaxAttempts"`
	GenerationRetryDelaySeconds   float64 `json:"generationRetryDelaySeconds"`
	RecommendationMaxAttempts     int     `json:"recommendationMaxAttempts"`
	RecommendationRetrySeconds    float64 `json:"recommendationRetrySeconds"`
	SkipForwardSeconds            float64 `json:"skipForwardSeconds"`
	SkipBackwardSeconds           float64 `json:"skipBackwardSeconds"`
}

type DownloadsSettings struct {
	Directory string `json:"directory"`
}

// DatabaseSettings defines where the local listening-history mirror lives.
type DatabaseSettings struct {
	Path string `json:"path"`
}

// LogConfig represents logging configuration.
type LogConfig struct {
	File       string `json:"file"`
	Level      string `json:"level"`
	MaxSize    int    `json:"maxSize"`
	MaxAge     int    `json:"maxAge"`
	MaxBackups int    `json:"maxBackups"`
	Compress   bool   `json:"compress"`
}

// DefaultSettings returns sane defaults for a fresh install.
func DefaultSettings() Settings {
	return Settings{
		Server:  ServerSettings{Host: "127.0.0.1", Port: 5090},
		Backend: BackendSettings{BaseURL: "http://localhost:5002", TimeoutSeconds: 15},
		Playback: PlaybackSettings{
			PositionLogIntervalSeconds:    5,
			ReadinessPollIntervalSeconds:  5,
			TransitionPollIntervalSeconds: 2,
			GenerationMaxAttempts:         30,
			GenerationRetryDelaySeconds:   3,
			RecommendationMaxAttempts:     5,
			RecommendationRetrySeconds:    3,
			SkipForwardSeconds:            30,
			SkipBackwardSeconds:           15,
		},
		Downloads: DownloadsSettings{Directory: "cache/downloads"},
		Database:  DatabaseSettings{Path: "cache/history.db"},
		Log: LogConfig{
			File:       "cache/logs/briefplay.log",
			Level:      "info",
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
	}
}

// Manager loads and persists settings to a JSON file.
type Manager struct {
	path string
}

func NewManager(configPath string) *Manager {
	return &Manager{path: configPath}
}

// EnsureDir creates the directory holding the settings file.
func (m *Manager) EnsureDir() error {
	dir := filepath.Dir(m.path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

// Load reads settings from disk, creating the file with defaults when missing.
func (m *Manager) Load() (Settings, error) {
	if m.path == "" {
		return Settings{}, errors.New("config path not set")
	}
	if _, err := os.Stat(m.path); errors.Is(err, fs.ErrNotExist) {
		defaults := DefaultSettings()
		if err := m.Save(defaults); err != nil {
			return Settings{}, err
		}
		return defaults, nil
	}
	f, err := os.Open(m.path)
	if err != nil {
		return Settings{}, err
	}
	defer f.Close()

	s := DefaultSettings()
	if err := json.NewDecoder(f).Decode(&s); err != nil {
		return Settings{}, err
	}
	applyFallbacks(&s)
	return s, nil
}

// Save writes settings atomically via a temp file rename.
func (m *Manager) Save(s Settings) error {
	if m.path == "" {
		return errors.New("config path not set")
	}
	if err := m.EnsureDir(); err != nil {
		return err
	}
	tmp := m.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, m.path)
}

// applyFallbacks repairs zero values left behind by hand-edited config files.
func applyFallbacks(s *Settings) {
	d := DefaultSettings()
	if s.Backend.TimeoutSeconds <= 0 {
		s.Backend.TimeoutSeconds = d.Backend.TimeoutSeconds
	}
	p := &s.Playback
	if p.PositionLogIntervalSeconds <= 0 {
		p.PositionLogIntervalSeconds = d.Playback.PositionLogIntervalSeconds
	}
	if p.ReadinessPollIntervalSeconds <= 0 {
		p.ReadinessPollIntervalSeconds = d.Playback.ReadinessPollIntervalSeconds
	}
	if p.TransitionPollIntervalSeconds <= 0 {
		p.TransitionPollIntervalSeconds = d.Playback.TransitionPollIntervalSeconds
	}
	if p.GenerationMaxAttempts <= 0 {
		p.GenerationMaxAttempts = d.Playback.GenerationMaxAttempts
	}
	if p.GenerationRetryDelaySeconds <= 0 {
		p.GenerationRetryDelaySeconds = d.Playback.GenerationRetryDelaySeconds
	}
	if p.RecommendationMaxAttempts <= 0 {
		p.RecommendationMaxAttempts = d.Playback.RecommendationMaxAttempts
	}
	if p.RecommendationRetrySeconds <= 0 {
		p.RecommendationRetrySeconds = d.Playback.RecommendationRetrySeconds
	}
	if p.SkipForwardSeconds <= 0 {
		p.SkipForwardSeconds = d.Playback.SkipForwardSeconds
	}
	if p.SkipBackwardSeconds <= 0 {
		p.SkipBackwardSeconds = d.Playback.SkipBackwardSeconds
	}
}
