// Package config holds runtime settings: a JSON settings store with
// environment overrides, plus the yaml provider catalog for model access.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ServerSettings configures the HTTP/WS listener.
type ServerSettings struct {
	Addr       string `json:"addr"`        // listen address, e.g. ":8080"
	PublicURL  string `json:"public_url"`  // externally reachable base URL, used to build the webhook URL
	AuthSecret string `json:"auth_secret"` // signs user tokens for API and socket auth
}

// StoreSettings configures the sqlite database.
type StoreSettings struct {
	Path string `json:"path"`
}

// ManusSettings configures the external task provider.
type ManusSettings struct {
	BaseURL       string `json:"base_url"`
	APIKey        string `json:"api_key"`
	WebhookSecret string `json:"webhook_secret"`
}

// NotifySettings configures out-of-band notifications.
type NotifySettings struct {
	TelegramToken  string `json:"telegram_token"`
	TelegramChatID int64  `json:"telegram_chat_id"`
}

// BusSettings selects the lifecycle event bus.
type BusSettings struct {
	Mode    string `json:"mode"` // "inproc" or "nats"
	NatsURL string `json:"nats_url,omitempty"`
}

// OrchestratorSettings tunes local workflow execution.
type OrchestratorSettings struct {
	MaxParallelSteps int `json:"max_parallel_steps"`
	HistoryLimit     int `json:"history_limit"`
}

type Settings struct {
	Server       ServerSettings       `json:"server"`
	Store        StoreSettings        `json:"store"`
	Manus        ManusSettings        `json:"manus"`
	Notify       NotifySettings       `json:"notify"`
	Bus          BusSettings          `json:"bus"`
	Orchestrator OrchestratorSettings `json:"orchestrator"`
	Provider     ProviderSettings     `json:"provider"`
}

// ProviderSettings selects the default LLM used by local agents.
type ProviderSettings struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
}

// Store persists settings as JSON. Saves take a file lock so concurrent
// processes (server + CLI) do not clobber each other's writes.
type Store struct {
	mu       sync.RWMutex
	path     string
	settings *Settings
}

// NewStore opens the settings store at ~/.payperwork/settings.json, creating
// it with defaults on first run. Environment overrides are applied on top of
// whatever was loaded.
func NewStore() (*Store, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("get home dir: %w", err)
	}
	configDir := filepath.Join(homeDir, ".payperwork")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}
	return NewStoreAt(filepath.Join(configDir, "settings.json"))
}

// NewStoreAt opens the settings store at an explicit path.
func NewStoreAt(path string) (*Store, error) {
	store := &Store{
		path:     path,
		settings: defaultSettings(),
	}

	if err := store.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("load settings: %w", err)
		}
		if err := store.Save(); err != nil {
			return nil, fmt.Errorf("save default settings: %w", err)
		}
	}

	store.mu.Lock()
	applyEnvOverrides(store.settings)
	store.mu.Unlock()
	return store, nil
}

func defaultSettings() *Settings {
	return &Settings{
		Server: ServerSettings{
			Addr:      ":8080",
			PublicURL: "http://localhost:8080",
		},
		Store: StoreSettings{
			Path: "payperwork.db",
		},
		Manus: ManusSettings{
			BaseURL: "https://api.manus.im",
		},
		Bus: BusSettings{
			Mode: "inproc",
		},
		Orchestrator: OrchestratorSettings{
			MaxParallelSteps: 3,
			HistoryLimit:     100,
		},
		Provider: ProviderSettings{
			Provider: "openai",
			Model:    "gpt-4o",
		},
	}
}

// applyEnvOverrides lets deployments configure secrets without touching the
// settings file.
func applyEnvOverrides(s *Settings) {
	setEnv := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setEnv(&s.Server.Addr, "PAYPERWORK_ADDR")
	setEnv(&s.Server.PublicURL, "PAYPERWORK_PUBLIC_URL")
	setEnv(&s.Server.AuthSecret, "PAYPERWORK_AUTH_SECRET")
	setEnv(&s.Store.Path, "PAYPERWORK_DB_PATH")
	setEnv(&s.Manus.BaseURL, "PAYPERWORK_MANUS_URL")
	setEnv(&s.Manus.APIKey, "PAYPERWORK_MANUS_KEY")
	setEnv(&s.Manus.WebhookSecret, "PAYPERWORK_WEBHOOK_SECRET")
	setEnv(&s.Notify.TelegramToken, "PAYPERWORK_TELEGRAM_TOKEN")
	setEnv(&s.Bus.Mode, "PAYPERWORK_BUS")
	setEnv(&s.Bus.NatsURL, "PAYPERWORK_NATS_URL")
	setEnv(&s.Provider.APIKey, "PAYPERWORK_LLM_KEY")
	setEnv(&s.Provider.Model, "PAYPERWORK_LLM_MODEL")

	if v := os.Getenv("PAYPERWORK_TELEGRAM_CHAT_ID"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			s.Notify.TelegramChatID = id
		}
	}
}

func (s *Store) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}

	var settings Settings
	if err := json.Unmarshal(data, &settings); err != nil {
		return fmt.Errorf("parse %s: %w", s.path, err)
	}
	s.settings = &settings
	return nil
}

func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, err := json.MarshalIndent(s.settings, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	lock := flock.New(s.path + ".lock")
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock settings file: %w", err)
	}
	if !locked {
		return fmt.Errorf("settings file is locked by another process")
	}
	defer lock.Unlock()

	return os.WriteFile(s.path, data, 0644)
}

func (s *Store) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.settings
}

func (s *Store) Update(fn func(*Settings)) error {
	s.mu.Lock()
	fn(s.settings)
	s.mu.Unlock()
	return s.Save()
}
