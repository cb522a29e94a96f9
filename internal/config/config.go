// Package config loads and manages kindred configuration.
// Configuration source priority (highest to lowest):
// 1. Environment variables (LLM_API_KEY, LLM_BASE_URL, LLM_MODEL, ANTHROPIC_API_KEY, etc.)
// 2. Config file path specified via --config flag
// 3. ~/.config/kindred/config.yaml
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kindred-ai/kindred/internal/budget"
)

//go:embed providers_default.yaml
var defaultProvidersYAML []byte

// ProviderDefaults holds the default base URL and model for a provider.
type ProviderDefaults struct {
	BaseURL      string `yaml:"base_url"`
	DefaultModel string `yaml:"default_model"`
}

// LoadProviderDefaults parses the embedded defaults and merges any user
// overrides from ~/.config/kindred/providers.yaml.
func LoadProviderDefaults() map[string]ProviderDefaults {
	defs := make(map[string]ProviderDefaults)
	_ = yaml.Unmarshal(defaultProvidersYAML, &defs)

	home, err := os.UserHomeDir()
	if err == nil {
		userPath := filepath.Join(home, ".config", "kindred", "providers.yaml")
		if data, err := os.ReadFile(userPath); err == nil {
			userDefs := make(map[string]ProviderDefaults)
			if yaml.Unmarshal(data, &userDefs) == nil {
				for name, ud := range userDefs {
					d := defs[name]
					if ud.BaseURL != "" {
						d.BaseURL = ud.BaseURL
					}
					if ud.DefaultModel != "" {
						d.DefaultModel = ud.DefaultModel
					}
					defs[name] = d
				}
			}
		}
	}
	return defs
}

// ProviderConfig holds configuration for a single provider.
type ProviderConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// BudgetConfig holds the prompt token budget parameters.
type BudgetConfig struct {
	// TotalContext is the model context window assumed for budgeting.
	TotalContext int `yaml:"total_context"`

	// ReservedOutput is the token count held back for the reply.
	ReservedOutput int `yaml:"reserved_output"`

	// SafetyBuffer is the fraction of the context window the prompt may
	// occupy before the reservation is subtracted.
	SafetyBuffer float64 `yaml:"safety_buffer"`
}

// PipelineConfig holds the per-turn resolution deadlines and output cap.
type PipelineConfig struct {
	IdentityTimeoutMS int `yaml:"identity_timeout_ms"`
	MoodTimeoutMS     int `yaml:"mood_timeout_ms"`
	MemoryTimeoutMS   int `yaml:"memory_timeout_ms"`
	MaxOutputTokens   int `yaml:"max_output_tokens"`
}

func (p PipelineConfig) IdentityTimeout() time.Duration {
	return time.Duration(p.IdentityTimeoutMS) * time.Millisecond
}

func (p PipelineConfig) MoodTimeout() time.Duration {
	return time.Duration(p.MoodTimeoutMS) * time.Millisecond
}

func (p PipelineConfig) MemoryTimeout() time.Duration {
	return time.Duration(p.MemoryTimeoutMS) * time.Millisecond
}

// PersonaConfig holds persona profile settings.
type PersonaConfig struct {
	// ProfilesDir is where per-user persona YAML files live.
	// Empty = ~/.config/kindred/personas.
	ProfilesDir string `yaml:"profiles_dir"`

	// DefaultUser is the user id assumed when --user is not given.
	DefaultUser string `yaml:"default_user"`
}

// MoodConfig holds affective state settings.
type MoodConfig struct {
	// HalfLifeMinutes controls how fast mood drifts back to baseline.
	HalfLifeMinutes int `yaml:"half_life_minutes"`
}

func (m MoodConfig) HalfLife() time.Duration {
	return time.Duration(m.HalfLifeMinutes) * time.Minute
}

// MemoryConfig holds memory store settings.
type MemoryConfig struct {
	// DBPath overrides the sqlite database location.
	// Empty = ~/.local/share/kindred/kindred.db.
	DBPath string `yaml:"db_path"`

	// AutoCapture stores each exchange as a memory after successful turns.
	AutoCapture bool `yaml:"auto_capture"`
}

// TelemetryConfig holds telemetry sink settings.
type TelemetryConfig struct {
	// Dir overrides the telemetry directory. Empty = default chain.
	Dir string `yaml:"dir"`

	// Disabled turns the JSONL sink off entirely.
	Disabled bool `yaml:"disabled"`
}

// Config is the complete configuration structure for kindred.
type Config struct {
	// Provider is the active provider name (e.g. "anthropic", "openai", "deepseek").
	Provider string `yaml:"provider"`

	// Model overrides the provider's default model.
	Model string `yaml:"model"`

	// Providers holds per-provider configuration.
	Providers map[string]*ProviderConfig `yaml:"providers"`

	// Budget holds the prompt token budget parameters.
	Budget BudgetConfig `yaml:"budget"`

	// Pipeline holds the per-turn deadlines.
	Pipeline PipelineConfig `yaml:"pipeline"`

	// Persona holds persona profile settings.
	Persona PersonaConfig `yaml:"persona"`

	// Mood holds affective state settings.
	Mood MoodConfig `yaml:"mood"`

	// Memory holds memory store settings.
	Memory MemoryConfig `yaml:"memory"`

	// Telemetry holds telemetry sink settings.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Provider:  "openai",
		Providers: make(map[string]*ProviderConfig),
		Budget: BudgetConfig{
			TotalContext:   budget.DefaultTotalContext,
			ReservedOutput: budget.DefaultReservedOutput,
			SafetyBuffer:   budget.DefaultSafetyBuffer,
		},
		Pipeline: PipelineConfig{
			IdentityTimeoutMS: 100,
			MoodTimeoutMS:     100,
			MemoryTimeoutMS:   500,
			MaxOutputTokens:   4096,
		},
		Persona: PersonaConfig{
			DefaultUser: "default",
		},
		Mood: MoodConfig{
			HalfLifeMinutes: 90,
		},
		Memory: MemoryConfig{
			AutoCapture: true,
		},
	}
}

// Load reads the config file and merges environment variable overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath == "" {
		configPath = DefaultConfigPath()
	}

	// Read config file (use defaults if not found)
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %w", configPath, err)
		}
	}

	applyEnvOverrides(cfg)

	if cfg.Providers == nil {
		cfg.Providers = make(map[string]*ProviderConfig)
	}

	return cfg, nil
}

// Validate checks the parameters that must hold before any turn runs.
// An unusable budget ceiling is a process-level failure, not a per-turn one.
func (c *Config) Validate() error {
	if _, err := budget.New(c.Budget.TotalContext, c.Budget.ReservedOutput, c.Budget.SafetyBuffer); err != nil {
		return fmt.Errorf("budget configuration: %w", err)
	}
	return nil
}

// DefaultConfigPath returns ~/.config/kindred/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "kindred", "config.yaml")
}

// DefaultProfilesDir returns ~/.config/kindred/personas.
func DefaultProfilesDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "kindred", "personas")
}

// GetProviderConfig returns the config for the named provider, or an empty
// config if not found.
func (c *Config) GetProviderConfig(name string) *ProviderConfig {
	if pc, ok := c.Providers[name]; ok {
		return pc
	}
	return &ProviderConfig{}
}

var (
	// KnownProviderBaseURLs maps well-known provider names to their base URLs.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderBaseURLs map[string]string

	// KnownProviderModels maps well-known provider names to their default models.
	// Populated from providers_default.yaml (embedded) + user overrides.
	KnownProviderModels map[string]string
)

func init() {
	defs := LoadProviderDefaults()
	KnownProviderBaseURLs = make(map[string]string, len(defs))
	KnownProviderModels = make(map[string]string, len(defs))
	for name, d := range defs {
		if d.BaseURL != "" {
			KnownProviderBaseURLs[name] = d.BaseURL
		}
		if d.DefaultModel != "" {
			KnownProviderModels[name] = d.DefaultModel
		}
	}
}

// SaveProviderToFile persists a single provider's config and the active
// provider name into ~/.config/kindred/config.yaml, preserving all other
// user settings.
func SaveProviderToFile(providerName string, pc ProviderConfig) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("cannot determine home directory: %w", err)
	}
	cfgPath := filepath.Join(home, ".config", "kindred", "config.yaml")

	// Read existing file into a generic map to preserve unknown fields.
	raw := make(map[string]any)
	if data, err := os.ReadFile(cfgPath); err == nil {
		_ = yaml.Unmarshal(data, &raw) // ignore errors; start fresh if corrupt
	}

	providers, _ := raw["providers"].(map[string]any)
	if providers == nil {
		providers = make(map[string]any)
	}

	entry := map[string]any{
		"api_key": pc.APIKey,
	}
	if pc.BaseURL != "" {
		entry["base_url"] = pc.BaseURL
	}
	if pc.Model != "" {
		entry["model"] = pc.Model
	}
	providers[providerName] = entry
	raw["providers"] = providers

	// Set active provider and clear stale global model override.
	raw["provider"] = providerName
	delete(raw, "model")

	if err := os.MkdirAll(filepath.Dir(cfgPath), 0755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(cfgPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config.
func applyEnvOverrides(cfg *Config) {
	// Generic overrides
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		provider := cfg.Provider
		if cfg.Providers[provider] == nil {
			cfg.Providers[provider] = &ProviderConfig{}
		}
		cfg.Providers[provider].APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		provider := cfg.Provider
		if cfg.Providers[provider] == nil {
			cfg.Providers[provider] = &ProviderConfig{}
		}
		cfg.Providers[provider].BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.Model = v
	}

	// Vendor-specific keys
	if v := os.Getenv("ANTHROPIC_API_KEY"); v != "" {
		if cfg.Providers["anthropic"] == nil {
			cfg.Providers["anthropic"] = &ProviderConfig{}
		}
		cfg.Providers["anthropic"].APIKey = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		if cfg.Providers["openai"] == nil {
			cfg.Providers["openai"] = &ProviderConfig{}
		}
		cfg.Providers["openai"].APIKey = v
	}

	// Provider selection
	if v := os.Getenv("KINDRED_PROVIDER"); v != "" {
		cfg.Provider = v
	}
	if v := os.Getenv("KINDRED_MODEL"); v != "" {
		cfg.Model = v
	}
}
