package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func missingPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "config.yaml")
}

func clearEnvOverrides(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"LLM_API_KEY", "LLM_BASE_URL", "LLM_MODEL",
		"ANTHROPIC_API_KEY", "OPENAI_API_KEY",
		"KINDRED_PROVIDER", "KINDRED_MODEL",
	} {
		t.Setenv(k, "")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Provider != "openai" {
		t.Errorf("expected default provider 'openai', got %q", cfg.Provider)
	}
	if cfg.Budget.TotalContext != 128000 {
		t.Errorf("expected total_context 128000, got %d", cfg.Budget.TotalContext)
	}
	if cfg.Budget.ReservedOutput != 8000 {
		t.Errorf("expected reserved_output 8000, got %d", cfg.Budget.ReservedOutput)
	}
	if cfg.Budget.SafetyBuffer != 0.85 {
		t.Errorf("expected safety_buffer 0.85, got %f", cfg.Budget.SafetyBuffer)
	}
	if cfg.Pipeline.IdentityTimeoutMS != 100 || cfg.Pipeline.MoodTimeoutMS != 100 {
		t.Errorf("expected 100ms identity/mood timeouts, got %d/%d",
			cfg.Pipeline.IdentityTimeoutMS, cfg.Pipeline.MoodTimeoutMS)
	}
	if cfg.Pipeline.MemoryTimeoutMS != 500 {
		t.Errorf("expected 500ms memory timeout, got %d", cfg.Pipeline.MemoryTimeoutMS)
	}
	if cfg.Pipeline.MaxOutputTokens != 4096 {
		t.Errorf("expected max_output_tokens 4096, got %d", cfg.Pipeline.MaxOutputTokens)
	}
	if cfg.Mood.HalfLifeMinutes != 90 {
		t.Errorf("expected half_life_minutes 90, got %d", cfg.Mood.HalfLifeMinutes)
	}
	if !cfg.Memory.AutoCapture {
		t.Error("expected memory auto_capture default true")
	}
	if cfg.Persona.DefaultUser != "default" {
		t.Errorf("expected default_user 'default', got %q", cfg.Persona.DefaultUser)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config must validate, got %v", err)
	}
}

func TestPipelineTimeoutConversion(t *testing.T) {
	p := PipelineConfig{IdentityTimeoutMS: 100, MoodTimeoutMS: 150, MemoryTimeoutMS: 500}
	if p.IdentityTimeout() != 100*time.Millisecond {
		t.Errorf("expected 100ms, got %s", p.IdentityTimeout())
	}
	if p.MoodTimeout() != 150*time.Millisecond {
		t.Errorf("expected 150ms, got %s", p.MoodTimeout())
	}
	if p.MemoryTimeout() != 500*time.Millisecond {
		t.Errorf("expected 500ms, got %s", p.MemoryTimeout())
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	clearEnvOverrides(t)
	cfg, err := Load(missingPath(t))
	if err != nil {
		t.Fatalf("expected no error for missing file, got %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("expected default provider, got %q", cfg.Provider)
	}
}

func TestLoad_ValidYAML(t *testing.T) {
	clearEnvOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
provider: deepseek
model: deepseek-chat
providers:
  deepseek:
    api_key: sk-test
budget:
  total_context: 64000
  reserved_output: 4000
  safety_buffer: 0.9
pipeline:
  memory_timeout_ms: 250
mood:
  half_life_minutes: 45
memory:
  auto_capture: false
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "deepseek" {
		t.Errorf("expected provider deepseek, got %q", cfg.Provider)
	}
	if cfg.Model != "deepseek-chat" {
		t.Errorf("expected model deepseek-chat, got %q", cfg.Model)
	}
	if cfg.GetProviderConfig("deepseek").APIKey != "sk-test" {
		t.Error("expected provider api key loaded")
	}
	if cfg.Budget.TotalContext != 64000 {
		t.Errorf("expected total_context 64000, got %d", cfg.Budget.TotalContext)
	}
	if cfg.Budget.SafetyBuffer != 0.9 {
		t.Errorf("expected safety_buffer 0.9, got %f", cfg.Budget.SafetyBuffer)
	}
	if cfg.Pipeline.MemoryTimeoutMS != 250 {
		t.Errorf("expected memory_timeout_ms 250, got %d", cfg.Pipeline.MemoryTimeoutMS)
	}
	// Unset blocks keep their defaults.
	if cfg.Pipeline.IdentityTimeoutMS != 100 {
		t.Errorf("expected identity_timeout_ms default 100, got %d", cfg.Pipeline.IdentityTimeoutMS)
	}
	if cfg.Mood.HalfLifeMinutes != 45 {
		t.Errorf("expected half_life_minutes 45, got %d", cfg.Mood.HalfLifeMinutes)
	}
	if cfg.Memory.AutoCapture {
		t.Error("expected auto_capture false")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnvOverrides(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("provider: [unclosed"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for malformed yaml")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("KINDRED_PROVIDER", "anthropic")
	t.Setenv("KINDRED_MODEL", "claude-sonnet-4-20250514")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")

	cfg, err := Load(missingPath(t))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Provider != "anthropic" {
		t.Errorf("expected provider anthropic, got %q", cfg.Provider)
	}
	if cfg.Model != "claude-sonnet-4-20250514" {
		t.Errorf("expected model override, got %q", cfg.Model)
	}
	if cfg.GetProviderConfig("anthropic").APIKey != "sk-ant-test" {
		t.Error("expected ANTHROPIC_API_KEY applied")
	}
}

func TestLoad_GenericEnvKeyAppliesToActiveProvider(t *testing.T) {
	clearEnvOverrides(t)
	t.Setenv("LLM_API_KEY", "sk-generic")
	t.Setenv("LLM_BASE_URL", "https://example.test/v1")

	cfg, err := Load(missingPath(t))
	if err != nil {
		t.Fatal(err)
	}
	pc := cfg.GetProviderConfig(cfg.Provider)
	if pc.APIKey != "sk-generic" {
		t.Errorf("expected generic key on active provider, got %q", pc.APIKey)
	}
	if pc.BaseURL != "https://example.test/v1" {
		t.Errorf("expected base url on active provider, got %q", pc.BaseURL)
	}
}

func TestValidateRejectsUnusableCeiling(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Budget.TotalContext = 9000
	cfg.Budget.ReservedOutput = 8000

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation failure for unusable ceiling")
	}
	if !strings.Contains(err.Error(), "context window too small") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestKnownProviderDefaults(t *testing.T) {
	defs := LoadProviderDefaults()
	dd, ok := defs["deepseek"]
	if !ok {
		t.Fatal("expected deepseek in embedded defaults")
	}
	if dd.BaseURL == "" || dd.DefaultModel == "" {
		t.Fatalf("expected deepseek base url and model, got %+v", dd)
	}
	if _, ok := defs["anthropic"]; !ok {
		t.Fatal("expected anthropic in embedded defaults")
	}
	if KnownProviderBaseURLs["deepseek"] == "" {
		t.Fatal("expected deepseek base url in known map")
	}
	if KnownProviderModels["openai"] == "" {
		t.Fatal("expected openai default model in known map")
	}
}
