package cmd

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kindred-ai/kindred/internal/config"
	"github.com/kindred-ai/kindred/internal/identity"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Interactive configuration wizard",
		Long:  "Guides you through setting up kindred: choose a provider, enter your API key, and create a starter persona.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Welcome to the kindred configuration wizard!")
	fmt.Println()

	// Provider selection
	providers := []string{
		"openai", "anthropic", "deepseek", "minimax",
		"kimi", "qwen", "glm", "doubao", "groq", "gemini",
	}
	fmt.Println("Available providers:")
	for i, p := range providers {
		fmt.Printf("  %d. %s\n", i+1, p)
	}
	fmt.Print("\nSelect provider (1-10) [1]: ")
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	selectedIdx := 0
	if input != "" {
		n := 0
		for _, c := range input {
			if c >= '0' && c <= '9' {
				n = n*10 + int(c-'0')
			}
		}
		if n >= 1 && n <= len(providers) {
			selectedIdx = n - 1
		}
	}
	providerName := providers[selectedIdx]
	fmt.Printf("Selected: %s\n\n", providerName)

	// API key
	fmt.Printf("Enter API key for %s: ", providerName)
	apiKey, _ := reader.ReadString('\n')
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	if err := config.SaveProviderToFile(providerName, config.ProviderConfig{APIKey: apiKey}); err != nil {
		return fmt.Errorf("save config: %w", err)
	}
	fmt.Printf("\nConfig saved to %s\n\n", config.DefaultConfigPath())

	// Starter persona
	fmt.Print("Companion name [Iris]: ")
	name, _ := reader.ReadString('\n')
	name = strings.TrimSpace(name)
	if name == "" {
		name = "Iris"
	}

	fmt.Print("Your user id [default]: ")
	userID, _ := reader.ReadString('\n')
	userID = strings.TrimSpace(userID)
	if userID == "" {
		userID = "default"
	}

	profilesDir := config.DefaultProfilesDir()
	profilePath := filepath.Join(profilesDir, userID+".yaml")
	if _, err := os.Stat(profilePath); err == nil {
		fmt.Printf("\nPersona profile already exists at %s\n", profilePath)
		fmt.Print("Overwrite? [y/N]: ")
		answer, _ := reader.ReadString('\n')
		if strings.ToLower(strings.TrimSpace(answer)) != "y" {
			fmt.Println("Keeping existing persona.")
			fmt.Println("You can now run: kindred")
			return nil
		}
	}

	profile := identity.Snapshot{
		Name:               name,
		Role:               "attentive daily companion",
		CoreValues:         []string{"honesty", "care", "curiosity", "playfulness"},
		CommunicationStyle: "warm, plain language with occasional humor",
		ExpertiseDomains:   []string{"daily life", "general conversation", "personal reflection"},
		Invariants:         "Stay safe, truthful, and kind. Never pretend to be human.",
		Version:            "1",
	}
	if err := identity.WriteProfile(profilesDir, userID, profile); err != nil {
		return fmt.Errorf("write persona profile: %w", err)
	}

	fmt.Printf("\nPersona %q saved to %s\n", name, profilePath)
	fmt.Println("You can now run: kindred")
	return nil
}
