package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kindred-ai/kindred/internal/budget"
	"github.com/kindred-ai/kindred/internal/identity"
	"github.com/kindred-ai/kindred/internal/memory"
	"github.com/kindred-ai/kindred/internal/mood"
	"github.com/kindred-ai/kindred/internal/prompt"
)

func newDryRunCmd() *cobra.Command {
	var text string
	var showPrompt bool

	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Assemble a prompt offline and report the budget breakdown",
		Long: `Runs the assembly half of a turn without calling a provider: resolves the
persona, decays the stored mood, retrieves memory and builds the sectioned
prompt against the real token budget. No API key is required.`,
		Example: `  kindred dry-run
  kindred dry-run -P "what did I tell you about my sister?" --show-prompt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDryRun(text, showPrompt)
		},
	}

	cmd.Flags().StringVarP(&text, "prompt", "P", "tell me about my day", "the message to assemble for")
	cmd.Flags().BoolVar(&showPrompt, "show-prompt", false, "print the assembled prompt text")

	return cmd
}

func runDryRun(text string, showPrompt bool) error {
	cfg := initConfig()

	st, err := openStores(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer st.Close()

	userID := cfg.Persona.DefaultUser
	ctx := context.Background()

	snap, err := st.identities.Resolve(ctx, userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: identity unreadable, using skeleton: %v\n", err)
		snap = identity.Skeleton
	}

	state, err := st.moods.Resolve(ctx, userID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: mood unreadable, using baseline: %v\n", err)
		state = mood.Baseline
	}
	state = mood.NewEngine(cfg.Mood.HalfLife()).Decay(state, time.Now())

	alloc, err := budget.New(cfg.Budget.TotalContext, cfg.Budget.ReservedOutput, cfg.Budget.SafetyBuffer)
	if err != nil {
		return err
	}
	var refusals []string
	alloc.OnRefusal(func(component string, requested, used, remaining int) {
		refusals = append(refusals, fmt.Sprintf("%s asked for %d with %d remaining", component, requested, remaining))
	})

	memoryCtx, err := st.memories.Retrieve(ctx, memory.Query{
		UserID:    userID,
		Text:      text,
		Embedding: memory.ZeroEmbedding(),
		Domains:   snap.ExpertiseDomains,
	}, alloc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: memory retrieval failed: %v\n", err)
		memoryCtx = memory.NoPriorContext
	}

	sections := prompt.TurnSections(snap.RenderPrompt(), mood.RenderInjection(state), memoryCtx, text)
	assembled, err := prompt.Assemble(sections, alloc)
	if err != nil {
		return err
	}

	report := alloc.Report()

	fmt.Printf("Prompt assembly for user %q\n\n", userID)
	fmt.Printf("  %-19s %7s  %s\n", "section", "tokens", "status")
	for _, s := range sections {
		key := strings.ToLower(string(s.Header))
		tokens, ok := report.Components[key]
		status := "allocated"
		switch {
		case ok:
		case s.Header == prompt.HeaderMemory && strings.Contains(assembled, prompt.MemoryPlaceholder):
			status = "placeholder"
		default:
			status = "omitted"
		}
		if ok {
			fmt.Printf("  %-19s %7d  %s\n", s.Header, tokens, status)
		} else {
			fmt.Printf("  %-19s %7s  %s\n", s.Header, "-", status)
		}
	}

	fmt.Printf("\n  ceiling:     %d tokens\n", report.Ceiling)
	fmt.Printf("  used:        %d tokens\n", report.Used)
	fmt.Printf("  remaining:   %d tokens\n", report.Remaining)
	fmt.Printf("  utilization: %.1f%%\n", report.Utilization)

	if len(refusals) > 0 {
		fmt.Printf("\n  refusals:\n")
		for _, r := range refusals {
			fmt.Printf("    - %s\n", r)
		}
	}

	if showPrompt {
		fmt.Printf("\n%s\n", assembled)
	}

	return nil
}
