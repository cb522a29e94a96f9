package cmd

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/kindred-ai/kindred/internal/mood"
	"github.com/kindred-ai/kindred/internal/tui"
	"github.com/kindred-ai/kindred/internal/turn"
)

func newRunCmd() *cobra.Command {
	var prompt string
	var format string
	var last bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a single message non-interactively",
		Example: `  kindred run -P "good morning, how did you sleep?"
  kindred run -P "what did I say about the garden?" --format jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if format != "text" && format != "jsonl" {
				return fmt.Errorf("--format must be text or jsonl, got %q", format)
			}
			return runOnce(prompt, format, last)
		},
	}

	cmd.Flags().StringVarP(&prompt, "prompt", "P", "", "the message to process")
	cmd.Flags().StringVar(&format, "format", "text", "output format: text or jsonl")
	cmd.Flags().BoolVar(&last, "last", false, "print only the final reply instead of streaming")
	cmd.MarkFlagRequired("prompt")

	return cmd
}

// runOnce pushes a single message through the full turn pipeline and exits.
// Unlike the interactive session it leaves mood and memory untouched beyond
// what the turn itself records.
func runOnce(prompt, format string, last bool) error {
	cfg := initConfig()

	p, err := buildProvider(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if cfg.Model == "" {
		cfg.Model = p.DefaultModel()
	}

	st, err := openStores(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer st.Close()

	sessionID := uuid.New().String()

	rec := openRecorder(cfg, sessionID)
	defer rec.Close()

	orc, err := turn.New(st.identities, st.moods, mood.NewEngine(cfg.Mood.HalfLife()), st.memories, p, rec, orchestratorOptions(cfg))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ui := tui.NewPipeIO(format, last)

	ctx, cancel := signalContext()
	defer cancel()

	res := orc.ProcessTurn(ctx, turn.Request{
		UserID:    cfg.Persona.DefaultUser,
		SessionID: sessionID,
		Text:      prompt,
		OnDelta:   ui.TextDelta,
	})
	if res.Failed() {
		ui.Error(res.Error)
		return fmt.Errorf("turn failed: %s", res.Error)
	}

	ui.TextDone(res.Response)
	ui.SetMood(mood.Describe(res.Mood), res.Mood.Valence, res.Mood.Arousal)
	ui.SetStats(res.Metrics.TokensUsed, res.Metrics.Utilization)
	ui.Flush()

	return nil
}
