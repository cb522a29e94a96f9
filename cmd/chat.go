package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/kindred-ai/kindred/internal/chat"
	"github.com/kindred-ai/kindred/internal/config"
	"github.com/kindred-ai/kindred/internal/identity"
	"github.com/kindred-ai/kindred/internal/memory"
	"github.com/kindred-ai/kindred/internal/mood"
	"github.com/kindred-ai/kindred/internal/telemetry"
	"github.com/kindred-ai/kindred/internal/tui"
	"github.com/kindred-ai/kindred/internal/turn"
)

// stores bundles the persistence layers that share one SQLite handle.
type stores struct {
	db         *sql.DB
	moods      *mood.SQLiteStore
	memories   *memory.SQLiteStore
	identities *identity.FileStore
}

func (s *stores) Close() error {
	return s.db.Close()
}

// openStores opens the companion database and the stores on top of it,
// plus the persona file store.
func openStores(cfg *config.Config) (*stores, error) {
	dbPath := cfg.Memory.DBPath
	if dbPath == "" {
		var err error
		dbPath, err = memory.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve database path: %w", err)
		}
	}
	db, err := memory.OpenDB(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbPath, err)
	}

	moods, err := mood.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init mood store: %w", err)
	}
	memories, err := memory.NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("init memory store: %w", err)
	}

	profilesDir := cfg.Persona.ProfilesDir
	if profilesDir == "" {
		profilesDir = config.DefaultProfilesDir()
	}

	return &stores{
		db:         db,
		moods:      moods,
		memories:   memories,
		identities: identity.NewFileStore(profilesDir),
	}, nil
}

// openRecorder returns the telemetry sink for this session. A broken sink
// never blocks a chat: warn and fall back to the no-op recorder.
func openRecorder(cfg *config.Config, sessionID string) *telemetry.Recorder {
	if cfg.Telemetry.Disabled {
		return telemetry.NopRecorder()
	}
	rec, err := telemetry.NewRecorder(cfg.Telemetry.Dir, sessionID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[telemetry] warning: %v\n", err)
		return telemetry.NopRecorder()
	}
	return rec
}

func orchestratorOptions(cfg *config.Config) turn.Options {
	return turn.Options{
		TotalContext:    cfg.Budget.TotalContext,
		ReservedOutput:  cfg.Budget.ReservedOutput,
		SafetyBuffer:    cfg.Budget.SafetyBuffer,
		IdentityTimeout: cfg.Pipeline.IdentityTimeout(),
		MoodTimeout:     cfg.Pipeline.MoodTimeout(),
		MemoryTimeout:   cfg.Pipeline.MemoryTimeout(),
		MaxOutputTokens: cfg.Pipeline.MaxOutputTokens,
		Model:           cfg.Model,
	}
}

func newSession(cfg *config.Config, orc *turn.Orchestrator, ui tui.IO, userID, sessionID string, st *stores, rec *telemetry.Recorder) *chat.Session {
	sess := chat.New(cfg, orc, ui, userID, sessionID)
	sess.SetMoodStore(st.moods)
	sess.SetMemoryStore(st.memories)
	sess.SetIdentityStore(st.identities)
	sess.SetRecorder(rec)
	return sess
}

// runChat starts the interactive companion session (REPL) mode.
func runChat() error {
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

	userID := cfg.Persona.DefaultUser

	if useTUI {
		tuiCfg := tui.TUIConfig{
			Version:     displayVersion(),
			Provider:    cfg.Provider,
			Model:       cfg.Model,
			User:        userID,
			SessionID:   sessionID[:8],
			ShowWelcome: true,
		}

		return tui.RunTUI(tuiCfg, func(ui tui.IO) error {
			ctx, cancel := signalContext()
			defer cancel()
			return newSession(cfg, orc, ui, userID, sessionID, st, rec).Run(ctx)
		})
	}

	// Plain IO mode (default when stdout is not a terminal)
	ui := tui.NewPlainIO()
	sess := newSession(cfg, orc, ui, userID, sessionID, st, rec)

	ctx, cancel := signalContext()
	defer cancel()

	return sess.Run(ctx)
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()
	return ctx, cancel
}
