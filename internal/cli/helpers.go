package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/mindlog-lab/mindlog/internal/config"
	"github.com/mindlog-lab/mindlog/internal/experiment"
	"github.com/mindlog-lab/mindlog/internal/logger"
	"github.com/mindlog-lab/mindlog/internal/publish"
	"github.com/mindlog-lab/mindlog/internal/store"
	"github.com/mindlog-lab/mindlog/internal/triage"
)

// withStore opens the database, executes the function, and handles cleanup.
func withStore(fn func(store.Store) error) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer s.Close()

	return fn(s)
}

func newLogger() (*zap.Logger, error) {
	log, err := logger.New(logLevel, logFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return log, nil
}

func loadRules() (*config.Rules, error) {
	rules, err := config.LoadRules(rulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}
	return rules, nil
}

// buildService wires the triage service the same way for every command.
// A nil publisher disables fan-out.
func buildService(st store.EventStore, log *zap.Logger, pub publish.Publisher) (*triage.Service, error) {
	rules, err := loadRules()
	if err != nil {
		return nil, err
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	return triage.New(st, triage.Options{
		Rules:         rules,
		Source:        experiment.NewLockedSource(experiment.NewSource(seed)),
		Publisher:     pub,
		Logger:        log,
		StoreRawInput: cfg.StoreRawInput,
	})
}

// getTokenFilePath returns the path to the token file
func getTokenFilePath() string {
	// Store token file alongside the database
	dir := filepath.Dir(dbPath)
	return filepath.Join(dir, ".mindlog-token")
}
