package cmd

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/tempo/internal/claims"
	"github.com/papapumpkin/tempo/internal/config"
	"github.com/papapumpkin/tempo/internal/knowledge"
	"github.com/papapumpkin/tempo/internal/schedule"
	"github.com/papapumpkin/tempo/internal/store"
	"github.com/papapumpkin/tempo/internal/telemetry"
	"github.com/papapumpkin/tempo/internal/ui"
)

// app wires the components one command invocation needs.
type app struct {
	cfg     config.Config
	root    string
	store   *store.FileStore
	sched   *schedule.Scheduler
	tracker *knowledge.Tracker
	printer *ui.Printer
	closers []io.Closer
}

func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	workDir, err := filepath.Abs(cfg.WorkDir)
	if err != nil {
		return nil, fmt.Errorf("resolving work dir: %w", err)
	}
	cfg.WorkDir = workDir
	root, err := filepath.Abs(cfg.StorePath())
	if err != nil {
		return nil, fmt.Errorf("resolving store dir: %w", err)
	}

	a := &app{
		cfg:     cfg,
		root:    root,
		printer: &ui.Printer{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()},
	}
	logger := io.Discard
	if cfg.Verbose {
		logger = cmd.ErrOrStderr()
	}

	a.store, err = store.Open(root, store.WithLogger(logger))
	if err != nil {
		return nil, err
	}

	var emitter *telemetry.Emitter
	if cfg.Telemetry {
		emitter, err = telemetry.NewEmitter(filepath.Join(root, telemetry.FileName))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, emitter)
	}

	a.sched = &schedule.Scheduler{
		Store:       a.store,
		Telemetry:   emitter,
		Logger:      logger,
		MaxAttempts: cfg.MaxAttempts,
		Backoff:     schedule.Backoff{Base: cfg.RetryBackoff, Max: cfg.RetryBackoffMax},
	}
	if cfg.Reservations {
		ledger, err := claims.Open(cmd.Context(), filepath.Join(root, claims.FileName))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.closers = append(a.closers, ledger)
		a.sched.Reserver = ledger
	}

	var git knowledge.GitQuerier
	if cfg.UseGit {
		git = &knowledge.CLIGitQuerier{RepoDir: workDir, Binary: cfg.GitPath}
	}
	oracle := knowledge.NewOracle(workDir, git)
	oracle.Logger = logger
	a.tracker = &knowledge.Tracker{
		Store:     a.store,
		Oracle:    oracle,
		Telemetry: emitter,
		Logger:    logger,
	}
	return a, nil
}

// Close releases the telemetry file and the reservation ledger.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}
