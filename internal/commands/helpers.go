package commands

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allancalix/clerk/internal/config"
	"github.com/allancalix/clerk/internal/rules"
	"github.com/allancalix/clerk/internal/store"
	"github.com/allancalix/clerk/internal/upstream"
)

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}
	if path == "" {
		path, err = config.DefaultPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(path)
}

func newLogger(cmd *cobra.Command) (*zap.Logger, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}
	if !verbose {
		return zap.NewNop(), nil
	}
	return zap.NewDevelopment()
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}
	return store.Open(cfg.DatabasePath())
}

// loadRules compiles the configured script. A missing file is the same as no
// script; a script that fails to compile is fatal before any sync work.
func loadRules(cfg *config.Config) (*rules.Evaluator, error) {
	if cfg.Rules.File == "" {
		return nil, nil
	}
	ev, err := rules.Load(cfg.Rules.File, cfg.Rules.MaxSteps)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return ev, err
}

func newClient(cfg *config.Config) (*upstream.Client, error) {
	return upstream.NewClient(cfg.Plaid.ClientID, cfg.Plaid.Secret, cfg.Plaid.Environment)
}
