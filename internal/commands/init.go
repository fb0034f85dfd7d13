package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/allancalix/clerk/internal/config"
)

func newInitCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize clerk for use",
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			if path == "" {
				if path, err = config.DefaultPath(); err != nil {
					return err
				}
			}

			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists at %s", path)
			}

			cfg, err := config.Default()
			if err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return err
			}
			if err := os.MkdirAll(cfg.Data.Dir, 0o755); err != nil {
				return fmt.Errorf("creating data dir: %w", err)
			}

			fmt.Printf("Wrote %s. Add your Plaid credentials before linking accounts.\n", path)
			return nil
		},
	}
}
