package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/allancalix/clerk/internal/ledger"
)

const dateFormat = "2006-01-02"

func newPrintCommand() *cobra.Command {
	var begin, until string

	cmd := &cobra.Command{
		Use:   "print",
		Short: "Print synced transactions as ledger records",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}

			start := time.Time{}
			if begin != "" {
				if start, err = time.Parse(dateFormat, begin); err != nil {
					return fmt.Errorf("parsing --begin: %w", err)
				}
			}
			end := time.Now()
			if until != "" {
				if end, err = time.Parse(dateFormat, until); err != nil {
					return fmt.Errorf("parsing --until: %w", err)
				}
			}

			entries, err := st.TransactionsBetween(start, end)
			if err != nil {
				return err
			}

			for _, e := range entries {
				if err := ledger.Render(os.Stdout, e.Transaction, e.Postings, e.Tags); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&begin, "begin", "", "first day of records to print (inclusive)")
	cmd.Flags().StringVar(&until, "until", "", "last day of records to print (inclusive)")

	return cmd
}
