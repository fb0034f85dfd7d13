package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/allancalix/clerk/internal/model"
	"github.com/allancalix/clerk/internal/sync"
	"github.com/allancalix/clerk/internal/synclog"
	"github.com/allancalix/clerk/internal/upstream"
)

func newSyncCommand() *cobra.Command {
	var itemID string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull transaction deltas for all linked accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			log, err := newLogger(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			st, err := openStore(cfg)
			if err != nil {
				return err
			}

			// A broken script must surface before any link is touched.
			evaluator, err := loadRules(cfg)
			if err != nil {
				return err
			}

			client, err := newClient(cfg)
			if err != nil {
				return err
			}

			links, err := st.ListLinks()
			if err != nil {
				return err
			}

			failed := 0
			for _, link := range links {
				if itemID != "" && link.ItemID != itemID {
					continue
				}
				if link.State != model.LinkActive {
					fmt.Printf("%s: skipped, requires verification\n", link.ItemID)
					continue
				}

				source := upstream.NewSource(client, link.AccessToken)
				syncer := sync.New(st, source, evaluator, log,
					sync.WithAccountSource(source))

				report, err := syncer.Sync(cmd.Context(), link)
				entry := synclog.Entry{
					Timestamp: time.Now().UTC(),
					ItemID:    link.ItemID,
					Added:     report.Added,
					Modified:  report.Modified,
					Removed:   report.Removed,
					Failures:  report.Failures,
					Pages:     report.Pages,
				}
				if err != nil {
					// One link's failure must not keep the others from syncing.
					entry.Error = err.Error()
					failed++
					log.Error("sync failed", zap.String("item_id", link.ItemID), zap.Error(err))
					fmt.Printf("%s: sync failed: %v\n", link.ItemID, err)
				} else {
					fmt.Printf("%s: %d added, %d modified, %d removed, %d uncategorized\n",
						link.ItemID, report.Added, report.Modified, report.Removed, report.Failures)
				}
				if err := synclog.Append(cfg.Data.Dir, []synclog.Entry{entry}); err != nil {
					return err
				}
			}

			if failed > 0 {
				return fmt.Errorf("%d link(s) failed to sync", failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&itemID, "link", "", "sync only the link with this item id")

	return cmd
}
