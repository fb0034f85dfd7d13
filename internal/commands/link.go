package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/allancalix/clerk/internal/synclog"
)

func newLinkCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "link",
		Short: "Manage account links",
		Long: "Manage links to upstream institutions. Creating a link happens through " +
			"the external linking flow; this command inspects and removes stored links.",
	}

	cmd.AddCommand(newLinkStatusCommand())
	cmd.AddCommand(newLinkDeleteCommand())

	return cmd
}

func newLinkStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Display all links and their current status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}

			links, err := st.ListLinks()
			if err != nil {
				return err
			}

			history, err := synclog.Read(cfg.Data.Dir)
			if err != nil {
				return err
			}
			lastSync := make(map[string]synclog.Entry)
			for _, e := range history {
				lastSync[e.ItemID] = e
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ITEM ID\tALIAS\tSTATE\tLAST SYNC")
			for _, link := range links {
				last := "never"
				if e, ok := lastSync[link.ItemID]; ok {
					last = e.Timestamp.Format("2006-01-02 15:04")
					if e.Error != "" {
						last += " (failed)"
					}
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", link.ItemID, link.Alias, link.State, last)
			}
			return tw.Flush()
		},
	}
}

func newLinkDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <item_id>",
		Short: "Delete an account link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}

			itemID := args[0]
			if _, err := st.GetLink(itemID); err != nil {
				return err
			}
			if err := st.DeleteLink(itemID); err != nil {
				return err
			}

			fmt.Printf("Deleted link %s. Historical transactions were retained.\n", itemID)
			return nil
		},
	}
}
