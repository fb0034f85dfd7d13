package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/allancalix/clerk/internal/accounts"
	"github.com/allancalix/clerk/internal/upstream"
)

func newAccountsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Print tracked accounts",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
			if err != nil {
				return err
			}

			accts, err := st.ListAccounts()
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "LINK\tID\tNAME\tTYPE\tLEDGER ACCOUNT")
			for _, a := range accts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", a.ItemID, a.ID, a.Name, a.Type, accounts.Path(a))
			}
			return tw.Flush()
		},
	}

	cmd.AddCommand(newAccountsBalanceCommand())

	return cmd
}

func newAccountsBalanceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Print live balances of all accounts (fetches current data)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			st, err := openStore(cfg)
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

			var balances []upstream.AccountBalance
			for _, link := range links {
				source := upstream.NewSource(client, link.AccessToken)
				got, err := source.Balances(cmd.Context())
				if err != nil {
					return fmt.Errorf("fetching balances for %s: %w", link.ItemID, err)
				}
				balances = append(balances, got...)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)

			fmt.Fprintln(tw, "Assets")
			fmt.Fprintln(tw, "NAME\tAVAILABLE\tCURRENT")
			for _, b := range balances {
				if b.Account.Type.NormalBalance() != "DEBIT_NORMAL" {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Account.Name, display(b.Available, b.Currency), display(b.Current, b.Currency))
			}

			fmt.Fprintln(tw, "")
			fmt.Fprintln(tw, "Liabilities")
			fmt.Fprintln(tw, "NAME\tAVAILABLE\tCURRENT")
			for _, b := range balances {
				if b.Account.Type.NormalBalance() != "CREDIT_NORMAL" {
					continue
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", b.Account.Name, display(b.Available, b.Currency), display(b.Current, b.Currency))
			}

			return tw.Flush()
		},
	}
}

// display formats an amount in its currency's conventional form.
func display(amount decimal.Decimal, currency string) string {
	if money.GetCurrency(currency) == nil {
		currency = money.USD
	}
	f, _ := amount.Float64()
	return money.NewFromFloat(f, currency).Display()
}
