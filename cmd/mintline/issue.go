package main

import (
	"os"

	"github.com/aretw0/mintline"
	"github.com/aretw0/mintline/internal/cli"
	"github.com/aretw0/mintline/internal/presentation/tui"
	httpapi "github.com/aretw0/mintline/pkg/adapters/http"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a token in the foreground",
	Long: `Runs one issuance to completion: prepares the distribution account, waits for
the trustline, asks the configured signer for the emission signature and prints
the result. Interrupting the command leaves the workflow in the store, where
"mintline workflow retry" can pick it up.`,
	Example: `  mintline issue --creator GABC... --code SONG --name "My Song" --supply 1000000 --tier premium`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sc := cli.NewSignalContext(cmd.Context())
		defer sc.Cancel()
		cmd.SetContext(sc)

		body := httpapi.CreateRequest{}
		body.Creator, _ = cmd.Flags().GetString("creator")
		body.AssetCode, _ = cmd.Flags().GetString("code")
		body.DisplayName, _ = cmd.Flags().GetString("name")
		body.TotalSupply, _ = cmd.Flags().GetString("supply")
		body.Description, _ = cmd.Flags().GetString("description")
		body.Tier, _ = cmd.Flags().GetString("tier")
		if cmd.Flags().Changed("fee-bps") {
			fee, _ := cmd.Flags().GetInt("fee-bps")
			body.FeeBps = &fee
		}
		req, err := body.IssuanceRequest()
		if err != nil {
			return err
		}

		app, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		out := cmd.OutOrStdout()
		if f, ok := out.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
			tui.PrintBanner(out, mintline.Version)
		}

		_, err = cli.Issue(sc, app.Service, tui.NewPrinter(out), cli.IssueOptions{Request: req})
		return err
	},
}

func init() {
	rootCmd.AddCommand(issueCmd)
	f := issueCmd.Flags()
	f.String("creator", "", "Issuer account of the creator")
	f.String("code", "", "Asset code (1-12 letters or digits)")
	f.String("name", "", "Display name of the token")
	f.String("supply", "", "Total supply to mint")
	f.String("description", "", "Optional token description")
	f.String("tier", "", "Fee tier: basic, premium or vip (default premium)")
	f.Int("fee-bps", 0, "Platform fee in basis points (ignored when --tier is set)")
	_ = issueCmd.MarkFlagRequired("creator")
	_ = issueCmd.MarkFlagRequired("code")
	_ = issueCmd.MarkFlagRequired("name")
	_ = issueCmd.MarkFlagRequired("supply")
}
