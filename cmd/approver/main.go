// Command approver is a transaction approval gate in front of a Gnosis Safe.
//
//	approver serve                      run the HTTP/websocket server
//	approver approve --to … --value …   ask a server to approve a SafeTx
//	approver policy | limit | whitelist | admin
//	approver hash                       compute a SafeTx hash offline
//	approver watch                      stream policy and approval events
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/gipsh/safe-approver-go/internal/client"
	"github.com/gipsh/safe-approver-go/internal/config"
)

var (
	jsonOutput  bool
	approverURL string

	approverClient *client.Client
)

var rootCmd = &cobra.Command{
	Use:           "approver <command>",
	Short:         "Policy-checked approval of Gnosis Safe transactions",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := config.Load(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if approverURL != "" {
			config.ApproverURL = approverURL
		}
		c, err := client.NewFromConfig()
		if err != nil {
			return err
		}
		approverClient = c
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&approverURL, "url", "", "approver server URL (default $APPROVER_URL)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "server", Title: "Server:"},
		&cobra.Group{ID: "approvals", Title: "Approvals:"},
		&cobra.Group{ID: "policy", Title: "Policy administration:"},
	)
	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)

	rootCmd.AddCommand(approveCmd)
	rootCmd.AddCommand(hashCmd)

	rootCmd.AddCommand(policyCmd)
	rootCmd.AddCommand(limitCmd)
	rootCmd.AddCommand(whitelistCmd)
	rootCmd.AddCommand(adminCmd)
}

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
