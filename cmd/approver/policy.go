package main

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/gipsh/safe-approver-go/internal/api"
	"github.com/gipsh/safe-approver-go/internal/units"
)

func parseAddressArg(arg string) (common.Address, error) {
	if !common.IsHexAddress(arg) {
		return common.Address{}, fmt.Errorf("invalid address %q", arg)
	}
	return common.HexToAddress(arg), nil
}

func printPolicy(p *api.PolicyResponse) error {
	if jsonOutput {
		return printJSON(p)
	}
	fmt.Printf("Safe:      %s\n", p.Safe.Hex())
	fmt.Printf("Admin:     %s\n", p.Admin.Hex())
	fmt.Printf("Limit:     %s ETH (%s wei)\n", p.LimitEther, p.Limit)
	fmt.Printf("Whitelist: %d protocol(s)\n", len(p.Whitelist))
	for _, a := range p.Whitelist {
		fmt.Printf("  %s\n", a.Hex())
	}
	return nil
}

var policyCmd = &cobra.Command{
	Use:     "policy",
	Short:   "Show the approver's current policy",
	GroupID: "policy",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := approverClient.Policy(cmd.Context())
		if err != nil {
			return err
		}
		return printPolicy(p)
	},
}

var limitCmd = &cobra.Command{
	Use:     "limit",
	Short:   "Manage the plain-transfer spend limit",
	GroupID: "policy",
}

var limitSetCmd = &cobra.Command{
	Use:   "set <amount>",
	Short: "Set the spend limit (wei, or ether with an eth suffix)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, err := units.ParseAmount(args[0])
		if err != nil {
			return err
		}
		p, err := approverClient.SetLimit(cmd.Context(), limit)
		if err != nil {
			return err
		}
		return printPolicy(p)
	},
}

var whitelistCmd = &cobra.Command{
	Use:     "whitelist",
	Short:   "Manage whitelisted protocols",
	GroupID: "policy",
}

var whitelistAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Whitelist a protocol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		protocol, err := parseAddressArg(args[0])
		if err != nil {
			return err
		}
		if err := approverClient.AddToWhitelist(cmd.Context(), protocol); err != nil {
			return err
		}
		fmt.Printf("Whitelisted %s\n", protocol.Hex())
		return nil
	},
}

var whitelistRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove a protocol from the whitelist",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		protocol, err := parseAddressArg(args[0])
		if err != nil {
			return err
		}
		if err := approverClient.RemoveFromWhitelist(cmd.Context(), protocol); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", protocol.Hex())
		return nil
	},
}

var whitelistCheckCmd = &cobra.Command{
	Use:   "check <address>",
	Short: "Report whether a protocol is whitelisted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		protocol, err := parseAddressArg(args[0])
		if err != nil {
			return err
		}
		ok, err := approverClient.IsWhitelisted(cmd.Context(), protocol)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(api.WhitelistResponse{Protocol: protocol, Whitelisted: ok})
		}
		fmt.Printf("%s whitelisted: %v\n", protocol.Hex(), ok)
		return nil
	},
}

var adminCmd = &cobra.Command{
	Use:     "admin",
	Short:   "Manage the approver administrator",
	GroupID: "policy",
}

var adminTransferCmd = &cobra.Command{
	Use:   "transfer <address>",
	Short: "Hand administration to another address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		newAdmin, err := parseAddressArg(args[0])
		if err != nil {
			return err
		}
		p, err := approverClient.TransferAdmin(cmd.Context(), newAdmin)
		if err != nil {
			return err
		}
		return printPolicy(p)
	},
}

func init() {
	limitCmd.AddCommand(limitSetCmd)
	whitelistCmd.AddCommand(whitelistAddCmd, whitelistRemoveCmd, whitelistCheckCmd)
	adminCmd.AddCommand(adminTransferCmd)
}
