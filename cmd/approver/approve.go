package main

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gipsh/safe-approver-go/internal/api"
	"github.com/gipsh/safe-approver-go/internal/config"
	"github.com/gipsh/safe-approver-go/internal/safe"
	"github.com/gipsh/safe-approver-go/internal/types"
	"github.com/gipsh/safe-approver-go/internal/units"
)

// txFlags collects the SafeTx fields shared by approve and hash.
type txFlags struct {
	to             string
	value          string
	data           string
	operation      uint8
	safeTxGas      string
	baseGas        string
	gasPrice       string
	gasToken       string
	refundReceiver string
	nonce          string
}

func (f *txFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.to, "to", "", "destination address (required)")
	fs.StringVar(&f.value, "value", "0", "value in wei, or ether with an eth suffix (0.01eth)")
	fs.StringVar(&f.data, "data", "0x", "hex calldata")
	fs.Uint8Var(&f.operation, "operation", 0, "0 = call, 1 = delegatecall")
	fs.StringVar(&f.safeTxGas, "safe-tx-gas", "0", "safeTxGas")
	fs.StringVar(&f.baseGas, "base-gas", "0", "baseGas")
	fs.StringVar(&f.gasPrice, "gas-price", "0", "gasPrice")
	fs.StringVar(&f.gasToken, "gas-token", "", "gas token address (default ETH)")
	fs.StringVar(&f.refundReceiver, "refund-receiver", "", "refund receiver address")
	fs.StringVar(&f.nonce, "nonce", "", "Safe nonce (default: read from chain)")
}

// build parses the flags. The nonce is left nil when not given.
func (f *txFlags) build() (types.SafeTx, error) {
	var tx types.SafeTx
	if !common.IsHexAddress(f.to) {
		return tx, fmt.Errorf("--to: invalid address %q", f.to)
	}
	tx.To = common.HexToAddress(f.to)

	var err error
	if tx.Value, err = units.ParseAmount(f.value); err != nil {
		return tx, fmt.Errorf("--value: %w", err)
	}
	if tx.Data, err = hexutil.Decode(f.data); err != nil {
		return tx, fmt.Errorf("--data: %w", err)
	}
	if f.operation > uint8(types.OpDelegateCall) {
		return tx, fmt.Errorf("--operation: must be 0 or 1, got %d", f.operation)
	}
	tx.Operation = types.Operation(f.operation)

	for _, n := range []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"--safe-tx-gas", f.safeTxGas, &tx.SafeTxGas},
		{"--base-gas", f.baseGas, &tx.BaseGas},
		{"--gas-price", f.gasPrice, &tx.GasPrice},
		{"--nonce", f.nonce, &tx.Nonce},
	} {
		if n.raw == "" {
			continue
		}
		if *n.dst, err = units.ParseAmount(n.raw); err != nil {
			return tx, fmt.Errorf("%s: %w", n.name, err)
		}
	}

	for _, a := range []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"--gas-token", f.gasToken, &tx.GasToken},
		{"--refund-receiver", f.refundReceiver, &tx.RefundReceiver},
	} {
		if a.raw == "" {
			continue
		}
		if !common.IsHexAddress(a.raw) {
			return tx, fmt.Errorf("%s: invalid address %q", a.name, a.raw)
		}
		*a.dst = common.HexToAddress(a.raw)
	}
	if err := tx.Validate(); err != nil {
		return tx, err
	}
	return tx, nil
}

var approveFlags txFlags

var approveCmd = &cobra.Command{
	Use:     "approve",
	Short:   "Ask the approver to approve a Safe transaction",
	GroupID: "approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		tx, err := approveFlags.build()
		if err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(cmd.Context(), time.Duration(config.CallTimeoutSec)*time.Second)
		defer cancel()

		if tx.Nonce == nil {
			if tx.Nonce, err = currentNonce(ctx); err != nil {
				return err
			}
		}

		hash, err := approverClient.Approve(ctx, tx)
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(api.ApproveResponse{SafeTxHash: hash})
		}
		fmt.Printf("Approved %s\nsafeTxHash: %s\n", tx, hash.Hex())
		return nil
	},
}

// currentNonce reads the Safe's nonce, or assumes 0 when no RPC is configured.
func currentNonce(ctx context.Context) (*big.Int, error) {
	if config.RPCURL == "" {
		log.Println("[approve] no RPC_URL and no --nonce; using nonce 0")
		return new(big.Int), nil
	}
	ec, wallet, err := safe.Dial(ctx, config.RPCURL, config.SafeAddress)
	if err != nil {
		return nil, err
	}
	defer ec.Close()
	return wallet.Nonce(ctx)
}

var hashFlags txFlags

var hashCmd = &cobra.Command{
	Use:     "hash",
	Short:   "Compute a Safe transaction hash without contacting a server",
	GroupID: "approvals",
	RunE: func(cmd *cobra.Command, args []string) error {
		tx, err := hashFlags.build()
		if err != nil {
			return err
		}
		if tx.Nonce == nil {
			tx.Nonce = new(big.Int)
		}
		hasher := safe.NewHasherForVersion(config.SafeVersion, config.ChainID, config.SafeAddress)
		hash := hasher.Hash(tx.Normalized())
		if jsonOutput {
			return printJSON(struct {
				SafeTx          types.SafeTx `json:"safeTx"`
				DomainSeparator common.Hash  `json:"domainSeparator"`
				SafeTxHash      common.Hash  `json:"safeTxHash"`
			}{tx.Normalized(), hasher.DomainSeparator(), hash})
		}
		fmt.Printf("domainSeparator: %s\nsafeTxHash:      %s\n", hasher.DomainSeparator().Hex(), hash.Hex())
		return nil
	},
}

func init() {
	approveFlags.register(approveCmd.Flags())
	hashFlags.register(hashCmd.Flags())
	_ = approveCmd.MarkFlagRequired("to")
	_ = hashCmd.MarkFlagRequired("to")
}
