package main

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gipsh/safe-approver-go/internal/types"
)

func parseTxFlags(t *testing.T, args ...string) (types.SafeTx, error) {
	t.Helper()
	var f txFlags
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.register(fs)
	require.NoError(t, fs.Parse(args))
	return f.build()
}

func TestTxFlags(t *testing.T) {
	tx, err := parseTxFlags(t,
		"--to", "0x00000000000000000000000000000000000000c3",
		"--value", "0.25eth",
		"--data", "0x42966c68",
		"--nonce", "7",
		"--gas-token", "0x00000000000000000000000000000000000000d4",
	)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xc3"), tx.To)
	assert.Equal(t, "250000000000000000", tx.Value.String())
	assert.Equal(t, []byte{0x42, 0x96, 0x6c, 0x68}, tx.Data)
	assert.Equal(t, big.NewInt(7), tx.Nonce)
	assert.Equal(t, common.HexToAddress("0xd4"), tx.GasToken)
	assert.Equal(t, types.OpCall, tx.Operation)
	assert.False(t, tx.IsPlainTransfer())

	tx, err = parseTxFlags(t, "--to", "0x00000000000000000000000000000000000000c3")
	require.NoError(t, err)
	assert.Nil(t, tx.Nonce)
	assert.True(t, tx.IsPlainTransfer())
	assert.Zero(t, tx.Value.Sign())
}

func TestTxFlagsErrors(t *testing.T) {
	to := "0x00000000000000000000000000000000000000c3"
	tests := map[string][]string{
		"missing to":      {},
		"bad value":       {"--to", to, "--value", "a lot"},
		"negative value":  {"--to", to, "--value", "-1"},
		"value of 2^256":  {"--to", to, "--value", "115792089237316195423570985008687907853269984665640564039457584007913129639936"},
		"nonce of 2^256":  {"--to", to, "--nonce", "115792089237316195423570985008687907853269984665640564039457584007913129639936"},
		"bad data":        {"--to", to, "--data", "zz"},
		"bad operation":   {"--to", to, "--operation", "2"},
		"bad nonce":       {"--to", to, "--nonce", "x"},
		"bad gas token":   {"--to", to, "--gas-token", "0x12"},
		"bad refund addr": {"--to", to, "--refund-receiver", "nope"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := parseTxFlags(t, args...)
			assert.Error(t, err)
		})
	}
}

func TestParseAddressArg(t *testing.T) {
	addr, err := parseAddressArg("0x1B55c54E870cb58d013B4AE39E276894ce1e0EdD")
	require.NoError(t, err)
	assert.Equal(t, "0x1B55c54E870cb58d013B4AE39E276894ce1e0EdD", addr.Hex())

	_, err = parseAddressArg("0x1B55")
	assert.Error(t, err)
}
