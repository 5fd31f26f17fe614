package types

import (
	"encoding/json"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeTxUnmarshal(t *testing.T) {
	var tx SafeTx
	require.NoError(t, json.Unmarshal([]byte(`{
		"to":"0x00000000000000000000000000000000000000c3",
		"value":"0x10",
		"data":"0x42966c68",
		"nonce":"12"
	}`), &tx))
	assert.Equal(t, common.HexToAddress("0xc3"), tx.To)
	assert.Equal(t, int64(16), tx.Value.Int64())
	assert.Equal(t, int64(12), tx.Nonce.Int64())
	assert.Zero(t, tx.GasPrice.Sign())
	assert.False(t, tx.IsPlainTransfer())
}

func TestSafeTxUnmarshalRejectsOutOfRange(t *testing.T) {
	tests := map[string]string{
		"negative value":     `{"to":"0x00000000000000000000000000000000000000c3","value":"-5000000000000000000"}`,
		"negative nonce":     `{"to":"0x00000000000000000000000000000000000000c3","nonce":"-1"}`,
		"negative safeTxGas": `{"to":"0x00000000000000000000000000000000000000c3","safeTxGas":"-0x1"}`,
		"value of 2^256":     `{"to":"0x00000000000000000000000000000000000000c3","value":"115792089237316195423570985008687907853269984665640564039457584007913129639936"}`,
		"not a number":       `{"to":"0x00000000000000000000000000000000000000c3","value":"five"}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			var tx SafeTx
			assert.Error(t, json.Unmarshal([]byte(raw), &tx))
		})
	}
}

func TestSafeTxValidate(t *testing.T) {
	max := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))
	assert.NoError(t, NewSafeTx(common.Address{}, max, nil, max).Validate())
	assert.NoError(t, SafeTx{}.Validate())

	err := NewSafeTx(common.Address{}, new(big.Int).Add(max, big.NewInt(1)), nil, nil).Validate()
	var rangeErr *FieldRangeError
	require.ErrorAs(t, err, &rangeErr)
	assert.Equal(t, "value", rangeErr.Field)

	tx := NewSafeTx(common.Address{}, big.NewInt(1), nil, nil)
	tx.BaseGas = big.NewInt(-7)
	require.ErrorAs(t, tx.Validate(), &rangeErr)
	assert.Equal(t, "baseGas", rangeErr.Field)
	assert.Equal(t, int64(-7), rangeErr.Value.Int64())
}
