package safe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/gipsh/safe-approver-go/internal/types"
)

// ── ABIs ─────────────────────────────────────────────────────────────────

const gnosisSafeABI = `[{
	"name":"isOwner",
	"type":"function",
	"stateMutability":"view",
	"inputs":[{"name":"owner","type":"address"}],
	"outputs":[{"name":"","type":"bool"}]
},{
	"name":"getTransactionHash",
	"type":"function",
	"stateMutability":"view",
	"inputs":[
		{"name":"to","type":"address"},
		{"name":"value","type":"uint256"},
		{"name":"data","type":"bytes"},
		{"name":"operation","type":"uint8"},
		{"name":"safeTxGas","type":"uint256"},
		{"name":"baseGas","type":"uint256"},
		{"name":"gasPrice","type":"uint256"},
		{"name":"gasToken","type":"address"},
		{"name":"refundReceiver","type":"address"},
		{"name":"_nonce","type":"uint256"}
	],
	"outputs":[{"name":"","type":"bytes32"}]
},{
	"name":"nonce",
	"type":"function",
	"stateMutability":"view",
	"inputs":[],
	"outputs":[{"name":"","type":"uint256"}]
},{
	"name":"getOwners",
	"type":"function",
	"stateMutability":"view",
	"inputs":[],
	"outputs":[{"name":"","type":"address[]"}]
},{
	"name":"getThreshold",
	"type":"function",
	"stateMutability":"view",
	"inputs":[],
	"outputs":[{"name":"","type":"uint256"}]
},{
	"name":"VERSION",
	"type":"function",
	"stateMutability":"view",
	"inputs":[],
	"outputs":[{"name":"","type":"string"}]
}]`

// SafeABI is the parsed subset of the Gnosis Safe ABI used here.
var SafeABI = mustParseABI(gnosisSafeABI)

// Client queries a deployed Gnosis Safe.
type Client struct {
	caller ethereum.ContractCaller
	addr   common.Address
	debug  bool
}

// NewClient wraps caller (usually an *ethclient.Client) for the Safe at addr.
func NewClient(caller ethereum.ContractCaller, addr common.Address) *Client {
	return &Client{caller: caller, addr: addr}
}

// Dial connects to rpcURL and returns the eth client alongside the Safe client.
func Dial(ctx context.Context, rpcURL string, addr common.Address) (*ethclient.Client, *Client, error) {
	cli, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return cli, NewClient(cli, addr), nil
}

// SetDebug enables logging of every contract call.
func (c *Client) SetDebug(debug bool) { c.debug = debug }

// Address returns the Safe address.
func (c *Client) Address() common.Address { return c.addr }

// IsOwner calls Safe.isOwner(account).
func (c *Client) IsOwner(ctx context.Context, account common.Address) (bool, error) {
	var owner bool
	if err := c.call(ctx, &owner, "isOwner", account); err != nil {
		return false, err
	}
	return owner, nil
}

// GetTransactionHash calls Safe.getTransactionHash with every SafeTx field.
func (c *Client) GetTransactionHash(ctx context.Context, tx types.SafeTx) (common.Hash, error) {
	tx = tx.Normalized()
	if err := tx.Validate(); err != nil {
		return common.Hash{}, err
	}
	var hash [32]byte
	err := c.call(ctx, &hash, "getTransactionHash",
		tx.To, tx.Value, tx.Data,
		uint8(tx.Operation),
		tx.SafeTxGas, tx.BaseGas, tx.GasPrice,
		tx.GasToken, tx.RefundReceiver,
		tx.Nonce,
	)
	if err != nil {
		return common.Hash{}, err
	}
	return common.Hash(hash), nil
}

// Nonce returns the Safe's current transaction nonce.
func (c *Client) Nonce(ctx context.Context) (*big.Int, error) {
	var nonce *big.Int
	if err := c.call(ctx, &nonce, "nonce"); err != nil {
		return nil, err
	}
	return nonce, nil
}

// Owners returns the Safe owners.
func (c *Client) Owners(ctx context.Context) ([]common.Address, error) {
	var owners []common.Address
	if err := c.call(ctx, &owners, "getOwners"); err != nil {
		return nil, err
	}
	return owners, nil
}

// Threshold returns the number of owner signatures the Safe requires.
func (c *Client) Threshold(ctx context.Context) (*big.Int, error) {
	var threshold *big.Int
	if err := c.call(ctx, &threshold, "getThreshold"); err != nil {
		return nil, err
	}
	return threshold, nil
}

// Version returns the Safe master copy version (e.g. "1.3.0").
func (c *Client) Version(ctx context.Context) (string, error) {
	var version string
	if err := c.call(ctx, &version, "VERSION"); err != nil {
		return "", err
	}
	return version, nil
}

func (c *Client) call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	calldata, err := SafeABI.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("pack %s: %w", method, err)
	}
	result, err := c.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &c.addr,
		Data: calldata,
	}, nil)
	if err != nil {
		return fmt.Errorf("%s call: %w", method, err)
	}
	if len(result) == 0 {
		return fmt.Errorf("%s call: empty result (is %s a Safe?)", method, c.addr.Hex())
	}
	if err := SafeABI.UnpackIntoInterface(out, method, result); err != nil {
		return fmt.Errorf("unpack %s: %w", method, err)
	}
	if c.debug {
		log.Printf("[safe] %s.%s → %v", c.addr.Hex()[:10], method, out)
	}
	return nil
}

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse ABI: %v", err))
	}
	return parsed
}

// revertErrorCode is the JSON-RPC error code geth and compatible nodes use for
// a reverted eth_call carrying revert data.
const revertErrorCode = 3

// isRevert reports whether err is an EVM revert answered by the node rather
// than a transport error. A revert without data comes back as a generic
// server error, so for those only the node's message tells them apart.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if !errors.As(err, &rpcErr) {
		return false
	}
	if rpcErr.ErrorCode() == revertErrorCode {
		return true
	}
	return strings.HasPrefix(rpcErr.Error(), "execution reverted")
}
