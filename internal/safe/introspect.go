package safe

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gipsh/safe-approver-go/internal/approver"
)

const erc165ABI = `[{
	"name":"supportsInterface",
	"type":"function",
	"stateMutability":"view",
	"inputs":[{"name":"interfaceId","type":"bytes4"}],
	"outputs":[{"name":"","type":"bool"}]
}]`

// ERC165ABI is the parsed IERC165 ABI.
var ERC165ABI = mustParseABI(erc165ABI)

// ERC165 asks contracts directly whether they declare an interface.
// Accounts without code, contracts that revert and contracts returning
// malformed data are treated as not declaring it.
type ERC165 struct {
	caller ethereum.ContractCaller
}

// NewERC165 creates an on-chain introspector.
func NewERC165(caller ethereum.ContractCaller) *ERC165 {
	return &ERC165{caller: caller}
}

// SupportsInterface calls contract.supportsInterface(id).
func (e *ERC165) SupportsInterface(ctx context.Context, contract common.Address, id approver.InterfaceID) (bool, error) {
	calldata, err := ERC165ABI.Pack("supportsInterface", [4]byte(id))
	if err != nil {
		return false, fmt.Errorf("pack supportsInterface: %w", err)
	}
	result, err := e.caller.CallContract(ctx, ethereum.CallMsg{
		To:   &contract,
		Data: calldata,
	}, nil)
	if err != nil {
		if isRevert(err) {
			return false, nil
		}
		return false, fmt.Errorf("supportsInterface call: %w", err)
	}
	if len(result) != 32 {
		return false, nil
	}
	var supported bool
	if err := ERC165ABI.UnpackIntoInterface(&supported, "supportsInterface", result); err != nil {
		log.Printf("[safe] %s returned malformed supportsInterface data: %v", contract.Hex(), err)
		return false, nil
	}
	return supported, nil
}

// Static is a fixed classification table: listed contracts declare every
// interface they are asked about.
type Static struct {
	contracts map[common.Address]struct{}
}

// NewStatic creates a Static introspector for contracts.
func NewStatic(contracts ...common.Address) *Static {
	s := &Static{contracts: make(map[common.Address]struct{}, len(contracts))}
	for _, c := range contracts {
		s.contracts[c] = struct{}{}
	}
	return s
}

// SupportsInterface reports whether contract is in the table.
func (s *Static) SupportsInterface(_ context.Context, contract common.Address, _ approver.InterfaceID) (bool, error) {
	_, ok := s.contracts[contract]
	return ok, nil
}

// Any declares an interface when any of its introspectors does.
type Any []approver.Introspector

// SupportsInterface queries each introspector in order and stops at the
// first positive answer or error.
func (a Any) SupportsInterface(ctx context.Context, contract common.Address, id approver.InterfaceID) (bool, error) {
	for _, in := range a {
		ok, err := in.SupportsInterface(ctx, contract, id)
		if err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}
