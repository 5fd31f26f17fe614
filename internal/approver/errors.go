package approver

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ErrRejected matches every policy rejection returned by Evaluate.
// Collaborator failures do not match it.
var ErrRejected = errors.New("transaction rejected")

// NotAWalletOwnerError: the caller is not an owner of the Safe.
type NotAWalletOwnerError struct {
	Caller common.Address
}

func (e *NotAWalletOwnerError) Error() string {
	return fmt.Sprintf("%s is not a Safe owner", e.Caller.Hex())
}

func (e *NotAWalletOwnerError) Is(target error) bool { return target == ErrRejected }

// AssetInteractionBlockedError: the destination declares an NFT interface.
type AssetInteractionBlockedError struct {
	Destination common.Address
}

func (e *AssetInteractionBlockedError) Error() string {
	return fmt.Sprintf("interaction with NFT contract %s is not allowed", e.Destination.Hex())
}

func (e *AssetInteractionBlockedError) Is(target error) bool { return target == ErrRejected }

// TransactionNotAllowedError: a plain transfer above the limit, or a call
// to a protocol that is not whitelisted.
type TransactionNotAllowedError struct {
	Destination common.Address
	Value       *big.Int
	Data        []byte
}

func (e *TransactionNotAllowedError) Error() string {
	return fmt.Sprintf("transaction not allowed: to=%s value=%s data=%s",
		e.Destination.Hex(), e.Value, hexutil.Encode(e.Data))
}

func (e *TransactionNotAllowedError) Is(target error) bool { return target == ErrRejected }

// InvalidTransactionError: an integer field of the request does not fit a
// uint256, so the Safe could never hash or execute it as given.
type InvalidTransactionError struct {
	Field string
	Value *big.Int
}

func (e *InvalidTransactionError) Error() string {
	return fmt.Sprintf("invalid transaction: %s %s is not a uint256", e.Field, e.Value)
}

func (e *InvalidTransactionError) Is(target error) bool { return target == ErrRejected }
