// Package types defines the shared domain types for the approver:
// the Safe transaction request and the notifications the gate emits.
package types

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

// ── Safe transaction ──────────────────────────────────────────────────────

// Operation is the Safe execution mode. The gate passes it through unexamined.
type Operation uint8

const (
	OpCall         Operation = 0
	OpDelegateCall Operation = 1
)

func (o Operation) String() string {
	switch o {
	case OpCall:
		return "CALL"
	case OpDelegateCall:
		return "DELEGATECALL"
	default:
		return fmt.Sprintf("OPERATION(%d)", uint8(o))
	}
}

// SafeTx is a proposed Safe transaction. Only To, Value and Data drive the
// policy decision; the remaining fields are carried so the Safe's own
// transaction hash can be reproduced.
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          *big.Int
}

// NewSafeTx returns a CALL transaction with zeroed gas fields.
func NewSafeTx(to common.Address, value *big.Int, data []byte, nonce *big.Int) SafeTx {
	return SafeTx{
		To:        to,
		Value:     value,
		Data:      data,
		Operation: OpCall,
		Nonce:     nonce,
	}.Normalized()
}

// Normalized returns a copy with nil integers replaced by zero.
func (tx SafeTx) Normalized() SafeTx {
	tx.Value = orZero(tx.Value)
	tx.SafeTxGas = orZero(tx.SafeTxGas)
	tx.BaseGas = orZero(tx.BaseGas)
	tx.GasPrice = orZero(tx.GasPrice)
	tx.Nonce = orZero(tx.Nonce)
	if tx.Data == nil {
		tx.Data = []byte{}
	}
	return tx
}

// maxUint256 is 2^256 - 1.
var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Validate checks that every integer field fits a Solidity uint256. Nil
// fields count as zero.
func (tx SafeTx) Validate() error {
	for _, f := range []struct {
		name string
		v    *big.Int
	}{
		{"value", tx.Value},
		{"safeTxGas", tx.SafeTxGas},
		{"baseGas", tx.BaseGas},
		{"gasPrice", tx.GasPrice},
		{"nonce", tx.Nonce},
	} {
		if f.v == nil {
			continue
		}
		if f.v.Sign() < 0 || f.v.Cmp(maxUint256) > 0 {
			return &FieldRangeError{Field: f.name, Value: new(big.Int).Set(f.v)}
		}
	}
	return nil
}

// FieldRangeError reports a SafeTx integer outside [0, 2^256).
type FieldRangeError struct {
	Field string
	Value *big.Int
}

func (e *FieldRangeError) Error() string {
	return fmt.Sprintf("%s %s is not a uint256", e.Field, e.Value)
}

// IsPlainTransfer returns true when no call payload is attached.
func (tx SafeTx) IsPlainTransfer() bool {
	return len(tx.Data) == 0
}

// String returns a short human-readable summary.
func (tx SafeTx) String() string {
	return fmt.Sprintf("SafeTx(to=%s value=%s data=%s op=%s nonce=%s)",
		tx.To.Hex(), orZero(tx.Value), hexutil.Encode(tx.Data), tx.Operation, orZero(tx.Nonce))
}

// safeTxJSON is the wire shape, matching the Safe SDK transaction data:
// integers as decimal strings, bytes and addresses as 0x-hex.
type safeTxJSON struct {
	To             common.Address `json:"to"`
	Value          string         `json:"value"`
	Data           hexutil.Bytes  `json:"data"`
	Operation      uint8          `json:"operation"`
	SafeTxGas      string         `json:"safeTxGas"`
	BaseGas        string         `json:"baseGas"`
	GasPrice       string         `json:"gasPrice"`
	GasToken       common.Address `json:"gasToken"`
	RefundReceiver common.Address `json:"refundReceiver"`
	Nonce          string         `json:"nonce"`
}

// MarshalJSON implements json.Marshaler.
func (tx SafeTx) MarshalJSON() ([]byte, error) {
	n := tx.Normalized()
	return json.Marshal(safeTxJSON{
		To:             n.To,
		Value:          n.Value.String(),
		Data:           n.Data,
		Operation:      uint8(n.Operation),
		SafeTxGas:      n.SafeTxGas.String(),
		BaseGas:        n.BaseGas.String(),
		GasPrice:       n.GasPrice.String(),
		GasToken:       n.GasToken,
		RefundReceiver: n.RefundReceiver,
		Nonce:          n.Nonce.String(),
	})
}

// UnmarshalJSON implements json.Unmarshaler. Integer fields accept decimal
// or 0x-hex strings; missing integers default to zero.
func (tx *SafeTx) UnmarshalJSON(b []byte) error {
	var w safeTxJSON
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := SafeTx{
		To:             w.To,
		Data:           w.Data,
		Operation:      Operation(w.Operation),
		GasToken:       w.GasToken,
		RefundReceiver: w.RefundReceiver,
	}
	fields := []struct {
		name string
		raw  string
		dst  **big.Int
	}{
		{"value", w.Value, &out.Value},
		{"safeTxGas", w.SafeTxGas, &out.SafeTxGas},
		{"baseGas", w.BaseGas, &out.BaseGas},
		{"gasPrice", w.GasPrice, &out.GasPrice},
		{"nonce", w.Nonce, &out.Nonce},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		v, ok := math.ParseBig256(f.raw)
		if !ok {
			return fmt.Errorf("invalid %s: %q", f.name, f.raw)
		}
		*f.dst = v
	}
	out = out.Normalized()
	if err := out.Validate(); err != nil {
		return err
	}
	*tx = out
	return nil
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return new(big.Int)
	}
	return n
}

// ── Notifications ─────────────────────────────────────────────────────────

// EventKind names a notification emitted by the gate.
type EventKind string

const (
	EventLimitChanged        EventKind = "LimitChanged"
	EventWhitelistAdded      EventKind = "WhitelistAdded"
	EventWhitelistRemoved    EventKind = "WhitelistRemoved"
	EventTransactionApproved EventKind = "TransactionApproved"
	EventAdminTransferred    EventKind = "AdminTransferred"
)

// Event is a single notification. Seq and Time are assigned on publish.
type Event struct {
	Seq        uint64          `json:"seq"`
	Kind       EventKind       `json:"kind"`
	Time       time.Time       `json:"time"`
	Limit      *big.Int        `json:"limit,omitempty"`
	Protocol   *common.Address `json:"protocol,omitempty"`
	SafeTxHash *common.Hash    `json:"safeTxHash,omitempty"`
	Admin      *common.Address `json:"admin,omitempty"`
}

// LimitChanged creates a LimitChanged event.
func LimitChanged(limit *big.Int) Event {
	return Event{Kind: EventLimitChanged, Limit: new(big.Int).Set(limit)}
}

// WhitelistAdded creates a WhitelistAdded event.
func WhitelistAdded(protocol common.Address) Event {
	return Event{Kind: EventWhitelistAdded, Protocol: &protocol}
}

// WhitelistRemoved creates a WhitelistRemoved event.
func WhitelistRemoved(protocol common.Address) Event {
	return Event{Kind: EventWhitelistRemoved, Protocol: &protocol}
}

// TransactionApproved creates a TransactionApproved event.
func TransactionApproved(hash common.Hash) Event {
	return Event{Kind: EventTransactionApproved, SafeTxHash: &hash}
}

// AdminTransferred creates an AdminTransferred event.
func AdminTransferred(admin common.Address) Event {
	return Event{Kind: EventAdminTransferred, Admin: &admin}
}

// String returns a human-readable summary.
func (e Event) String() string {
	switch e.Kind {
	case EventLimitChanged:
		return fmt.Sprintf("#%d %s(%s)", e.Seq, e.Kind, e.Limit)
	case EventWhitelistAdded, EventWhitelistRemoved:
		return fmt.Sprintf("#%d %s(%s)", e.Seq, e.Kind, e.Protocol.Hex())
	case EventTransactionApproved:
		return fmt.Sprintf("#%d %s(%s)", e.Seq, e.Kind, e.SafeTxHash.Hex())
	case EventAdminTransferred:
		return fmt.Sprintf("#%d %s(%s)", e.Seq, e.Kind, e.Admin.Hex())
	default:
		return fmt.Sprintf("#%d %s", e.Seq, e.Kind)
	}
}
