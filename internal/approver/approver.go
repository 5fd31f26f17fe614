// Package approver is the decision engine that sits in front of a Gnosis Safe.
//
// Evaluation order (each step is a hard gate):
//
//	caller is a Safe owner → destination is not an NFT contract →
//	plain transfer within limit, or call to a whitelisted protocol →
//	Safe transaction hash → TransactionApproved
package approver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gipsh/safe-approver-go/internal/events"
	"github.com/gipsh/safe-approver-go/internal/policy"
	"github.com/gipsh/safe-approver-go/internal/types"
)

// InterfaceID is an ERC-165 interface identifier.
type InterfaceID [4]byte

var (
	// ERC721InterfaceID is type(IERC721).interfaceId.
	ERC721InterfaceID = InterfaceID{0x80, 0xac, 0x58, 0xcd}
	// ERC1155InterfaceID is type(IERC1155).interfaceId.
	ERC1155InterfaceID = InterfaceID{0xd9, 0xb6, 0x7a, 0x26}
)

// Safe is the wallet collaborator.
type Safe interface {
	IsOwner(ctx context.Context, account common.Address) (bool, error)
	GetTransactionHash(ctx context.Context, tx types.SafeTx) (common.Hash, error)
}

// Introspector answers ERC-165 capability queries for a contract.
type Introspector interface {
	SupportsInterface(ctx context.Context, contract common.Address, id InterfaceID) (bool, error)
}

// Approver evaluates Safe transactions against the policy store.
// Evaluations and policy mutations are serialized; each runs to completion
// before the next is observed.
type Approver struct {
	mu           sync.Mutex
	policy       *policy.Store
	safe         Safe
	introspector Introspector
	emitter      events.Emitter
	assetIDs     []InterfaceID
}

// Option customizes an Approver.
type Option func(*Approver)

// WithAssetInterfaces replaces the interface IDs that mark a destination as
// an NFT contract. Defaults to ERC-721 and ERC-1155.
func WithAssetInterfaces(ids ...InterfaceID) Option {
	return func(a *Approver) {
		a.assetIDs = append([]InterfaceID(nil), ids...)
	}
}

// New creates an Approver. The emitter should be the one store publishes to.
func New(store *policy.Store, safe Safe, introspector Introspector, emitter events.Emitter, opts ...Option) *Approver {
	a := &Approver{
		policy:       store,
		safe:         safe,
		introspector: introspector,
		emitter:      emitter,
		assetIDs:     []InterfaceID{ERC721InterfaceID, ERC1155InterfaceID},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Evaluate decides whether caller may have tx proceed to signature
// collection. On approval it returns the Safe transaction hash and emits
// TransactionApproved; otherwise it returns a rejection (errors.Is
// ErrRejected) or a wrapped collaborator failure.
func (a *Approver) Evaluate(ctx context.Context, caller common.Address, tx types.SafeTx) (common.Hash, error) {
	tx = tx.Normalized()
	if err := tx.Validate(); err != nil {
		var rangeErr *types.FieldRangeError
		if errors.As(err, &rangeErr) {
			log.Printf("[approver] ✗ %v", err)
			return common.Hash{}, &InvalidTransactionError{Field: rangeErr.Field, Value: rangeErr.Value}
		}
		return common.Hash{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// ── Membership ────────────────────────────────────────────────────
	owner, err := a.safe.IsOwner(ctx, caller)
	if err != nil {
		return common.Hash{}, fmt.Errorf("safe isOwner(%s): %w", caller.Hex(), err)
	}
	if !owner {
		log.Printf("[approver] ✗ %s is not a Safe owner", caller.Hex())
		return common.Hash{}, &NotAWalletOwnerError{Caller: caller}
	}

	// ── NFT guard: overrides whitelist and limit ──────────────────────
	for _, id := range a.assetIDs {
		nft, err := a.introspector.SupportsInterface(ctx, tx.To, id)
		if err != nil {
			return common.Hash{}, fmt.Errorf("supportsInterface(%s, %x): %w", tx.To.Hex(), id, err)
		}
		if nft {
			log.Printf("[approver] ✗ %s declares NFT interface %x", tx.To.Hex(), id)
			return common.Hash{}, &AssetInteractionBlockedError{Destination: tx.To}
		}
	}

	// ── Routing ───────────────────────────────────────────────────────
	if !a.allowed(tx) {
		log.Printf("[approver] ✗ not allowed: %s", tx)
		return common.Hash{}, &TransactionNotAllowedError{
			Destination: tx.To,
			Value:       new(big.Int).Set(tx.Value),
			Data:        bytes.Clone(tx.Data),
		}
	}

	// ── Hash & record ─────────────────────────────────────────────────
	hash, err := a.safe.GetTransactionHash(ctx, tx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("safe getTransactionHash: %w", err)
	}
	a.emitter.Emit(types.TransactionApproved(hash))
	log.Printf("[approver] ✅ approved %s by %s → %s", tx, caller.Hex(), hash.Hex())
	return hash, nil
}

// allowed applies the value/whitelist routing. Plain transfers are bounded by
// the limit alone; calls with data need a whitelisted destination and are
// not checked against the limit.
func (a *Approver) allowed(tx types.SafeTx) bool {
	if tx.IsPlainTransfer() {
		return tx.Value.Cmp(a.policy.Limit()) <= 0
	}
	return a.policy.IsWhitelisted(tx.To)
}

// ── Policy surface ────────────────────────────────────────────────────────

// Safe returns the wallet address the gate serves.
func (a *Approver) Safe() common.Address { return a.policy.Safe() }

// Admin returns the current administrator.
func (a *Approver) Admin() common.Address { return a.policy.Admin() }

// Limit returns the plain-transfer limit in wei.
func (a *Approver) Limit() *big.Int { return a.policy.Limit() }

// IsWhitelisted reports whether protocol may receive calls with data.
func (a *Approver) IsWhitelisted(protocol common.Address) bool {
	return a.policy.IsWhitelisted(protocol)
}

// Whitelist returns the whitelisted protocols.
func (a *Approver) Whitelist() []common.Address { return a.policy.Whitelist() }

// SetLimit replaces the limit. Administrator only.
func (a *Approver) SetLimit(caller common.Address, limit *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.policy.SetLimit(caller, limit)
}

// AddToWhitelist whitelists protocol. Administrator only.
func (a *Approver) AddToWhitelist(caller, protocol common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.policy.AddToWhitelist(caller, protocol)
}

// RemoveFromWhitelist removes protocol. Administrator only.
func (a *Approver) RemoveFromWhitelist(caller, protocol common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.policy.RemoveFromWhitelist(caller, protocol)
}

// TransferAdmin reassigns administration. Administrator only.
func (a *Approver) TransferAdmin(caller, newAdmin common.Address) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.policy.TransferAdmin(caller, newAdmin)
}
