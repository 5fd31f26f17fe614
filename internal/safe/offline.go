package safe

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gipsh/safe-approver-go/internal/types"
)

// Offline stands in for a Safe on development networks without an RPC
// endpoint: owners come from configuration and hashes from the Hasher.
type Offline struct {
	owners map[common.Address]struct{}
	hasher *Hasher
}

// NewOffline creates an Offline Safe.
func NewOffline(hasher *Hasher, owners ...common.Address) *Offline {
	o := &Offline{owners: make(map[common.Address]struct{}, len(owners)), hasher: hasher}
	for _, owner := range owners {
		o.owners[owner] = struct{}{}
	}
	return o
}

// IsOwner reports whether account is a configured owner.
func (o *Offline) IsOwner(_ context.Context, account common.Address) (bool, error) {
	_, ok := o.owners[account]
	return ok, nil
}

// GetTransactionHash hashes tx locally.
func (o *Offline) GetTransactionHash(_ context.Context, tx types.SafeTx) (common.Hash, error) {
	if err := tx.Validate(); err != nil {
		return common.Hash{}, err
	}
	return o.hasher.Hash(tx), nil
}
