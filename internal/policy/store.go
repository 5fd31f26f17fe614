// Package policy holds the approver's administrator-controlled state:
// the Safe it serves, the plain-transfer spend limit and the protocol whitelist.
package policy

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gipsh/safe-approver-go/internal/events"
	"github.com/gipsh/safe-approver-go/internal/types"
)

var (
	// ErrUnauthorized matches every *UnauthorizedError.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalid is wrapped by mutations rejected for their arguments.
	ErrInvalid = errors.New("invalid policy value")
)

// UnauthorizedError is returned when a non-administrator attempts a mutation.
type UnauthorizedError struct {
	Caller common.Address
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized: %s is not the administrator", e.Caller.Hex())
}

// Is reports ErrUnauthorized as a match.
func (e *UnauthorizedError) Is(target error) bool {
	return target == ErrUnauthorized
}

// Config is the construction input for a Store.
type Config struct {
	Admin     common.Address
	Safe      common.Address
	Limit     *big.Int
	Whitelist []common.Address
}

// Store is the policy state. Reads are point-in-time snapshots; every
// mutation is checked against the administrator and emits exactly one event.
type Store struct {
	mu        sync.RWMutex
	admin     common.Address
	safe      common.Address
	limit     *big.Int
	whitelist map[common.Address]struct{}
	emitter   events.Emitter
}

// New validates cfg and creates a Store that publishes to emitter.
// The initial whitelist is installed silently.
func New(cfg Config, emitter events.Emitter) (*Store, error) {
	if cfg.Safe == (common.Address{}) {
		return nil, errors.New("policy: safe address is required")
	}
	if cfg.Admin == (common.Address{}) {
		return nil, errors.New("policy: administrator address is required")
	}
	if cfg.Limit == nil || cfg.Limit.Sign() < 0 {
		return nil, fmt.Errorf("policy: limit must be a non-negative amount, got %v", cfg.Limit)
	}
	if emitter == nil {
		return nil, errors.New("policy: emitter is required")
	}
	s := &Store{
		admin:     cfg.Admin,
		safe:      cfg.Safe,
		limit:     new(big.Int).Set(cfg.Limit),
		whitelist: make(map[common.Address]struct{}, len(cfg.Whitelist)),
		emitter:   emitter,
	}
	for _, p := range cfg.Whitelist {
		s.whitelist[p] = struct{}{}
	}
	return s, nil
}

// Safe returns the wallet this policy serves.
func (s *Store) Safe() common.Address {
	return s.safe
}

// Admin returns the current administrator.
func (s *Store) Admin() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.admin
}

// Limit returns a copy of the current spend limit in wei.
func (s *Store) Limit() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.limit)
}

// IsWhitelisted reports whether protocol may receive calls carrying data.
func (s *Store) IsWhitelisted(protocol common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.whitelist[protocol]
	return ok
}

// Whitelist returns the whitelisted protocols sorted by address.
func (s *Store) Whitelist() []common.Address {
	s.mu.RLock()
	out := make([]common.Address, 0, len(s.whitelist))
	for p := range s.whitelist {
		out = append(out, p)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i][:], out[j][:]) < 0 })
	return out
}

// SetLimit replaces the spend limit.
func (s *Store) SetLimit(caller common.Address, limit *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(caller); err != nil {
		return err
	}
	if limit == nil || limit.Sign() < 0 {
		return fmt.Errorf("policy: %w: limit must be a non-negative amount, got %v", ErrInvalid, limit)
	}
	s.limit = new(big.Int).Set(limit)
	s.emitter.Emit(types.LimitChanged(limit))
	log.Printf("[policy] limit set to %s wei by %s", limit, caller.Hex())
	return nil
}

// AddToWhitelist inserts protocol. Re-adding is not an error and still emits.
func (s *Store) AddToWhitelist(caller, protocol common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(caller); err != nil {
		return err
	}
	s.whitelist[protocol] = struct{}{}
	s.emitter.Emit(types.WhitelistAdded(protocol))
	log.Printf("[policy] whitelisted %s", protocol.Hex())
	return nil
}

// RemoveFromWhitelist removes protocol. Removing an absent entry is not an
// error and still emits.
func (s *Store) RemoveFromWhitelist(caller, protocol common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(caller); err != nil {
		return err
	}
	delete(s.whitelist, protocol)
	s.emitter.Emit(types.WhitelistRemoved(protocol))
	log.Printf("[policy] removed %s from whitelist", protocol.Hex())
	return nil
}

// TransferAdmin hands administration to newAdmin in one step.
func (s *Store) TransferAdmin(caller, newAdmin common.Address) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.authorize(caller); err != nil {
		return err
	}
	if newAdmin == (common.Address{}) {
		return fmt.Errorf("policy: %w: new administrator is the zero address", ErrInvalid)
	}
	s.admin = newAdmin
	s.emitter.Emit(types.AdminTransferred(newAdmin))
	log.Printf("[policy] administration transferred %s → %s", caller.Hex(), newAdmin.Hex())
	return nil
}

// authorize must be called with s.mu held.
func (s *Store) authorize(caller common.Address) error {
	if caller != s.admin {
		log.Printf("[policy] rejected mutation by %s: not the administrator", caller.Hex())
		return &UnauthorizedError{Caller: caller}
	}
	return nil
}
