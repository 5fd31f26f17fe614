// Package safe implements the Gnosis Safe collaborators of the approver:
// the SafeTx EIP-712 hash, on-chain owner/hash queries and ERC-165
// capability introspection.
package safe

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/gipsh/safe-approver-go/internal/types"
)

// ── EIP-712 type hashes ──────────────────────────────────────────────────

var (
	// keccak256("EIP712Domain(uint256 chainId,address verifyingContract)"), Safe >= 1.3.0
	domainTypeHash = crypto.Keccak256([]byte("EIP712Domain(uint256 chainId,address verifyingContract)"))

	// keccak256("EIP712Domain(address verifyingContract)"), Safe < 1.3.0
	legacyDomainTypeHash = crypto.Keccak256([]byte("EIP712Domain(address verifyingContract)"))

	safeTxTypeHash = crypto.Keccak256([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// DefaultVersion is the Safe master copy version assumed when none is given.
const DefaultVersion = "1.3.0"

// Hasher computes the hash a Safe returns from getTransactionHash, without
// touching the chain.
type Hasher struct {
	chainID   *big.Int
	safe      common.Address
	domainSep []byte
}

// NewHasher creates a Hasher for a Safe >= 1.3.0 deployed at safe on chainID.
func NewHasher(chainID *big.Int, safe common.Address) *Hasher {
	return NewHasherForVersion(DefaultVersion, chainID, safe)
}

// NewHasherForVersion selects the domain layout by Safe version. Versions
// before 1.3.0 did not include the chain ID in the domain.
func NewHasherForVersion(version string, chainID *big.Int, safe common.Address) *Hasher {
	h := &Hasher{chainID: new(big.Int).Set(chainID), safe: safe}
	switch version {
	case "1.0.0", "1.1.0", "1.1.1", "1.2.0":
		h.domainSep = crypto.Keccak256(legacyDomainTypeHash, padAddress(safe))
	default:
		h.domainSep = crypto.Keccak256(domainTypeHash, padUint256(chainID), padAddress(safe))
	}
	return h
}

// Safe returns the verifying contract.
func (h *Hasher) Safe() common.Address { return h.safe }

// DomainSeparator returns the Safe's EIP-712 domain separator.
func (h *Hasher) DomainSeparator() common.Hash {
	return common.BytesToHash(h.domainSep)
}

// Hash returns keccak256(0x1901 ‖ domainSeparator ‖ hashStruct(SafeTx)).
func (h *Hasher) Hash(tx types.SafeTx) common.Hash {
	structHash := buildSafeTxStructHash(tx.Normalized())
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, h.domainSep, structHash)
}

func buildSafeTxStructHash(tx types.SafeTx) []byte {
	encoded := make([]byte, 0, 32*11)
	encoded = append(encoded, safeTxTypeHash...)
	encoded = append(encoded, padAddress(tx.To)...)
	encoded = append(encoded, padUint256(tx.Value)...)
	encoded = append(encoded, crypto.Keccak256(tx.Data)...)
	encoded = append(encoded, padUint8(uint8(tx.Operation))...)
	encoded = append(encoded, padUint256(tx.SafeTxGas)...)
	encoded = append(encoded, padUint256(tx.BaseGas)...)
	encoded = append(encoded, padUint256(tx.GasPrice)...)
	encoded = append(encoded, padAddress(tx.GasToken)...)
	encoded = append(encoded, padAddress(tx.RefundReceiver)...)
	encoded = append(encoded, padUint256(tx.Nonce)...)
	return crypto.Keccak256(encoded)
}

// ── ABI-encoding helpers ──────────────────────────────────────────────────

// padUint256 ABI-encodes a *big.Int as a 32-byte big-endian value. Callers
// must have checked the range (SafeTx.Validate); FillBytes drops the sign.
func padUint256(n *big.Int) []byte {
	padded := make([]byte, 32)
	if n == nil {
		return padded
	}
	return n.FillBytes(padded)
}

// padAddress ABI-encodes an address as a 32-byte value (left-padded with zeros).
func padAddress(addr common.Address) []byte {
	padded := make([]byte, 32)
	copy(padded[12:], addr[:])
	return padded
}

// padUint8 ABI-encodes a uint8 as a 32-byte value.
func padUint8(n uint8) []byte {
	padded := make([]byte, 32)
	padded[31] = n
	return padded
}
