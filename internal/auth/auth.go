// Package auth identifies callers of the approver API.
//
// Every request carries the caller address, a unix timestamp, a one-time
// nonce and a personal_sign signature over timestamp + nonce + method + path +
// body. The server recovers the signer, requires it to match the claimed
// address and accepts each (signer, nonce) pair once.
package auth

import (
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

const (
	HeaderAddress   = "X-Approver-Address"
	HeaderTimestamp = "X-Approver-Timestamp"
	HeaderNonce     = "X-Approver-Nonce"
	HeaderSignature = "X-Approver-Signature"

	maxNonceLen = 128
)

// ErrAuth matches every authentication failure.
var ErrAuth = errors.New("authentication failed")

func authError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrAuth, fmt.Sprintf(format, args...))
}

// ── Personal sign ─────────────────────────────────────────────────────────

func personalHash(message []byte) []byte {
	// keccak256("\x19Ethereum Signed Message:\n{len(msg)}{msg}")
	prefix := fmt.Sprintf("\x19Ethereum Signed Message:\n%d", len(message))
	return crypto.Keccak256([]byte(prefix), message)
}

// PersonalSign creates an Ethereum personal_sign signature over message.
func PersonalSign(message []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(personalHash(message), key)
	if err != nil {
		return "", fmt.Errorf("personalSign: %w", err)
	}
	// go-ethereum returns V as 0/1; wallets use 27/28.
	sig[64] += 27
	return "0x" + hex.EncodeToString(sig), nil
}

// RecoverPersonal returns the address that produced sigHex over message.
func RecoverPersonal(message []byte, sigHex string) (common.Address, error) {
	sig, err := hexutil.Decode(sigHex)
	if err != nil {
		return common.Address{}, fmt.Errorf("decode signature: %w", err)
	}
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("signature must be %d bytes, got %d", crypto.SignatureLength, len(sig))
	}
	if sig[64] >= 27 {
		sig[64] -= 27
	}
	pub, err := crypto.SigToPub(personalHash(message), sig)
	if err != nil {
		return common.Address{}, fmt.Errorf("recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// ── Request signing ───────────────────────────────────────────────────────

func requestMessage(ts, nonce, method, path string, body []byte) []byte {
	msg := make([]byte, 0, len(ts)+len(nonce)+len(method)+len(path)+len(body))
	msg = append(msg, ts...)
	msg = append(msg, nonce...)
	msg = append(msg, method...)
	msg = append(msg, path...)
	return append(msg, body...)
}

// SignRequest adds the auth headers to req for the given body. Each call
// draws a fresh nonce, so a resubmitted request must be signed again.
func SignRequest(req *http.Request, body []byte, key *ecdsa.PrivateKey, now time.Time) error {
	ts := strconv.FormatInt(now.Unix(), 10)
	nonce := uuid.NewString()
	sig, err := PersonalSign(requestMessage(ts, nonce, req.Method, req.URL.Path, body), key)
	if err != nil {
		return err
	}
	req.Header.Set(HeaderAddress, AddressFromKey(key).Hex())
	req.Header.Set(HeaderTimestamp, ts)
	req.Header.Set(HeaderNonce, nonce)
	req.Header.Set(HeaderSignature, sig)
	return nil
}

// Verifier checks signed requests. A (signer, nonce) pair is remembered for
// as long as its timestamp is inside the skew window; a timestamp outside
// the window is rejected anyway, so the set stays bounded by the request
// rate times 2*MaxSkew. With MaxSkew zero nonces are never forgotten.
type Verifier struct {
	MaxSkew time.Duration
	Now     func() time.Time

	mu   sync.Mutex
	seen map[seenKey]int64 // → request timestamp
}

type seenKey struct {
	signer common.Address
	nonce  string
}

// NewVerifier accepts timestamps within maxSkew of the local clock.
func NewVerifier(maxSkew time.Duration) *Verifier {
	return &Verifier{MaxSkew: maxSkew, Now: time.Now}
}

// Verify returns the authenticated caller of r, whose body has already been read.
func (v *Verifier) Verify(r *http.Request, body []byte) (common.Address, error) {
	claimed := r.Header.Get(HeaderAddress)
	ts := r.Header.Get(HeaderTimestamp)
	nonce := r.Header.Get(HeaderNonce)
	sig := r.Header.Get(HeaderSignature)
	if claimed == "" || ts == "" || nonce == "" || sig == "" {
		return common.Address{}, authError("missing %s, %s, %s or %s", HeaderAddress, HeaderTimestamp, HeaderNonce, HeaderSignature)
	}
	if len(nonce) > maxNonceLen {
		return common.Address{}, authError("nonce longer than %d bytes", maxNonceLen)
	}
	if !common.IsHexAddress(claimed) {
		return common.Address{}, authError("invalid address %q", claimed)
	}
	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return common.Address{}, authError("invalid timestamp %q", ts)
	}
	now := v.Now()
	skew := now.Sub(time.Unix(unix, 0))
	if skew < 0 {
		skew = -skew
	}
	if v.MaxSkew > 0 && skew > v.MaxSkew {
		return common.Address{}, authError("timestamp outside %s window", v.MaxSkew)
	}
	signer, err := RecoverPersonal(requestMessage(ts, nonce, r.Method, r.URL.Path, body), sig)
	if err != nil {
		return common.Address{}, authError("%v", err)
	}
	if signer != common.HexToAddress(claimed) {
		return common.Address{}, authError("signature by %s does not match %s", signer.Hex(), claimed)
	}
	if !v.remember(seenKey{signer: signer, nonce: nonce}, unix, now) {
		return common.Address{}, authError("nonce %s already used by %s", nonce, signer.Hex())
	}
	return signer, nil
}

// remember records key and reports whether it was new. Entries whose
// timestamp has left the skew window are swept first.
func (v *Verifier) remember(key seenKey, unix int64, now time.Time) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.seen == nil {
		v.seen = make(map[seenKey]int64)
	}
	if v.MaxSkew > 0 {
		oldest := now.Add(-v.MaxSkew).Unix()
		for k, ts := range v.seen {
			if ts < oldest {
				delete(v.seen, k)
			}
		}
	}
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = unix
	return true
}

// Remembered reports how many nonces are currently held.
func (v *Verifier) Remembered() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

// ── Key helpers ───────────────────────────────────────────────────────────

// ParsePrivateKey parses a hex private key string (with or without 0x prefix).
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	return crypto.HexToECDSA(hexKey)
}

// AddressFromKey returns the Ethereum address for a given private key.
func AddressFromKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}
