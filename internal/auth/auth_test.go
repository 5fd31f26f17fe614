package auth

import (
	"crypto/ecdsa"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersonalSignRoundTrip(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	sig, err := PersonalSign([]byte("hello"), key)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sig, "0x"))
	assert.Len(t, sig, 2+65*2)

	signer, err := RecoverPersonal([]byte("hello"), sig)
	require.NoError(t, err)
	assert.Equal(t, AddressFromKey(key), signer)

	other, err := RecoverPersonal([]byte("hello!"), sig)
	require.NoError(t, err)
	assert.NotEqual(t, AddressFromKey(key), other)

	_, err = RecoverPersonal([]byte("hello"), "0x1234")
	assert.Error(t, err)
}

func TestParsePrivateKey(t *testing.T) {
	key, err := ParsePrivateKey("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", AddressFromKey(key).Hex())

	_, err = ParsePrivateKey("not-a-key")
	assert.Error(t, err)
}

type httpRequest struct {
	*http.Request
	body []byte
}

func TestVerify(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	imposter, err := crypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	verifier := &Verifier{MaxSkew: time.Minute, Now: func() time.Time { return now }}
	body := []byte(`{"to":"0x00"}`)

	tests := []struct {
		name    string
		mutate  func(t *testing.T, r *httpRequest)
		wantErr bool
	}{
		{name: "valid", mutate: func(*testing.T, *httpRequest) {}},
		{name: "missing headers", mutate: func(_ *testing.T, r *httpRequest) { r.Header.Del(HeaderSignature) }, wantErr: true},
		{name: "tampered body", mutate: func(_ *testing.T, r *httpRequest) { r.body = []byte(`{"to":"0x01"}`) }, wantErr: true},
		{name: "claimed address differs", mutate: func(_ *testing.T, r *httpRequest) {
			r.Header.Set(HeaderAddress, AddressFromKey(imposter).Hex())
		}, wantErr: true},
		{name: "stale timestamp", mutate: func(t *testing.T, r *httpRequest) {
			require.NoError(t, SignRequest(r.Request, r.body, key, now.Add(-2*time.Minute)))
		}, wantErr: true},
		{name: "future timestamp", mutate: func(t *testing.T, r *httpRequest) {
			require.NoError(t, SignRequest(r.Request, r.body, key, now.Add(2*time.Minute)))
		}, wantErr: true},
		{name: "garbage timestamp", mutate: func(_ *testing.T, r *httpRequest) { r.Header.Set(HeaderTimestamp, "yesterday") }, wantErr: true},
		{name: "missing nonce", mutate: func(_ *testing.T, r *httpRequest) { r.Header.Del(HeaderNonce) }, wantErr: true},
		{name: "swapped nonce", mutate: func(_ *testing.T, r *httpRequest) { r.Header.Set(HeaderNonce, "another") }, wantErr: true},
		{name: "oversized nonce", mutate: func(_ *testing.T, r *httpRequest) {
			r.Header.Set(HeaderNonce, strings.Repeat("n", maxNonceLen+1))
		}, wantErr: true},
		{name: "other path", mutate: func(_ *testing.T, r *httpRequest) { r.URL.Path = "/v1/limit" }, wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := &httpRequest{Request: httptest.NewRequest("POST", "/v1/approve", nil), body: body}
			require.NoError(t, SignRequest(r.Request, r.body, key, now))
			tc.mutate(t, r)

			caller, err := verifier.Verify(r.Request, r.body)
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrAuth)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, AddressFromKey(key), caller)
			assert.Equal(t, strconv.FormatInt(now.Unix(), 10), r.Header.Get(HeaderTimestamp))
		})
	}
}

func TestVerifyRejectsReplay(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	verifier := &Verifier{MaxSkew: time.Minute, Now: func() time.Time { return now }}
	body := []byte(`{"to":"0x00"}`)

	first := httptest.NewRequest("POST", "/v1/approve", nil)
	require.NoError(t, SignRequest(first, body, key, now))
	_, err = verifier.Verify(first, body)
	require.NoError(t, err)

	// The identical request again, within the window.
	now = now.Add(30 * time.Second)
	_, err = verifier.Verify(first, body)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), "already used")

	// The same call signed again gets a new nonce.
	again := httptest.NewRequest("POST", "/v1/approve", nil)
	require.NoError(t, SignRequest(again, body, key, now))
	assert.NotEqual(t, first.Header.Get(HeaderNonce), again.Header.Get(HeaderNonce))
	_, err = verifier.Verify(again, body)
	require.NoError(t, err)
	assert.Equal(t, 2, verifier.Remembered())

	// Once the first timestamp leaves the window its nonce is forgotten,
	// and the request itself is refused as stale.
	now = now.Add(45 * time.Second)
	_, err = verifier.Verify(first, body)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Contains(t, err.Error(), "window")

	later := httptest.NewRequest("POST", "/v1/approve", nil)
	require.NoError(t, SignRequest(later, body, key, now))
	_, err = verifier.Verify(later, body)
	require.NoError(t, err)
	assert.Equal(t, 2, verifier.Remembered())
}

func TestVerifyNonceIsPerSigner(t *testing.T) {
	alice, err := crypto.GenerateKey()
	require.NoError(t, err)
	bob, err := crypto.GenerateKey()
	require.NoError(t, err)

	now := time.Unix(1_700_000_000, 0)
	verifier := &Verifier{MaxSkew: time.Minute, Now: func() time.Time { return now }}
	ts := strconv.FormatInt(now.Unix(), 10)

	for _, key := range []*ecdsa.PrivateKey{alice, bob} {
		r := httptest.NewRequest("PUT", "/v1/limit", nil)
		sig, err := PersonalSign(requestMessage(ts, "shared", r.Method, r.URL.Path, nil), key)
		require.NoError(t, err)
		r.Header.Set(HeaderAddress, AddressFromKey(key).Hex())
		r.Header.Set(HeaderTimestamp, ts)
		r.Header.Set(HeaderNonce, "shared")
		r.Header.Set(HeaderSignature, sig)

		caller, err := verifier.Verify(r, nil)
		require.NoError(t, err)
		assert.Equal(t, AddressFromKey(key), caller)
	}
}

func TestVerifyConcurrentReplay(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	verifier := NewVerifier(time.Minute)
	body := []byte(`{"limit":"1"}`)

	signed := httptest.NewRequest("PUT", "/v1/limit", nil)
	require.NoError(t, SignRequest(signed, body, key, time.Now()))

	var accepted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r := signed.Clone(signed.Context())
			if _, err := verifier.Verify(r, body); err == nil {
				accepted.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), accepted.Load())
}
