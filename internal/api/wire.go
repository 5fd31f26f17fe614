package api

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/gipsh/safe-approver-go/internal/approver"
	"github.com/gipsh/safe-approver-go/internal/auth"
	"github.com/gipsh/safe-approver-go/internal/policy"
)

// Rejection codes carried in ErrorResponse.Error.
const (
	CodeUnauthorized            = "unauthorized"
	CodeNotAWalletOwner         = "not_a_wallet_owner"
	CodeAssetInteractionBlocked = "asset_interaction_blocked"
	CodeTransactionNotAllowed   = "transaction_not_allowed"
	CodeInvalidTransaction      = "invalid_transaction"
	CodeAuthenticationFailed    = "authentication_failed"
	CodeBadRequest              = "bad_request"
	CodeUpstream                = "upstream_error"
)

// PolicyResponse is returned by GET /v1/policy.
type PolicyResponse struct {
	Safe       common.Address   `json:"safe"`
	Admin      common.Address   `json:"admin"`
	Limit      string           `json:"limit"`
	LimitEther string           `json:"limitEther"`
	Whitelist  []common.Address `json:"whitelist"`
}

// WhitelistResponse is returned by the whitelist endpoints.
type WhitelistResponse struct {
	Protocol    common.Address `json:"protocol"`
	Whitelisted bool           `json:"whitelisted"`
}

// LimitRequest is the body of PUT /v1/limit; Limit is a wei integer string.
type LimitRequest struct {
	Limit string `json:"limit"`
}

// AdminRequest is the body of PUT /v1/admin.
type AdminRequest struct {
	Admin common.Address `json:"admin"`
}

// ApproveResponse is returned by POST /v1/approve on approval.
type ApproveResponse struct {
	SafeTxHash common.Hash `json:"safeTxHash"`
}

// ErrorResponse is the body of every non-2xx response. The offending
// parameters of a rejection are included so callers can audit it.
type ErrorResponse struct {
	Error       string          `json:"error"`
	Message     string          `json:"message"`
	RequestID   string          `json:"requestId,omitempty"`
	Caller      *common.Address `json:"caller,omitempty"`
	Destination *common.Address `json:"destination,omitempty"`
	Field       string          `json:"field,omitempty"`
	Value       string          `json:"value,omitempty"`
	Data        *hexutil.Bytes  `json:"data,omitempty"`
}

// ErrorBody maps a gate error onto its wire form.
func ErrorBody(err error) ErrorResponse {
	body := ErrorResponse{Message: err.Error()}
	var (
		unauthorized *policy.UnauthorizedError
		notOwner     *approver.NotAWalletOwnerError
		blocked      *approver.AssetInteractionBlockedError
		notAllowed   *approver.TransactionNotAllowedError
		invalid      *approver.InvalidTransactionError
	)
	switch {
	case errors.As(err, &unauthorized):
		body.Error = CodeUnauthorized
		body.Caller = &unauthorized.Caller
	case errors.As(err, &notOwner):
		body.Error = CodeNotAWalletOwner
		body.Caller = &notOwner.Caller
	case errors.As(err, &blocked):
		body.Error = CodeAssetInteractionBlocked
		body.Destination = &blocked.Destination
	case errors.As(err, &notAllowed):
		body.Error = CodeTransactionNotAllowed
		body.Destination = &notAllowed.Destination
		body.Value = notAllowed.Value.String()
		data := hexutil.Bytes(notAllowed.Data)
		body.Data = &data
	case errors.As(err, &invalid):
		body.Error = CodeInvalidTransaction
		body.Field = invalid.Field
		body.Value = invalid.Value.String()
	default:
		body.Error = CodeUpstream
	}
	return body
}

// Err rebuilds the typed error a response body describes. Unknown codes
// come back as a plain error carrying the message.
func (e ErrorResponse) Err() error {
	switch e.Error {
	case CodeUnauthorized:
		return &policy.UnauthorizedError{Caller: deref(e.Caller)}
	case CodeNotAWalletOwner:
		return &approver.NotAWalletOwnerError{Caller: deref(e.Caller)}
	case CodeAssetInteractionBlocked:
		return &approver.AssetInteractionBlockedError{Destination: deref(e.Destination)}
	case CodeTransactionNotAllowed:
		value, ok := new(big.Int).SetString(e.Value, 10)
		if !ok {
			value = new(big.Int)
		}
		data := []byte{}
		if e.Data != nil {
			data = *e.Data
		}
		return &approver.TransactionNotAllowedError{Destination: deref(e.Destination), Value: value, Data: data}
	case CodeInvalidTransaction:
		value, ok := new(big.Int).SetString(e.Value, 10)
		if !ok {
			value = new(big.Int)
		}
		return &approver.InvalidTransactionError{Field: e.Field, Value: value}
	case CodeAuthenticationFailed:
		return fmt.Errorf("%w (server said: %s)", auth.ErrAuth, e.Message)
	}
	return errors.New(e.Error + ": " + e.Message)
}

func deref(a *common.Address) common.Address {
	if a == nil {
		return common.Address{}
	}
	return *a
}
