// Package payhere implements the PayHere hosted-checkout integrity scheme:
// the checkout hash handed to the gateway before redirect, and the md5sig
// recomputation used to verify asynchronous notify callbacks. The package is
// pure computation; it performs no I/O and never stores the merchant secret.
package payhere

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// Payment status codes carried in the status_code field of a notify callback.
const (
	StatusSuccess     = 2
	StatusPending     = 0
	StatusCanceled    = -1
	StatusFailed      = -2
	StatusChargedback = -3
)

var (
	// ErrNotConfigured is returned when merchant credentials are absent.
	// No hash is computed in that case.
	ErrNotConfigured = errors.New("payhere: merchant credentials not configured")
	// ErrInvalidAmount is returned for amounts the gateway would reject.
	ErrInvalidAmount = errors.New("payhere: amount must not be negative")
)

// Credentials identify the receiving merchant account. The secret must never
// leave the server or appear in logs.
type Credentials struct {
	MerchantID     string
	MerchantSecret string
}

// Configured reports whether both credentials are present.
func (c Credentials) Configured() bool {
	return strings.TrimSpace(c.MerchantID) != "" && strings.TrimSpace(c.MerchantSecret) != ""
}

// FormatAmount renders an amount with exactly two decimal places, rounding
// half-way values up: 1250.5 -> "1250.50", 19.995 -> "20.00", 100 -> "100.00".
// The gateway recomputes the hash over this exact string form, so float
// formatting artifacts must never reach it.
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// CheckoutHash produces the integrity token attached to the hosted checkout
// redirect: upper(hex(md5(merchantID + orderID + amount + currency + digest)))
// where digest is upper(hex(md5(secret))).
func CheckoutHash(c Credentials, orderID string, amount decimal.Decimal, currency string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	if amount.IsNegative() {
		return "", ErrInvalidAmount
	}
	return md5Upper(c.MerchantID + orderID + FormatAmount(amount) + currency + secretDigest(c)), nil
}

// NotifySignature recomputes the md5sig a notify callback must carry. The
// amount is taken verbatim as received since the gateway signed that exact
// string. Field order matches the provider scheme: merchant id, order id,
// amount, currency, status code, secret digest. Integrators must confirm the
// order against current provider documentation before changing it.
func NotifySignature(c Credentials, orderID, amount, currency, statusCode string) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	return md5Upper(c.MerchantID + orderID + amount + currency + statusCode + secretDigest(c)), nil
}

// VerifySignature compares a locally computed signature with the one supplied
// by the gateway. Comparison is constant time and case-insensitive since both
// sides are hex digests.
func VerifySignature(expected, provided string) bool {
	e := strings.ToUpper(strings.TrimSpace(expected))
	p := strings.ToUpper(strings.TrimSpace(provided))
	if e == "" || len(e) != len(p) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(e), []byte(p)) == 1
}

func secretDigest(c Credentials) string {
	return md5Upper(c.MerchantSecret)
}

func md5Upper(s string) string {
	sum := md5.Sum([]byte(s))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}
