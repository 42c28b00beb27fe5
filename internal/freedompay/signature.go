// Package freedompay implements the merchant-side signature scheme used by the
// FreedomPay payment processor: parameter values are concatenated in key order,
// framed by a script label and the shared secret, and digested with MD5.
package freedompay

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"sort"
	"strings"
)

// Well-known parameter names of the callback protocol.
const (
	FieldSignature = "pg_sig"
	FieldResult    = "pg_result"
	FieldOrderID   = "pg_order_id"
	FieldPaymentID = "pg_payment_id"
	FieldAmount    = "pg_amount"
)

// Script labels the processor mixes into the signature. The label is part of
// the signed string, so both sides must agree on it per call type.
const (
	ScriptPayment = "payment.php"
	ScriptCheck   = "check.php"
	ScriptResult  = "result.php"
)

// Signer produces and verifies signatures with a shared merchant secret.
type Signer struct {
	Secret string
}

// Sign canonicalises params and returns the hex MD5 signature together with
// the canonical string it was computed over. The canonical string is returned
// for diagnostics only.
//
// Canonical form: scriptName ";" v1 ";" v2 ... ";" secret, where values are
// ordered by ascending byte order of their keys.
func (s Signer) Sign(params map[string]string, scriptName string) (string, string) {
	keys := make([]string, 0, len(params))
	for key := range params {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	values := make([]string, 0, len(keys)+2)
	values = append(values, scriptName)
	for _, key := range keys {
		values = append(values, params[key])
	}
	values = append(values, s.Secret)

	canonical := strings.Join(values, ";")
	sum := md5.Sum([]byte(canonical))
	return hex.EncodeToString(sum[:]), canonical
}

// Verify checks a received signature against the expected one for the given
// parameter set. The pg_sig field is stripped before canonicalisation. The
// script label is chosen from the payload shape, not the endpoint: payloads
// carrying pg_result are signed with the result label, everything else with
// the check label. That mirrors the processor's behaviour and must not be
// derived from the URL that was actually called.
//
// Verification fails closed: any malformed input yields false.
func (s Signer) Verify(params map[string]string, received string) bool {
	if received == "" {
		return false
	}
	filtered := make(map[string]string, len(params))
	for key, value := range params {
		if key == FieldSignature {
			continue
		}
		filtered[key] = value
	}

	scriptName := ScriptCheck
	if _, ok := filtered[FieldResult]; ok {
		scriptName = ScriptResult
	}

	expected, _ := s.Sign(filtered, scriptName)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(received)) == 1
}
