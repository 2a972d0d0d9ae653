package wampc

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// Authentication methods with a built-in AuthFunc.
const (
	AuthTicket  = "ticket"
	AuthWampCRA = "wampcra"
)

// TicketAuth answers a ticket CHALLENGE with a fixed ticket.
func TicketAuth(ticket string) AuthFunc {
	return func(hello, challenge map[string]interface{}) (string, map[string]interface{}, error) {
		return ticket, map[string]interface{}{}, nil
	}
}

// CRAuth answers a wampcra CHALLENGE: the signature is the base64 HMAC-SHA256
// of the challenge string, keyed with secret. When the router sends salt,
// iterations and keylen, the key is first derived from secret with
// PBKDF2-SHA256.
func CRAuth(secret string) AuthFunc {
	return func(hello, extra map[string]interface{}) (string, map[string]interface{}, error) {
		challenge, ok := extra["challenge"].(string)
		if !ok {
			return "", nil, fmt.Errorf("wampcra: no challenge string received")
		}
		key := []byte(secret)
		if salt, ok := extra["salt"].(string); ok && salt != "" {
			var params struct {
				Iterations int `wamp:"iterations,omitempty"`
				KeyLen     int `wamp:"keylen,omitempty"`
			}
			if err := decodeInto(&params, extra, "challenge"); err != nil {
				return "", nil, fmt.Errorf("wampcra: %w", err)
			}
			key = deriveKey(secret, salt, params.Iterations, params.KeyLen)
		}
		return signChallenge(key, challenge), map[string]interface{}{}, nil
	}
}

// deriveKey returns the base64 PBKDF2 key used as HMAC key for salted
// wampcra secrets.
func deriveKey(secret, salt string, iterations, keylen int) []byte {
	if iterations <= 0 {
		iterations = 1000
	}
	if keylen <= 0 {
		keylen = 32
	}
	dk := pbkdf2.Key([]byte(secret), []byte(salt), iterations, keylen, sha256.New)
	return []byte(base64.StdEncoding.EncodeToString(dk))
}

func signChallenge(key []byte, challenge string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(challenge))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
