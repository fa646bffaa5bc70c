package gateway

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"time"
)

// Signature authenticates one locker command.
type Signature struct {
	// Timestamp is the unix time in seconds, as sent in the "ts" field.
	Timestamp string

	// Hash is base64(HMAC-SHA256(share code, Timestamp)), sent as "hash".
	Hash string
}

// Sign computes the signature for a share code at the given instant.
func Sign(shareCode string, at time.Time) Signature {
	ts := strconv.FormatInt(at.Unix(), 10)
	mac := hmac.New(sha256.New, []byte(shareCode))
	mac.Write([]byte(ts)) //nolint:errcheck // hash.Hash.Write never returns an error
	return Signature{
		Timestamp: ts,
		Hash:      base64.StdEncoding.EncodeToString(mac.Sum(nil)),
	}
}

// Signer produces signatures from a clock. Every call reads the clock again;
// signatures are never cached because the gateway rejects old timestamps.
type Signer struct {
	now func() time.Time
}

// NewSigner returns a Signer using now, or time.Now when now is nil.
func NewSigner(now func() time.Time) *Signer {
	if now == nil {
		now = time.Now
	}
	return &Signer{now: now}
}

// Sign signs the current time with shareCode.
func (s *Signer) Sign(shareCode string) Signature {
	return Sign(shareCode, s.now())
}
