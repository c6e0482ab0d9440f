// Package hashing implements the Key & Scope Hasher (spec §4.4):
// prompt normalization, the L1 key derivation, and the scope_hash
// used as an L2 filter field.
package hashing

import (
	"encoding/hex"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"

	"github.com/cacheforge/semcache/cacheentry"
)

// L1Key is a 128-bit, non-cryptographic key uniquely identifying a
// (normalized-prompt, user_id, scope_hash) triple within a process. A
// collision produces a safe L1 miss — L2 remains authoritative (spec
// §4.4, §3 invariant).
type L1Key [16]byte

func (k L1Key) String() string { return hex.EncodeToString(k[:]) }

// NormalizePrompt applies spec §4.4's normalization: Unicode NFC,
// trim leading/trailing whitespace, collapse internal whitespace runs
// to a single space. Lowercasing is deliberately not applied —
// embeddings preserve case.
func NormalizePrompt(prompt string) string {
	normalized := norm.NFC.String(prompt)
	trimmed := strings.TrimSpace(normalized)

	var b strings.Builder
	b.Grow(len(trimmed))
	lastWasSpace := false
	for _, r := range trimmed {
		if unicode.IsSpace(r) {
			if !lastWasSpace {
				b.WriteByte(' ')
			}
			lastWasSpace = true
			continue
		}
		lastWasSpace = false
		b.WriteRune(r)
	}
	return b.String()
}

// ScopeHash returns the 16-character hex digest of the canonical
// scope subset, usable as an L2 equality filter field. An empty scope
// always hashes to the same distinguished constant (spec boundary:
// "Empty scope mapping hashes to a distinguished constant").
func ScopeHash(scope cacheentry.Scope, contextFields []string) string {
	canonical := scope.Subset(contextFields).Canonical()
	sum := xxhash.Sum64String("scope:" + canonical)
	return hex.EncodeToString(encodeUint64(sum))
}

// PromptHash returns a stable digest of the normalized prompt alone,
// independent of user/scope. It backs the L2 exact-match fast path
// (SPEC_FULL.md "Supplemented features"): a prompt byte-identical
// (after normalization) to a previously stored one skips the
// embedding call and vector search entirely.
func PromptHash(prompt string) string {
	sum := xxhash.Sum64String("prompt:" + NormalizePrompt(prompt))
	return hex.EncodeToString(encodeUint64(sum))
}

// L1KeyFor derives the L1 key from the normalized prompt, optional
// user ID, and the canonical scope subset (spec §4.4).
func L1KeyFor(prompt, userID string, scope cacheentry.Scope, contextFields []string) L1Key {
	normalized := NormalizePrompt(prompt)
	canonical := scope.Subset(contextFields).Canonical()

	payload := normalized + "\x00" + userID + "\x00" + canonical

	var key L1Key
	copy(key[0:8], encodeUint64(xxhash.Sum64String("l1a:"+payload)))
	copy(key[8:16], encodeUint64(xxhash.Sum64String("l1b:"+payload)))
	return key
}

func encodeUint64(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
	return b
}
