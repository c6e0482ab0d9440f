// Package cacheentry defines the cache's core data model: the
// request Scope and the stored Entry (spec §3).
package cacheentry

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Scope is the caller-supplied set of named attributes drawn from the
// configured context_fields allowlist. Attributes outside the
// allowlist are dropped by Subset before hashing or storage.
type Scope map[string]string

// Subset returns the entries of s whose key is in fields, in no
// particular order — callers that need canonical ordering should use
// Canonical instead.
func (s Scope) Subset(fields []string) Scope {
	if len(s) == 0 || len(fields) == 0 {
		return Scope{}
	}
	out := make(Scope, len(fields))
	for _, f := range fields {
		if v, ok := s[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Canonical serializes the scope with sorted keys and a stable
// key=value encoding, the form hashed into scope_hash (spec §3, §4.4).
func (s Scope) Canonical() string {
	if len(s) == 0 {
		return ""
	}
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('\x1f') // unit separator, never in normal values
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(s[k])
	}
	return b.String()
}

// Entry is a stored prompt→response record (spec §3). Embedding is
// kept only to support an L2 backend's index_add contract; it is
// never retained in L1 (spec invariant).
type Entry struct {
	EntryID      string
	Prompt       string
	Embedding    []float64
	Response     string
	UserID       string
	ScopeHash    string
	Tags         []string
	Metadata     map[string]string
	CreatedAt    time.Time
	TTLSeconds   int
	Version      string
	AccessCount  int64
	LastAccessAt time.Time
}

// NewEntryID generates a fresh, globally unique entry identifier.
func NewEntryID() string {
	return uuid.NewString()
}

// ExpiresAt returns the hard expiry instant (spec §3 invariant:
// created_at + ttl_seconds).
func (e *Entry) ExpiresAt() time.Time {
	return e.CreatedAt.Add(time.Duration(e.TTLSeconds) * time.Second)
}

// Age returns how long ago the entry was created, relative to now.
func (e *Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.CreatedAt)
}
