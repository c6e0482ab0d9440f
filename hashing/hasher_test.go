package hashing_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/cacheforge/semcache/cacheentry"
	"github.com/cacheforge/semcache/hashing"
)

func TestNormalizePromptCollapsesWhitespaceNotCase(t *testing.T) {
	got := hashing.NormalizePrompt("  What   is\tthe capital  of France?\n")
	require.Equal(t, "What is the capital of France?", got)
}

func TestL1KeyDistinguishesScopesAndUsers(t *testing.T) {
	fields := []string{"persona"}
	base := hashing.L1KeyFor("hello", "", cacheentry.Scope{"persona": "dev"}, fields)
	other := hashing.L1KeyFor("hello", "", cacheentry.Scope{"persona": "gamer"}, fields)
	user := hashing.L1KeyFor("hello", "u1", cacheentry.Scope{"persona": "dev"}, fields)

	require.NotEqual(t, base, other)
	require.NotEqual(t, base, user)
}

func TestL1KeyIgnoresFieldsOutsideAllowlist(t *testing.T) {
	fields := []string{"persona"}
	a := hashing.L1KeyFor("hello", "", cacheentry.Scope{"persona": "dev", "extra": "x"}, fields)
	b := hashing.L1KeyFor("hello", "", cacheentry.Scope{"persona": "dev", "extra": "y"}, fields)
	require.Equal(t, a, b)
}

func TestScopeHashEmptyIsDistinguishedConstant(t *testing.T) {
	fields := []string{"persona"}
	a := hashing.ScopeHash(cacheentry.Scope{}, fields)
	b := hashing.ScopeHash(nil, fields)
	require.Equal(t, a, b)
	require.Len(t, a, 16)
}

func TestScopeHashDiffersByContent(t *testing.T) {
	fields := []string{"persona"}
	a := hashing.ScopeHash(cacheentry.Scope{"persona": "dev"}, fields)
	b := hashing.ScopeHash(cacheentry.Scope{"persona": "gamer"}, fields)
	require.NotEqual(t, a, b)
}

func TestPromptHashIgnoresNormalizableWhitespace(t *testing.T) {
	a := hashing.PromptHash("What is the capital of France?")
	b := hashing.PromptHash("  What   is the capital of France?  ")
	require.Equal(t, a, b)
}

func TestPromptHashDiffersByContent(t *testing.T) {
	a := hashing.PromptHash("What is the capital of France?")
	b := hashing.PromptHash("What is the capital of Germany?")
	require.NotEqual(t, a, b)
}
