// Package keys implements capability token generation, hashing, and
// constant-time comparison.
//
// Tokens are base62 ([A-Za-z0-9]) with a minimum suffix length of 22
// characters. Scoped tokens carry an r_/a_/w_ prefix, API tokens an
// sk_live_/sk_test_ prefix. Plaintext tokens are never persisted; the store
// holds only the SHA-256 hex hash and a short human prefix.
package keys

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"regexp"

	"github.com/capmd/capmd/pkg/models"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// MinLength is the minimum generated token length. Requests below it are
// clamped up, never rejected.
const MinLength = 22

// PrefixLen is the number of leading plaintext characters stored for human
// identification in key listings.
const PrefixLen = 4

var (
	rootPattern   = regexp.MustCompile(`^[A-Za-z0-9]{22,}$`)
	scopedPattern = regexp.MustCompile(`^(r|a|w)_[A-Za-z0-9]{20,}$`)
	apiPattern    = regexp.MustCompile(`^sk_(live|test)_[A-Za-z0-9]{20,}$`)
)

// Generate returns a random base62 token of length n (at least MinLength).
// Each random byte is reduced modulo 62 into the alphabet; the source is
// crypto/rand.
func Generate(n int) string {
	if n < MinLength {
		n = MinLength
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failure means the process has no entropy source;
		// nothing sensible can continue.
		panic("keys: crypto/rand unavailable: " + err.Error())
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out)
}

// GenerateScoped returns a fresh scoped token for the permission tier,
// e.g. "r_" + 22 base62 characters.
func GenerateScoped(perm models.Permission) string {
	return perm.URLPrefix() + Generate(MinLength)
}

// GenerateAPI returns a fresh API token, sk_live_... or sk_test_...
func GenerateAPI(live bool) string {
	if live {
		return "sk_live_" + Generate(MinLength)
	}
	return "sk_test_" + Generate(MinLength)
}

// ValidRoot reports whether s has the bare workspace key shape.
func ValidRoot(s string) bool {
	return rootPattern.MatchString(s)
}

// ValidScoped reports whether s has the r_/a_/w_ scoped key shape.
func ValidScoped(s string) bool {
	return scopedPattern.MatchString(s)
}

// ValidAPI reports whether s has the sk_live_/sk_test_ API key shape.
func ValidAPI(s string) bool {
	return apiPattern.MatchString(s)
}

// Valid reports whether s is any recognized key form.
func Valid(s string) bool {
	return ValidRoot(s) || ValidScoped(s) || ValidAPI(s)
}

// PermissionOf returns the permission tier encoded in a scoped key prefix.
// Bare root keys carry write permission over the whole workspace.
func PermissionOf(s string) (models.Permission, bool) {
	switch {
	case ValidScoped(s):
		switch s[0] {
		case 'r':
			return models.PermissionRead, true
		case 'a':
			return models.PermissionAppend, true
		case 'w':
			return models.PermissionWrite, true
		}
	case ValidRoot(s):
		return models.PermissionWrite, true
	}
	return "", false
}

// Hash returns the lowercase hex SHA-256 of the plaintext token.
func Hash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// Prefix returns the short human-visible prefix stored alongside the hash.
func Prefix(s string) string {
	if len(s) < PrefixLen {
		return s
	}
	return s[:PrefixLen]
}

// SecureCompare compares two strings without short-circuiting on the first
// difference. Differences accumulate via bitwise OR and the loop always runs
// over the longer input, so timing does not reveal the match prefix length.
func SecureCompare(a, b string) bool {
	n := len(a)
	if len(b) > n {
		n = len(b)
	}
	var diff byte
	if len(a) != len(b) {
		diff = 1
	}
	for i := 0; i < n; i++ {
		var ca, cb byte
		if i < len(a) {
			ca = a[i]
		}
		if i < len(b) {
			cb = b[i]
		}
		diff |= ca ^ cb
	}
	return diff == 0
}
