// Package pathutil validates and normalizes client-supplied document paths.
//
// Every path entering the service passes through here before any store
// lookup. Checks run against both the raw and the percent-decoded form so a
// double-encoded traversal cannot slip past a single decode.
package pathutil

import (
	"net/url"
	"strings"

	"github.com/capmd/capmd/pkg/models"
)

const (
	// MaxPathLength bounds the total path length in bytes.
	MaxPathLength = 1024

	// MaxSegmentLength bounds a single decoded path segment in bytes.
	MaxSegmentLength = 255
)

// Validate checks a raw URL-ish path and returns models.ErrInvalidPath when
// it violates any structural or security rule: oversize path or segment,
// NUL, CR/LF (raw or encoded), dot-dot traversal (raw or decoded), or
// malformed percent-encoding.
func Validate(raw string) error {
	if len(raw) > MaxPathLength {
		return models.ErrInvalidPath
	}
	if containsForbidden(raw) {
		return models.ErrInvalidPath
	}

	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return models.ErrInvalidPath
	}
	if len(decoded) > MaxPathLength || containsForbidden(decoded) {
		return models.ErrInvalidPath
	}

	for _, seg := range strings.Split(decoded, "/") {
		if len(seg) > MaxSegmentLength {
			return models.ErrInvalidPath
		}
	}
	return nil
}

// containsForbidden screens one form (raw or decoded) of a path.
func containsForbidden(s string) bool {
	if strings.ContainsAny(s, "\x00\r\n") {
		return true
	}
	lower := strings.ToLower(s)
	if strings.Contains(lower, "%00") || strings.Contains(lower, "%0d") || strings.Contains(lower, "%0a") {
		return true
	}
	if strings.Contains(s, "..") || strings.Contains(lower, "%2e%2e") {
		return true
	}
	return false
}

// Normalize validates raw and returns the canonical absolute form: decoded
// exactly once, consecutive slashes collapsed, leading slash ensured,
// trailing slash dropped except for the root. Normalize is idempotent.
func Normalize(raw string) (string, error) {
	if err := Validate(raw); err != nil {
		return "", err
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return "", models.ErrInvalidPath
	}

	var b strings.Builder
	b.Grow(len(decoded) + 1)
	b.WriteByte('/')
	prevSlash := true
	for i := 0; i < len(decoded); i++ {
		c := decoded[i]
		if c == '/' {
			if prevSlash {
				continue
			}
			prevSlash = true
			b.WriteByte(c)
			continue
		}
		prevSlash = false
		b.WriteByte(c)
	}

	p := b.String()
	if len(p) > 1 {
		p = strings.TrimSuffix(p, "/")
	}
	return p, nil
}

// NormalizeFolder normalizes raw as a folder path: canonical form with
// exactly one trailing slash. The root folder is "/".
func NormalizeFolder(raw string) (string, error) {
	p, err := Normalize(raw)
	if err != nil {
		return "", err
	}
	if p == "/" {
		return p, nil
	}
	return p + "/", nil
}

// WithinScope reports whether a normalized file path lies within a folder
// scope. The scope may be given with or without its trailing slash. A path
// equal to the scope itself is within scope; prefix matching happens on the
// slash boundary so "/docs-backup/x" never matches "/docs/".
func WithinScope(path, folderScope string) bool {
	if folderScope == "" || folderScope == "/" {
		return true
	}
	base := strings.TrimSuffix(folderScope, "/")
	if path == base {
		return true
	}
	return strings.HasPrefix(path, base+"/")
}

// RawTraversal screens a raw request URL for traversal sequences before any
// decoding. It catches "..", "%2e%2e" and mixed-case variants.
func RawTraversal(rawURL string) bool {
	if strings.Contains(rawURL, "..") {
		return true
	}
	lower := strings.ToLower(rawURL)
	return strings.Contains(lower, "%2e%2e")
}

// Parent returns the parent folder of a normalized file path, with a
// trailing slash. The parent of a top-level file is "/".
func Parent(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx <= 0 {
		return "/"
	}
	return path[:idx+1]
}

// Base returns the final path segment of a normalized path.
func Base(path string) string {
	idx := strings.LastIndexByte(path, '/')
	return path[idx+1:]
}
