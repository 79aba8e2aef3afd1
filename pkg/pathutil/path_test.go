package pathutil

import (
	"errors"
	"strings"
	"testing"

	"github.com/capmd/capmd/pkg/models"
)

func TestValidate(t *testing.T) {
	valid := []string{
		"/hello.md",
		"/docs/readme.md",
		"docs/nested/deep/file.md",
		"/",
		"/with%20space.md",
		"/unicode-é.md",
	}
	for _, p := range valid {
		if err := Validate(p); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", p, err)
		}
	}

	invalid := []string{
		"/a/../b",
		"..",
		"/%2e%2e/etc/passwd",
		"/%2E%2E/etc/passwd",
		"/file%00.md",
		"/file\x00.md",
		"/line%0abreak.md",
		"/line%0Dbreak.md",
		"/line\nbreak.md",
		"/line\rbreak.md",
		"/bad%zzescape.md",
		"/" + strings.Repeat("a", 1025),
		"/" + strings.Repeat("s", 256) + "/x.md",
	}
	for _, p := range invalid {
		if err := Validate(p); !errors.Is(err, models.ErrInvalidPath) {
			t.Errorf("Validate(%q) = %v, want ErrInvalidPath", p, err)
		}
	}
}

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"hello.md", "/hello.md"},
		{"/hello.md", "/hello.md"},
		{"//docs///readme.md", "/docs/readme.md"},
		{"/docs/", "/docs"},
		{"/", "/"},
		{"", "/"},
		{"/with%20space.md", "/with space.md"},
	}
	for _, tc := range cases {
		got, err := Normalize(tc.in)
		if err != nil {
			t.Errorf("Normalize(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	inputs := []string{"/docs/readme.md", "//a//b/", "hello.md", "/"}
	for _, in := range inputs {
		once, err := Normalize(in)
		if err != nil {
			t.Fatalf("Normalize(%q): %v", in, err)
		}
		twice, err := Normalize(once)
		if err != nil {
			t.Fatalf("Normalize(Normalize(%q)): %v", in, err)
		}
		if once != twice {
			t.Errorf("normalization not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizeFolder(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/docs", "/docs/"},
		{"/docs/", "/docs/"},
		{"docs//sub", "/docs/sub/"},
		{"/", "/"},
	}
	for _, tc := range cases {
		got, err := NormalizeFolder(tc.in)
		if err != nil {
			t.Errorf("NormalizeFolder(%q) error: %v", tc.in, err)
			continue
		}
		if got != tc.want {
			t.Errorf("NormalizeFolder(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWithinScope(t *testing.T) {
	cases := []struct {
		path  string
		scope string
		want  bool
	}{
		{"/docs/readme.md", "/docs/", true},
		{"/docs", "/docs/", true},
		{"/docs/a/b.md", "/docs/", true},
		{"/docs-backup/readme.md", "/docs/", false},
		{"/docsreadme.md", "/docs/", false},
		{"/other/readme.md", "/docs/", false},
		{"/anything.md", "/", true},
		{"/anything.md", "", true},
		{"/docs/readme.md", "/docs", true},
	}
	for _, tc := range cases {
		if got := WithinScope(tc.path, tc.scope); got != tc.want {
			t.Errorf("WithinScope(%q, %q) = %v, want %v", tc.path, tc.scope, got, tc.want)
		}
	}
}

func TestRawTraversal(t *testing.T) {
	hits := []string{
		"/r/key/../etc/passwd",
		"/r/key/%2e%2e/etc",
		"/r/key/%2E%2E/etc",
		"/r/key/%2E%2e/etc",
	}
	for _, u := range hits {
		if !RawTraversal(u) {
			t.Errorf("RawTraversal(%q) = false, want true", u)
		}
	}
	misses := []string{"/r/key/docs/readme.md", "/r/key/.hidden", "/r/key/a.b.c"}
	for _, u := range misses {
		if RawTraversal(u) {
			t.Errorf("RawTraversal(%q) = true, want false", u)
		}
	}
}

func TestParentBase(t *testing.T) {
	cases := []struct {
		path   string
		parent string
		base   string
	}{
		{"/docs/readme.md", "/docs/", "readme.md"},
		{"/readme.md", "/", "readme.md"},
		{"/a/b/c.md", "/a/b/", "c.md"},
	}
	for _, tc := range cases {
		if got := Parent(tc.path); got != tc.parent {
			t.Errorf("Parent(%q) = %q, want %q", tc.path, got, tc.parent)
		}
		if got := Base(tc.path); got != tc.base {
			t.Errorf("Base(%q) = %q, want %q", tc.path, got, tc.base)
		}
	}
}
