package keys

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/capmd/capmd/pkg/models"
)

func TestGenerate(t *testing.T) {
	t.Run("requested length is honored", func(t *testing.T) {
		for _, n := range []int{22, 32, 64} {
			if got := len(Generate(n)); got != n {
				t.Errorf("Generate(%d) length = %d", n, got)
			}
		}
	})

	t.Run("short requests are clamped to the minimum", func(t *testing.T) {
		for _, n := range []int{0, 1, 21, -5} {
			if got := len(Generate(n)); got != MinLength {
				t.Errorf("Generate(%d) length = %d, want %d", n, got, MinLength)
			}
		}
	})

	t.Run("alphabet is base62 only", func(t *testing.T) {
		base62 := regexp.MustCompile(`^[A-Za-z0-9]+$`)
		for i := 0; i < 100; i++ {
			k := Generate(22)
			if !base62.MatchString(k) {
				t.Fatalf("key %q contains characters outside [A-Za-z0-9]", k)
			}
		}
	})

	t.Run("1000 generations are distinct", func(t *testing.T) {
		seen := make(map[string]struct{}, 1000)
		for i := 0; i < 1000; i++ {
			seen[Generate(22)] = struct{}{}
		}
		if len(seen) != 1000 {
			t.Errorf("expected 1000 distinct keys, got %d", len(seen))
		}
	})
}

func TestGenerateScoped(t *testing.T) {
	cases := []struct {
		perm   models.Permission
		prefix string
	}{
		{models.PermissionRead, "r_"},
		{models.PermissionAppend, "a_"},
		{models.PermissionWrite, "w_"},
	}
	for _, tc := range cases {
		k := GenerateScoped(tc.perm)
		if !strings.HasPrefix(k, tc.prefix) {
			t.Errorf("GenerateScoped(%s) = %q, want prefix %q", tc.perm, k, tc.prefix)
		}
		if !ValidScoped(k) {
			t.Errorf("generated scoped key %q fails its own pattern", k)
		}
	}
}

func TestGenerateAPI(t *testing.T) {
	if k := GenerateAPI(true); !strings.HasPrefix(k, "sk_live_") || !ValidAPI(k) {
		t.Errorf("live API key %q invalid", k)
	}
	if k := GenerateAPI(false); !strings.HasPrefix(k, "sk_test_") || !ValidAPI(k) {
		t.Errorf("test API key %q invalid", k)
	}
}

func TestPatterns(t *testing.T) {
	cases := []struct {
		name   string
		key    string
		root   bool
		scoped bool
		api    bool
	}{
		{"bare 22", "ABCDEFGHIJKLMNOPQRSTuv", true, false, false},
		{"bare 21 too short", "ABCDEFGHIJKLMNOPQRSTu", false, false, false},
		{"scoped read", "r_ABCDEFGHIJKLMNOPQRSTuv", false, true, false},
		{"scoped write", "w_0123456789abcdefghij", false, true, false},
		{"scoped bad tier", "x_ABCDEFGHIJKLMNOPQRSTuv", false, false, false},
		{"scoped short suffix", "a_ABCDEFGHIJKLMNOPQRS", false, false, false},
		{"api live", "sk_live_ABCDEFGHIJKLMNOPQRSTuv", false, false, true},
		{"api test", "sk_test_0123456789abcdefghij", false, false, true},
		{"api bad env", "sk_prod_ABCDEFGHIJKLMNOPQRSTuv", false, false, false},
		{"punctuation rejected", "r_ABCDEFGHIJKLMNOPQR-Tuv", false, false, false},
		{"empty", "", false, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ValidRoot(tc.key); got != tc.root {
				t.Errorf("ValidRoot(%q) = %v", tc.key, got)
			}
			if got := ValidScoped(tc.key); got != tc.scoped {
				t.Errorf("ValidScoped(%q) = %v", tc.key, got)
			}
			if got := ValidAPI(tc.key); got != tc.api {
				t.Errorf("ValidAPI(%q) = %v", tc.key, got)
			}
		})
	}
}

func TestHash(t *testing.T) {
	h1 := Hash("some-key")
	h2 := Hash("some-key")
	if h1 != h2 {
		t.Error("hash is not deterministic")
	}
	if len(h1) != 64 {
		t.Errorf("hash length = %d, want 64", len(h1))
	}
	if !regexp.MustCompile(`^[a-f0-9]{64}$`).MatchString(h1) {
		t.Errorf("hash %q is not lowercase hex", h1)
	}
	if Hash("other-key") == h1 {
		t.Error("distinct inputs hashed equal")
	}
}

func TestSecureCompare(t *testing.T) {
	t.Run("equal strings compare true", func(t *testing.T) {
		if !SecureCompare("abcdef", "abcdef") {
			t.Error("expected true for equal inputs")
		}
		if !SecureCompare("", "") {
			t.Error("expected true for empty inputs")
		}
	})

	t.Run("distinct strings compare false", func(t *testing.T) {
		cases := [][2]string{
			{"abcdef", "abcdeg"},
			{"abcdef", "abcde"},
			{"", "a"},
			{"abcdef", "zzzzzz"},
		}
		for _, c := range cases {
			if SecureCompare(c[0], c[1]) {
				t.Errorf("SecureCompare(%q, %q) = true", c[0], c[1])
			}
		}
	})

	t.Run("near match and full mismatch take comparable time", func(t *testing.T) {
		if testing.Short() {
			t.Skip("timing comparison skipped in short mode")
		}
		ref := strings.Repeat("a", 64)
		near := strings.Repeat("a", 63) + "b"
		far := strings.Repeat("z", 64)

		const iters = 10000
		timeIt := func(other string) time.Duration {
			start := time.Now()
			for i := 0; i < iters; i++ {
				SecureCompare(ref, other)
			}
			return time.Since(start)
		}
		// Warm up both paths before measuring.
		timeIt(near)
		timeIt(far)

		dNear := timeIt(near)
		dFar := timeIt(far)
		ratio := float64(dNear) / float64(dFar)
		if ratio < 1.0/3 || ratio > 3.0 {
			t.Errorf("timing ratio %f outside [1/3, 3]", ratio)
		}
	})
}

func TestPermissionOf(t *testing.T) {
	cases := []struct {
		key  string
		perm models.Permission
		ok   bool
	}{
		{"r_ABCDEFGHIJKLMNOPQRSTuv", models.PermissionRead, true},
		{"a_ABCDEFGHIJKLMNOPQRSTuv", models.PermissionAppend, true},
		{"w_ABCDEFGHIJKLMNOPQRSTuv", models.PermissionWrite, true},
		{"ABCDEFGHIJKLMNOPQRSTuv", models.PermissionWrite, true},
		{"sk_live_ABCDEFGHIJKLMNOPQRSTuv", "", false},
		{"garbage", "", false},
	}
	for _, tc := range cases {
		perm, ok := PermissionOf(tc.key)
		if ok != tc.ok || perm != tc.perm {
			t.Errorf("PermissionOf(%q) = (%q, %v), want (%q, %v)", tc.key, perm, ok, tc.perm, tc.ok)
		}
	}
}
