package credential

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
)

func TestGeneratorPrefixes(t *testing.T) {
	t.Run("live", func(t *testing.T) {
		key, secret, err := NewGenerator(EnvLive).Credentials()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.HasPrefix(key, "ovu_live_") {
			t.Fatalf("unexpected key prefix: %s", key)
		}
		if !strings.HasPrefix(secret, "sk_live_") {
			t.Fatalf("unexpected secret prefix: %s", secret)
		}
	})

	t.Run("test", func(t *testing.T) {
		key, secret, err := NewGenerator(EnvTest).Credentials()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if !strings.HasPrefix(key, "ovu_test_") || !strings.HasPrefix(secret, "sk_test_") {
			t.Fatalf("unexpected prefixes: %s %s", key, secret)
		}
	})

	t.Run("unknown env falls back to live", func(t *testing.T) {
		if got := NewGenerator("staging").KeyPrefix(); got != "ovu_live_" {
			t.Fatalf("unexpected prefix %q", got)
		}
	})
}

func TestCredentialsAreURLSafeAndUnique(t *testing.T) {
	urlSafe := regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	g := NewGenerator(EnvLive)
	seen := make(map[string]struct{})

	for i := 0; i < 100; i++ {
		key, secret, err := g.Credentials()
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		body := strings.TrimPrefix(secret, g.SecretPrefix())
		// 32 random bytes encode to 43 unpadded base64 characters.
		if len(body) != 43 || !urlSafe.MatchString(body) {
			t.Fatalf("unexpected secret body %q", body)
		}
		for _, v := range []string{key, secret} {
			if _, dup := seen[v]; dup {
				t.Fatalf("duplicate credential generated: %s", v)
			}
			seen[v] = struct{}{}
		}
	}
}

func TestHash(t *testing.T) {
	t.Run("deterministic and fixed size", func(t *testing.T) {
		h1 := Hash("sk_live_abc")
		h2 := Hash("sk_live_abc")
		if h1 != h2 {
			t.Fatal("expected identical digests")
		}
		if len(h1) != 64 {
			t.Fatalf("expected 64 hex chars, got %d", len(h1))
		}
	})

	t.Run("distinct inputs produce distinct digests", func(t *testing.T) {
		g := NewGenerator(EnvLive)
		digests := make(map[string]string)
		for i := 0; i < 200; i++ {
			_, secret, err := g.Credentials()
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			d := Hash(secret)
			if prev, ok := digests[d]; ok && prev != secret {
				t.Fatalf("collision between %q and %q", prev, secret)
			}
			digests[d] = secret
		}
	})

	t.Run("verify", func(t *testing.T) {
		digest := Hash("sk_live_correct")
		if !Verify("sk_live_correct", digest) {
			t.Fatal("expected verify to succeed")
		}
		if Verify("sk_live_wrong", digest) {
			t.Fatal("expected verify to fail for a different secret")
		}
		if Verify("", digest) {
			t.Fatal("expected verify to fail for empty secret")
		}
	})
}

func TestKeyID(t *testing.T) {
	id, err := KeyID()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !regexp.MustCompile(`^key_[0-9a-f]{32}$`).MatchString(id) {
		t.Fatalf("unexpected key id %q", id)
	}
}

func TestPartnerCode(t *testing.T) {
	suffix := `-[0-9A-F]{6}$`
	cases := []struct {
		company string
		base    string
	}{
		{"Acme Travel Ltd", "ACMETR"},
		{"ab", "AB"},
		{"Très-Bon Voyages & Co", "TRSBON"},
		{"  1st Class!!", "1STCLA"},
		{"---", "PARTNR"},
	}
	for _, tc := range cases {
		t.Run(tc.company, func(t *testing.T) {
			code, err := PartnerCode(tc.company)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			re := regexp.MustCompile(fmt.Sprintf("^%s%s", tc.base, suffix))
			if !re.MatchString(code) {
				t.Fatalf("code %q does not match %s", code, re)
			}
		})
	}
}

func TestTail(t *testing.T) {
	if got := Tail("whsec_0123456789abcdefWXYZ", 4); got != "...WXYZ" {
		t.Fatalf("unexpected tail %q", got)
	}
	if got := Tail("abcd", 4); got != "..." {
		t.Fatalf("short value must be fully masked, got %q", got)
	}
}

func TestSecret(t *testing.T) {
	g := NewGenerator(EnvTest)
	secret, err := g.Secret()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !strings.HasPrefix(secret, "sk_test_") || len(secret) != len("sk_test_")+43 {
		t.Fatalf("unexpected secret %q", secret)
	}
}

func TestPreview(t *testing.T) {
	if got := Preview("key_0123456789abcdef", 8); got != "key_0123..." {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := Preview("ovu_live_abcdefghijkl", 12); got != "ovu_live_abc..." {
		t.Fatalf("unexpected preview %q", got)
	}
	if got := Preview("short", 8); got != "short" {
		t.Fatalf("unexpected preview %q", got)
	}
}
