package util

import (
	"strings"
	"testing"
)

func TestParseHandleLocal(t *testing.T) {
	name, domain, err := ParseHandle("alice")
	if err != nil {
		t.Fatalf("ParseHandle failed: %v", err)
	}
	if name != "alice" {
		t.Errorf("Expected name 'alice', got '%s'", name)
	}
	if domain != "" {
		t.Errorf("Expected empty domain, got '%s'", domain)
	}
}

func TestParseHandleRemote(t *testing.T) {
	name, domain, err := ParseHandle("@alice@example.com")
	if err != nil {
		t.Fatalf("ParseHandle failed: %v", err)
	}
	if name != "alice" {
		t.Errorf("Expected name 'alice', got '%s'", name)
	}
	if domain != "example.com" {
		t.Errorf("Expected domain 'example.com', got '%s'", domain)
	}
}

func TestParseHandleMalformed(t *testing.T) {
	for _, bad := range []string{"", "@", "a@b@c", "@example.com"} {
		if _, _, err := ParseHandle(bad); err == nil {
			t.Errorf("Expected error for handle %q", bad)
		}
	}
}

func TestGeneratePemKeypair(t *testing.T) {
	kp := GeneratePemKeypair()
	if !strings.Contains(kp.Private, "RSA PRIVATE KEY") {
		t.Error("Private key missing PEM header")
	}
	if !strings.Contains(kp.Public, "PUBLIC KEY") {
		t.Error("Public key missing PEM header")
	}
}

func TestNormalizeInput(t *testing.T) {
	out := NormalizeInput("hello\nworld <b>")
	if out != "hello world &lt;b&gt;" {
		t.Errorf("Unexpected normalization: %q", out)
	}
}

func TestUserAgent(t *testing.T) {
	ua := UserAgent()
	if !strings.HasPrefix(ua, "grove/") || !strings.HasSuffix(ua, "ActivityPub") {
		t.Errorf("Unexpected user agent: %q", ua)
	}
}
