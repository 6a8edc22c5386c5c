package util

import (
	"testing"

	"gopkg.in/yaml.v3"
)

func TestEmbeddedConfigParses(t *testing.T) {
	c := &AppConfig{}
	if err := yaml.Unmarshal(embeddedConfig, c); err != nil {
		t.Fatalf("Embedded config failed to parse: %v", err)
	}
	if c.Conf.HttpPort == 0 {
		t.Error("Expected default httpPort to be set")
	}
	if !c.Conf.Federation.Enabled {
		t.Error("Expected federation enabled by default")
	}
}

func TestDomainAllowedBlocklist(t *testing.T) {
	f := FederationConfig{BlockedDomains: []string{"spam.example"}}
	if f.DomainAllowed("spam.example") {
		t.Error("Blocked domain should not be allowed")
	}
	if !f.DomainAllowed("mastodon.social") {
		t.Error("Unlisted domain should be allowed with empty allowlist")
	}
}

func TestDomainAllowedAllowlist(t *testing.T) {
	f := FederationConfig{AllowedDomains: []string{"friends.example"}}
	if !f.DomainAllowed("friends.example") {
		t.Error("Allowlisted domain should be allowed")
	}
	if !f.DomainAllowed("FRIENDS.example") {
		t.Error("Allowlist should be case-insensitive")
	}
	if f.DomainAllowed("other.example") {
		t.Error("Domain outside allowlist should be denied")
	}
}

func TestBlocklistWinsOverAllowlist(t *testing.T) {
	f := FederationConfig{
		AllowedDomains: []string{"both.example"},
		BlockedDomains: []string{"both.example"},
	}
	if f.DomainAllowed("both.example") {
		t.Error("Blocklist must win over allowlist")
	}
}

func TestSplitList(t *testing.T) {
	out := splitList("a.example, b.example,,c.example ")
	if len(out) != 3 {
		t.Fatalf("Expected 3 entries, got %d: %v", len(out), out)
	}
	if out[1] != "b.example" {
		t.Errorf("Expected 'b.example', got '%s'", out[1])
	}
}
