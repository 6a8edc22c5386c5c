package util

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const Name = "grove"
const ConfigFileName = "config.yaml"

//go:embed config_default.yaml
var embeddedConfig []byte

// FederationConfig holds all federation-engine settings. It is handed
// explicitly to the engine constructors, never read from package state.
type FederationConfig struct {
	Enabled             bool     `yaml:"enabled"`
	AllowedDomains      []string `yaml:"allowedDomains"` // empty = all allowed
	BlockedDomains      []string `yaml:"blockedDomains"`
	PreferSharedInbox   bool     `yaml:"preferSharedInbox"`
	DeliveryWorkers     int      `yaml:"deliveryWorkers"`
	InboxWorkers        int      `yaml:"inboxWorkers"`
	ActorCacheTTLHours  int      `yaml:"actorCacheTtlHours"`
	MaxDeliveryAttempts int      `yaml:"maxDeliveryAttempts"`
	MaxInboundAttempts  int      `yaml:"maxInboundAttempts"`
}

// DomainAllowed reports whether a remote domain may federate with us.
// The blocklist wins over the allowlist.
func (f *FederationConfig) DomainAllowed(domain string) bool {
	domain = strings.ToLower(domain)
	for _, d := range f.BlockedDomains {
		if strings.EqualFold(d, domain) {
			return false
		}
	}
	if len(f.AllowedDomains) == 0 {
		return true
	}
	for _, d := range f.AllowedDomains {
		if strings.EqualFold(d, domain) {
			return true
		}
	}
	return false
}

type AppConfig struct {
	Conf struct {
		Host       string           `yaml:"host"`
		HttpPort   int              `yaml:"httpPort"`
		Domain     string           `yaml:"domain"` // public https domain of this instance
		LogLevel   string           `yaml:"logLevel"`
		Federation FederationConfig `yaml:"federation"`
	} `yaml:"conf"`
}

func ReadConf() (*AppConfig, error) {

	c := &AppConfig{}

	configPath := ResolveFilePath(ConfigFileName)

	buf, err := os.ReadFile(configPath)
	if err != nil {
		// If file doesn't exist, use embedded config and create user config file
		log.Info("Config file not found, using embedded defaults", "path", configPath)
		buf = embeddedConfig

		configDir, dirErr := GetConfigDir()
		if dirErr == nil {
			userConfigPath := configDir + "/" + ConfigFileName
			if writeErr := os.WriteFile(userConfigPath, embeddedConfig, 0644); writeErr != nil {
				log.Warn("Could not write default config", "path", userConfigPath, "err", writeErr)
			} else {
				log.Info("Created default config file", "path", userConfigPath)
			}
		}
	}

	if err := yaml.Unmarshal(buf, c); err != nil {
		return nil, fmt.Errorf("in config file: %w", err)
	}

	applyEnvOverrides(c)

	if c.Conf.Federation.DeliveryWorkers <= 0 {
		c.Conf.Federation.DeliveryWorkers = 4
	}
	if c.Conf.Federation.InboxWorkers <= 0 {
		c.Conf.Federation.InboxWorkers = 4
	}
	if c.Conf.Federation.ActorCacheTTLHours <= 0 {
		c.Conf.Federation.ActorCacheTTLHours = 24
	}
	if c.Conf.Federation.MaxDeliveryAttempts <= 0 {
		c.Conf.Federation.MaxDeliveryAttempts = 10
	}
	if c.Conf.Federation.MaxInboundAttempts <= 0 {
		c.Conf.Federation.MaxInboundAttempts = 10
	}

	return c, nil
}

func applyEnvOverrides(c *AppConfig) {
	if v := os.Getenv("GROVE_HOST"); v != "" {
		c.Conf.Host = v
	}
	if v := os.Getenv("GROVE_HTTPPORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			log.Warn("Invalid GROVE_HTTPPORT", "value", v, "err", err)
		} else {
			c.Conf.HttpPort = port
		}
	}
	if v := os.Getenv("GROVE_DOMAIN"); v != "" {
		c.Conf.Domain = v
	}
	if v := os.Getenv("GROVE_LOGLEVEL"); v != "" {
		c.Conf.LogLevel = v
	}
	if v := os.Getenv("GROVE_FEDERATION"); v != "" {
		c.Conf.Federation.Enabled = v == "true"
	}
	if v := os.Getenv("GROVE_ALLOWED_DOMAINS"); v != "" {
		c.Conf.Federation.AllowedDomains = splitList(v)
	}
	if v := os.Getenv("GROVE_BLOCKED_DOMAINS"); v != "" {
		c.Conf.Federation.BlockedDomains = splitList(v)
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
