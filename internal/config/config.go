// Package config loads ipv6ddns's configuration: a TOML file merged with
// environment variable overrides, validated once at startup (spec §3, §6).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/ipv6ddns/ipv6ddns"
)

const (
	defaultTimeoutSec      = 30
	defaultPollIntervalSec = 60
	defaultProviderType    = "cloudflare"

	minTimeoutSec      = 1
	maxTimeoutSec      = 300
	minPollIntervalSec = 10
	maxPollIntervalSec = 3600

	minAPITokenLength = 32
	minZoneIDLength   = 16
	maxZoneIDLength   = 64
)

// Config is the validated, immutable configuration the daemon runs with.
// Required fields: APIToken, ZoneID, RecordName. All others carry defaults.
type Config struct {
	APIToken      string
	ZoneID        string
	RecordName    string
	TimeoutSec    int
	PollIntervalS int
	Verbose       bool
	MultiRecord   ipv6ddns.MultiRecordPolicy
	AllowLoopback bool
	ProviderType  string
	HealthPort    int
}

// fileConfig mirrors the TOML file's recognized keys (spec §6). Pointer
// fields distinguish "absent from file" from "explicitly zero/false", so
// defaults are only applied when a key is genuinely missing.
type fileConfig struct {
	APIToken      string  `toml:"api_token"`
	ZoneID        string  `toml:"zone_id"`
	RecordName    string  `toml:"record_name"`
	Timeout       *int    `toml:"timeout"`
	PollInterval  *int    `toml:"poll_interval"`
	Verbose       *bool   `toml:"verbose"`
	MultiRecord   *string `toml:"multi_record"`
	AllowLoopback *bool   `toml:"allow_loopback"`
	ProviderType  *string `toml:"provider_type"`
	HealthPort    *int    `toml:"health_port"`
}

// Load reads path (if non-empty), overlays recognized environment
// variables (environment wins), applies defaults for anything still unset,
// and validates the result.
func Load(path string) (*Config, error) {
	var fc fileConfig
	if path != "" {
		if _, err := toml.DecodeFile(path, &fc); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		APIToken:      fc.APIToken,
		ZoneID:        fc.ZoneID,
		RecordName:    fc.RecordName,
		TimeoutSec:    intOr(fc.Timeout, defaultTimeoutSec),
		PollIntervalS: intOr(fc.PollInterval, defaultPollIntervalSec),
		Verbose:       boolOr(fc.Verbose, false),
		AllowLoopback: boolOr(fc.AllowLoopback, false),
		ProviderType:  stringOr(fc.ProviderType, defaultProviderType),
		HealthPort:    intOr(fc.HealthPort, 0),
	}

	multiRecordRaw := stringOr(fc.MultiRecord, "error")

	overrideWithEnv(cfg, &multiRecordRaw)

	policy, err := ipv6ddns.ParseMultiRecordPolicy(multiRecordRaw)
	if err != nil {
		return nil, err
	}
	cfg.MultiRecord = policy

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// overrideWithEnv applies the environment variable overlay (spec §6):
// CLOUDFLARE_* for credential/identity keys, IPV6DDNS_* for operational
// keys. Environment wins over the file unconditionally.
func overrideWithEnv(cfg *Config, multiRecord *string) {
	if v, ok := os.LookupEnv("CLOUDFLARE_API_TOKEN"); ok {
		cfg.APIToken = v
	}
	if v, ok := os.LookupEnv("CLOUDFLARE_ZONE_ID"); ok {
		cfg.ZoneID = v
	}
	if v, ok := os.LookupEnv("CLOUDFLARE_RECORD_NAME"); ok {
		cfg.RecordName = v
	}
	if v, ok := os.LookupEnv("CLOUDFLARE_MULTI_RECORD"); ok {
		*multiRecord = v
	}
	if v, ok := os.LookupEnv("IPV6DDNS_ALLOW_LOOPBACK"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.AllowLoopback = b
		}
	}
	if v, ok := os.LookupEnv("IPV6DDNS_PROVIDER_TYPE"); ok {
		cfg.ProviderType = v
	}
	if v, ok := os.LookupEnv("IPV6DDNS_HEALTH_PORT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HealthPort = n
		}
	}
	if v, ok := os.LookupEnv("IPV6DDNS_TIMEOUT"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TimeoutSec = n
		}
	}
	if v, ok := os.LookupEnv("IPV6DDNS_POLL_INTERVAL"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PollIntervalS = n
		}
	}
	if v, ok := os.LookupEnv("IPV6DDNS_VERBOSE"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Verbose = b
		}
	}
}

func (c *Config) validate() error {
	if c.APIToken == "" {
		return fmt.Errorf("api_token is required")
	}
	if len(c.APIToken) < minAPITokenLength {
		return fmt.Errorf("api_token looks too short (min %d characters)", minAPITokenLength)
	}
	if c.ZoneID == "" {
		return fmt.Errorf("zone_id is required")
	}
	if len(c.ZoneID) < minZoneIDLength || len(c.ZoneID) > maxZoneIDLength {
		return fmt.Errorf("zone_id length must be between %d and %d characters", minZoneIDLength, maxZoneIDLength)
	}
	if c.RecordName == "" {
		return fmt.Errorf("record_name is required")
	}
	if err := ValidateRecordName(c.RecordName); err != nil {
		return err
	}
	if c.TimeoutSec < minTimeoutSec || c.TimeoutSec > maxTimeoutSec {
		return fmt.Errorf("timeout must be between %d and %d seconds", minTimeoutSec, maxTimeoutSec)
	}
	if c.PollIntervalS < minPollIntervalSec || c.PollIntervalS > maxPollIntervalSec {
		return fmt.Errorf("poll_interval must be between %d and %d seconds", minPollIntervalSec, maxPollIntervalSec)
	}
	if c.ProviderType != "cloudflare" {
		return fmt.Errorf("unsupported provider_type %q", c.ProviderType)
	}
	return nil
}

// ValidateRecordName ports original_source/src/validation.rs's
// validate_record_name: allows the bare apex "@", wildcard labels, and a
// trailing dot (FQDN notation), and otherwise requires RFC-1035-ish labels.
func ValidateRecordName(recordName string) error {
	trimmed := strings.TrimSpace(recordName)
	if trimmed == "" {
		return fmt.Errorf("record name cannot be empty")
	}
	if trimmed == "@" {
		return nil
	}
	if strings.Contains(trimmed, " ") {
		return fmt.Errorf("record name cannot contain spaces")
	}

	name := strings.TrimSuffix(trimmed, ".")
	if name == "" {
		return fmt.Errorf("record name cannot be empty")
	}
	if len(name) > 253 {
		return fmt.Errorf("record name too long (max 253 characters, got %d)", len(name))
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("record name cannot start with a dot")
	}
	if strings.Contains(name, "..") {
		return fmt.Errorf("record name cannot contain consecutive dots")
	}

	for _, label := range strings.Split(name, ".") {
		if label == "" {
			return fmt.Errorf("record name contains empty label")
		}
		if label == "*" {
			continue
		}
		if len(label) > 63 {
			return fmt.Errorf("record name label too long (max 63 characters, got %d)", len(label))
		}
		if strings.HasPrefix(label, "-") || strings.HasSuffix(label, "-") {
			return fmt.Errorf("record name label cannot start or end with hyphen")
		}
		for _, ch := range label {
			if !isAlphaNumeric(ch) && ch != '-' && ch != '_' {
				return fmt.Errorf("record name contains invalid character: %q (allowed: letters, digits, '-', '_', or wildcard labels)", ch)
			}
		}
	}
	return nil
}

func isAlphaNumeric(ch rune) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || (ch >= '0' && ch <= '9')
}

func intOr(p *int, def int) int {
	if p != nil {
		return *p
	}
	return def
}

func boolOr(p *bool, def bool) bool {
	if p != nil {
		return *p
	}
	return def
}

func stringOr(p *string, def string) string {
	if p != nil && *p != "" {
		return *p
	}
	return def
}
