package config

import (
	"os"
	"path/filepath"
	"testing"
)

const validToken = "abcdefghijklmnopqrstuvwxyz012345" // 32 chars
const validZone = "0123456789abcdef"                  // 16 chars

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("error writing temp config: %s", err)
	}
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeTOML(t, `
api_token = "`+validToken+`"
zone_id = "`+validZone+`"
record_name = "home.example.com"
timeout = 15
poll_interval = 30
multi_record = "first"
health_port = 8080
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if cfg.APIToken != validToken || cfg.ZoneID != validZone || cfg.RecordName != "home.example.com" {
		t.Fatalf("unexpected identity fields: %+v", cfg)
	}
	if cfg.TimeoutSec != 15 || cfg.PollIntervalS != 30 || cfg.HealthPort != 8080 {
		t.Fatalf("unexpected numeric fields: %+v", cfg)
	}
	if cfg.ProviderType != "cloudflare" {
		t.Fatalf("expected default provider_type, got %q", cfg.ProviderType)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTOML(t, `
api_token = "`+validToken+`"
zone_id = "`+validZone+`"
record_name = "home.example.com"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if cfg.TimeoutSec != defaultTimeoutSec {
		t.Fatalf("TimeoutSec = %d, want default %d", cfg.TimeoutSec, defaultTimeoutSec)
	}
	if cfg.PollIntervalS != defaultPollIntervalSec {
		t.Fatalf("PollIntervalS = %d, want default %d", cfg.PollIntervalS, defaultPollIntervalSec)
	}
	if cfg.HealthPort != 0 {
		t.Fatalf("HealthPort = %d, want 0 (disabled by default)", cfg.HealthPort)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeTOML(t, `
api_token = "`+validToken+`"
zone_id = "`+validZone+`"
record_name = "home.example.com"
`)

	t.Setenv("CLOUDFLARE_API_TOKEN", validToken+"zzzz")
	t.Setenv("IPV6DDNS_TIMEOUT", "99")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %s", err)
	}
	if cfg.APIToken != validToken+"zzzz" {
		t.Fatalf("env override for api token did not apply: %q", cfg.APIToken)
	}
	if cfg.TimeoutSec != 99 {
		t.Fatalf("env override for timeout did not apply: %d", cfg.TimeoutSec)
	}
}

func TestLoadRejectsMissingRequiredFields(t *testing.T) {
	path := writeTOML(t, `record_name = "home.example.com"`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error when api_token and zone_id are missing")
	}
}

func TestLoadRejectsOutOfRangeTimeout(t *testing.T) {
	path := writeTOML(t, `
api_token = "`+validToken+`"
zone_id = "`+validZone+`"
record_name = "home.example.com"
timeout = 10000
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an out-of-range timeout")
	}
}

func TestLoadRejectsUnknownProviderType(t *testing.T) {
	path := writeTOML(t, `
api_token = "`+validToken+`"
zone_id = "`+validZone+`"
record_name = "home.example.com"
provider_type = "route53"
`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error for an unsupported provider_type")
	}
}

func TestValidateRecordName(t *testing.T) {
	cases := []struct {
		name    string
		wantErr bool
	}{
		{"@", false},
		{"home.example.com", false},
		{"home.example.com.", false},
		{"*.example.com", false},
		{"my_host.example.com", false},
		{"", true},
		{"has space.example.com", true},
		{"-leadinghyphen.example.com", true},
		{"trailinghyphen-.example.com", true},
		{"double..dot.example.com", true},
		{".example.com", true},
		{"bad!char.example.com", true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			err := ValidateRecordName(c.name)
			if c.wantErr && err == nil {
				t.Fatalf("expected an error for record name %q", c.name)
			}
			if !c.wantErr && err != nil {
				t.Fatalf("unexpected error for record name %q: %s", c.name, err)
			}
		})
	}
}

func TestValidateRecordNameTooLong(t *testing.T) {
	label := ""
	for i := 0; i < 64; i++ {
		label += "a"
	}
	if err := ValidateRecordName(label + ".example.com"); err == nil {
		t.Fatalf("expected an error for a label longer than 63 characters")
	}
}
