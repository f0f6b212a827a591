package config

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
credentials_file: /etc/kumocloud/credentials.yaml
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ScanInterval() != DefaultScanInterval {
		t.Fatalf("scan interval = %v, want %v", cfg.ScanInterval(), DefaultScanInterval)
	}
	if cfg.Settle() != DefaultSettle {
		t.Fatalf("settle = %v, want %v", cfg.Settle(), DefaultSettle)
	}
	if cfg.HTTPAddr != DefaultHTTPAddr {
		t.Fatalf("http addr = %q, want %q", cfg.HTTPAddr, DefaultHTTPAddr)
	}
	if cfg.Tokens.StatePath != DefaultStatePath {
		t.Fatalf("state path = %q, want %q", cfg.Tokens.StatePath, DefaultStatePath)
	}
	if cfg.MQTT != nil {
		t.Fatal("mqtt should be nil when not configured")
	}
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
site_id: site-42
scan_interval_seconds: 120
http_addr: ":9000"
credentials_file: /etc/kumocloud/credentials.yaml
api:
  base_url: https://staging.example.com
tokens:
  state_path: /tmp/state.json
  blob:
    endpoint: https://minio.example.com
    bucket: tokens
commands:
  settle_seconds: 1.5
mqtt:
  broker: tcp://broker:1883
logging:
  level: debug
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SiteID != "site-42" {
		t.Fatalf("site id = %q", cfg.SiteID)
	}
	if cfg.ScanInterval() != 120*time.Second {
		t.Fatalf("scan interval = %v", cfg.ScanInterval())
	}
	if cfg.Settle() != 1500*time.Millisecond {
		t.Fatalf("settle = %v", cfg.Settle())
	}
	if cfg.Tokens.Blob == nil || cfg.Tokens.Blob.Bucket != "tokens" {
		t.Fatalf("blob config not parsed: %+v", cfg.Tokens.Blob)
	}
	if cfg.MQTT == nil || cfg.MQTT.Topic != "kumocloud" {
		t.Fatalf("mqtt topic default not applied: %+v", cfg.MQTT)
	}
}

func TestScanIntervalOutOfRange(t *testing.T) {
	for _, secs := range []int{10, 29, 301, 3600} {
		path := writeConfig(t, `
credentials_file: /etc/kumocloud/credentials.yaml
scan_interval_seconds: `+strconv.Itoa(secs))
		if _, err := Load(path); err == nil {
			t.Fatalf("scan_interval_seconds=%d accepted", secs)
		}
	}
}

func TestSettleOutOfRange(t *testing.T) {
	for _, body := range []string{
		"commands:\n  settle_seconds: 0.1",
		"commands:\n  settle_seconds: 6",
	} {
		path := writeConfig(t, "credentials_file: /etc/kumocloud/credentials.yaml\n"+body)
		if _, err := Load(path); err == nil {
			t.Fatalf("config accepted: %s", body)
		}
	}
}

func TestMissingCredentialsFile(t *testing.T) {
	path := writeConfig(t, `site_id: site-42`)
	if _, err := Load(path); err == nil {
		t.Fatal("config without credentials_file accepted")
	}
}

func TestMQTTRequiresBroker(t *testing.T) {
	path := writeConfig(t, `
credentials_file: /etc/kumocloud/credentials.yaml
mqtt:
  client_id: kumo
`)
	if _, err := Load(path); err == nil {
		t.Fatal("mqtt block without broker accepted")
	}
}

func TestLoadCredentials(t *testing.T) {
	path := writeConfig(t, `
username: user@example.com
password: hunter2
`)
	creds, err := LoadCredentials(path)
	if err != nil {
		t.Fatalf("LoadCredentials: %v", err)
	}
	if creds.Username != "user@example.com" || creds.Password != "hunter2" {
		t.Fatalf("credentials mismatch: %+v", creds)
	}

	empty := writeConfig(t, `username: user@example.com`)
	if _, err := LoadCredentials(empty); err == nil {
		t.Fatal("credentials without password accepted")
	}
}
