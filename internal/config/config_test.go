package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

// noEnvFile points LoadFile at a path that does not exist so a developer's .env cannot leak in.
func noEnvFile(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := LoadFile(noEnvFile(t))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.APIURL != DefaultAPIURL {
		t.Errorf("APIURL = %q, want %q", cfg.APIURL, DefaultAPIURL)
	}
	if cfg.RequestTimeout() != 15*time.Second {
		t.Errorf("RequestTimeout = %v, want 15s", cfg.RequestTimeout())
	}
	if cfg.LookupRetries != 2 {
		t.Errorf("LookupRetries = %d, want 2", cfg.LookupRetries)
	}
	if cfg.TLSInsecure {
		t.Error("TLSInsecure should default to false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.ServiceName != "kvkk-permits" {
		t.Errorf("ServiceName = %q", cfg.ServiceName)
	}
	if cfg.TelemetryKafkaTopic != "kvkk-consent-events" {
		t.Errorf("TelemetryKafkaTopic = %q", cfg.TelemetryKafkaTopic)
	}
	if cfg.KafkaGroupID != "kvkk-telemetry-worker" {
		t.Errorf("KafkaGroupID = %q", cfg.KafkaGroupID)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	t.Setenv("KVKK_API_URL", "https://directory.example/api/cari/")
	t.Setenv("KVKK_API_KEY", "secret")
	t.Setenv("KVKK_REQUEST_TIMEOUT", "3s")
	t.Setenv("KVKK_LOOKUP_RETRIES", "0")
	t.Setenv("HOST_TOKEN", "tok")
	t.Setenv("HOST_REQUESTER_PHONE", "05321234567")

	cfg, err := LoadFile(noEnvFile(t))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.APIURL != "https://directory.example/api/cari" {
		t.Errorf("APIURL = %q, trailing slash should be trimmed", cfg.APIURL)
	}
	if cfg.APIKey != "secret" || cfg.HostToken != "tok" || cfg.HostRequesterPhone != "05321234567" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RequestTimeout() != 3*time.Second {
		t.Errorf("RequestTimeout = %v, want 3s", cfg.RequestTimeout())
	}
	if cfg.LookupRetries != 0 {
		t.Errorf("LookupRetries = %d, want 0", cfg.LookupRetries)
	}
}

func TestLoad_WithEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "KVKK_API_KEY=from-file\nKAFKA_BROKERS=a:9092\nLOG_LEVEL=debug\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LOG_LEVEL", "warn")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.APIKey != "from-file" {
		t.Errorf("APIKey = %q, want from-file", cfg.APIKey)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, env should override .env", cfg.LogLevel)
	}
	if got := cfg.TelemetryKafkaBrokersList(); !reflect.DeepEqual(got, []string{"a:9092"}) {
		t.Errorf("brokers = %v", got)
	}
}

func TestLoad_Invalid(t *testing.T) {
	testCases := []struct {
		name string
		env  map[string]string
	}{
		{"bad timeout", map[string]string{"KVKK_REQUEST_TIMEOUT": "soon"}},
		{"zero timeout", map[string]string{"KVKK_REQUEST_TIMEOUT": "0s"}},
		{"negative retries", map[string]string{"KVKK_LOOKUP_RETRIES": "-1"}},
		{"insecure in production", map[string]string{"KVKK_TLS_INSECURE": "true", "APP_ENV": "production"}},
		{"blank url", map[string]string{"KVKK_API_URL": "  "}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			for k, v := range tc.env {
				t.Setenv(k, v)
			}
			if _, err := LoadFile(noEnvFile(t)); err == nil {
				t.Error("LoadFile should fail")
			}
		})
	}
}

func TestLoad_InsecureOutsideProduction(t *testing.T) {
	t.Setenv("KVKK_TLS_INSECURE", "true")
	t.Setenv("APP_ENV", "development")
	cfg, err := LoadFile(noEnvFile(t))
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if !cfg.TLSInsecure || cfg.Production() {
		t.Errorf("cfg = %+v", cfg)
	}
}

func TestTelemetryKafkaBrokersList(t *testing.T) {
	testCases := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a:9092", []string{"a:9092"}},
		{" a:9092 , ,b:9092 ", []string{"a:9092", "b:9092"}},
	}
	for _, tc := range testCases {
		cfg := &Config{TelemetryKafkaBrokers: tc.in}
		if got := cfg.TelemetryKafkaBrokersList(); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("TelemetryKafkaBrokersList(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
	var nilCfg *Config
	if nilCfg.TelemetryKafkaBrokersList() != nil {
		t.Error("nil config should return nil")
	}
}

func TestRequestTimeout_Fallback(t *testing.T) {
	cfg := &Config{RequestTimeoutRaw: "garbage"}
	if cfg.RequestTimeout() != 15*time.Second {
		t.Errorf("RequestTimeout = %v", cfg.RequestTimeout())
	}
}
