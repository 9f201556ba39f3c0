package redis

import (
	"crypto/tls"
	"testing"
)

func TestClientConfigWithDefaults(t *testing.T) {
	cfg := ClientConfig{Addr: "localhost:6379"}.withDefaults()
	if cfg.PoolSize != defaultPoolSize {
		t.Errorf("pool size = %d, want %d", cfg.PoolSize, defaultPoolSize)
	}
	if cfg.MaxRetries != defaultMaxRetries {
		t.Errorf("max retries = %d, want %d", cfg.MaxRetries, defaultMaxRetries)
	}

	explicit := ClientConfig{PoolSize: 42, MaxRetries: 1}.withDefaults()
	if explicit.PoolSize != 42 || explicit.MaxRetries != 1 {
		t.Errorf("explicit values overridden: %+v", explicit)
	}
}

func TestClientConfigOptions(t *testing.T) {
	plain := ClientConfig{Addr: "localhost:6379"}.options()
	if plain.TLSConfig != nil {
		t.Error("TLS config set without TLSEnabled")
	}
	if plain.DialTimeout != defaultDialTimeout {
		t.Errorf("dial timeout = %s", plain.DialTimeout)
	}

	secure := ClientConfig{Addr: "localhost:6379", TLSEnabled: true}.options()
	if secure.TLSConfig == nil || secure.TLSConfig.MinVersion != tls.VersionTLS12 {
		t.Errorf("tls config = %+v", secure.TLSConfig)
	}
}
