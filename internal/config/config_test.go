package config

import (
	"strings"
	"testing"
)

func validConfig() Config {
	return Config{
		App:        AppConfig{Env: "local", Port: 8080},
		DB:         DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "sipcall", SSLMode: ""},
		Redis:      RedisConfig{Host: "localhost", Port: 6379},
		Auth:       AuthConfig{JWTSecret: "secret"},
		Switch:     SwitchConfig{Host: "localhost", Port: 8021, Password: "ClueCon", Gateway: "default"},
		Encryption: EncryptionConfig{MasterSecret: "dev-master-secret"},
	}
}

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.Encryption.MasterSecret = strings.Repeat("k", 32)
	c.Auth.JWTIssuer = "sipcall"
	c.Auth.JWTAudience = "sipcall-api"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaultsSSLMode(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
}

func TestValidate_SwitchSectionRequired(t *testing.T) {
	c := validConfig()
	c.Switch = SwitchConfig{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for missing switch config")
	}
}

func TestValidate_ProductionRejectsShortMasterSecret(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "sipcall"
	c.Auth.JWTAudience = "sipcall-api"
	c.Encryption.MasterSecret = "short"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for short master secret in production")
	}
}

func TestValidate_TokenTTLDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.Auth.AccessTokenTTL <= 0 || c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		t.Fatalf("ttl defaults not applied: access=%v refresh=%v", c.Auth.AccessTokenTTL, c.Auth.RefreshTokenTTL)
	}
}
