package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

type testConfig struct {
	DB     DBConfig     `yaml:"db"`
	Server ServerConfig `yaml:"server"`
	JWT    JWTConfig    `yaml:"jwt"`
}

func TestDecode(t *testing.T) {
	t.Run("env file overrides base and keeps untouched keys", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "db:\n  host: base-host\n  port: 5432\nserver:\n  port: \":8080\"\n")
		writeFile(t, dir, "staging.yaml", "db:\n  host: staging-host\n")

		var cfg testConfig
		if err := Decode("staging", dir, &cfg); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if cfg.DB.Host != "staging-host" {
			t.Errorf("DB.Host = %q, want %q", cfg.DB.Host, "staging-host")
		}
		if cfg.DB.Port != 5432 {
			t.Errorf("DB.Port = %d, want 5432", cfg.DB.Port)
		}
		if cfg.Server.Port != ":8080" {
			t.Errorf("Server.Port = %q, want %q", cfg.Server.Port, ":8080")
		}
	})

	t.Run("missing env file falls back to base", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "db:\n  host: base-host\n")

		var cfg testConfig
		if err := Decode("production", dir, &cfg); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if cfg.DB.Host != "base-host" {
			t.Errorf("DB.Host = %q, want %q", cfg.DB.Host, "base-host")
		}
	})

	t.Run("placeholders resolve from secrets before environment", func(t *testing.T) {
		dir := t.TempDir()
		writeFile(t, dir, "base.yaml", "jwt:\n  secret: ${JWT_SIGNING_KEY}\ndb:\n  password: ${TEST_DB_PASS}\n  user: ${NOT_SET_ANYWHERE}\n")
		writeFile(t, dir, "secrets.env", "# comment\nJWT_SIGNING_KEY=\"from-secrets\"\n")
		t.Setenv("JWT_SIGNING_KEY", "from-env")
		t.Setenv("TEST_DB_PASS", "pw")

		var cfg testConfig
		if err := Decode("local", dir, &cfg); err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if cfg.JWT.Secret != "from-secrets" {
			t.Errorf("JWT.Secret = %q, want %q", cfg.JWT.Secret, "from-secrets")
		}
		if cfg.DB.Password != "pw" {
			t.Errorf("DB.Password = %q, want %q", cfg.DB.Password, "pw")
		}
		if cfg.DB.User != "${NOT_SET_ANYWHERE}" {
			t.Errorf("DB.User = %q, want placeholder left intact", cfg.DB.User)
		}
	})

	t.Run("missing base is an error", func(t *testing.T) {
		var cfg testConfig
		if err := Decode("local", t.TempDir(), &cfg); err == nil {
			t.Fatal("Decode() error = nil, want error")
		}
	})
}

func TestOverrideFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("MQ_MAX_RETRIES", "7")
	t.Setenv("SERVER_PORT", ":9999")

	db := DBConfig{Host: "localhost", Port: 5432}
	OverrideDBFromEnv(&db)
	if db.Host != "db.internal" || db.Port != 6543 {
		t.Errorf("db = %+v, want host db.internal port 6543", db)
	}

	mq := MQConfig{MaxRetries: 3}
	OverrideMQFromEnv(&mq)
	if mq.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d, want 7", mq.MaxRetries)
	}

	srv := ServerConfig{Port: ":8080"}
	OverrideServerFromEnv(&srv)
	if srv.Port != ":9999" {
		t.Errorf("Port = %q, want %q", srv.Port, ":9999")
	}
	if srv.ShutdownDuration().Seconds() != 30 {
		t.Errorf("ShutdownDuration = %v, want 30s", srv.ShutdownDuration())
	}
}
