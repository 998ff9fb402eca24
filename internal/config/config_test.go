package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

func setBase(t *testing.T) {
	t.Helper()
	t.Setenv("DB_DSN", "postgres://localhost/pinovara")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("JWT_SECRET", strings.Repeat("k", 32))
}

func TestLoadDefaults(t *testing.T) {
	setBase(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != 3001 {
		t.Fatalf("port = %d", cfg.Port)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Fatalf("session ttl = %s", cfg.SessionTTL)
	}
	if !reflect.DeepEqual(cfg.ModeratorRoles, []string{"admin", "moderador", "coordenador"}) {
		t.Fatalf("moderator roles = %v", cfg.ModeratorRoles)
	}
	if cfg.Storage.Provider != "local" || cfg.Storage.UploadMaxBytes != 20<<20 {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Sync.Concurrency != 1 || cfg.Sync.SchedulerEnabled {
		t.Fatalf("sync = %+v", cfg.Sync)
	}
	if cfg.ODK.Enabled() {
		t.Fatalf("ODK não deveria estar habilitado sem DSN")
	}
	if cfg.LogFormat != "console" {
		t.Fatalf("log format = %q", cfg.LogFormat)
	}
}

func TestLoadOverrides(t *testing.T) {
	setBase(t)
	t.Setenv("SESSION_TTL_HOURS", "8")
	t.Setenv("ODK_DSN", "postgres://odk/odk")
	t.Setenv("ODK_TABLE_PREFIXES", "organizacao, organizacao_v2 ,")
	t.Setenv("MODERATOR_ROLES", "Admin")
	t.Setenv("SYNC_CONCURRENCY", "3")
	t.Setenv("SYNC_SCHEDULER_ENABLED", "true")
	t.Setenv("SYNC_INTERVAL", "30m")
	t.Setenv("ALLOW_ORIGINS", "http://localhost:5173, https://pinovara.ufba.br")
	t.Setenv("LOG_FORMAT", " JSON ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SessionTTL != 8*time.Hour {
		t.Fatalf("session ttl = %s", cfg.SessionTTL)
	}
	if !reflect.DeepEqual(cfg.ODK.Prefixes, []string{"ORGANIZACAO", "ORGANIZACAO_V2"}) {
		t.Fatalf("prefixes = %v", cfg.ODK.Prefixes)
	}
	if !reflect.DeepEqual(cfg.ModeratorRoles, []string{"admin"}) {
		t.Fatalf("moderator roles = %v", cfg.ModeratorRoles)
	}
	if cfg.Sync.Concurrency != 3 || !cfg.Sync.SchedulerEnabled || cfg.Sync.Interval != 30*time.Minute {
		t.Fatalf("sync = %+v", cfg.Sync)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("log format = %q", cfg.LogFormat)
	}
	if len(cfg.AllowOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.AllowOrigins)
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	cases := map[string][2]string{
		"segredo curto":  {"JWT_SECRET", "curto"},
		"ttl zero":       {"SESSION_TTL_HOURS", "0"},
		"provider":       {"STORAGE_PROVIDER", "ftp"},
		"s3 incompleto":  {"STORAGE_PROVIDER", "s3"},
		"concorrência":   {"SYNC_CONCURRENCY", "0"},
		"intervalo":      {"SYNC_INTERVAL", "sempre"},
		"agendador":      {"SYNC_SCHEDULER_ENABLED", "talvez"},
		"upload":         {"UPLOAD_MAX_BYTES", "-1"},
		"porta":          {"PORT", "abc"},
		"formato de log": {"LOG_FORMAT", "xml"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			setBase(t)
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("esperava erro para %s=%s", kv[0], kv[1])
			}
		})
	}
}

func TestLoadRequiresDSN(t *testing.T) {
	setBase(t)
	t.Setenv("DB_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatalf("DB_DSN vazio deveria falhar")
	}
}
