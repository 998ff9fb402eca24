package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config centraliza a configuração carregada do ambiente.
type Config struct {
	Port            int
	DBDSN           string
	RedisURL        string
	JWTSecret       string
	SessionTTL      time.Duration
	RefreshTTL      time.Duration
	AllowOrigins    []string
	RateLimitPublic RateLimitConfig
	RateLimitAuth   RateLimitConfig
	ModeratorRoles  []string
	LogLevel        string
	LogFormat       string
	LogFile         string
	ODK             ODKConfig
	Storage         StorageConfig
	Sync            SyncConfig
}

// RateLimitConfig representa limites simples para throttling.
type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// ODKConfig aponta para o banco externo de coleta, somente leitura.
type ODKConfig struct {
	DSN      string
	Schema   string
	Prefixes []string
}

// Enabled indica se a sincronização remota está configurada.
func (c ODKConfig) Enabled() bool {
	return c.DSN != ""
}

// StorageConfig seleciona onde os binários dos anexos são gravados.
type StorageConfig struct {
	Provider       string
	Dir            string
	UploadMaxBytes int64
	S3             S3Config
}

// S3Config contém os parâmetros do provedor compatível com S3.
type S3Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Prefix    string
}

// SyncConfig controla a reconciliação com o ODK.
type SyncConfig struct {
	Concurrency      int
	LockTTL          time.Duration
	SchedulerEnabled bool
	Interval         time.Duration
}

// Load carrega variáveis de ambiente e aplica defaults seguros.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	port, err := parseIntEnv("PORT", 3001)
	if err != nil || port <= 0 {
		return nil, errors.New("PORT inválida")
	}
	cfg.Port = port

	cfg.DBDSN = getEnv("DB_DSN", "")
	if cfg.DBDSN == "" {
		return nil, errors.New("DB_DSN obrigatório")
	}

	cfg.RedisURL = getEnv("REDIS_URL", "")
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL obrigatório")
	}

	cfg.JWTSecret = strings.TrimSpace(getEnv("JWT_SECRET", ""))
	if len(cfg.JWTSecret) < 32 {
		return nil, errors.New("JWT_SECRET deve ter pelo menos 32 caracteres")
	}

	hours, err := parseIntEnv("SESSION_TTL_HOURS", 24)
	if err != nil || hours <= 0 {
		return nil, errors.New("SESSION_TTL_HOURS inválido")
	}
	cfg.SessionTTL = time.Duration(hours) * time.Hour

	if cfg.RefreshTTL, err = parseDurationEnv("REFRESH_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}

	cfg.AllowOrigins = splitList(getEnv("ALLOW_ORIGINS", ""))
	cfg.RateLimitPublic = RateLimitConfig{RequestsPerSecond: 10, Burst: 20}
	cfg.RateLimitAuth = RateLimitConfig{RequestsPerSecond: 5, Burst: 10}

	cfg.ModeratorRoles = splitList(strings.ToLower(getEnv("MODERATOR_ROLES", "admin,moderador,coordenador")))
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(getEnv("LOG_LEVEL", "info")))
	cfg.LogFile = strings.TrimSpace(getEnv("LOG_FILE", ""))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(getEnv("LOG_FORMAT", "console")))
	if cfg.LogFormat != "console" && cfg.LogFormat != "json" {
		return nil, errors.New("LOG_FORMAT deve ser console ou json")
	}

	cfg.ODK = ODKConfig{
		DSN:      strings.TrimSpace(getEnv("ODK_DSN", "")),
		Schema:   strings.TrimSpace(getEnv("ODK_SCHEMA", "odk_prod")),
		Prefixes: splitList(strings.ToUpper(getEnv("ODK_TABLE_PREFIXES", "ORGANIZACAO"))),
	}
	if cfg.ODK.Enabled() && len(cfg.ODK.Prefixes) == 0 {
		return nil, errors.New("ODK_TABLE_PREFIXES deve listar ao menos um prefixo")
	}

	if cfg.Storage, err = loadStorage(); err != nil {
		return nil, err
	}
	if cfg.Sync, err = loadSync(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadStorage() (StorageConfig, error) {
	sc := StorageConfig{
		Provider: strings.ToLower(strings.TrimSpace(getEnv("STORAGE_PROVIDER", "local"))),
		Dir:      strings.TrimSpace(getEnv("STORAGE_DIR", "./uploads")),
		S3: S3Config{
			Endpoint:  strings.TrimSpace(getEnv("S3_ENDPOINT", "")),
			Region:    strings.TrimSpace(getEnv("S3_REGION", "us-east-1")),
			Bucket:    strings.TrimSpace(getEnv("S3_BUCKET", "")),
			AccessKey: strings.TrimSpace(getEnv("S3_ACCESS_KEY", "")),
			SecretKey: strings.TrimSpace(getEnv("S3_SECRET_KEY", "")),
			Prefix:    strings.TrimSpace(getEnv("S3_PREFIX", "")),
		},
	}
	maxBytes, err := parseIntEnv("UPLOAD_MAX_BYTES", 20<<20)
	if err != nil || maxBytes <= 0 {
		return sc, errors.New("UPLOAD_MAX_BYTES inválido")
	}
	sc.UploadMaxBytes = int64(maxBytes)

	switch sc.Provider {
	case "local":
		if sc.Dir == "" {
			return sc, errors.New("STORAGE_DIR obrigatório para armazenamento local")
		}
	case "s3":
		if sc.S3.Endpoint == "" || sc.S3.Bucket == "" {
			return sc, errors.New("S3_ENDPOINT e S3_BUCKET obrigatórios para STORAGE_PROVIDER=s3")
		}
	default:
		return sc, errors.New("STORAGE_PROVIDER deve ser local ou s3")
	}
	return sc, nil
}

func loadSync() (SyncConfig, error) {
	sc := SyncConfig{}
	n, err := parseIntEnv("SYNC_CONCURRENCY", 1)
	if err != nil || n <= 0 {
		return sc, errors.New("SYNC_CONCURRENCY inválido")
	}
	sc.Concurrency = n

	if sc.LockTTL, err = parseDurationEnv("SYNC_LOCK_TTL", 30*time.Minute); err != nil {
		return sc, err
	}
	if sc.Interval, err = parseDurationEnv("SYNC_INTERVAL", 6*time.Hour); err != nil {
		return sc, err
	}
	if sc.SchedulerEnabled, err = parseBoolEnv("SYNC_SCHEDULER_ENABLED", false); err != nil {
		return sc, err
	}
	return sc, nil
}

func getEnv(key, def string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return def
}

func parseIntEnv(key string, def int) (int, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, errors.New(key + " inválido")
	}
	return n, nil
}

func parseBoolEnv(key string, def bool) (bool, error) {
	val := strings.TrimSpace(getEnv(key, ""))
	if val == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, errors.New(key + " inválido")
	}
	return b, nil
}

func parseDurationEnv(key string, def time.Duration) (time.Duration, error) {
	val := getEnv(key, "")
	if val == "" {
		return def, nil
	}
	dur, err := time.ParseDuration(val)
	if err != nil || dur <= 0 {
		return 0, errors.New(key + " inválido")
	}
	return dur, nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
