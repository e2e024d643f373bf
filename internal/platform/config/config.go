package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config captures everything the submission core reads from the environment.
// Components receive the value object (or a slice of it) at construction so
// no package reaches for os.Getenv on its own.
type Config struct {
	Addr        string
	DatabaseURL string

	// MasterKeyHex is the 32-byte hex key for at-rest encryption of
	// credential material. Empty means pass-through mode (dev only).
	MasterKeyHex string

	// Keystore password derivation salts. Both must be set before any
	// normalization runs.
	KeystoreSalt   string
	PrivateKeySalt string

	// KeystoreRoot is the shared volume under which normalized keystores
	// are published, one directory per host plus flat subject aliases.
	KeystoreRoot string

	// BridgeStorePassword is the fixed store password for artifacts that
	// predate salt-derived protection. Normalized keystores open with
	// per-subject passwords re-derived from the two salts; the bridge
	// password is the deployment-wide fallback.
	BridgeStorePassword string

	GatewayBaseURL string
	FormID         string
	FormVersion    string
	GatewayTimeout time.Duration

	// DefaultSigningKeyPath and OverrideSubject are the back-compat
	// fallbacks for locating signing key material when a host has no
	// normalized keystore yet.
	DefaultSigningKeyPath string
	OverrideSubject       string

	// KeytoolPath switches the keystore converter to the external process
	// variant when set. Empty selects the native converter.
	KeytoolPath    string
	ConvertTimeout time.Duration

	Redis RedisConfig

	KafkaBrokers    []string
	KafkaAuditTopic string

	Scheduler SchedulerConfig
}

// RedisConfig configures the optional Redis connection used for the
// scheduler run lease. An empty URL disables Redis.
type RedisConfig struct {
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// SchedulerConfig bounds the retry scheduler.
type SchedulerConfig struct {
	Interval  time.Duration
	BatchSize int
	Lookback  time.Duration
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	return Config{
		Addr:                  getenv("STAYGATE_ADDR", ":8080"),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		MasterKeyHex:          os.Getenv("CREDENTIALS_MASTER_KEY"),
		KeystoreSalt:          os.Getenv("KEYSTORE_PASS_SALT"),
		PrivateKeySalt:        os.Getenv("PRIVATE_KEY_PASS_SALT"),
		KeystoreRoot:          getenv("KEYSTORE_ROOT", "/var/lib/staygate/keystores"),
		BridgeStorePassword:   os.Getenv("BRIDGE_KEYSTORE_PASSWORD"),
		GatewayBaseURL:        os.Getenv("GOV_GATEWAY_URL"),
		FormID:                getenv("GOV_FORM_ID", "MVSR.HlaseniePobytu"),
		FormVersion:           getenv("GOV_FORM_VERSION", "1.0"),
		GatewayTimeout:        getduration("GOV_GATEWAY_TIMEOUT", 30*time.Second),
		DefaultSigningKeyPath: os.Getenv("GOV_SIGNING_KEY_PATH"),
		OverrideSubject:       os.Getenv("GOV_SIGNING_SUBJECT"),
		KeytoolPath:           os.Getenv("KEYTOOL_PATH"),
		ConvertTimeout:        getduration("KEYSTORE_CONVERT_TIMEOUT", 30*time.Second),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
		},
		KafkaBrokers:    splitNonEmpty(os.Getenv("KAFKA_BROKERS")),
		KafkaAuditTopic: getenv("KAFKA_AUDIT_TOPIC", "staygate.audit"),
		Scheduler: SchedulerConfig{
			Interval:  getduration("SCHEDULER_INTERVAL", 24*time.Hour),
			BatchSize: getint("SCHEDULER_BATCH_SIZE", 50),
			Lookback:  getduration("SCHEDULER_LOOKBACK", 30*24*time.Hour),
		},
	}
}

// FirstDefined returns the first non-empty value, in argument order. It is
// the single resolution point for chained path/key fallbacks; callers list
// sources in documented priority order instead of nesting env lookups.
func FirstDefined(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func getint(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func splitNonEmpty(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
