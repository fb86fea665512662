package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"tavern/cmd/internal/localstore"
	"tavern/cmd/internal/pgschema"
)

// ErrConfig wraps every configuration validation failure.
var ErrConfig = errors.New("app: invalid config")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	LogLevel  string `env:"TAVERN_LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"TAVERN_LOG_FORMAT" envDefault:"json"`

	// Local store.
	Platform    string `env:"TAVERN_PLATFORM" envDefault:"native"`
	WebStorage  bool   `env:"TAVERN_WEB_STORAGE" envDefault:"true"`
	DataDir     string `env:"TAVERN_DATA_DIR"`
	RedisURL    string `env:"TAVERN_REDIS_URL"`
	RedisPrefix string `env:"TAVERN_REDIS_PREFIX" envDefault:"tavern:local:"`
	Keystore    string `env:"TAVERN_KEYSTORE" envDefault:"os"`

	// Remote data. Empty DatabaseURL runs against in-memory stores.
	DatabaseURL string `env:"TAVERN_DATABASE_URL"`
	DBSchema    string `env:"TAVERN_DB_SCHEMA" envDefault:"tavern"`
	DBMaxConns  int32  `env:"TAVERN_DB_MAX_CONNS" envDefault:"10"`
	DBMinConns  int32  `env:"TAVERN_DB_MIN_CONNS" envDefault:"0"`

	// Identity. Empty IdentityURL uses the embedded local provider.
	IdentityURL       string        `env:"TAVERN_IDENTITY_URL"`
	IdentityAPIKey    string        `env:"TAVERN_IDENTITY_API_KEY"`
	IdentityTimeout   time.Duration `env:"TAVERN_IDENTITY_TIMEOUT" envDefault:"10s"`
	OAuthRedirectURL  string        `env:"TAVERN_OAUTH_REDIRECT_URL"`
	RequireEmailCheck bool          `env:"TAVERN_REQUIRE_EMAIL_CONFIRMATION" envDefault:"false"`

	// Engine tuning.
	InviteTTL           time.Duration `env:"TAVERN_INVITE_TTL" envDefault:"168h"`
	PendingInviteTTL    time.Duration `env:"TAVERN_PENDING_INVITE_TTL" envDefault:"24h"`
	RedirectWindow      time.Duration `env:"TAVERN_REDIRECT_WINDOW" envDefault:"5m"`
	RedirectMaxAttempts int           `env:"TAVERN_REDIRECT_MAX_ATTEMPTS" envDefault:"3"`

	// HTTP companion server.
	HTTPAddr          string        `env:"TAVERN_HTTP_ADDR" envDefault:"127.0.0.1:8787"`
	ReadHeaderTimeout time.Duration `env:"TAVERN_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"TAVERN_HTTP_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout      time.Duration `env:"TAVERN_HTTP_WRITE_TIMEOUT" envDefault:"15s"`
	IdleTimeout       time.Duration `env:"TAVERN_HTTP_IDLE_TIMEOUT" envDefault:"60s"`
	MaxHeaderBytes    int           `env:"TAVERN_HTTP_MAX_HEADER_BYTES" envDefault:"1048576"`

	// Failed invite opens per client before POST /v1/invites/open answers 429.
	InviteOpenMaxFailures int           `env:"TAVERN_INVITE_OPEN_MAX_FAILURES" envDefault:"10"`
	InviteOpenWindow      time.Duration `env:"TAVERN_INVITE_OPEN_WINDOW" envDefault:"10m"`

	// If true, /readyz returns 503 unless the database is configured and reachable.
	ReadinessRequireDB bool `env:"TAVERN_READINESS_REQUIRE_DB" envDefault:"false"`

	// If true, TAVERN_TOKEN_HMAC_KEY must be set (>= 32 bytes) and invite
	// tokens are hashed with HMAC.
	RequireTokenHMAC bool `env:"TAVERN_REQUIRE_TOKEN_HMAC" envDefault:"false"`
}

// LoadConfig parses the environment, fills derived defaults and validates.
func LoadConfig() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	if cfg.DataDir == "" && cfg.Platform == string(localstore.PlatformNative) {
		dir, err := os.UserConfigDir()
		if err != nil {
			return Config{}, fmt.Errorf("%w: TAVERN_DATA_DIR unset and no user config dir: %w", ErrConfig, err)
		}
		cfg.DataDir = filepath.Join(dir, "tavern")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks enum fields and ranges.
func (c Config) Validate() error {
	var errs []error
	bad := func(msg string) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrConfig, msg))
	}

	switch localstore.Platform(c.Platform) {
	case localstore.PlatformNative, localstore.PlatformWeb:
	case localstore.PlatformRedis:
		if strings.TrimSpace(c.RedisURL) == "" {
			bad("TAVERN_PLATFORM=redis requires TAVERN_REDIS_URL")
		}
	default:
		bad(fmt.Sprintf("unknown TAVERN_PLATFORM %q", c.Platform))
	}
	switch c.Keystore {
	case KeystoreOS, KeystoreFile, KeystoreNone:
	default:
		bad(fmt.Sprintf("unknown TAVERN_KEYSTORE %q", c.Keystore))
	}
	switch c.LogFormat {
	case "json", "text", "pretty":
	default:
		bad(fmt.Sprintf("unknown TAVERN_LOG_FORMAT %q", c.LogFormat))
	}
	if !pgschema.ValidIdent(c.DBSchema) {
		bad(fmt.Sprintf("invalid TAVERN_DB_SCHEMA %q", c.DBSchema))
	}
	if c.InviteTTL <= 0 || c.PendingInviteTTL <= 0 || c.RedirectWindow <= 0 {
		bad("TTLs and windows must be positive")
	}
	if c.RedirectMaxAttempts < 1 {
		bad("TAVERN_REDIRECT_MAX_ATTEMPTS must be >= 1")
	}
	return errors.Join(errs...)
}

// Keystore selections.
const (
	KeystoreOS   = "os"
	KeystoreFile = "file"
	KeystoreNone = "none"
)
