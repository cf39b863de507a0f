// Package config loads the client configuration.
//
// # Configuration File
//
//	curve: p256
//	issuer:
//	  transport: tcp            # tcp | http
//	  addr: "127.0.0.1:2416"    # host:port, or a URL for http
//	  timeout: 3s
//	  rate_limit: 0             # round trips per second, 0 disables
//	  burst: 1
//	commitments:
//	  file: ""                  # JSON {"G": ..., "H": ...}
//	  g: ""                     # or inline base64 points
//	  h: ""
//	tokens:
//	  batch_size: 10
//	  max_seed_attempts: 8
//	  allow_unverified: false
//	  max_age: 720h             # 0 keeps tokens forever
//	storage:
//	  backend: memory           # memory | badger
//	  dir: ""
//	log:
//	  level: info
//	  format: text              # text | json
//
// Command-line flags override values from the file.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/crypto/dleq"
	"github.com/alxdavids/cbs-client/pkg/token"
)

// Commitments of the public challenge-bypass-server test key (P-256).
// That server aggregates batch proofs differently from dleq.Composites, so
// its issue responses fail verification.
const (
	TestCommitmentG = "BCyENEmEdWz3Wivy7iwXFcLZ0xOW7PCe2BtoMD6sYBqUK+PBZad5euc1tP9ekcdSDxxK3ijgHsQ1PqQim4VqDGo="
	TestCommitmentH = "BJj8hRLfPSe+GNfbS3Jd2XmYU3XTEJw+TaTxx7M9lxVY9BDI6toWVpmffMR0P28XJcV3W0SGWX2OOrRLaBYGhwM="
)

// Transport and storage names.
const (
	TransportTCP  = "tcp"
	TransportHTTP = "http"

	StorageMemory = "memory"
	StorageBadger = "badger"
)

// Config is the client configuration.
type Config struct {
	Curve       string            `yaml:"curve"`
	Issuer      IssuerConfig      `yaml:"issuer"`
	Commitments CommitmentsConfig `yaml:"commitments"`
	Tokens      TokensConfig      `yaml:"tokens"`
	Storage     StorageConfig     `yaml:"storage"`
	Log         LogConfig         `yaml:"log"`
}

// IssuerConfig locates the issuer.
type IssuerConfig struct {
	Transport string        `yaml:"transport"`
	Addr      string        `yaml:"addr"`
	Timeout   time.Duration `yaml:"timeout"`
	RateLimit float64       `yaml:"rate_limit"`
	Burst     int           `yaml:"burst"`
}

// CommitmentsConfig holds the issuer commitments, from a file or inline.
type CommitmentsConfig struct {
	File string `yaml:"file"`
	G    string `yaml:"g"`
	H    string `yaml:"h"`
}

// TokensConfig controls minting and verification.
type TokensConfig struct {
	BatchSize       int           `yaml:"batch_size"`
	MaxSeedAttempts int           `yaml:"max_seed_attempts"`
	AllowUnverified bool          `yaml:"allow_unverified"`
	MaxAge          time.Duration `yaml:"max_age"`
}

// StorageConfig selects the token store.
type StorageConfig struct {
	Backend string `yaml:"backend"`
	Dir     string `yaml:"dir"`
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns the defaults: P-256 over TCP to a local test issuer.
func DefaultConfig() *Config {
	return &Config{
		Curve: "p256",
		Issuer: IssuerConfig{
			Transport: TransportTCP,
			Addr:      "127.0.0.1:2416",
			Timeout:   3 * time.Second,
			Burst:     1,
		},
		Tokens: TokensConfig{
			BatchSize:       10,
			MaxSeedAttempts: token.DefaultMaxSeedAttempts,
			MaxAge:          30 * 24 * time.Hour,
		},
		Storage: StorageConfig{Backend: StorageMemory},
		Log:     LogConfig{Level: "info", Format: "text"},
	}
}

// LoadConfig reads a YAML file over the defaults. Callers apply flag
// overrides and then call Validate.
func LoadConfig(path string) (*Config, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(body, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, nil
}

// Validate checks the configuration for consistency.
func (c *Config) Validate() error {
	var errs []error

	if _, err := curve.FromName(c.Curve); err != nil {
		errs = append(errs, fmt.Errorf("curve: %w", err))
	}

	switch c.Issuer.Transport {
	case TransportTCP, TransportHTTP:
	default:
		errs = append(errs, fmt.Errorf("issuer.transport: unknown transport %q", c.Issuer.Transport))
	}
	if c.Issuer.Addr == "" {
		errs = append(errs, errors.New("issuer.addr is required"))
	}
	if c.Issuer.Transport == TransportHTTP && !strings.HasPrefix(c.Issuer.Addr, "http://") && !strings.HasPrefix(c.Issuer.Addr, "https://") {
		errs = append(errs, fmt.Errorf("issuer.addr: %q is not an http(s) URL", c.Issuer.Addr))
	}
	if c.Issuer.Timeout < 0 {
		errs = append(errs, errors.New("issuer.timeout must not be negative"))
	}
	if c.Issuer.RateLimit < 0 {
		errs = append(errs, errors.New("issuer.rate_limit must not be negative"))
	}

	hasFile := c.Commitments.File != ""
	hasInline := c.Commitments.G != "" || c.Commitments.H != ""
	switch {
	case hasFile && hasInline:
		errs = append(errs, errors.New("commitments: set either file or g/h, not both"))
	case hasInline && (c.Commitments.G == "" || c.Commitments.H == ""):
		errs = append(errs, errors.New("commitments: both g and h are required"))
	case !hasFile && !hasInline && !c.Tokens.AllowUnverified:
		errs = append(errs, errors.New("commitments are required unless tokens.allow_unverified is set"))
	}

	if c.Tokens.BatchSize <= 0 {
		errs = append(errs, errors.New("tokens.batch_size must be positive"))
	}
	if c.Tokens.MaxSeedAttempts <= 0 {
		errs = append(errs, errors.New("tokens.max_seed_attempts must be positive"))
	}
	if c.Tokens.MaxAge < 0 {
		errs = append(errs, errors.New("tokens.max_age must not be negative"))
	}

	switch c.Storage.Backend {
	case StorageMemory:
	case StorageBadger:
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir is required for the badger backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend))
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format: unknown format %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// Group returns the configured curve backend.
func (c *Config) Group() (curve.Group, error) {
	return curve.FromName(c.Curve)
}

// LoadCommitments returns the configured issuer commitments. With neither a
// file nor inline points it returns empty commitments.
func (c *Config) LoadCommitments() (dleq.Commitments, error) {
	grp, err := c.Group()
	if err != nil {
		return dleq.Commitments{}, err
	}

	switch {
	case c.Commitments.File != "":
		body, err := os.ReadFile(c.Commitments.File)
		if err != nil {
			return dleq.Commitments{}, fmt.Errorf("reading commitments: %w", err)
		}
		return dleq.ParseCommitments(grp.ID(), body)
	case c.Commitments.G != "" || c.Commitments.H != "":
		G, err := curve.DecodePointBase64(grp.ID(), c.Commitments.G)
		if err != nil {
			return dleq.Commitments{}, fmt.Errorf("commitments.g: %w", err)
		}
		H, err := curve.DecodePointBase64(grp.ID(), c.Commitments.H)
		if err != nil {
			return dleq.Commitments{}, fmt.Errorf("commitments.h: %w", err)
		}
		return dleq.Commitments{G: G, H: H}, nil
	default:
		return dleq.Commitments{}, nil
	}
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}

// NewLogger builds the structured logger described by c, writing to w.
func (c LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	lvl, err := parseLevel(c.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
