// Command cbs-client obtains and spends anonymous tokens from a
// challenge-bypass issuer.
//
// # Modes
//
//	issue   mint -n tokens, have them signed and store the verified result
//	redeem  spend one stored token on -host and -path
//	both    issue, then redeem one token
//	count   print the number of stored tokens for the pinned commitments
//
// Tokens only survive between runs with the badger storage backend.
//
// # Usage
//
//	go run ./cmd/cbs-client --config=client.yaml --mode=issue -n 30
//	go run ./cmd/cbs-client --issuer=127.0.0.1:2416 --commitments=commitments.json --mode=both
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alxdavids/cbs-client/pkg/client"
	"github.com/alxdavids/cbs-client/pkg/config"
	"github.com/alxdavids/cbs-client/pkg/storage"
	"github.com/alxdavids/cbs-client/pkg/transport"
)

func main() {
	var (
		configPath      = flag.String("config", "", "Path to YAML config file")
		mode            = flag.String("mode", "both", "issue | redeem | both | count")
		n               = flag.Int("n", 0, "Tokens to issue (defaults to tokens.batch_size)")
		host            = flag.String("host", "example.com", "Host the redemption is bound to")
		path            = flag.String("path", "/", "Path the redemption is bound to")
		curveName       = flag.String("curve", "", "Curve (p256|secp256k1)")
		issuerAddr      = flag.String("issuer", "", "Issuer address, host:port or URL")
		transportName   = flag.String("transport", "", "Issuer transport (tcp|http)")
		commitmentsFile = flag.String("commitments", "", "Issuer commitments JSON file")
		testCommitments = flag.Bool("test-commitments", false, "Pin the public test issuer commitments (its batch proofs aggregate differently and are rejected)")
		allowUnverified = flag.Bool("allow-unverified", false, "Accept responses without a batch proof")
		storeDir        = flag.String("store", "", "Badger directory for persistent tokens")
		logLevel        = flag.String("log-level", "", "Log level (debug|info|warn|error)")
	)
	flag.Parse()

	var cfg *config.Config
	var err error

	if *configPath != "" {
		cfg, err = config.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Command-line flags override config file
	if *curveName != "" {
		cfg.Curve = *curveName
	}
	if *issuerAddr != "" {
		cfg.Issuer.Addr = *issuerAddr
	}
	if *transportName != "" {
		cfg.Issuer.Transport = *transportName
	}
	if *commitmentsFile != "" {
		cfg.Commitments = config.CommitmentsConfig{File: *commitmentsFile}
	}
	if *testCommitments {
		cfg.Commitments = config.CommitmentsConfig{G: config.TestCommitmentG, H: config.TestCommitmentH}
	}
	if *allowUnverified {
		cfg.Tokens.AllowUnverified = true
	}
	if *storeDir != "" {
		cfg.Storage = config.StorageConfig{Backend: config.StorageBadger, Dir: *storeDir}
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *n <= 0 {
		*n = cfg.Tokens.BatchSize
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	logger, err := cfg.Log.NewLogger(os.Stderr)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger, *mode, *n, *host, *path); err != nil {
		logger.Error("cbs-client failed", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, mode string, n int, host, path string) error {
	c, store, err := newClient(cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	switch mode {
	case "issue":
		_, err = c.Issue(ctx, n)
	case "redeem":
		err = c.Redeem(ctx, host, path)
	case "both":
		if _, err = c.Issue(ctx, n); err == nil {
			err = c.Redeem(ctx, host, path)
		}
	case "count":
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
	if err != nil {
		return err
	}

	left, err := c.Count()
	if err != nil {
		return err
	}
	fmt.Printf("Tokens stored: %d\n", left)
	return nil
}

// newClient wires the configured group, commitments, transport and store.
func newClient(cfg *config.Config, logger *slog.Logger) (*client.Client, storage.TokenStore, error) {
	grp, err := cfg.Group()
	if err != nil {
		return nil, nil, err
	}
	commitments, err := cfg.LoadCommitments()
	if err != nil {
		return nil, nil, err
	}

	var tr transport.Transport
	switch cfg.Issuer.Transport {
	case config.TransportHTTP:
		tr = transport.NewHTTPTransport(cfg.Issuer.Addr, cfg.Issuer.Timeout)
	default:
		tr = transport.NewTCPTransport(cfg.Issuer.Addr, cfg.Issuer.Timeout)
	}
	if cfg.Issuer.RateLimit > 0 {
		tr = transport.NewLimited(tr, cfg.Issuer.RateLimit, cfg.Issuer.Burst)
	}

	var store storage.TokenStore
	switch cfg.Storage.Backend {
	case config.StorageBadger:
		store, err = storage.OpenBadgerStore(cfg.Storage.Dir)
		if err != nil {
			return nil, nil, err
		}
	default:
		store = storage.NewMemoryStore()
	}

	c, err := client.New(client.Config{
		Group:           grp,
		Commitments:     commitments,
		Transport:       tr,
		Store:           store,
		MaxSeedAttempts: cfg.Tokens.MaxSeedAttempts,
		AllowUnverified: cfg.Tokens.AllowUnverified,
		MaxAge:          cfg.Tokens.MaxAge,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, errors.Join(err, store.Close())
	}
	return c, store, nil
}
