// Command cbs-demo runs an issuer and a client in one process and walks
// through a normal issue/redeem round followed by the failure cases the
// client must catch.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/alxdavids/cbs-client/internal/issuertest"
	"github.com/alxdavids/cbs-client/pkg/client"
	"github.com/alxdavids/cbs-client/pkg/crypto/curve"
	"github.com/alxdavids/cbs-client/pkg/crypto/dleq"
	"github.com/alxdavids/cbs-client/pkg/storage"
	"github.com/alxdavids/cbs-client/pkg/tokenerr"
	"github.com/alxdavids/cbs-client/pkg/transport"
)

type scenario struct {
	name string
	run  func(ctx context.Context) error
}

func main() {
	curveName := flag.String("curve", "p256", "Curve to use (p256|secp256k1)")
	n := flag.Int("n", 5, "Tokens per batch")
	verbose := flag.Bool("v", false, "Show client logs")
	flag.Parse()

	fmt.Println("🚀 Starting challenge bypass demo...")

	grp, err := curve.FromName(*curveName)
	if err != nil {
		log.Fatalf("Unsupported curve %q: %v", *curveName, err)
	}

	is, err := issuertest.New(grp, issuertest.Options{})
	if err != nil {
		log.Fatalf("Failed to create issuer: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := &http.Server{Handler: is.Router(quiet), ReadTimeout: 5 * time.Second}
	go srv.Serve(ln)
	defer srv.Close()

	url := "http://" + ln.Addr().String() + "/"
	fmt.Printf("📡 Issuer on %s (%s)\n", url, grp.ID())

	logger := quiet
	if *verbose {
		logger = slog.New(slog.NewTextHandler(os.Stderr, nil))
	}

	newClient := func(c dleq.Commitments) *client.Client {
		cl, err := client.New(client.Config{
			Group:       grp,
			Commitments: c,
			Transport:   transport.NewHTTPTransport(url, 5*time.Second),
			Store:       storage.NewMemoryStore(),
			Logger:      logger,
		})
		if err != nil {
			log.Fatalf("Failed to create client: %v", err)
		}
		return cl
	}

	pinned := newClient(is.Commitments())

	scenarios := []scenario{
		{"issue and redeem", func(ctx context.Context) error {
			if _, err := pinned.Issue(ctx, *n); err != nil {
				return err
			}
			return pinned.Redeem(ctx, "example.com", "/resource")
		}},
		{"double spend is refused", func(ctx context.Context) error {
			header, err := pinned.Header("example.com", "/resource")
			if err != nil {
				return err
			}
			return expectRejected(ctx, url, header)
		}},
		{"tampered proof is rejected", func(ctx context.Context) error {
			is.SetOptions(issuertest.Options{TamperProof: true})
			defer is.SetOptions(issuertest.Options{})
			return expectKind(pinned.Issue(ctx, *n))
		}},
		{"missing proof is rejected", func(ctx context.Context) error {
			is.SetOptions(issuertest.Options{OmitProof: true})
			defer is.SetOptions(issuertest.Options{})
			return expectKind(pinned.Issue(ctx, *n))
		}},
		{"other issuer key is rejected", func(ctx context.Context) error {
			other, err := issuertest.New(grp, issuertest.Options{})
			if err != nil {
				return err
			}
			return expectKind(newClient(other.Commitments()).Issue(ctx, *n))
		}},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := 0
	for _, sc := range scenarios {
		if err := sc.run(ctx); err != nil {
			failed++
			fmt.Printf("❌ %s: %v\n", sc.name, err)
			continue
		}
		fmt.Printf("✅ %s\n", sc.name)
	}

	left, _ := pinned.Count()
	fmt.Printf("🔐 Tokens left: %d, spent at issuer: %d\n", left, is.Spent())
	if failed > 0 {
		os.Exit(1)
	}
}

// expectRejected spends a header the issuer has already seen, by redeeming it
// once and then again.
func expectRejected(ctx context.Context, url, header string) error {
	tr := transport.NewHTTPTransport(url, 5*time.Second)
	req := fmt.Sprintf(`{"bl_sig_req":%q,"host":"example.com","http":"/resource"}`, header)

	if _, err := tr.RoundTrip(ctx, []byte(req)); err != nil {
		return fmt.Errorf("first redemption: %w", err)
	}
	_, err := tr.RoundTrip(ctx, []byte(req))
	if !errors.Is(err, transport.ErrStatus) {
		return fmt.Errorf("second redemption was not refused: %v", err)
	}
	return nil
}

func expectKind(_ int, err error) error {
	if tokenerr.KindOf(err) != tokenerr.KindVerification {
		return fmt.Errorf("expected a verification failure, got %v", err)
	}
	return nil
}
