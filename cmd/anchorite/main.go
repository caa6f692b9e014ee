// Command anchorite records inference metadata, seals batches, anchors
// their roots, and verifies existence proofs from the command line.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/anchorite-labs/anchorite/pkg/anchor"
	"github.com/anchorite-labs/anchorite/pkg/config"
	"github.com/anchorite-labs/anchorite/pkg/merkle"
	"github.com/anchorite-labs/anchorite/pkg/observability"
	"github.com/anchorite-labs/anchorite/pkg/record"
	"github.com/anchorite-labs/anchorite/pkg/service"
	"github.com/anchorite-labs/anchorite/pkg/store"
	"github.com/anchorite-labs/anchorite/pkg/verify"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

// Run is the entrypoint, split out for testing.
func Run(args []string, stdout, stderr io.Writer) int {
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: parseLogLevel(config.Load().LogLevel),
	})))

	if len(args) < 2 {
		usage(stderr)
		return 2
	}

	switch args[1] {
	case "hash":
		return runHash(args[2:], stdout, stderr)
	case "hash-bytes":
		return runHashBytes(args[2:], stdout, stderr)
	case "batch":
		return runBatch(args[2:], stdout, stderr)
	case "prove":
		return runProve(args[2:], stdout, stderr)
	case "verify-proof":
		return runVerifyProof(args[2:], stdout, stderr)
	case "anchor":
		return runAnchor(args[2:], stdout, stderr)
	case "verify":
		return runVerify(args[2:], stdout, stderr)
	case "fetch-batch":
		return runFetchBatch(args[2:], stdout, stderr)
	case "help", "-h", "--help":
		usage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command %q\n", args[1])
		usage(stderr)
		return 2
	}
}

func usage(w io.Writer) {
	fmt.Fprint(w, `usage: anchorite <command> [flags]

commands:
  hash          hash a metadata record (JSON from -file or stdin)
  hash-bytes    hash raw bytes (from -file or stdin)
  batch         seal the supplied content hashes into a batch
  prove         generate an inclusion proof for a hash
  verify-proof  check a standalone proof (JSON from -file or stdin)
  anchor        anchor a sealed batch to the configured ledger
  verify        run full verification for a record or hash
  fetch-batch   fetch an archived batch snapshot from object storage
`)
}

// app is the assembled service stack shared by the stateful commands.
type app struct {
	svc     *service.Service
	batches store.BatchStore
	anchors store.AnchorStore
	archive *store.BatchArchive
	cfg     *config.Config
}

// openApp builds the service from the environment: SQLite stores with the
// optional Redis leaf index, the optional S3 archive, OTLP telemetry when
// an endpoint is configured, and the chain profile's submission policy.
func openApp(ctx context.Context) (*app, func(), error) {
	cfg := config.Load()

	chainID := cfg.ChainID
	var interval time.Duration
	liveConfirm := false
	if cfg.ChainProfile != "" {
		profile, err := config.LoadChainProfile(cfg.ChainProfile)
		if err != nil {
			return nil, nil, err
		}
		chainID = profile.ChainID
		interval = profile.AnchorInterval()
		liveConfirm = profile.LiveConfirmation
	}

	db, err := store.OpenSQLite(cfg.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	closers := []func(){func() { _ = db.Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	sqlBatches, err := store.NewSQLiteBatchStore(db)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	anchors, err := store.NewSQLiteAnchorStore(db)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var batches store.BatchStore = sqlBatches
	if cfg.RedisAddr != "" {
		// best-effort leaf index in front of SQLite
		if indexed := maybeIndexed(sqlBatches, cfg.RedisAddr); indexed != nil {
			batches = indexed
		}
	}

	var obs *observability.Provider
	if cfg.OTLPEndpoint != "" {
		obs, err = observability.New(ctx, &observability.Config{
			ServiceName:    cfg.ServiceName,
			ServiceVersion: cfg.ServiceVersion,
			Environment:    "cli",
			OTLPEndpoint:   cfg.OTLPEndpoint,
			BatchTimeout:   5 * time.Second,
			Enabled:        true,
			Insecure:       true,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = obs.Shutdown(sctx)
		})
	}

	var archive *store.BatchArchive
	var archiver service.Archiver
	if cfg.S3Bucket != "" {
		archive, err = store.NewBatchArchive(ctx, store.BatchArchiveConfig{
			Bucket:   cfg.S3Bucket,
			Region:   cfg.S3Region,
			Endpoint: cfg.S3Endpoint,
		})
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		archiver = archive
	}

	registry := anchor.NewMemoryRegistry(chainID)
	var chain anchor.Reader
	if liveConfirm {
		chain = registry
	}

	svc, err := service.New(batches, anchors, registry, service.Options{
		Archive:  archiver,
		Chain:    chain,
		Obs:      obs,
		Interval: interval,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	return &app{
		svc:     svc,
		batches: batches,
		anchors: anchors,
		archive: archive,
		cfg:     cfg,
	}, cleanup, nil
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func decodeRecord(raw []byte) (map[string]any, error) {
	var rec map[string]any
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("parse record: %w", err)
	}
	return rec, nil
}

func printJSON(w io.Writer, v any) {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func runHash(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "record JSON file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err := record.Validate(rec); err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	hash, err := record.HashRecord(rec)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	fmt.Fprintln(stdout, hash)
	return 0
}

func runHashBytes(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("hash-bytes", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "input file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, record.HashBytes(raw))
	return 0
}

func runBatch(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	hashes := fs.Args()
	if len(hashes) == 0 {
		fmt.Fprintln(stderr, "batch: at least one content hash argument required")
		return 2
	}

	ctx := context.Background()
	a, cleanup, err := openApp(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer cleanup()

	for _, h := range hashes {
		if _, err := a.svc.Track(ctx, h); err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
	}
	b, err := a.svc.SealBatch(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	printJSON(stdout, b)
	return 0
}

func runProve(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("prove", flag.ContinueOnError)
	fs.SetOutput(stderr)
	hash := fs.String("hash", "", "content hash to prove")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *hash == "" {
		fmt.Fprintln(stderr, "prove: -hash is required")
		return 2
	}

	ctx := context.Background()
	a, cleanup, err := openApp(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer cleanup()

	proof, err := a.svc.Prove(ctx, *hash)
	if errors.Is(err, service.ErrUnknownHash) {
		fmt.Fprintln(stderr, "hash is not part of any known batch")
		return 1
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	printJSON(stdout, proof)
	return 0
}

func runVerifyProof(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify-proof", flag.ContinueOnError)
	fs.SetOutput(stderr)
	file := fs.String("file", "", "proof JSON file (default stdin)")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	raw, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(stderr, "read input: %v\n", err)
		return 1
	}
	var proof merkle.Proof
	if err := json.Unmarshal(raw, &proof); err != nil {
		fmt.Fprintf(stderr, "parse proof: %v\n", err)
		return 1
	}

	if merkle.VerifyProof(&proof) {
		fmt.Fprintln(stdout, "proof VALID")
		return 0
	}
	fmt.Fprintln(stdout, "proof INVALID")
	return 1
}

func runAnchor(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("anchor", flag.ContinueOnError)
	fs.SetOutput(stderr)
	batchID := fs.String("batch", "", "id of the sealed batch to anchor")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *batchID == "" {
		fmt.Fprintln(stderr, "anchor: -batch is required")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, cleanup, err := openApp(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer cleanup()

	b, err := a.batches.Get(ctx, *batchID)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	if b == nil {
		fmt.Fprintf(stderr, "unknown batch %q\n", *batchID)
		return 1
	}

	rec, err := a.svc.AnchorBatch(ctx, b)
	if errors.Is(err, anchor.ErrAlreadyAnchored) || errors.Is(err, store.ErrDuplicateAnchor) {
		// idempotent: report the record already on file for this root
		existing, lookupErr := a.anchors.GetByRoot(ctx, b.Root)
		if lookupErr == nil && existing != nil {
			printJSON(stdout, existing)
			return 0
		}
		fmt.Fprintln(stderr, err)
		return 1
	}
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	printJSON(stdout, rec)
	return 0
}

func runVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	hash := fs.String("hash", "", "content hash to verify")
	file := fs.String("file", "", "record JSON file")
	asJSON := fs.Bool("json", false, "emit the result as JSON instead of a report")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	req := verify.Request{Hash: *hash}
	if *file != "" {
		raw, err := readInput(*file)
		if err != nil {
			fmt.Fprintf(stderr, "read input: %v\n", err)
			return 1
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			fmt.Fprintln(stderr, err)
			return 1
		}
		req.Record = rec
	}

	ctx := context.Background()
	a, cleanup, err := openApp(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer cleanup()

	res, err := a.svc.Verify(ctx, req)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}

	if *asJSON {
		printJSON(stdout, res)
	} else {
		fmt.Fprint(stdout, verify.Report(res))
	}
	if !res.Verified {
		return 1
	}
	return 0
}

func runFetchBatch(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fetch-batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	batchID := fs.String("id", "", "id of the archived batch")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if *batchID == "" {
		fmt.Fprintln(stderr, "fetch-batch: -id is required")
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a, cleanup, err := openApp(ctx)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer cleanup()

	if a.archive == nil {
		fmt.Fprintln(stderr, "fetch-batch: ANCHORITE_S3_BUCKET is not configured")
		return 2
	}

	b, err := a.archive.Fetch(ctx, *batchID)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	printJSON(stdout, b)
	return 0
}

func maybeIndexed(inner store.BatchStore, addr string) store.BatchStore {
	client := newRedisClient(addr)
	if client == nil {
		return nil
	}
	return store.NewIndexedBatchStore(inner, store.NewLeafIndex(client, 24*time.Hour))
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
