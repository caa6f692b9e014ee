package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/anchorite-labs/anchorite/pkg/anchor"
	"github.com/anchorite-labs/anchorite/pkg/digest"
	"github.com/anchorite-labs/anchorite/pkg/merkle"
)

// OpenSQLite opens (creating if needed) the SQLite database at path.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	return db, nil
}

// SQLiteBatchStore persists batches in SQLite. The tree and leaves are
// stored as JSON; a side table maps each leaf to its batch so containment
// lookups stay indexed.
type SQLiteBatchStore struct {
	db *sql.DB
}

func NewSQLiteBatchStore(db *sql.DB) (*SQLiteBatchStore, error) {
	s := &SQLiteBatchStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteBatchStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS batches (
		batch_id   TEXT PRIMARY KEY,
		root       TEXT NOT NULL,
		leaf_count INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		leaves     JSON NOT NULL,
		tree       JSON NOT NULL
	);
	CREATE TABLE IF NOT EXISTS batch_leaves (
		leaf     TEXT NOT NULL,
		batch_id TEXT NOT NULL REFERENCES batches(batch_id),
		PRIMARY KEY (leaf, batch_id)
	);
	CREATE INDEX IF NOT EXISTS idx_batch_leaves_leaf ON batch_leaves(leaf);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteBatchStore) Put(ctx context.Context, b *merkle.Batch) error {
	leaves, err := json.Marshal(b.Leaves)
	if err != nil {
		return fmt.Errorf("store: marshal leaves: %w", err)
	}
	tree, err := json.Marshal(b.Tree)
	if err != nil {
		return fmt.Errorf("store: marshal tree: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO batches (batch_id, root, leaf_count, created_at, leaves, tree)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		b.BatchID, b.Root, b.LeafCount, b.CreatedAt.UTC().Format(time.RFC3339Nano), leaves, tree)
	if err != nil {
		return fmt.Errorf("store: insert batch: %w", err)
	}

	for _, leaf := range b.Leaves {
		_, err = tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO batch_leaves (leaf, batch_id) VALUES (?, ?)`,
			leaf, b.BatchID)
		if err != nil {
			return fmt.Errorf("store: insert leaf: %w", err)
		}
	}

	return tx.Commit()
}

func (s *SQLiteBatchStore) Get(ctx context.Context, batchID string) (*merkle.Batch, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT batch_id, root, leaf_count, created_at, leaves, tree
		 FROM batches WHERE batch_id = ?`, batchID)
	return scanBatch(row)
}

func (s *SQLiteBatchStore) FindBatchContaining(ctx context.Context, hash string) (*merkle.Batch, error) {
	n, err := digest.Normalize(hash)
	if err != nil {
		return nil, nil
	}

	var batchID string
	err = s.db.QueryRowContext(ctx,
		`SELECT batch_id FROM batch_leaves WHERE leaf = ? ORDER BY batch_id LIMIT 1`, n).
		Scan(&batchID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: leaf lookup: %w", err)
	}
	return s.Get(ctx, batchID)
}

func scanBatch(row *sql.Row) (*merkle.Batch, error) {
	var (
		b         merkle.Batch
		createdAt string
		leaves    []byte
		tree      []byte
	)
	err := row.Scan(&b.BatchID, &b.Root, &b.LeafCount, &createdAt, &leaves, &tree)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: scan batch: %w", err)
	}
	if b.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("store: parse created_at: %w", err)
	}
	if err := json.Unmarshal(leaves, &b.Leaves); err != nil {
		return nil, fmt.Errorf("store: decode leaves: %w", err)
	}
	if err := json.Unmarshal(tree, &b.Tree); err != nil {
		return nil, fmt.Errorf("store: decode tree: %w", err)
	}
	return &b, nil
}

// SQLiteAnchorStore persists anchor records, one per root, enforced by the
// primary key.
type SQLiteAnchorStore struct {
	db *sql.DB
}

func NewSQLiteAnchorStore(db *sql.DB) (*SQLiteAnchorStore, error) {
	s := &SQLiteAnchorStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteAnchorStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS anchors (
		root         TEXT PRIMARY KEY,
		tx_id        TEXT NOT NULL,
		block_height INTEGER NOT NULL,
		chain_id     TEXT NOT NULL,
		anchored_at  DATETIME NOT NULL
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteAnchorStore) Put(ctx context.Context, rec *anchor.Record) error {
	n, err := digest.Normalize(rec.Root)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO anchors (root, tx_id, block_height, chain_id, anchored_at)
		 VALUES (?, ?, ?, ?, ?)`,
		n, rec.TxID, rec.BlockHeight, rec.ChainID, rec.AnchoredAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrDuplicateAnchor
		}
		return fmt.Errorf("store: insert anchor: %w", err)
	}
	return nil
}

func (s *SQLiteAnchorStore) GetByRoot(ctx context.Context, root string) (*anchor.Record, error) {
	n, err := digest.Normalize(root)
	if err != nil {
		return nil, nil
	}

	var (
		rec        anchor.Record
		anchoredAt string
	)
	err = s.db.QueryRowContext(ctx,
		`SELECT root, tx_id, block_height, chain_id, anchored_at
		 FROM anchors WHERE root = ?`, n).
		Scan(&rec.Root, &rec.TxID, &rec.BlockHeight, &rec.ChainID, &anchoredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: anchor lookup: %w", err)
	}
	if rec.AnchoredAt, err = time.Parse(time.RFC3339Nano, anchoredAt); err != nil {
		return nil, fmt.Errorf("store: parse anchored_at: %w", err)
	}
	return &rec, nil
}
