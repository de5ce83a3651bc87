// Package postgres persists registry mutations to PostgreSQL and restores registry
// views from it.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/ethereum/go-ethereum/common"
	_ "github.com/lib/pq"
)

const (
	defaultConnectTimeout   = 30 * time.Second
	defaultStatementTimeout = 5 * time.Second
	pingInterval            = 500 * time.Millisecond
)

const schema = `
CREATE TABLE IF NOT EXISTS registry_meta (
	id       SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
	sequence BIGINT NOT NULL
);
INSERT INTO registry_meta (id, sequence) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;

CREATE TABLE IF NOT EXISTS tokens (
	address  CHAR(42) PRIMARY KEY,
	sequence BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS pairs (
	id               BIGSERIAL PRIMARY KEY,
	pair_key         CHAR(85) NOT NULL,
	token_a          CHAR(42) NOT NULL REFERENCES tokens (address),
	token_b          CHAR(42) NOT NULL REFERENCES tokens (address),
	added_sequence   BIGINT NOT NULL,
	removed_sequence BIGINT
);
CREATE UNIQUE INDEX IF NOT EXISTS pairs_active_key ON pairs (pair_key) WHERE removed_sequence IS NULL;
`

// Logger defines a standard interface for structured, leveled logging.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the configuration for the store.
type Config struct {
	DSN              string
	ConnectTimeout   time.Duration // How long Open keeps retrying the first ping.
	StatementTimeout time.Duration // Upper bound for every journal transaction.
	Logger           Logger
}

func (c *Config) validate() error {
	if c.DSN == "" {
		return errors.New("config: DSN is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// Store is an exchange.Journal backed by PostgreSQL.
type Store struct {
	db      *sql.DB
	timeout time.Duration
	logger  Logger
}

var _ exchange.Journal = (*Store)(nil)

// Open connects to the database, waiting for it to become reachable, and creates
// the schema if needed.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	connectTimeout := cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	statementTimeout := cfg.StatementTimeout
	if statementTimeout <= 0 {
		statementTimeout = defaultStatementTimeout
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db, timeout: statementTimeout, logger: cfg.Logger}
	if err := s.ping(ctx, connectTimeout); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s.logger.Info("connected to postgres")
	return s, nil
}

func (s *Store) ping(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		err := s.db.PingContext(ctx)
		if err == nil {
			return nil
		}
		s.logger.Warn("postgres not reachable yet, retrying", "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("ping database: %w", err)
		case <-ticker.C:
		}
	}
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func pairKey(pair exchange.Pair) string {
	key := pair.Key()
	return key.Lo.Hex() + "/" + key.Hi.Hex()
}

func (s *Store) withTx(fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(ctx, tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to roll back transaction", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func setSequence(ctx context.Context, tx *sql.Tx, sequence uint64) error {
	if _, err := tx.ExecContext(ctx, `UPDATE registry_meta SET sequence = $1 WHERE id = 1`, int64(sequence)); err != nil {
		return fmt.Errorf("update sequence: %w", err)
	}
	return nil
}

// RecordTokens stores a batch of approved tokens in one transaction.
func (s *Store) RecordTokens(tokens []common.Address, firstSequence uint64) error {
	if len(tokens) == 0 {
		return nil
	}
	return s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		for i, token := range tokens {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO tokens (address, sequence) VALUES ($1, $2)`,
				token.Hex(), int64(firstSequence)+int64(i),
			)
			if err != nil {
				return fmt.Errorf("insert token %s: %w", token.Hex(), err)
			}
		}
		return setSequence(ctx, tx, firstSequence+uint64(len(tokens))-1)
	})
}

// RecordPairAdded stores a newly registered pair.
func (s *Store) RecordPairAdded(pair exchange.Pair, sequence uint64) error {
	return s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO pairs (pair_key, token_a, token_b, added_sequence) VALUES ($1, $2, $3, $4)`,
			pairKey(pair), pair.TokenA.Hex(), pair.TokenB.Hex(), int64(sequence),
		)
		if err != nil {
			return fmt.Errorf("insert pair %s: %w", pair, err)
		}
		return setSequence(ctx, tx, sequence)
	})
}

// RecordPairRemoved marks the active row of pair as removed.
func (s *Store) RecordPairRemoved(pair exchange.Pair, sequence uint64) error {
	return s.withTx(func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE pairs SET removed_sequence = $1 WHERE pair_key = $2 AND removed_sequence IS NULL`,
			int64(sequence), pairKey(pair),
		)
		if err != nil {
			return fmt.Errorf("remove pair %s: %w", pair, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("remove pair %s: %w", pair, err)
		}
		if n != 1 {
			return fmt.Errorf("remove pair: %w: %s", exchange.ErrPairNotFound, pair)
		}
		return setSequence(ctx, tx, sequence)
	})
}

// Load reads the persisted registry. Tokens and active pairs come back in the order
// they were added.
func (s *Store) Load(ctx context.Context) (*exchange.View, error) {
	view := &exchange.View{
		Tokens: []common.Address{},
		Pairs:  []exchange.Pair{},
	}

	var sequence int64
	if err := s.db.QueryRowContext(ctx, `SELECT sequence FROM registry_meta WHERE id = 1`).Scan(&sequence); err != nil {
		return nil, fmt.Errorf("load sequence: %w", err)
	}
	view.Sequence = uint64(sequence)

	tokenRows, err := s.db.QueryContext(ctx, `SELECT address FROM tokens ORDER BY sequence`)
	if err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}
	defer tokenRows.Close()
	for tokenRows.Next() {
		var address string
		if err := tokenRows.Scan(&address); err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		view.Tokens = append(view.Tokens, common.HexToAddress(address))
	}
	if err := tokenRows.Err(); err != nil {
		return nil, fmt.Errorf("load tokens: %w", err)
	}

	pairRows, err := s.db.QueryContext(ctx,
		`SELECT token_a, token_b FROM pairs WHERE removed_sequence IS NULL ORDER BY added_sequence`)
	if err != nil {
		return nil, fmt.Errorf("load pairs: %w", err)
	}
	defer pairRows.Close()
	for pairRows.Next() {
		var a, b string
		if err := pairRows.Scan(&a, &b); err != nil {
			return nil, fmt.Errorf("scan pair: %w", err)
		}
		view.Pairs = append(view.Pairs, exchange.NewPair(common.HexToAddress(a), common.HexToAddress(b)))
	}
	if err := pairRows.Err(); err != nil {
		return nil, fmt.Errorf("load pairs: %w", err)
	}

	s.logger.Info("registry loaded from postgres", "sequence", view.Sequence, "tokens", len(view.Tokens), "pairs", len(view.Pairs))
	return view, nil
}
