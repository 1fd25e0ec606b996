/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements every persistence interface the strategies need (TxStore,
  ConfigStore, Minter) on one SQLite database. The same schema ports to
  PostgreSQL with minor dialect changes.

INTERFACES IMPLEMENTED:
  generic.TxStore:     Positions, period records, ledger pointers, payouts
  generic.ConfigStore: Immutable strategy configurations
  generic.Minter:      Minted items, ownership and transfers

APPEND-ONLY ENFORCEMENT:
  The payouts table is an audit log:
  - No UPDATE statements on payouts
  - No DELETE statements on payouts
  - The primary key rejects a duplicate payout ID

KEY TABLES:
  strategies:     Strategy configs, written once
  positions:      One row per (strategy, collection, item)
  periods:        Deposits and earnings per (strategy, period)
  ledger_cursors: Current period pointer per strategy
  payouts:        Immutable claim and sale records
  items:          Minted positions, their owners and staking strategy

AMOUNTS:
  Base-unit integers are stored as decimal TEXT. SQLite INTEGER is 64-bit
  and 18-decimal USD values exceed it.

CONCURRENCY:
  The pool holds a single connection, so transactions are serialized by
  database/sql. WithTx callbacks must only use the Store they receive:
  touching the parent Store inside a callback waits for the connection the
  callback itself holds.

USAGE:
  st, err := sqlite.New("./data/staking.db")
  if err != nil {
      log.Fatal(err)
  }
  defer st.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - generic/store.go: Interface definitions
  - generic/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/staking-engine/generic"
)

var (
	_ generic.TxStore     = (*Store)(nil)
	_ generic.ConfigStore = (*Store)(nil)
	_ generic.Minter      = (*Store)(nil)
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements generic.Store over a connection or a transaction.
type queries struct {
	db dbtx
}

// Store implements all storage interfaces using SQLite.
type Store struct {
	*queries
	db *sql.DB
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{queries: &queries{db: db}, db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Strategy configurations (write-once)
	CREATE TABLE IF NOT EXISTS strategies (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		config_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- Minted items
	CREATE TABLE IF NOT EXISTS items (
		collection TEXT NOT NULL,
		item_id INTEGER NOT NULL,
		owner TEXT NOT NULL,
		principal TEXT NOT NULL,
		strategy_id TEXT NOT NULL DEFAULT '',
		burned BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		PRIMARY KEY (collection, item_id)
	);

	CREATE INDEX IF NOT EXISTS idx_items_owner
		ON items(owner);

	-- Staked positions
	CREATE TABLE IF NOT EXISTS positions (
		strategy_id TEXT NOT NULL,
		collection TEXT NOT NULL,
		item_id INTEGER NOT NULL,
		owner TEXT NOT NULL,
		principal TEXT NOT NULL,
		remainder TEXT NOT NULL,
		created_at TEXT NOT NULL,
		claimed_periods INTEGER NOT NULL DEFAULT 0,
		total_withdrawn TEXT NOT NULL,
		sold BOOLEAN NOT NULL DEFAULT FALSE,
		sold_at TEXT,
		PRIMARY KEY (strategy_id, collection, item_id)
	);

	-- Period ledger
	CREATE TABLE IF NOT EXISTS periods (
		strategy_id TEXT NOT NULL,
		period TEXT NOT NULL,
		deposits TEXT NOT NULL,
		earnings TEXT NOT NULL,
		earnings_set BOOLEAN NOT NULL DEFAULT FALSE,
		settled BOOLEAN NOT NULL DEFAULT FALSE,
		closed BOOLEAN NOT NULL DEFAULT FALSE,
		PRIMARY KEY (strategy_id, period)
	);

	CREATE TABLE IF NOT EXISTS ledger_cursors (
		strategy_id TEXT PRIMARY KEY,
		period TEXT NOT NULL
	);

	-- Payouts (append-only)
	CREATE TABLE IF NOT EXISTS payouts (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		strategy_id TEXT NOT NULL,
		collection TEXT NOT NULL,
		item_id INTEGER NOT NULL,
		recipient TEXT NOT NULL,
		kind TEXT NOT NULL,
		usd TEXT NOT NULL,
		token TEXT NOT NULL,
		token_amount TEXT NOT NULL,
		from_period INTEGER NOT NULL,
		to_period INTEGER NOT NULL,
		paid_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payouts_position
		ON payouts(strategy_id, collection, item_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONAL STORE (generic.TxStore interface)
// =============================================================================

// WithTx executes a function within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store generic.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{db: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("%w: %w", generic.ErrCommitFailed, err)
	}
	return nil
}

// =============================================================================
// POSITIONS
// =============================================================================

func (q *queries) SavePosition(ctx context.Context, p generic.Position) error {
	query := `
		INSERT INTO positions
		(strategy_id, collection, item_id, owner, principal, remainder, created_at,
		 claimed_periods, total_withdrawn, sold, sold_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy_id, collection, item_id) DO UPDATE SET
			claimed_periods = excluded.claimed_periods,
			total_withdrawn = excluded.total_withdrawn,
			sold = excluded.sold,
			sold_at = excluded.sold_at
	`
	_, err := q.db.ExecContext(ctx, query,
		p.Strategy,
		p.Key.Collection.Hex(),
		p.Key.ID,
		p.Owner.Hex(),
		p.Principal.Value.String(),
		p.Remainder.Value.String(),
		formatTime(p.CreatedAt),
		p.ClaimedPeriods,
		p.TotalWithdrawn.Value.String(),
		p.Sold,
		nullTime(p.SoldAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save position: %w", err)
	}
	return nil
}

const positionColumns = `strategy_id, collection, item_id, owner, principal, remainder, created_at,
	claimed_periods, total_withdrawn, sold, sold_at`

func (q *queries) GetPosition(ctx context.Context, strategy generic.StrategyID, key generic.PositionKey) (*generic.Position, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE strategy_id = ? AND collection = ? AND item_id = ?`,
		strategy, key.Collection.Hex(), key.ID)
	p, err := scanPosition(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (q *queries) ListPositions(ctx context.Context, strategy generic.StrategyID) ([]generic.Position, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+positionColumns+` FROM positions WHERE strategy_id = ? ORDER BY collection, item_id`,
		strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	var result []generic.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPosition(row scanner) (generic.Position, error) {
	var p generic.Position
	var strategy, collection, owner string
	var principal, remainder, withdrawn, created string
	var soldAt sql.NullString
	err := row.Scan(&strategy, &collection, &p.Key.ID, &owner, &principal, &remainder, &created,
		&p.ClaimedPeriods, &withdrawn, &p.Sold, &soldAt)
	if err != nil {
		return p, err
	}
	p.Strategy = generic.StrategyID(strategy)
	p.Key.Collection = common.HexToAddress(collection)
	p.Owner = common.HexToAddress(owner)
	if p.Principal, err = parseUSD(principal); err != nil {
		return p, err
	}
	if p.Remainder, err = parseUSD(remainder); err != nil {
		return p, err
	}
	if p.TotalWithdrawn, err = parseUSD(withdrawn); err != nil {
		return p, err
	}
	if p.CreatedAt, err = parseTime(created); err != nil {
		return p, err
	}
	if soldAt.Valid {
		if p.SoldAt, err = parseTime(soldAt.String); err != nil {
			return p, err
		}
	}
	return p, nil
}

// =============================================================================
// PERIOD LEDGER
// =============================================================================

func (q *queries) SavePeriod(ctx context.Context, r generic.PeriodRecord) error {
	query := `
		INSERT INTO periods (strategy_id, period, deposits, earnings, earnings_set, settled, closed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(strategy_id, period) DO UPDATE SET
			deposits = excluded.deposits,
			earnings = excluded.earnings,
			earnings_set = excluded.earnings_set,
			settled = excluded.settled,
			closed = excluded.closed
	`
	_, err := q.db.ExecContext(ctx, query,
		r.Strategy, r.Period.String(),
		r.Deposits.Value.String(), r.Earnings.Value.String(),
		r.EarningsSet, r.Settled, r.Closed)
	if err != nil {
		return fmt.Errorf("failed to save period %s: %w", r.Period, err)
	}
	return nil
}

const periodColumns = `strategy_id, period, deposits, earnings, earnings_set, settled, closed`

func (q *queries) GetPeriod(ctx context.Context, strategy generic.StrategyID, p generic.Period) (*generic.PeriodRecord, error) {
	row := q.db.QueryRowContext(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE strategy_id = ? AND period = ?`,
		strategy, p.String())
	r, err := scanPeriod(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListPeriods relies on "YYYY-MM" sorting lexically in calendar order.
func (q *queries) ListPeriods(ctx context.Context, strategy generic.StrategyID) ([]generic.PeriodRecord, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT `+periodColumns+` FROM periods WHERE strategy_id = ? ORDER BY period`,
		strategy)
	if err != nil {
		return nil, fmt.Errorf("failed to query periods: %w", err)
	}
	defer rows.Close()

	var result []generic.PeriodRecord
	for rows.Next() {
		r, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

func scanPeriod(row scanner) (generic.PeriodRecord, error) {
	var r generic.PeriodRecord
	var strategy, period, deposits, earnings string
	if err := row.Scan(&strategy, &period, &deposits, &earnings, &r.EarningsSet, &r.Settled, &r.Closed); err != nil {
		return r, err
	}
	var err error
	r.Strategy = generic.StrategyID(strategy)
	if r.Period, err = generic.ParsePeriod(period); err != nil {
		return r, err
	}
	if r.Deposits, err = parseUSD(deposits); err != nil {
		return r, err
	}
	if r.Earnings, err = parseUSD(earnings); err != nil {
		return r, err
	}
	return r, nil
}

func (q *queries) GetCursor(ctx context.Context, strategy generic.StrategyID) (generic.Period, bool, error) {
	var s string
	err := q.db.QueryRowContext(ctx,
		`SELECT period FROM ledger_cursors WHERE strategy_id = ?`, strategy).Scan(&s)
	if errors.Is(err, sql.ErrNoRows) {
		return generic.Period{}, false, nil
	}
	if err != nil {
		return generic.Period{}, false, err
	}
	p, err := generic.ParsePeriod(s)
	if err != nil {
		return generic.Period{}, false, err
	}
	return p, true, nil
}

func (q *queries) SaveCursor(ctx context.Context, strategy generic.StrategyID, p generic.Period) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO ledger_cursors (strategy_id, period) VALUES (?, ?)
		ON CONFLICT(strategy_id) DO UPDATE SET period = excluded.period`,
		strategy, p.String())
	if err != nil {
		return fmt.Errorf("failed to save ledger cursor: %w", err)
	}
	return nil
}

// =============================================================================
// PAYOUTS (append-only)
// =============================================================================

func (q *queries) AppendPayout(ctx context.Context, p generic.Payout) error {
	query := `
		INSERT INTO payouts
		(id, strategy_id, collection, item_id, recipient, kind, usd, token, token_amount,
		 from_period, to_period, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := q.db.ExecContext(ctx, query,
		p.ID,
		p.Strategy,
		p.Key.Collection.Hex(),
		p.Key.ID,
		p.Recipient.Hex(),
		p.Kind,
		p.USD.Value.String(),
		p.Token,
		p.TokenAmount.Value.String(),
		p.FromPeriod,
		p.ToPeriod,
		formatTime(p.At),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return fmt.Errorf("payout %s already recorded", p.ID)
		}
		return fmt.Errorf("failed to append payout: %w", err)
	}
	return nil
}

func (q *queries) ListPayouts(ctx context.Context, strategy generic.StrategyID, key generic.PositionKey) ([]generic.Payout, error) {
	rows, err := q.db.QueryContext(ctx, `
		SELECT id, strategy_id, collection, item_id, recipient, kind, usd, token, token_amount,
		       from_period, to_period, paid_at
		FROM payouts
		WHERE strategy_id = ? AND collection = ? AND item_id = ?
		ORDER BY seq ASC`,
		strategy, key.Collection.Hex(), key.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payouts: %w", err)
	}
	defer rows.Close()

	var result []generic.Payout
	for rows.Next() {
		var p generic.Payout
		var strategyID, collection, recipient, kind string
		var usd, token, tokenAmount, paidAt string
		if err := rows.Scan(&p.ID, &strategyID, &collection, &p.Key.ID, &recipient, &kind,
			&usd, &token, &tokenAmount, &p.FromPeriod, &p.ToPeriod, &paidAt); err != nil {
			return nil, err
		}
		p.Strategy = generic.StrategyID(strategyID)
		p.Key.Collection = common.HexToAddress(collection)
		p.Recipient = common.HexToAddress(recipient)
		p.Kind = generic.PayoutKind(kind)
		p.Token = generic.TokenID(token)
		if p.USD, err = parseUSD(usd); err != nil {
			return nil, err
		}
		if p.TokenAmount, err = generic.ParseBaseUnits(tokenAmount, generic.Unit(token)); err != nil {
			return nil, err
		}
		if p.At, err = parseTime(paidAt); err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// =============================================================================
// STRATEGY CONFIGS (generic.ConfigStore interface)
// =============================================================================

// RegisterStrategy stores rec on first boot and refuses a changed config later.
func (s *Store) RegisterStrategy(ctx context.Context, rec generic.StrategyRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strategies (id, kind, config_json, created_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.Kind, rec.ConfigJSON, formatTime(rec.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to register strategy: %w", err)
	}

	var kind, configJSON string
	err = s.db.QueryRowContext(ctx,
		`SELECT kind, config_json FROM strategies WHERE id = ?`, rec.ID).Scan(&kind, &configJSON)
	if err != nil {
		return fmt.Errorf("failed to read strategy %s: %w", rec.ID, err)
	}
	if kind != string(rec.Kind) || configJSON != rec.ConfigJSON {
		return fmt.Errorf("%w: %s", generic.ErrConfigChanged, rec.ID)
	}
	return nil
}

func (s *Store) ListStrategies(ctx context.Context) ([]generic.StrategyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, config_json, created_at FROM strategies ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query strategies: %w", err)
	}
	defer rows.Close()

	var result []generic.StrategyRecord
	for rows.Next() {
		var rec generic.StrategyRecord
		var id, kind, created string
		if err := rows.Scan(&id, &kind, &rec.ConfigJSON, &created); err != nil {
			return nil, err
		}
		rec.ID = generic.StrategyID(id)
		rec.Kind = generic.StrategyKind(kind)
		if rec.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}

// =============================================================================
// ITEMS (generic.Minter interface)
// =============================================================================

// Mint creates the next item of collection, numbered from 0.
func (s *Store) Mint(ctx context.Context, collection, owner common.Address, principal generic.Amount) (generic.PositionKey, error) {
	if !principal.IsPositive() {
		return generic.PositionKey{}, fmt.Errorf("%w: principal must be positive", generic.ErrInvalidPosition)
	}

	var key generic.PositionKey
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return key, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	var next uint64
	err = sqlTx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(item_id) + 1, 0) FROM items WHERE collection = ?`,
		collection.Hex()).Scan(&next)
	if err != nil {
		return key, fmt.Errorf("failed to allocate item id: %w", err)
	}
	key = generic.PositionKey{Collection: collection, ID: next}
	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO items (collection, item_id, owner, principal, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		collection.Hex(), next, owner.Hex(), principal.Value.String(), formatTime(time.Now()))
	if err != nil {
		return key, fmt.Errorf("failed to mint item: %w", err)
	}
	return key, sqlTx.Commit()
}

// Transfer moves an item from its current owner to another account.
func (s *Store) Transfer(ctx context.Context, key generic.PositionKey, from, to common.Address) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE items SET owner = ? WHERE collection = ? AND item_id = ? AND owner = ? AND NOT burned`,
		to.Hex(), key.Collection.Hex(), key.ID, from.Hex())
	if err != nil {
		return fmt.Errorf("failed to transfer item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	item, err := s.GetItem(ctx, key)
	if err != nil {
		return err
	}
	if item == nil {
		return fmt.Errorf("%w: %s", generic.ErrItemNotFound, key)
	}
	if item.Burned {
		return generic.BurnedItemError(key)
	}
	return fmt.Errorf("%w: %s", generic.ErrNotOwner, key)
}

func (q *queries) GetItem(ctx context.Context, key generic.PositionKey) (*generic.Item, error) {
	var owner, principal, strategy string
	var burned bool
	err := q.db.QueryRowContext(ctx,
		`SELECT owner, principal, strategy_id, burned FROM items WHERE collection = ? AND item_id = ?`,
		key.Collection.Hex(), key.ID).Scan(&owner, &principal, &strategy, &burned)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	amount, err := parseUSD(principal)
	if err != nil {
		return nil, err
	}
	return &generic.Item{
		Key:       key,
		Owner:     common.HexToAddress(owner),
		Principal: amount,
		Strategy:  generic.StrategyID(strategy),
		Burned:    burned,
	}, nil
}

// BindItem claims an unbound item for strategy.
func (q *queries) BindItem(ctx context.Context, key generic.PositionKey, strategy generic.StrategyID) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE items SET strategy_id = ? WHERE collection = ? AND item_id = ? AND strategy_id = '' AND NOT burned`,
		string(strategy), key.Collection.Hex(), key.ID)
	if err != nil {
		return fmt.Errorf("failed to bind item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	item, err := q.GetItem(ctx, key)
	switch {
	case err != nil:
		return err
	case item == nil:
		return &generic.InvalidPositionError{Key: key, Reason: "not minted"}
	case item.Burned:
		return generic.BurnedItemError(key)
	}
	return fmt.Errorf("%w: %s is bound to %s", generic.ErrPositionExists, key, item.Strategy)
}

func (q *queries) BurnItem(ctx context.Context, key generic.PositionKey) error {
	res, err := q.db.ExecContext(ctx,
		`UPDATE items SET burned = TRUE WHERE collection = ? AND item_id = ?`,
		key.Collection.Hex(), key.ID)
	if err != nil {
		return fmt.Errorf("failed to burn item: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", generic.ErrItemNotFound, key)
	}
	return nil
}

func (s *Store) PrincipalUSD(ctx context.Context, key generic.PositionKey) (generic.Amount, error) {
	item, err := s.GetItem(ctx, key)
	if err != nil {
		return generic.Amount{}, err
	}
	if item == nil {
		return generic.Amount{}, fmt.Errorf("%w: %s", generic.ErrItemNotFound, key)
	}
	if item.Burned {
		return generic.Amount{}, generic.BurnedItemError(key)
	}
	return item.Principal, nil
}

func (s *Store) OwnerOf(ctx context.Context, key generic.PositionKey) (common.Address, error) {
	item, err := s.GetItem(ctx, key)
	if err != nil {
		return common.Address{}, err
	}
	if item == nil {
		return common.Address{}, fmt.Errorf("%w: %s", generic.ErrItemNotFound, key)
	}
	if item.Burned {
		return common.Address{}, generic.BurnedItemError(key)
	}
	return item.Owner, nil
}

func (s *Store) Exists(ctx context.Context, key generic.PositionKey) (bool, error) {
	item, err := s.GetItem(ctx, key)
	return item != nil && !item.Burned, err
}

// =============================================================================
// HELPERS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func parseUSD(s string) (generic.Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return generic.Amount{}, fmt.Errorf("corrupt amount %q: %w", s, err)
	}
	return generic.NewAmount(d, generic.UnitUSD), nil
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "PRIMARY KEY"))
}
