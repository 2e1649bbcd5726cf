// Package sqlite implements the ledger store on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/domain"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: Store implements domain.Store.
var _ domain.Store = (*Store)(nil)

// Store implements domain.Store using SQLite. Every Update runs in one
// database transaction.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection, so the pool must never
	// open a second one.
	db.SetMaxOpenConns(1)

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and returns a ready store.
// Use this when the *sql.DB has been pre-configured (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*Store, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters (e.g., river).
func (s *Store) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// Update executes fn inside a database transaction, committing only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(domain.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(&transaction{tx: sqlTx}); err != nil {
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// View executes fn inside a transaction that is always rolled back.
func (s *Store) View(ctx context.Context, fn func(domain.View) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer sqlTx.Rollback() //nolint:errcheck // read-only

	return fn(&transaction{tx: sqlTx})
}

const timeFormat = time.RFC3339Nano

const settingAdministrator = "administrator"

type transaction struct {
	tx *sql.Tx
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func (t *transaction) Administrator(ctx context.Context) (domain.Account, error) {
	var admin string
	err := t.tx.QueryRowContext(ctx,
		`SELECT value FROM ledger_settings WHERE key = ?`, settingAdministrator,
	).Scan(&admin)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading administrator: %w", err)
	}
	return domain.Account(admin), nil
}

func (t *transaction) SetAdministrator(ctx context.Context, admin domain.Account) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_settings (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		settingAdministrator, string(admin),
	)
	if err != nil {
		return fmt.Errorf("storing administrator: %w", err)
	}
	return nil
}

func (t *transaction) HasRole(ctx context.Context, role domain.Role, holder domain.Account) (bool, error) {
	var n int
	err := t.tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM role_grants WHERE role = ? AND holder = ?`,
		string(role), string(holder),
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}
	return n > 0, nil
}

func (t *transaction) GrantRole(ctx context.Context, role domain.Role, holder domain.Account) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO role_grants (role, holder, granted_at) VALUES (?, ?, ?)
		 ON CONFLICT (role, holder) DO NOTHING`,
		string(role), string(holder), time.Now().UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("granting role: %w", err)
	}
	return nil
}

func (t *transaction) RevokeRole(ctx context.Context, role domain.Role, holder domain.Account) error {
	_, err := t.tx.ExecContext(ctx,
		`DELETE FROM role_grants WHERE role = ? AND holder = ?`,
		string(role), string(holder),
	)
	if err != nil {
		return fmt.Errorf("revoking role: %w", err)
	}
	return nil
}

const originColumns = `id, name, price, status, originator, latitude, longitude,
	distributor, buyer, produced_product_id, created_at, updated_at`

func (t *transaction) CreateOrigin(ctx context.Context, lot domain.OriginLot) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO origin_lots (`+originColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(lot.ID), lot.Name, lot.Price.String(), string(lot.Status), string(lot.Originator),
		lot.Location.Latitude, lot.Location.Longitude,
		string(lot.Distributor), string(lot.Buyer), int64(lot.ProducedProductID),
		lot.CreatedAt.Format(timeFormat), lot.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{Lot: domain.LotOrigin, ID: int64(lot.ID)}
		}
		return fmt.Errorf("inserting origin lot: %w", err)
	}
	return nil
}

func (t *transaction) UpdateOrigin(ctx context.Context, lot domain.OriginLot) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE origin_lots SET name = ?, price = ?, status = ?, distributor = ?, buyer = ?,
		 produced_product_id = ?, updated_at = ?
		 WHERE id = ?`,
		lot.Name, lot.Price.String(), string(lot.Status),
		string(lot.Distributor), string(lot.Buyer), int64(lot.ProducedProductID),
		lot.UpdatedAt.Format(timeFormat), int64(lot.ID),
	)
	if err != nil {
		return fmt.Errorf("updating origin lot: %w", err)
	}
	return requireRow(result, &domain.NotFoundError{Lot: domain.LotOrigin, ID: int64(lot.ID)})
}

func (t *transaction) GetOrigin(ctx context.Context, id domain.OriginID) (domain.OriginLot, error) {
	lot, err := scanOrigin(t.tx.QueryRowContext(ctx,
		`SELECT `+originColumns+` FROM origin_lots WHERE id = ?`, int64(id),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.OriginLot{}, &domain.NotFoundError{Lot: domain.LotOrigin, ID: int64(id)}
	}
	return lot, err
}

func (t *transaction) ListOrigins(ctx context.Context, filter domain.OriginFilter) ([]domain.OriginLot, error) {
	query := `SELECT ` + originColumns + ` FROM origin_lots`
	var args []any

	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY id`
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing origin lots: %w", err)
	}
	defer rows.Close()

	var lots []domain.OriginLot
	for rows.Next() {
		lot, err := scanOrigin(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func scanOrigin(row scanner) (domain.OriginLot, error) {
	var lot domain.OriginLot
	var id, producedID int64
	var status, originator, distributor, buyer, createdAt, updatedAt string
	err := row.Scan(&id, &lot.Name, &lot.Price, &status, &originator,
		&lot.Location.Latitude, &lot.Location.Longitude,
		&distributor, &buyer, &producedID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.OriginLot{}, err
		}
		return domain.OriginLot{}, fmt.Errorf("scanning origin lot: %w", err)
	}

	lot.ID = domain.OriginID(id)
	lot.Status = domain.OriginStatus(status)
	lot.Originator = domain.Account(originator)
	lot.Distributor = domain.Account(distributor)
	lot.Buyer = domain.Account(buyer)
	lot.ProducedProductID = domain.ProductID(producedID)
	lot.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	lot.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return lot, nil
}

const productColumns = `id, name, price, status, manufacturer, latitude, longitude,
	distributor, retailer, buyer, source_origin_id, created_at, updated_at`

func (t *transaction) CreateProduct(ctx context.Context, lot domain.ProductLot) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO product_lots (`+productColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		int64(lot.ID), lot.Name, lot.Price.String(), string(lot.Status), string(lot.Manufacturer),
		lot.Location.Latitude, lot.Location.Longitude,
		string(lot.Distributor), string(lot.Retailer), string(lot.Buyer), int64(lot.SourceOriginID),
		lot.CreatedAt.Format(timeFormat), lot.UpdatedAt.Format(timeFormat),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.ConflictError{Lot: domain.LotProduct, ID: int64(lot.ID)}
		}
		return fmt.Errorf("inserting product lot: %w", err)
	}
	return nil
}

func (t *transaction) UpdateProduct(ctx context.Context, lot domain.ProductLot) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE product_lots SET name = ?, price = ?, status = ?, distributor = ?, retailer = ?,
		 buyer = ?, updated_at = ?
		 WHERE id = ?`,
		lot.Name, lot.Price.String(), string(lot.Status),
		string(lot.Distributor), string(lot.Retailer), string(lot.Buyer),
		lot.UpdatedAt.Format(timeFormat), int64(lot.ID),
	)
	if err != nil {
		return fmt.Errorf("updating product lot: %w", err)
	}
	return requireRow(result, &domain.NotFoundError{Lot: domain.LotProduct, ID: int64(lot.ID)})
}

func (t *transaction) GetProduct(ctx context.Context, id domain.ProductID) (domain.ProductLot, error) {
	lot, err := scanProduct(t.tx.QueryRowContext(ctx,
		`SELECT `+productColumns+` FROM product_lots WHERE id = ?`, int64(id),
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ProductLot{}, &domain.NotFoundError{Lot: domain.LotProduct, ID: int64(id)}
	}
	return lot, err
}

func (t *transaction) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductLot, error) {
	query := `SELECT ` + productColumns + ` FROM product_lots`
	var args []any

	if filter.Status != nil {
		query += ` WHERE status = ?`
		args = append(args, string(*filter.Status))
	}

	query += ` ORDER BY id`
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing product lots: %w", err)
	}
	defer rows.Close()

	var lots []domain.ProductLot
	for rows.Next() {
		lot, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	return lots, rows.Err()
}

func scanProduct(row scanner) (domain.ProductLot, error) {
	var lot domain.ProductLot
	var id, sourceID int64
	var status, manufacturer, distributor, retailer, buyer, createdAt, updatedAt string
	err := row.Scan(&id, &lot.Name, &lot.Price, &status, &manufacturer,
		&lot.Location.Latitude, &lot.Location.Longitude,
		&distributor, &retailer, &buyer, &sourceID, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ProductLot{}, err
		}
		return domain.ProductLot{}, fmt.Errorf("scanning product lot: %w", err)
	}

	lot.ID = domain.ProductID(id)
	lot.Status = domain.ProductStatus(status)
	lot.Manufacturer = domain.Account(manufacturer)
	lot.Distributor = domain.Account(distributor)
	lot.Retailer = domain.Account(retailer)
	lot.Buyer = domain.Account(buyer)
	lot.SourceOriginID = domain.OriginID(sourceID)
	lot.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	lot.UpdatedAt, _ = time.Parse(timeFormat, updatedAt)
	return lot, nil
}

func (t *transaction) Balance(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	var amount decimal.Decimal
	err := t.tx.QueryRowContext(ctx,
		`SELECT amount FROM balances WHERE account = ?`, string(account),
	).Scan(&amount)
	if errors.Is(err, sql.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading balance of %s: %w", account, err)
	}
	return amount, nil
}

func (t *transaction) setBalance(ctx context.Context, account domain.Account, amount decimal.Decimal) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO balances (account, amount) VALUES (?, ?)
		 ON CONFLICT (account) DO UPDATE SET amount = excluded.amount`,
		string(account), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("writing balance of %s: %w", account, err)
	}
	return nil
}

func (t *transaction) Credit(ctx context.Context, account domain.Account, amount decimal.Decimal) error {
	current, err := t.Balance(ctx, account)
	if err != nil {
		return err
	}
	return t.setBalance(ctx, account, current.Add(amount))
}

func (t *transaction) Transfer(ctx context.Context, from, to domain.Account, amount decimal.Decimal) error {
	source, err := t.Balance(ctx, from)
	if err != nil {
		return err
	}
	if source.LessThan(amount) {
		return domain.ErrInsufficientFunds
	}
	if err := t.setBalance(ctx, from, source.Sub(amount)); err != nil {
		return err
	}
	return t.Credit(ctx, to, amount)
}

// entryDetails holds the kind-specific payload of a log entry.
type entryDetails struct {
	Settlement *domain.Settlement `json:"settlement,omitempty"`
	Grant      *domain.Grant      `json:"grant,omitempty"`
	Deposit    *domain.Deposit    `json:"deposit,omitempty"`
}

func (t *transaction) Append(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	details, err := json.Marshal(entryDetails{
		Settlement: entry.Settlement,
		Grant:      entry.Grant,
		Deposit:    entry.Deposit,
	})
	if err != nil {
		return domain.Entry{}, fmt.Errorf("encoding entry details: %w", err)
	}

	result, err := t.tx.ExecContext(ctx,
		`INSERT INTO ledger_entries (id, kind, lot_id, event, state, actor, details, recorded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, string(entry.Kind), entry.LotID, entry.Event, entry.State,
		string(entry.Actor), string(details), entry.RecordedAt.Format(timeFormat),
	)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("inserting entry: %w", err)
	}
	entry.Seq, err = result.LastInsertId()
	if err != nil {
		return domain.Entry{}, fmt.Errorf("reading entry sequence: %w", err)
	}
	return entry, nil
}

func (t *transaction) Entries(ctx context.Context, filter domain.EntryFilter) ([]domain.Entry, error) {
	query := `SELECT seq, id, kind, lot_id, event, state, actor, details, recorded_at
		FROM ledger_entries WHERE seq > ?`
	args := []any{filter.AfterSeq}

	if filter.Kind != nil {
		query += ` AND kind = ?`
		args = append(args, string(*filter.Kind))
	}
	if filter.LotID != 0 {
		query += ` AND lot_id = ?`
		args = append(args, filter.LotID)
	}

	query += ` ORDER BY seq`
	query, args = paginate(query, args, filter.Limit, 0)

	rows, err := t.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var kind, actor, details, recordedAt string
		if err := rows.Scan(&e.Seq, &e.ID, &kind, &e.LotID, &e.Event, &e.State, &actor, &details, &recordedAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		var d entryDetails
		if err := json.Unmarshal([]byte(details), &d); err != nil {
			return nil, fmt.Errorf("decoding details of entry %d: %w", e.Seq, err)
		}
		e.Kind = domain.EntryKind(kind)
		e.Actor = domain.Account(actor)
		e.Settlement, e.Grant, e.Deposit = d.Settlement, d.Grant, d.Deposit
		e.RecordedAt, _ = time.Parse(timeFormat, recordedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// paginate appends LIMIT and OFFSET clauses. SQLite only accepts OFFSET
// after a LIMIT, where -1 means unbounded.
func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit <= 0 && offset <= 0 {
		return query, args
	}
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if offset > 0 {
		query += ` OFFSET ?`
		args = append(args, offset)
	}
	return query, args
}

func requireRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
