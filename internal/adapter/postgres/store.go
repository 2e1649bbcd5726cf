// Package postgres implements the ledger store on PostgreSQL using pgx.
package postgres

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/shopspring/decimal"

	"github.com/neomorfeo/croptrace/internal/domain"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: Store implements domain.Store.
var _ domain.Store = (*Store)(nil)

// writerLockKey identifies the advisory lock that serializes ledger writers
// across every process sharing the database.
const writerLockKey = 0x63726f70 // "crop"

// Store implements domain.Store using a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to the database at dsn, runs migrations, and returns a ready store.
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 1
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.HealthCheckPeriod = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	store, err := NewFromPool(pool)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewFromPool wraps an existing pool, runs migrations, and returns a ready store.
func NewFromPool(pool *pgxpool.Pool) (*Store, error) {
	if err := runMigrations(pool); err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases every pooled connection.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func runMigrations(pool *pgxpool.Pool) error {
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()

	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

// Update executes fn inside a transaction holding the writer lock,
// committing only if fn succeeds.
func (s *Store) Update(ctx context.Context, fn func(domain.Tx) error) error {
	pgTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := pgTx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, writerLockKey); err != nil {
		return fmt.Errorf("acquiring writer lock: %w", err)
	}

	if err := fn(&transaction{tx: pgTx}); err != nil {
		return err
	}
	if err := pgTx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// View executes fn inside a read-only repeatable-read transaction, so every
// read sees the same snapshot.
func (s *Store) View(ctx context.Context, fn func(domain.View) error) error {
	pgTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.RepeatableRead,
		AccessMode: pgx.ReadOnly,
	})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer pgTx.Rollback(ctx) //nolint:errcheck // read-only

	return fn(&transaction{tx: pgTx})
}

const settingAdministrator = "administrator"

type transaction struct {
	tx pgx.Tx
}

func (t *transaction) Administrator(ctx context.Context) (domain.Account, error) {
	var admin string
	err := t.tx.QueryRow(ctx,
		`SELECT value FROM ledger_settings WHERE key = $1`, settingAdministrator,
	).Scan(&admin)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading administrator: %w", err)
	}
	return domain.Account(admin), nil
}

func (t *transaction) SetAdministrator(ctx context.Context, admin domain.Account) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO ledger_settings (key, value) VALUES ($1, $2)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		settingAdministrator, string(admin),
	)
	if err != nil {
		return fmt.Errorf("storing administrator: %w", err)
	}
	return nil
}

func (t *transaction) HasRole(ctx context.Context, role domain.Role, holder domain.Account) (bool, error) {
	var held bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM role_grants WHERE role = $1 AND holder = $2)`,
		string(role), string(holder),
	).Scan(&held)
	if err != nil {
		return false, fmt.Errorf("checking role: %w", err)
	}
	return held, nil
}

func (t *transaction) GrantRole(ctx context.Context, role domain.Role, holder domain.Account) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO role_grants (role, holder) VALUES ($1, $2)
		 ON CONFLICT (role, holder) DO NOTHING`,
		string(role), string(holder),
	)
	if err != nil {
		return fmt.Errorf("granting role: %w", err)
	}
	return nil
}

func (t *transaction) RevokeRole(ctx context.Context, role domain.Role, holder domain.Account) error {
	_, err := t.tx.Exec(ctx,
		`DELETE FROM role_grants WHERE role = $1 AND holder = $2`,
		string(role), string(holder),
	)
	if err != nil {
		return fmt.Errorf("revoking role: %w", err)
	}
	return nil
}

const originColumns = `id, name, price::text, status, originator, latitude, longitude,
	distributor, buyer, produced_product_id, created_at, updated_at`

func (t *transaction) CreateOrigin(ctx context.Context, lot domain.OriginLot) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO origin_lots (id, name, price, status, originator, latitude, longitude,
		 distributor, buyer, produced_product_id, created_at, updated_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		int64(lot.ID), lot.Name, lot.Price.String(), string(lot.Status), string(lot.Originator),
		lot.Location.Latitude, lot.Location.Longitude,
		string(lot.Distributor), string(lot.Buyer), int64(lot.ProducedProductID),
		lot.CreatedAt, lot.UpdatedAt,
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
	tag, err := t.tx.Exec(ctx,
		`UPDATE origin_lots SET name = $1, price = $2::numeric, status = $3, distributor = $4,
		 buyer = $5, produced_product_id = $6, updated_at = $7
		 WHERE id = $8`,
		lot.Name, lot.Price.String(), string(lot.Status),
		string(lot.Distributor), string(lot.Buyer), int64(lot.ProducedProductID),
		lot.UpdatedAt, int64(lot.ID),
	)
	if err != nil {
		return fmt.Errorf("updating origin lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Lot: domain.LotOrigin, ID: int64(lot.ID)}
	}
	return nil
}

func (t *transaction) GetOrigin(ctx context.Context, id domain.OriginID) (domain.OriginLot, error) {
	lot, err := scanOrigin(t.tx.QueryRow(ctx,
		`SELECT `+originColumns+` FROM origin_lots WHERE id = $1`, int64(id),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OriginLot{}, &domain.NotFoundError{Lot: domain.LotOrigin, ID: int64(id)}
	}
	return lot, err
}

func (t *transaction) ListOrigins(ctx context.Context, filter domain.OriginFilter) ([]domain.OriginLot, error) {
	query := `SELECT ` + originColumns + ` FROM origin_lots`
	var args []any

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}

	query += ` ORDER BY id`
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	rows, err := t.tx.Query(ctx, query, args...)
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

func scanOrigin(row pgx.Row) (domain.OriginLot, error) {
	var lot domain.OriginLot
	var id, producedID int64
	var price, status, originator, distributor, buyer string

	err := row.Scan(&id, &lot.Name, &price, &status, &originator,
		&lot.Location.Latitude, &lot.Location.Longitude,
		&distributor, &buyer, &producedID, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.OriginLot{}, err
		}
		return domain.OriginLot{}, fmt.Errorf("scanning origin lot: %w", err)
	}
	if lot.Price, err = decimal.NewFromString(price); err != nil {
		return domain.OriginLot{}, fmt.Errorf("parsing price of origin lot %d: %w", id, err)
	}

	lot.ID = domain.OriginID(id)
	lot.Status = domain.OriginStatus(status)
	lot.Originator = domain.Account(originator)
	lot.Distributor = domain.Account(distributor)
	lot.Buyer = domain.Account(buyer)
	lot.ProducedProductID = domain.ProductID(producedID)
	lot.CreatedAt = lot.CreatedAt.UTC()
	lot.UpdatedAt = lot.UpdatedAt.UTC()
	return lot, nil
}

const productColumns = `id, name, price::text, status, manufacturer, latitude, longitude,
	distributor, retailer, buyer, source_origin_id, created_at, updated_at`

func (t *transaction) CreateProduct(ctx context.Context, lot domain.ProductLot) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO product_lots (id, name, price, status, manufacturer, latitude, longitude,
		 distributor, retailer, buyer, source_origin_id, created_at, updated_at)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		int64(lot.ID), lot.Name, lot.Price.String(), string(lot.Status), string(lot.Manufacturer),
		lot.Location.Latitude, lot.Location.Longitude,
		string(lot.Distributor), string(lot.Retailer), string(lot.Buyer), int64(lot.SourceOriginID),
		lot.CreatedAt, lot.UpdatedAt,
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
	tag, err := t.tx.Exec(ctx,
		`UPDATE product_lots SET name = $1, price = $2::numeric, status = $3, distributor = $4,
		 retailer = $5, buyer = $6, updated_at = $7
		 WHERE id = $8`,
		lot.Name, lot.Price.String(), string(lot.Status),
		string(lot.Distributor), string(lot.Retailer), string(lot.Buyer),
		lot.UpdatedAt, int64(lot.ID),
	)
	if err != nil {
		return fmt.Errorf("updating product lot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return &domain.NotFoundError{Lot: domain.LotProduct, ID: int64(lot.ID)}
	}
	return nil
}

func (t *transaction) GetProduct(ctx context.Context, id domain.ProductID) (domain.ProductLot, error) {
	lot, err := scanProduct(t.tx.QueryRow(ctx,
		`SELECT `+productColumns+` FROM product_lots WHERE id = $1`, int64(id),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ProductLot{}, &domain.NotFoundError{Lot: domain.LotProduct, ID: int64(id)}
	}
	return lot, err
}

func (t *transaction) ListProducts(ctx context.Context, filter domain.ProductFilter) ([]domain.ProductLot, error) {
	query := `SELECT ` + productColumns + ` FROM product_lots`
	var args []any

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(` WHERE status = $%d`, len(args))
	}

	query += ` ORDER BY id`
	query, args = paginate(query, args, filter.Limit, filter.Offset)

	rows, err := t.tx.Query(ctx, query, args...)
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

func scanProduct(row pgx.Row) (domain.ProductLot, error) {
	var lot domain.ProductLot
	var id, sourceID int64
	var price, status, manufacturer, distributor, retailer, buyer string

	err := row.Scan(&id, &lot.Name, &price, &status, &manufacturer,
		&lot.Location.Latitude, &lot.Location.Longitude,
		&distributor, &retailer, &buyer, &sourceID, &lot.CreatedAt, &lot.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ProductLot{}, err
		}
		return domain.ProductLot{}, fmt.Errorf("scanning product lot: %w", err)
	}
	if lot.Price, err = decimal.NewFromString(price); err != nil {
		return domain.ProductLot{}, fmt.Errorf("parsing price of product lot %d: %w", id, err)
	}

	lot.ID = domain.ProductID(id)
	lot.Status = domain.ProductStatus(status)
	lot.Manufacturer = domain.Account(manufacturer)
	lot.Distributor = domain.Account(distributor)
	lot.Retailer = domain.Account(retailer)
	lot.Buyer = domain.Account(buyer)
	lot.SourceOriginID = domain.OriginID(sourceID)
	lot.CreatedAt = lot.CreatedAt.UTC()
	lot.UpdatedAt = lot.UpdatedAt.UTC()
	return lot, nil
}

func (t *transaction) Balance(ctx context.Context, account domain.Account) (decimal.Decimal, error) {
	var amount string
	err := t.tx.QueryRow(ctx,
		`SELECT amount::text FROM balances WHERE account = $1`, string(account),
	).Scan(&amount)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, fmt.Errorf("reading balance of %s: %w", account, err)
	}
	return decimal.NewFromString(amount)
}

func (t *transaction) Credit(ctx context.Context, account domain.Account, amount decimal.Decimal) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO balances (account, amount) VALUES ($1, $2::numeric)
		 ON CONFLICT (account) DO UPDATE SET amount = balances.amount + EXCLUDED.amount`,
		string(account), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("crediting %s: %w", account, err)
	}
	return nil
}

func (t *transaction) Transfer(ctx context.Context, from, to domain.Account, amount decimal.Decimal) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE balances SET amount = amount - $2::numeric
		 WHERE account = $1 AND amount >= $2::numeric`,
		string(from), amount.String(),
	)
	if err != nil {
		return fmt.Errorf("debiting %s: %w", from, err)
	}
	if tag.RowsAffected() == 0 {
		if amount.IsZero() {
			// An account with no row holds zero, which covers a zero transfer.
			return t.Credit(ctx, to, amount)
		}
		return domain.ErrInsufficientFunds
	}
	return t.Credit(ctx, to, amount)
}

// entryDetails holds the kind-specific payload of a log entry.
type entryDetails struct {
	Settlement *domain.Settlement `json:"settlement,omitempty"`
	Grant      *domain.Grant      `json:"grant,omitempty"`
	Deposit    *domain.Deposit    `json:"deposit,omitempty"`
}

// Append assigns the next sequence number. Writers hold the advisory lock,
// so sequence numbers stay gapless even across rolled back transactions.
func (t *transaction) Append(ctx context.Context, entry domain.Entry) (domain.Entry, error) {
	details, err := json.Marshal(entryDetails{
		Settlement: entry.Settlement,
		Grant:      entry.Grant,
		Deposit:    entry.Deposit,
	})
	if err != nil {
		return domain.Entry{}, fmt.Errorf("encoding entry details: %w", err)
	}

	err = t.tx.QueryRow(ctx,
		`INSERT INTO ledger_entries (seq, id, kind, lot_id, event, state, actor, details, recorded_at)
		 SELECT COALESCE(MAX(seq), 0) + 1, $1::uuid, $2, $3, $4, $5, $6, $7::jsonb, $8
		 FROM ledger_entries
		 RETURNING seq`,
		entry.ID, string(entry.Kind), entry.LotID, entry.Event, entry.State,
		string(entry.Actor), string(details), entry.RecordedAt,
	).Scan(&entry.Seq)
	if err != nil {
		return domain.Entry{}, fmt.Errorf("inserting entry: %w", err)
	}
	return entry, nil
}

func (t *transaction) Entries(ctx context.Context, filter domain.EntryFilter) ([]domain.Entry, error) {
	query := `SELECT seq, id::text, kind, lot_id, event, state, actor, details::text, recorded_at
		FROM ledger_entries WHERE seq > $1`
	args := []any{filter.AfterSeq}

	if filter.Kind != nil {
		args = append(args, string(*filter.Kind))
		query += fmt.Sprintf(` AND kind = $%d`, len(args))
	}
	if filter.LotID != 0 {
		args = append(args, filter.LotID)
		query += fmt.Sprintf(` AND lot_id = $%d`, len(args))
	}

	query += ` ORDER BY seq`
	query, args = paginate(query, args, filter.Limit, 0)

	rows, err := t.tx.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.Entry
	for rows.Next() {
		var e domain.Entry
		var kind, actor, details string
		if err := rows.Scan(&e.Seq, &e.ID, &kind, &e.LotID, &e.Event, &e.State, &actor, &details, &e.RecordedAt); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}
		var d entryDetails
		if err := json.Unmarshal([]byte(details), &d); err != nil {
			return nil, fmt.Errorf("decoding details of entry %d: %w", e.Seq, err)
		}
		e.Kind = domain.EntryKind(kind)
		e.Actor = domain.Account(actor)
		e.Settlement, e.Grant, e.Deposit = d.Settlement, d.Grant, d.Deposit
		e.RecordedAt = e.RecordedAt.UTC()
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func paginate(query string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		args = append(args, limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if offset > 0 {
		args = append(args, offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}
	return query, args
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
