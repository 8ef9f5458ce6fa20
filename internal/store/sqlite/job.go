// Package sqlite keeps jobs and depot positions durable in one SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/efreitasn/depotbroker/internal/domain"
	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
)

// JobStore persists jobs and tombstones in SQLite. A single connection
// serializes writers; per-job ordering is enforced by the caller.
type JobStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path with WAL journaling and
// ensures the schema exists.
func Open(path string) (*JobStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("job store opened", "backend", "sqlite", "path", path)
	return &JobStore{db: db}, nil
}

// Close closes the database.
func (s *JobStore) Close() error {
	return s.db.Close()
}

// Ping checks the database connection.
func (s *JobStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			job_id            TEXT    PRIMARY KEY,
			depot_id          TEXT    NOT NULL,
			order_id          TEXT    NOT NULL,
			exchange_order_id TEXT    UNIQUE,
			state             TEXT    NOT NULL,
			order_data        TEXT    NOT NULL,
			fills             TEXT    NOT NULL DEFAULT '[]',
			cancel_requested  INTEGER NOT NULL DEFAULT 0,
			validity          INTEGER,
			created_at        INTEGER NOT NULL,
			updated_at        INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS jobs_depot    ON jobs (depot_id, created_at);
		CREATE INDEX IF NOT EXISTS jobs_order    ON jobs (order_id, created_at);
		CREATE INDEX IF NOT EXISTS jobs_validity ON jobs (validity) WHERE validity IS NOT NULL;

		CREATE TABLE IF NOT EXISTS job_tombstones (
			job_id            TEXT    PRIMARY KEY,
			exchange_order_id TEXT,
			state             TEXT    NOT NULL,
			finished_at       INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS job_tombstones_exchange ON job_tombstones (exchange_order_id);
		CREATE INDEX IF NOT EXISTS job_tombstones_finished ON job_tombstones (finished_at);

		CREATE TABLE IF NOT EXISTS positions (
			depot_id          TEXT    NOT NULL,
			share_id          TEXT    NOT NULL,
			amount            INTEGER NOT NULL,
			cost_value        TEXT    NOT NULL,
			current_value     TEXT    NOT NULL,
			percentage_change TEXT    NOT NULL,
			updated_at        INTEGER NOT NULL,
			PRIMARY KEY (depot_id, share_id)
		);
	`)
	return err
}

// orderRecord is the stored JSON form of domain.Order.
type orderRecord struct {
	OrderID   string             `json:"orderId"`
	DepotID   string             `json:"depotId"`
	ShareID   string             `json:"shareId"`
	Amount    int64              `json:"amount"`
	Side      domain.OrderSide   `json:"side"`
	Detail    domain.OrderDetail `json:"detail"`
	Limit     *decimal.Decimal   `json:"limit,omitempty"`
	Stop      *decimal.Decimal   `json:"stop,omitempty"`
	StopLimit *decimal.Decimal   `json:"stopLimit,omitempty"`
	Validity  *time.Time         `json:"validity,omitempty"`
}

type fillRecord struct {
	Amount int64           `json:"amount"`
	Price  decimal.Decimal `json:"price"`
	At     time.Time       `json:"at"`
}

const jobColumns = `job_id, depot_id, exchange_order_id, state, order_data, fills, cancel_requested, created_at, updated_at`

// Create implements engine.JobStore.
func (s *JobStore) Create(ctx context.Context, j *domain.Job) error {
	order, fills, err := encode(j)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM job_tombstones WHERE job_id = ?`, j.JobID).Scan(&exists)
	if err == nil {
		return domain.ErrJobConflict
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("sqlite query tombstone: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (job_id, depot_id, order_id, exchange_order_id, state, order_data, fills, cancel_requested, validity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, j.JobID, j.DepotID, j.Order.OrderID, nullable(j.ExchangeOrderID), string(j.State), order, fills,
		j.CancelRequested, validity(j), j.CreatedAt.UnixNano(), j.UpdatedAt.UnixNano())
	if err != nil {
		return mapConstraint(err, "sqlite insert job")
	}
	return tx.Commit()
}

// Get implements engine.JobStore.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, jobID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, missing(ctx, s.db, `SELECT 1 FROM job_tombstones WHERE job_id = ?`, jobID)
	}
	return j, err
}

// GetByExchangeID implements engine.JobStore.
func (s *JobStore) GetByExchangeID(ctx context.Context, exchangeOrderID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE exchange_order_id = ?`, exchangeOrderID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, missing(ctx, s.db, `SELECT 1 FROM job_tombstones WHERE exchange_order_id = ?`, exchangeOrderID)
	}
	return j, err
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// missing tells a tombstoned job from an unknown one. Inside a transaction q
// must be the transaction: the pool holds a single connection.
func missing(ctx context.Context, q queryer, query string, arg string) error {
	var one int
	err := q.QueryRowContext(ctx, query, arg).Scan(&one)
	switch {
	case err == nil:
		return domain.ErrJobTerminated
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrJobNotFound
	default:
		return fmt.Errorf("sqlite query tombstone: %w", err)
	}
}

// Update implements engine.JobStore.
func (s *JobStore) Update(ctx context.Context, j *domain.Job) error {
	order, fills, err := encode(j)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	var current sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT exchange_order_id FROM jobs WHERE job_id = ?`, j.JobID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return missing(ctx, tx, `SELECT 1 FROM job_tombstones WHERE job_id = ?`, j.JobID)
	}
	if err != nil {
		return fmt.Errorf("sqlite query job: %w", err)
	}
	if current.Valid && current.String != j.ExchangeOrderID {
		return domain.ErrJobConflict
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE jobs
		SET exchange_order_id = ?, state = ?, order_data = ?, fills = ?, cancel_requested = ?, validity = ?, updated_at = ?
		WHERE job_id = ?
	`, nullable(j.ExchangeOrderID), string(j.State), order, fills, j.CancelRequested, validity(j), j.UpdatedAt.UnixNano(), j.JobID)
	if err != nil {
		return mapConstraint(err, "sqlite update job")
	}
	return tx.Commit()
}

// Delete implements engine.JobStore.
func (s *JobStore) Delete(ctx context.Context, jobID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID)
	if err != nil {
		return fmt.Errorf("sqlite delete job: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrJobNotFound
	}
	return nil
}

// Finish implements engine.JobStore.
func (s *JobStore) Finish(ctx context.Context, jobID string, state domain.JobState, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite begin: %w", err)
	}
	defer tx.Rollback()

	var exchangeID sql.NullString
	err = tx.QueryRowContext(ctx, `SELECT exchange_order_id FROM jobs WHERE job_id = ?`, jobID).Scan(&exchangeID)
	if errors.Is(err, sql.ErrNoRows) {
		return missing(ctx, tx, `SELECT 1 FROM job_tombstones WHERE job_id = ?`, jobID)
	}
	if err != nil {
		return fmt.Errorf("sqlite query job: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE job_id = ?`, jobID); err != nil {
		return fmt.Errorf("sqlite delete job: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO job_tombstones (job_id, exchange_order_id, state, finished_at) VALUES (?, ?, ?, ?)
	`, jobID, exchangeID, string(state), at.UnixNano()); err != nil {
		return fmt.Errorf("sqlite insert tombstone: %w", err)
	}
	return tx.Commit()
}

// ListByDepot implements engine.JobStore.
func (s *JobStore) ListByDepot(ctx context.Context, depotID string) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE depot_id = ? ORDER BY created_at ASC, job_id ASC`, depotID)
}

// ListByOrder implements engine.JobStore.
func (s *JobStore) ListByOrder(ctx context.Context, orderID string) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE order_id = ? ORDER BY created_at ASC, job_id ASC`, orderID)
}

// ListExpired implements engine.JobStore.
func (s *JobStore) ListExpired(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	return s.list(ctx, `SELECT `+jobColumns+` FROM jobs WHERE validity IS NOT NULL AND validity <= ? ORDER BY validity ASC, job_id ASC`, now.UnixNano())
}

// PruneTombstones implements engine.JobStore.
func (s *JobStore) PruneTombstones(ctx context.Context, before time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM job_tombstones WHERE finished_at < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite prune tombstones: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *JobStore) list(ctx context.Context, query string, arg any) ([]*domain.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("sqlite query jobs: %w", err)
	}
	defer rows.Close()

	jobs := make([]*domain.Job, 0)
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		j          domain.Job
		exchangeID sql.NullString
		state      string
		orderData  string
		fillData   string
		createdAt  int64
		updatedAt  int64
	)
	err := row.Scan(&j.JobID, &j.DepotID, &exchangeID, &state, &orderData, &fillData, &j.CancelRequested, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("sqlite scan job: %w", err)
	}

	var o orderRecord
	if err := json.Unmarshal([]byte(orderData), &o); err != nil {
		return nil, fmt.Errorf("decoding order of job %s: %w", j.JobID, err)
	}
	var fills []fillRecord
	if err := json.Unmarshal([]byte(fillData), &fills); err != nil {
		return nil, fmt.Errorf("decoding fills of job %s: %w", j.JobID, err)
	}

	j.ExchangeOrderID = exchangeID.String
	j.State = domain.JobState(state)
	j.Order = domain.Order{
		OrderID:   o.OrderID,
		DepotID:   o.DepotID,
		ShareID:   o.ShareID,
		Amount:    o.Amount,
		Side:      o.Side,
		Detail:    o.Detail,
		Limit:     o.Limit,
		Stop:      o.Stop,
		StopLimit: o.StopLimit,
		Validity:  o.Validity,
	}
	for _, f := range fills {
		j.Fills = append(j.Fills, domain.Fill{Amount: f.Amount, Price: f.Price, At: f.At})
	}
	j.CreatedAt = time.Unix(0, createdAt).UTC()
	j.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &j, nil
}

func encode(j *domain.Job) (order string, fills string, err error) {
	o := orderRecord{
		OrderID:   j.Order.OrderID,
		DepotID:   j.Order.DepotID,
		ShareID:   j.Order.ShareID,
		Amount:    j.Order.Amount,
		Side:      j.Order.Side,
		Detail:    j.Order.Detail,
		Limit:     j.Order.Limit,
		Stop:      j.Order.Stop,
		StopLimit: j.Order.StopLimit,
		Validity:  j.Order.Validity,
	}
	ob, err := json.Marshal(o)
	if err != nil {
		return "", "", fmt.Errorf("encoding order of job %s: %w", j.JobID, err)
	}

	fr := make([]fillRecord, 0, len(j.Fills))
	for _, f := range j.Fills {
		fr = append(fr, fillRecord{Amount: f.Amount, Price: f.Price, At: f.At})
	}
	fb, err := json.Marshal(fr)
	if err != nil {
		return "", "", fmt.Errorf("encoding fills of job %s: %w", j.JobID, err)
	}
	return string(ob), string(fb), nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func validity(j *domain.Job) sql.NullInt64 {
	if j.Order.Validity == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: j.Order.Validity.UnixNano(), Valid: true}
}

// mapConstraint turns unique-key violations into domain.ErrJobConflict.
func mapConstraint(err error, op string) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%s: %w", op, domain.ErrJobConflict)
	}
	return fmt.Errorf("%s: %w", op, err)
}
