// Package postgres persists state machine transitions in PostgreSQL.
//
// A [Store] writes the new state of a record with a compare-and-set
// UPDATE, so two concurrent transitions of the same record cannot both
// succeed, and appends a row to a history table in the same database
// transaction. [PersistHook] adapts a Store to an fsm persist hook:
//
//	store, err := postgres.NewStore(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
//
//	hooks, err := fsm.NewHooksBuilder[*models.Execution, models.ExecutionStatus]().
//	    Persist(models.ExecutionStatusRunning, postgres.PersistHook(store, (*models.Execution).Key)).
//	    Build()
//
// For testing, use [NewFromPool] with a pgxmock pool.
//
// # OpenTelemetry Tracing
//
// Every operation creates a client span with the standard database
// attributes (db.system, db.statement). Statements are truncated to 100
// characters.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/StricklySoft/stricklysoft-fsm/pkg/store/postgres"

// Pool defines the subset of [*pgxpool.Pool] the store uses. It is
// satisfied by pgxmock pools for unit testing.
type Pool interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

var _ Pool = (*pgxpool.Pool)(nil)

// Record is one row of the transition history.
type Record struct {
	ID       uuid.UUID `json:"id"`
	RecordID string    `json:"record_id"`
	From     string    `json:"from,omitempty"`
	HadFrom  bool      `json:"had_from"`
	To       string    `json:"to"`
	At       time.Time `json:"at"`
}

// Store writes record states and transition history. It is safe for
// concurrent use.
type Store struct {
	pool   Pool
	config Config
	tracer trace.Tracer
	now    func() time.Time
}

// NewStore validates cfg, opens a connection pool and verifies
// connectivity.
//
// Error codes returned:
//   - [sserr.CodeValidation] (or a more specific VAL code): invalid configuration
//   - [sserr.CodeUnavailableDependency]: cannot connect to the database
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.URI.Value())
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidationFormat,
			"postgres: failed to parse connection string")
	}
	poolCfg.MaxConns = cfg.MaxConns

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"postgres: failed to create connection pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"postgres: failed to connect to database")
	}
	return NewFromPool(pool, &cfg), nil
}

// NewFromPool creates a Store on an existing [Pool]. cfg is not
// validated; a nil cfg uses [DefaultConfig].
func NewFromPool(pool Pool, cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{
		pool:   pool,
		config: *cfg,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
}

func (s *Store) updateSQL() string {
	return fmt.Sprintf("UPDATE %s SET %s = $1 WHERE %s = $2 AND %s IS NOT DISTINCT FROM $3",
		s.config.Table, s.config.StateColumn, s.config.IDColumn, s.config.StateColumn)
}

func (s *Store) insertHistorySQL() string {
	return fmt.Sprintf("INSERT INTO %s (id, record_id, from_state, to_state, created_at) VALUES ($1, $2, $3, $4, $5)",
		s.config.HistoryTable)
}

func (s *Store) selectStateSQL() string {
	return fmt.Sprintf("SELECT %s FROM %s WHERE %s = $1",
		s.config.StateColumn, s.config.Table, s.config.IDColumn)
}

func (s *Store) selectHistorySQL() string {
	return fmt.Sprintf("SELECT id, from_state, to_state, created_at FROM %s WHERE record_id = $1 ORDER BY created_at, id",
		s.config.HistoryTable)
}

func (s *Store) createHistorySQL() string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s ("+
		"id UUID PRIMARY KEY, "+
		"record_id TEXT NOT NULL, "+
		"from_state TEXT, "+
		"to_state TEXT NOT NULL, "+
		"created_at TIMESTAMPTZ NOT NULL)",
		s.config.HistoryTable)
}

// SetState moves record id from from to to. hasFrom false means the
// record is expected to have no state (NULL). The write only succeeds if
// the stored state still equals the expected one; otherwise SetState
// returns [sserr.CodeConflictVersionMismatch] and nothing is written.
// When a history table is configured, a history row is inserted in the
// same transaction.
func (s *Store) SetState(ctx context.Context, id, from string, hasFrom bool, to string) error {
	updateSQL := s.updateSQL()
	ctx, span := s.startSpan(ctx, "SetState", updateSQL)
	span.SetAttributes(
		attribute.String("fsm.record_id", id),
		attribute.String("fsm.to", to),
	)

	err := s.setState(ctx, updateSQL, id, from, hasFrom, to)
	finishSpan(span, err)
	return err
}

func (s *Store) setState(ctx context.Context, updateSQL, id, from string, hasFrom bool, to string) error {
	expected := pgtype.Text{String: from, Valid: hasFrom}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return wrapError(err, "postgres: begin transaction failed")
	}

	tag, err := tx.Exec(ctx, updateSQL, to, id, expected)
	if err != nil {
		_ = tx.Rollback(ctx)
		return wrapError(err, "postgres: state update failed")
	}
	if tag.RowsAffected() == 0 {
		_ = tx.Rollback(ctx)
		return sserr.Newf(sserr.CodeConflictVersionMismatch,
			"postgres: record %q is not in the expected state", id).
			WithDetails(map[string]any{"record_id": id, "expected": expected.String, "expected_set": hasFrom})
	}

	if s.config.HistoryTable != "" {
		_, err = tx.Exec(ctx, s.insertHistorySQL(), uuid.New(), id, expected, to, s.now().UTC())
		if err != nil {
			_ = tx.Rollback(ctx)
			return wrapError(err, "postgres: history insert failed")
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return wrapError(err, "postgres: commit failed")
	}
	return nil
}

// State returns the stored state of record id, and false if the state is
// NULL. A missing record returns [sserr.CodeNotFoundResource].
func (s *Store) State(ctx context.Context, id string) (string, bool, error) {
	query := s.selectStateSQL()
	ctx, span := s.startSpan(ctx, "State", query)

	var state pgtype.Text
	err := s.pool.QueryRow(ctx, query, id).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		err = sserr.Newf(sserr.CodeNotFoundResource, "postgres: record %q not found", id)
		finishSpan(span, err)
		return "", false, err
	}
	if err != nil {
		finishSpan(span, err)
		return "", false, wrapError(err, "postgres: state query failed")
	}
	finishSpan(span, nil)
	return state.String, state.Valid, nil
}

// History returns the transition history of record id, oldest first. It
// returns an empty slice when history is disabled.
func (s *Store) History(ctx context.Context, id string) ([]Record, error) {
	if s.config.HistoryTable == "" {
		return []Record{}, nil
	}
	query := s.selectHistorySQL()
	ctx, span := s.startSpan(ctx, "History", query)

	rows, err := s.pool.Query(ctx, query, id)
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "postgres: history query failed")
	}
	defer rows.Close()

	out := []Record{}
	for rows.Next() {
		var (
			rawID string
			from  pgtype.Text
			rec   = Record{RecordID: id}
		)
		if err := rows.Scan(&rawID, &from, &rec.To, &rec.At); err != nil {
			finishSpan(span, err)
			return nil, wrapError(err, "postgres: history scan failed")
		}
		if rec.ID, err = uuid.Parse(rawID); err != nil {
			finishSpan(span, err)
			return nil, sserr.Wrapf(err, sserr.CodeInternalDatabase,
				"postgres: history row has invalid id %q", rawID)
		}
		rec.From, rec.HadFrom = from.String, from.Valid
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "postgres: history iteration failed")
	}
	finishSpan(span, nil)
	return out, nil
}

// EnsureHistoryTable creates the history table if it does not exist. It
// is a no-op when history is disabled.
func (s *Store) EnsureHistoryTable(ctx context.Context) error {
	if s.config.HistoryTable == "" {
		return nil
	}
	ddl := s.createHistorySQL()
	ctx, span := s.startSpan(ctx, "EnsureHistoryTable", ddl)
	_, err := s.pool.Exec(ctx, ddl)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "postgres: create history table failed")
	}
	return nil
}

// Health pings the database, applying [DefaultHealthTimeout] if ctx has
// no deadline. Failures return [sserr.CodeUnavailableDependency].
func (s *Store) Health(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Health", "SELECT 1")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := s.pool.Ping(ctx)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"postgres: health check failed")
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) startSpan(ctx context.Context, op, sql string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "postgres."+op,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", s.config.Table),
		attribute.String("db.statement", truncateSQL(sql)),
	)
	return ctx, span
}

func finishSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// wrapError maps driver errors to platform errors. Deadline and
// cancellation become [sserr.CodeTimeoutDatabase] so callers can use
// [sserr.IsRetryable].
func wrapError(err error, message string) *sserr.Error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
