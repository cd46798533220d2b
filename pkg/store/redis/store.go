// Package redis persists state machine transitions in Redis.
//
// A [Store] keeps each record's current state in a hash field and writes
// it with a Lua script that compares the stored state with the expected
// one, sets the new state and appends a history entry in one atomic step.
// [PersistHook] adapts a Store to an fsm persist hook.
//
// For testing, use [NewFromClient] with a client connected to miniredis.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/StricklySoft/stricklysoft-fsm/pkg/store/redis"

// Cmdable is the subset of [*redis.Client] the store uses. Scripting
// commands come from [redis.Scripter].
type Cmdable interface {
	redis.Scripter

	HGet(ctx context.Context, key, field string) *redis.StringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Cmdable = (*redis.Client)(nil)

// setStateScript performs the compare-and-set.
//
// KEYS[1] record hash, KEYS[2] history list.
// ARGV[1] state field, ARGV[2] expected state, ARGV[3] "1" if a state is
// expected and "0" if the field must be absent, ARGV[4] new state,
// ARGV[5] history entry ("" to skip), ARGV[6] history limit (0 keeps all).
//
// Returns 1 on success and 0 when the stored state does not match.
var setStateScript = redis.NewScript(`
local current = redis.call('HGET', KEYS[1], ARGV[1])
if ARGV[3] == '1' then
  if current ~= ARGV[2] then return 0 end
elseif current then
  return 0
end
redis.call('HSET', KEYS[1], ARGV[1], ARGV[4])
if ARGV[5] ~= '' then
  redis.call('RPUSH', KEYS[2], ARGV[5])
  local limit = tonumber(ARGV[6])
  if limit > 0 then
    redis.call('LTRIM', KEYS[2], -limit, -1)
  end
end
return 1
`)

// Record is one entry of a record's transition history.
type Record struct {
	ID       uuid.UUID `json:"id"`
	RecordID string    `json:"record_id"`
	From     string    `json:"from,omitempty"`
	HadFrom  bool      `json:"had_from"`
	To       string    `json:"to"`
	At       time.Time `json:"at"`
}

// Store writes record states and history to Redis. It is safe for
// concurrent use.
type Store struct {
	client Cmdable
	config Config
	tracer trace.Tracer
	now    func() time.Time
}

// NewStore validates cfg, connects and verifies connectivity with a ping.
//
// Error codes returned:
//   - a VAL code: invalid configuration
//   - [sserr.CodeUnavailableDependency]: cannot connect to Redis
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password.Value(),
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"redis: failed to connect to server")
	}
	return NewFromClient(rdb, &cfg), nil
}

// NewFromClient creates a Store on an existing [Cmdable]. cfg is not
// validated; a nil cfg uses [DefaultConfig].
func NewFromClient(client Cmdable, cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{
		client: client,
		config: *cfg,
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}
}

// Key returns the hash key of record id.
func (s *Store) Key(id string) string {
	return s.config.KeyPrefix + ":" + id
}

// HistoryKey returns the history list key of record id.
func (s *Store) HistoryKey(id string) string {
	return s.Key(id) + ":history"
}

// SetState moves record id from from to to. hasFrom false means the
// state field is expected to be absent. A mismatch returns
// [sserr.CodeConflictVersionMismatch] and writes nothing.
func (s *Store) SetState(ctx context.Context, id, from string, hasFrom bool, to string) error {
	ctx, span := s.startSpan(ctx, "SetState", "EVALSHA setState "+s.Key(id))
	span.SetAttributes(
		attribute.String("fsm.record_id", id),
		attribute.String("fsm.to", to),
	)
	err := s.setState(ctx, id, from, hasFrom, to)
	finishSpan(span, err)
	return err
}

func (s *Store) setState(ctx context.Context, id, from string, hasFrom bool, to string) error {
	var entry string
	if !s.config.DisableHistory {
		data, err := json.Marshal(Record{
			ID:       uuid.New(),
			RecordID: id,
			From:     from,
			HadFrom:  hasFrom,
			To:       to,
			At:       s.now().UTC(),
		})
		if err != nil {
			return sserr.Wrap(err, sserr.CodeInternal, "redis: failed to encode history entry")
		}
		entry = string(data)
	}

	expected := "0"
	if hasFrom {
		expected = "1"
	}

	ok, err := setStateScript.Run(ctx, s.client,
		[]string{s.Key(id), s.HistoryKey(id)},
		s.config.StateField, from, expected, to, entry, strconv.FormatInt(s.config.HistoryLimit, 10),
	).Int64()
	if err != nil {
		return wrapError(err, "redis: state update failed")
	}
	if ok == 0 {
		return sserr.Newf(sserr.CodeConflictVersionMismatch,
			"redis: record %q is not in the expected state", id).
			WithDetails(map[string]any{"record_id": id, "expected": from, "expected_set": hasFrom})
	}
	return nil
}

// State returns the stored state of record id, and false if it has none.
func (s *Store) State(ctx context.Context, id string) (string, bool, error) {
	ctx, span := s.startSpan(ctx, "State", "HGET "+s.Key(id))
	state, err := s.client.HGet(ctx, s.Key(id), s.config.StateField).Result()
	if errors.Is(err, redis.Nil) {
		finishSpan(span, nil)
		return "", false, nil
	}
	finishSpan(span, err)
	if err != nil {
		return "", false, wrapError(err, "redis: state read failed")
	}
	return state, true, nil
}

// History returns the history of record id, oldest first.
func (s *Store) History(ctx context.Context, id string) ([]Record, error) {
	ctx, span := s.startSpan(ctx, "History", "LRANGE "+s.HistoryKey(id))
	raw, err := s.client.LRange(ctx, s.HistoryKey(id), 0, -1).Result()
	if err != nil {
		finishSpan(span, err)
		return nil, wrapError(err, "redis: history read failed")
	}

	out := make([]Record, 0, len(raw))
	for i, entry := range raw {
		var rec Record
		if err := json.Unmarshal([]byte(entry), &rec); err != nil {
			finishSpan(span, err)
			return nil, sserr.Wrapf(err, sserr.CodeInternalDatabase,
				"redis: history entry %d of %q is corrupt", i, id)
		}
		out = append(out, rec)
	}
	finishSpan(span, nil)
	return out, nil
}

// Health pings Redis, applying [DefaultHealthTimeout] if ctx has no
// deadline. Failures return [sserr.CodeUnavailableDependency].
func (s *Store) Health(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Health", "PING")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := s.client.Ping(ctx).Err()
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"redis: health check failed")
	}
	return nil
}

// Close closes the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) startSpan(ctx context.Context, op, statement string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "redis."+op,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "redis"),
		attribute.Int("db.redis.database_index", s.config.DB),
		attribute.String("db.statement", truncateStatement(statement)),
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

// wrapError maps client errors to platform errors. A deadline becomes
// [sserr.CodeTimeoutDatabase]; cancellation is not retryable and stays
// [sserr.CodeInternalDatabase].
func wrapError(err error, message string) *sserr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
