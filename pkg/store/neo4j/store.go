// Package neo4j publishes state machine graphs to Neo4j, where they can
// be queried and visualized alongside other platform data.
//
// Each published machine becomes one node per state, labeled
// [Config.StateLabel] and carrying the machine name, the state name and
// its declaration position, plus one relationship per transition. A
// machine is always replaced as a whole in a single write transaction.
//
//	store, err := neo4j.NewStore(ctx, cfg)
//	if err != nil { ... }
//	defer store.Close(ctx)
//
//	err = neo4j.Publish(ctx, store, models.ExecutionMachineName, models.ExecutionGraph())
//	graph, err := neo4j.Load[models.ExecutionStatus](ctx, store, models.ExecutionMachineName)
//
// For testing, use [NewFromRunner] with a mock [Runner].
package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/StricklySoft/stricklysoft-fsm/pkg/store/neo4j"

// Statement is one parameterized Cypher statement.
type Statement struct {
	Cypher string
	Params map[string]any
}

// Runner executes Cypher for a [Store]. [NewStore] uses a driver-backed
// runner; tests inject a mock through [NewFromRunner].
type Runner interface {
	// Write runs statements in order inside one managed write
	// transaction.
	Write(ctx context.Context, statements ...Statement) error

	// Read runs st in a managed read transaction and collects the
	// records.
	Read(ctx context.Context, st Statement) ([]*neo4j.Record, error)

	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

// Driver is the subset of [neo4j.DriverWithContext] used by the
// driver-backed runner.
type Driver interface {
	NewSession(ctx context.Context, config neo4j.SessionConfig) neo4j.SessionWithContext
	VerifyConnectivity(ctx context.Context) error
	Close(ctx context.Context) error
}

var _ Driver = (neo4j.DriverWithContext)(nil)

// NewDriverRunner returns a [Runner] that opens one session per call on
// driver, against database.
func NewDriverRunner(driver Driver, database string) Runner {
	return &driverRunner{driver: driver, database: database}
}

type driverRunner struct {
	driver   Driver
	database string
}

func (r *driverRunner) Write(ctx context.Context, statements ...Statement) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, st := range statements {
			res, err := tx.Run(ctx, st.Cypher, st.Params)
			if err != nil {
				return nil, err
			}
			if _, err := res.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	return err
}

func (r *driverRunner) Read(ctx context.Context, st Statement) ([]*neo4j.Record, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: r.database,
		AccessMode:   neo4j.AccessModeRead,
	})
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, st.Cypher, st.Params)
		if err != nil {
			return nil, err
		}
		return res.Collect(ctx)
	})
	if err != nil {
		return nil, err
	}
	records, ok := result.([]*neo4j.Record)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %T from read transaction", result)
	}
	return records, nil
}

func (r *driverRunner) VerifyConnectivity(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

func (r *driverRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// Store is the Neo4j graph catalog. It is safe for concurrent use.
type Store struct {
	runner Runner
	config Config
	tracer trace.Tracer
}

// NewStore validates cfg, creates a driver and verifies connectivity.
//
// Error codes returned:
//   - a VAL code: invalid configuration
//   - [sserr.CodeInternalDatabase]: the driver could not be created
//   - [sserr.CodeUnavailableDependency]: cannot connect to Neo4j
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password.Value(), ""),
		func(c *config.Config) {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			c.SocketConnectTimeout = cfg.ConnectTimeout
		})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase,
			"neo4j: failed to create driver")
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"neo4j: failed to connect to database")
	}
	return NewFromRunner(NewDriverRunner(driver, cfg.Database), &cfg), nil
}

// NewFromRunner creates a Store on an existing [Runner]. cfg is not
// validated; a nil cfg uses [DefaultConfig].
func NewFromRunner(runner Runner, cfg *Config) *Store {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Store{
		runner: runner,
		config: *cfg,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *Store) deleteCypher() string {
	return fmt.Sprintf("MATCH (s:%s {machine: $machine}) DETACH DELETE s", s.config.StateLabel)
}

func (s *Store) createStatesCypher() string {
	return fmt.Sprintf("UNWIND $states AS st "+
		"CREATE (:%s {machine: $machine, name: st.name, position: st.position, initial: st.initial, terminal: st.terminal})",
		s.config.StateLabel)
}

func (s *Store) createTransitionsCypher() string {
	return fmt.Sprintf("UNWIND $transitions AS t "+
		"MATCH (a:%[1]s {machine: $machine, name: t.source}), (b:%[1]s {machine: $machine, name: t.target}) "+
		"CREATE (a)-[:%[2]s {position: t.position}]->(b)",
		s.config.StateLabel, s.config.TransitionType)
}

func (s *Store) selectStatesCypher() string {
	return fmt.Sprintf("MATCH (s:%s {machine: $machine}) RETURN s.name AS name ORDER BY s.position",
		s.config.StateLabel)
}

func (s *Store) selectTransitionsCypher() string {
	return fmt.Sprintf("MATCH (a:%[1]s {machine: $machine})-[t:%[2]s]->(b:%[1]s) "+
		"RETURN a.name AS source, b.name AS target ORDER BY a.position, t.position",
		s.config.StateLabel, s.config.TransitionType)
}

func (s *Store) selectMachinesCypher() string {
	return fmt.Sprintf("MATCH (s:%s) RETURN DISTINCT s.machine AS machine ORDER BY machine",
		s.config.StateLabel)
}

func (s *Store) reachableCypher() string {
	return fmt.Sprintf("MATCH (a:%[1]s {machine: $machine, name: $from})-[:%[2]s*1..]->(b:%[1]s) "+
		"RETURN DISTINCT b.name AS name, b.position AS position ORDER BY position",
		s.config.StateLabel, s.config.TransitionType)
}

// PublishDocument replaces the published graph of machine with doc. The
// document is validated first; an invalid document writes nothing.
func (s *Store) PublishDocument(ctx context.Context, machine string, doc fsm.GraphDocument[string]) error {
	if machine == "" {
		return sserr.New(sserr.CodeValidationRequired, "neo4j: machine name is required")
	}
	g, err := doc.Build()
	if err != nil {
		return err
	}

	states := make([]map[string]any, 0, len(doc.States))
	transitions := []map[string]any{}
	for i, st := range g.States() {
		states = append(states, map[string]any{
			"name":     st,
			"position": int64(i),
			"initial":  i == 0,
			"terminal": g.Terminal(st),
		})
		for j, to := range g.Targets(st) {
			transitions = append(transitions, map[string]any{
				"source":   st,
				"target":   to,
				"position": int64(j),
			})
		}
	}

	ctx, span := s.startSpan(ctx, "Publish", s.createStatesCypher())
	span.SetAttributes(
		attribute.String("fsm.machine", machine),
		attribute.Int("fsm.states", len(states)),
		attribute.Int("fsm.transitions", len(transitions)),
	)
	err = s.runner.Write(ctx,
		Statement{Cypher: s.deleteCypher(), Params: map[string]any{"machine": machine}},
		Statement{Cypher: s.createStatesCypher(), Params: map[string]any{"machine": machine, "states": states}},
		Statement{Cypher: s.createTransitionsCypher(), Params: map[string]any{"machine": machine, "transitions": transitions}},
	)
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "neo4j: failed to publish graph")
	}
	return nil
}

// Document reads the published graph of machine. A machine without
// published states returns [sserr.CodeNotFoundResource].
func (s *Store) Document(ctx context.Context, machine string) (fsm.GraphDocument[string], error) {
	params := map[string]any{"machine": machine}

	ctx, span := s.startSpan(ctx, "Document", s.selectStatesCypher())
	span.SetAttributes(attribute.String("fsm.machine", machine))
	doc, err := s.document(ctx, params)
	finishSpan(span, err)
	if err != nil {
		return fsm.GraphDocument[string]{}, err
	}
	if len(doc.States) == 0 {
		return fsm.GraphDocument[string]{}, sserr.Newf(sserr.CodeNotFoundResource,
			"neo4j: machine %q is not published", machine)
	}
	return doc, nil
}

func (s *Store) document(ctx context.Context, params map[string]any) (fsm.GraphDocument[string], error) {
	doc := fsm.GraphDocument[string]{Transitions: make(map[string][]string)}

	records, err := s.runner.Read(ctx, Statement{Cypher: s.selectStatesCypher(), Params: params})
	if err != nil {
		return doc, wrapError(err, "neo4j: failed to read states")
	}
	for _, rec := range records {
		name, err := stringValue(rec, "name")
		if err != nil {
			return doc, err
		}
		doc.States = append(doc.States, name)
	}

	records, err = s.runner.Read(ctx, Statement{Cypher: s.selectTransitionsCypher(), Params: params})
	if err != nil {
		return doc, wrapError(err, "neo4j: failed to read transitions")
	}
	for _, rec := range records {
		from, err := stringValue(rec, "source")
		if err != nil {
			return doc, err
		}
		to, err := stringValue(rec, "target")
		if err != nil {
			return doc, err
		}
		doc.Transitions[from] = append(doc.Transitions[from], to)
	}
	return doc, nil
}

// Reachable returns the states reachable from from in one or more
// transitions, ordered by declaration position. It answers the same
// question as [fsm.Graph.Reachable], evaluated by Neo4j.
func (s *Store) Reachable(ctx context.Context, machine, from string) ([]string, error) {
	ctx, span := s.startSpan(ctx, "Reachable", s.reachableCypher())
	span.SetAttributes(
		attribute.String("fsm.machine", machine),
		attribute.String("fsm.from", from),
	)
	records, err := s.runner.Read(ctx, Statement{
		Cypher: s.reachableCypher(),
		Params: map[string]any{"machine": machine, "from": from},
	})
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "neo4j: reachability query failed")
	}

	out := make([]string, 0, len(records))
	for _, rec := range records {
		name, err := stringValue(rec, "name")
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// Machines returns the names of all published machines, sorted.
func (s *Store) Machines(ctx context.Context) ([]string, error) {
	ctx, span := s.startSpan(ctx, "Machines", s.selectMachinesCypher())
	records, err := s.runner.Read(ctx, Statement{Cypher: s.selectMachinesCypher()})
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "neo4j: failed to list machines")
	}

	out := make([]string, 0, len(records))
	for _, rec := range records {
		name, err := stringValue(rec, "machine")
		if err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// Delete removes the published graph of machine. Deleting a machine that
// was never published is not an error.
func (s *Store) Delete(ctx context.Context, machine string) error {
	ctx, span := s.startSpan(ctx, "Delete", s.deleteCypher())
	span.SetAttributes(attribute.String("fsm.machine", machine))
	err := s.runner.Write(ctx, Statement{Cypher: s.deleteCypher(), Params: map[string]any{"machine": machine}})
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "neo4j: failed to delete graph")
	}
	return nil
}

// Health verifies connectivity, applying [DefaultHealthTimeout] if ctx
// has no deadline. Failures return [sserr.CodeUnavailableDependency].
func (s *Store) Health(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Health", "VERIFY CONNECTIVITY")
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	err := s.runner.VerifyConnectivity(ctx)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"neo4j: health check failed")
	}
	return nil
}

// Close releases the driver.
func (s *Store) Close(ctx context.Context) error {
	if err := s.runner.Close(ctx); err != nil {
		return sserr.Wrap(err, sserr.CodeInternalDatabase,
			"neo4j: failed to close driver")
	}
	return nil
}

func stringValue(rec *neo4j.Record, key string) (string, error) {
	raw, ok := rec.Get(key)
	if !ok {
		return "", sserr.Newf(sserr.CodeInternalDatabase,
			"neo4j: record has no %q column", key)
	}
	v, ok := raw.(string)
	if !ok {
		return "", sserr.Newf(sserr.CodeInternalDatabase,
			"neo4j: column %q has type %T, want string", key, raw)
	}
	return v, nil
}

func (s *Store) startSpan(ctx context.Context, op, cypher string) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "neo4j."+op,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "neo4j"),
		attribute.String("db.name", s.config.Database),
		attribute.String("db.statement", truncateStatement(cypher)),
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

// wrapError maps driver errors to platform errors. A deadline becomes
// [sserr.CodeTimeoutDatabase]; everything else is
// [sserr.CodeInternalDatabase].
func wrapError(err error, message string) *sserr.Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
