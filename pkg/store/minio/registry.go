// Package minio keeps state machine graph documents in MinIO, so that
// services can share one versioned source of truth for their machines.
//
// Each machine is stored as a single YAML graph document named
// Prefix + machine + ".yaml" in the configured bucket. Documents are
// validated on write and rebuilt into graphs on read:
//
//	reg, err := minio.NewRegistry(ctx, cfg)
//	if err != nil { ... }
//	if err := reg.EnsureBucket(ctx); err != nil { ... }
//
//	err = minio.SaveGraph(ctx, reg, models.ExecutionMachineName, models.ExecutionGraph())
//	graph, err := minio.LoadGraph[models.ExecutionStatus](ctx, reg, models.ExecutionMachineName)
//
// For testing, use [NewFromStore] with a mock [ObjectStore].
package minio

import (
	"bytes"
	"context"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	sserr "github.com/StricklySoft/stricklysoft-fsm/pkg/errors"
	"github.com/StricklySoft/stricklysoft-fsm/pkg/fsm"
)

// tracerName is the OpenTelemetry instrumentation scope name for this package.
// It follows the Go module path convention for OTel instrumentation libraries.
const tracerName = "github.com/StricklySoft/stricklysoft-fsm/pkg/store/minio"

// documentContentType is stored with every graph document.
const documentContentType = "application/yaml"

// ObjectStore is the subset of the MinIO API used by a [Registry].
// [NewRegistry] adapts a [*minio.Client]; tests inject a mock through
// [NewFromStore].
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)

	// GetObject returns the object body. Missing objects may be reported
	// either here or by the first Read.
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error)

	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
	ListObjects(ctx context.Context, bucketName string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
}

// clientStore adapts [*minio.Client] to [ObjectStore].
type clientStore struct {
	*minio.Client
}

func (c clientStore) GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (io.ReadCloser, error) {
	obj, err := c.Client.GetObject(ctx, bucketName, objectName, opts)
	if err != nil {
		return nil, err
	}
	return obj, nil
}

var _ ObjectStore = clientStore{}

// Registry stores graph documents in a MinIO bucket. It is safe for
// concurrent use.
type Registry struct {
	store  ObjectStore
	config *Config
	tracer trace.Tracer
}

// NewRegistry validates cfg, creates a MinIO client and verifies
// connectivity with a BucketExists probe. The bucket does not need to
// exist yet; see [Registry.EnsureBucket].
//
// Error codes returned:
//   - [sserr.CodeValidation]: invalid configuration
//   - [sserr.CodeUnavailableDependency]: cannot reach MinIO
//   - [sserr.CodeInternalDatabase]: client creation failed
func NewRegistry(ctx context.Context, cfg Config) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeValidation,
			"minio: invalid configuration")
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey.Value(), ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternalDatabase,
			"minio: failed to create client")
	}
	if _, err := client.BucketExists(ctx, cfg.Bucket); err != nil {
		return nil, sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"minio: failed to connect to server")
	}

	return &Registry{
		store:  clientStore{client},
		config: &cfg,
		tracer: otel.Tracer(tracerName),
	}, nil
}

// NewFromStore creates a Registry over an existing [ObjectStore]. The
// config is not validated; nil selects [DefaultConfig].
func NewFromStore(store ObjectStore, cfg *Config) *Registry {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Registry{
		store:  store,
		config: cfg,
		tracer: otel.Tracer(tracerName),
	}
}

// Bucket returns the configured bucket name.
func (r *Registry) Bucket() string {
	return r.config.Bucket
}

// ObjectName returns the object holding the document of machine.
func (r *Registry) ObjectName(machine string) string {
	return r.config.Prefix + machine + documentSuffix
}

// EnsureBucket creates the bucket if it does not exist.
func (r *Registry) EnsureBucket(ctx context.Context) error {
	ctx, span := r.startSpan(ctx, "EnsureBucket", "BucketExists "+r.config.Bucket)
	exists, err := r.store.BucketExists(ctx, r.config.Bucket)
	if err == nil && !exists {
		err = r.store.MakeBucket(ctx, r.config.Bucket, minio.MakeBucketOptions{Region: r.config.Region})
	}
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: failed to ensure bucket "+r.config.Bucket)
	}
	return nil
}

// Put validates data as a graph document and stores it for machine,
// replacing any previous document.
//
// Error codes returned:
//   - [sserr.CodeValidationFormat]: invalid machine name or undecodable
//     document
//   - validation codes of [fsm.GraphDocument.Build] for invalid graphs
//   - [sserr.CodeInternalDatabase], [sserr.CodeTimeoutDatabase]: storage
//     failure
func (r *Registry) Put(ctx context.Context, machine string, data []byte) error {
	if err := validateMachine(machine); err != nil {
		return err
	}
	if _, err := fsm.ParseGraph[string](data); err != nil {
		return err
	}

	object := r.ObjectName(machine)
	ctx, span := r.startSpan(ctx, "Put", "PutObject "+object)
	_, err := r.store.PutObject(ctx, r.config.Bucket, object, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: documentContentType})
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: failed to put graph document "+machine)
	}
	return nil
}

// Get returns the stored document of machine.
//
// Error codes returned:
//   - [sserr.CodeNotFoundResource]: no document for machine
//   - [sserr.CodeInternalDatabase], [sserr.CodeTimeoutDatabase]: storage
//     failure
func (r *Registry) Get(ctx context.Context, machine string) ([]byte, error) {
	if err := validateMachine(machine); err != nil {
		return nil, err
	}

	object := r.ObjectName(machine)
	ctx, span := r.startSpan(ctx, "Get", "GetObject "+object)
	data, err := r.read(ctx, object)
	finishSpan(span, err)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, sserr.Wrapf(err, sserr.CodeNotFoundResource,
				"minio: graph document %s not found", machine)
		}
		return nil, wrapError(err, "minio: failed to get graph document "+machine)
	}
	return data, nil
}

func (r *Registry) read(ctx context.Context, object string) ([]byte, error) {
	rc, err := r.store.GetObject(ctx, r.config.Bucket, object, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Delete removes the document of machine. Deleting a missing document
// succeeds.
func (r *Registry) Delete(ctx context.Context, machine string) error {
	if err := validateMachine(machine); err != nil {
		return err
	}

	object := r.ObjectName(machine)
	ctx, span := r.startSpan(ctx, "Delete", "RemoveObject "+object)
	err := r.store.RemoveObject(ctx, r.config.Bucket, object, minio.RemoveObjectOptions{})
	finishSpan(span, err)
	if err != nil {
		return wrapError(err, "minio: failed to delete graph document "+machine)
	}
	return nil
}

// List returns the names of all stored machines, sorted.
func (r *Registry) List(ctx context.Context) ([]string, error) {
	ctx, span := r.startSpan(ctx, "List", "ListObjects "+r.config.Prefix)

	// A canceled listing stops the producer goroutine.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		machines []string
		err      error
	)
	for obj := range r.store.ListObjects(ctx, r.config.Bucket, minio.ListObjectsOptions{Prefix: r.config.Prefix}) {
		if obj.Err != nil {
			err = obj.Err
			break
		}
		name, ok := strings.CutPrefix(obj.Key, r.config.Prefix)
		if !ok {
			continue
		}
		name, ok = strings.CutSuffix(name, documentSuffix)
		if !ok || !machinePattern.MatchString(name) {
			continue
		}
		machines = append(machines, name)
	}
	finishSpan(span, err)
	if err != nil {
		return nil, wrapError(err, "minio: failed to list graph documents")
	}
	slices.Sort(machines)
	return machines, nil
}

// Health verifies that the bucket can be queried. A default timeout of
// [DefaultHealthTimeout] applies when ctx has no deadline.
func (r *Registry) Health(ctx context.Context) error {
	ctx, span := r.startSpan(ctx, "Health", "BucketExists "+r.config.Bucket)

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, DefaultHealthTimeout)
		defer cancel()
	}

	_, err := r.store.BucketExists(ctx, r.config.Bucket)
	finishSpan(span, err)
	if err != nil {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency,
			"minio: health check failed")
	}
	return nil
}

// Close is a no-op; the MinIO client holds no persistent connections.
func (r *Registry) Close() {}

func validateMachine(machine string) error {
	if machine == "" {
		return sserr.New(sserr.CodeValidationRequired, "minio: machine name is required")
	}
	if !machinePattern.MatchString(machine) {
		return sserr.Newf(sserr.CodeValidationFormat,
			"minio: machine name %q must match %s", machine, machinePattern)
	}
	return nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func (r *Registry) startSpan(ctx context.Context, op, statement string) (context.Context, trace.Span) {
	ctx, span := r.tracer.Start(ctx, "minio."+op,
		trace.WithSpanKind(trace.SpanKindClient),
	)
	span.SetAttributes(
		attribute.String("db.system", "minio"),
		attribute.String("db.name", r.config.Bucket),
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

// wrapError classifies a storage error. [context.DeadlineExceeded] maps
// to [sserr.CodeTimeoutDatabase]; everything else, including
// cancellation, to [sserr.CodeInternalDatabase].
func wrapError(err error, message string) *sserr.Error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return sserr.Wrap(err, sserr.CodeTimeoutDatabase, message)
	}
	return sserr.Wrap(err, sserr.CodeInternalDatabase, message)
}
