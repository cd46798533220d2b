//go:build integration

// Package containers starts the databases used by the state store
// integration tests.
//
// All helpers are gated behind the "integration" build tag so Docker
// dependencies stay out of unit test builds. Use them from test files
// carrying the same tag:
//
//	//go:build integration
//
// # PostgreSQL
//
// [StartPostgres] starts a PostgreSQL 16 container. Tests create the
// managed table with [ExecutionsDDL]:
//
//	result, err := containers.StartPostgres(ctx)
//	if err != nil { ... }
//	defer result.Container.Terminate(ctx)
//
//	cfg := postgres.DefaultConfig()
//	cfg.URI = postgres.Secret(result.ConnString)
//
// # Redis
//
// [StartRedis] starts a Redis 7 container:
//
//	result, err := containers.StartRedis(ctx)
//	if err != nil { ... }
//	defer result.Container.Terminate(ctx)
//
//	cfg := redis.Config{Addr: result.Addr}
//
// # Neo4j and MinIO
//
// [StartNeo4j] and [StartMinIO] back the graph catalog and the graph
// document registry:
//
//	n, err := containers.StartNeo4j(ctx)
//	cfg := neo4j.Config{URI: n.BoltURL, Username: n.Username, Password: neo4j.Secret(n.Password)}
//
//	m, err := containers.StartMinIO(ctx)
//	cfg := minio.Config{Endpoint: m.Endpoint, AccessKey: m.AccessKey, SecretKey: minio.Secret(m.SecretKey)}
package containers

import (
	"context"
	"fmt"
	"net/url"

	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

// ===========================================================================
// PostgreSQL
// ===========================================================================

// DefaultPostgresImage is the container image used for PostgreSQL
// integration tests.
const DefaultPostgresImage = "docker.io/postgres:16-alpine"

// DefaultPostgresDatabase is the database created inside the container.
const DefaultPostgresDatabase = "fsm_test"

// DefaultPostgresUser is the superuser of the container.
const DefaultPostgresUser = "testuser"

// DefaultPostgresPassword is the password of [DefaultPostgresUser]. It is
// deliberately weak and only used by ephemeral test containers.
const DefaultPostgresPassword = "testpassword"

// ExecutionsDDL creates the table the postgres store manages by default.
// The state column is nullable so records can start without a state.
const ExecutionsDDL = `CREATE TABLE IF NOT EXISTS executions (
	id TEXT PRIMARY KEY,
	status TEXT
)`

// PostgresResult holds a started PostgreSQL container and its connection
// string. The caller terminates the container:
//
//	defer result.Container.Terminate(ctx)
type PostgresResult struct {
	Container *tcpostgres.PostgresContainer

	// ConnString is a postgres:// URI with sslmode=disable, ready for
	// postgres.Config.URI.
	ConnString string
}

// StartPostgres starts a PostgreSQL 16 container. If the connection
// string cannot be retrieved the container is terminated before
// returning.
func StartPostgres(ctx context.Context) (*PostgresResult, error) {
	container, err := tcpostgres.Run(ctx,
		DefaultPostgresImage,
		tcpostgres.WithDatabase(DefaultPostgresDatabase),
		tcpostgres.WithUsername(DefaultPostgresUser),
		tcpostgres.WithPassword(DefaultPostgresPassword),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start postgres container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get connection string: %w", err)
	}

	return &PostgresResult{
		Container:  container,
		ConnString: connStr,
	}, nil
}

// ===========================================================================
// Redis
// ===========================================================================

// DefaultRedisImage is the container image used for Redis integration
// tests.
const DefaultRedisImage = "docker.io/redis:7-alpine"

// RedisResult holds a started Redis container and how to reach it.
type RedisResult struct {
	Container *tcredis.RedisContainer

	// ConnString is a redis:// URI, e.g. "redis://localhost:55679".
	ConnString string

	// Addr is the host:port part of ConnString, ready for
	// redis.Config.Addr.
	Addr string
}

// StartRedis starts an unauthenticated Redis 7 container. If the
// connection string cannot be retrieved the container is terminated
// before returning.
func StartRedis(ctx context.Context) (*RedisResult, error) {
	container, err := tcredis.Run(ctx, DefaultRedisImage)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start redis container: %w", err)
	}

	connStr, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get redis connection string: %w", err)
	}
	u, err := url.Parse(connStr)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to parse redis connection string: %w", err)
	}

	return &RedisResult{
		Container:  container,
		ConnString: connStr,
		Addr:       u.Host,
	}, nil
}

// ===========================================================================
// Neo4j
// ===========================================================================

// DefaultNeo4jImage is the container image used for Neo4j integration
// tests.
const DefaultNeo4jImage = "docker.io/neo4j:5-community"

// DefaultNeo4jUsername is the admin user. Community Edition always uses
// "neo4j".
const DefaultNeo4jUsername = "neo4j"

// DefaultNeo4jPassword is the admin password of the test container.
const DefaultNeo4jPassword = "testpassword"

// Neo4jResult holds a started Neo4j container and its credentials.
type Neo4jResult struct {
	Container *tcneo4j.Neo4jContainer

	// BoltURL is the Bolt URL, e.g. "neo4j://localhost:55681".
	BoltURL string

	Username string
	Password string
}

// StartNeo4j starts a Neo4j 5 Community container with authentication
// enabled. If the Bolt URL cannot be retrieved the container is terminated
// before returning.
func StartNeo4j(ctx context.Context) (*Neo4jResult, error) {
	container, err := tcneo4j.Run(ctx,
		DefaultNeo4jImage,
		tcneo4j.WithAdminPassword(DefaultNeo4jPassword),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start neo4j container: %w", err)
	}

	boltURL, err := container.BoltUrl(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get neo4j bolt URL: %w", err)
	}

	return &Neo4jResult{
		Container: container,
		BoltURL:   boltURL,
		Username:  DefaultNeo4jUsername,
		Password:  DefaultNeo4jPassword,
	}, nil
}

// ===========================================================================
// MinIO
// ===========================================================================

// DefaultMinIOImage is the container image used for MinIO integration
// tests.
const DefaultMinIOImage = "docker.io/minio/minio:latest"

// DefaultMinIOAccessKey and DefaultMinIOSecretKey are the root
// credentials of the test container.
const (
	DefaultMinIOAccessKey = "minioadmin"
	DefaultMinIOSecretKey = "minioadmin"
)

// MinIOResult holds a started MinIO container and its credentials.
type MinIOResult struct {
	Container *tcminio.MinioContainer

	// Endpoint is the host:port of the S3 API.
	Endpoint string

	AccessKey string
	SecretKey string
}

// StartMinIO starts a MinIO container. If the endpoint cannot be
// retrieved the container is terminated before returning.
func StartMinIO(ctx context.Context) (*MinIOResult, error) {
	container, err := tcminio.Run(ctx,
		DefaultMinIOImage,
		tcminio.WithUsername(DefaultMinIOAccessKey),
		tcminio.WithPassword(DefaultMinIOSecretKey),
	)
	if err != nil {
		return nil, fmt.Errorf("containers: failed to start minio container: %w", err)
	}

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("containers: failed to get minio endpoint: %w", err)
	}

	return &MinIOResult{
		Container: container,
		Endpoint:  endpoint,
		AccessKey: DefaultMinIOAccessKey,
		SecretKey: DefaultMinIOSecretKey,
	}, nil
}
