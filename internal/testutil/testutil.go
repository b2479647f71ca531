package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/davidm/taskflow/internal/activity"
	"github.com/davidm/taskflow/internal/api"
	"github.com/davidm/taskflow/internal/auth"
	"github.com/davidm/taskflow/internal/config"
	"github.com/davidm/taskflow/internal/domain"
	"github.com/davidm/taskflow/internal/presence"
	"github.com/davidm/taskflow/internal/ratelimit"
	"github.com/davidm/taskflow/internal/repository"
	repoPostgres "github.com/davidm/taskflow/internal/repository/postgres"
	"github.com/davidm/taskflow/internal/service"
	"github.com/davidm/taskflow/internal/session"
	"github.com/davidm/taskflow/internal/websocket"
	goredis "github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcRedis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	gormPostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// TestDB manages a testcontainers PostgreSQL instance
type TestDB struct {
	Container testcontainers.Container
	DB        *gorm.DB
	DSN       string
}

// NewTestDB creates a new PostgreSQL testcontainer and returns a connection
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()

	ctx := context.Background()

	container, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("test_taskflow"),
		tcPostgres.WithUsername("test"),
		tcPostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get connection string: %v", err)
	}

	db, err := gorm.Open(gormPostgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to connect to database: %v", err)
	}

	// Run migrations
	err = db.AutoMigrate(
		&domain.User{},
		&domain.Project{},
		&domain.Task{},
	)
	if err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	testDB := &TestDB{
		Container: container,
		DB:        db,
		DSN:       dsn,
	}

	t.Cleanup(func() {
		testDB.Cleanup()
	})

	return testDB
}

// Cleanup terminates the container
func (tdb *TestDB) Cleanup() {
	if tdb.Container != nil {
		ctx := context.Background()
		tdb.Container.Terminate(ctx)
	}
}

// Truncate clears all tables for test isolation
func (tdb *TestDB) Truncate(t *testing.T) {
	t.Helper()

	tables := []string{
		"tasks",
		"projects",
		"users",
	}

	for _, table := range tables {
		if err := tdb.DB.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)).Error; err != nil {
			t.Logf("warning: failed to truncate %s: %v", table, err)
		}
	}
}

// TestRedis manages a testcontainers Redis instance
type TestRedis struct {
	Container testcontainers.Container
	Client    *goredis.Client
}

// NewTestRedis creates a new Redis testcontainer and returns a connected client
func NewTestRedis(t *testing.T) *TestRedis {
	t.Helper()

	ctx := context.Background()

	container, err := tcRedis.RunContainer(ctx, testcontainers.WithImage("redis:7-alpine"))
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	uri, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	opts, err := goredis.ParseURL(uri)
	if err != nil {
		t.Fatalf("failed to parse redis url: %v", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		t.Fatalf("failed to ping redis: %v", err)
	}

	tr := &TestRedis{
		Container: container,
		Client:    client,
	}

	t.Cleanup(func() {
		tr.Cleanup()
	})

	return tr
}

// Cleanup closes the client and terminates the container
func (tr *TestRedis) Cleanup() {
	if tr.Client != nil {
		tr.Client.Close()
	}
	if tr.Container != nil {
		ctx := context.Background()
		tr.Container.Terminate(ctx)
	}
}

// Flush clears all keys for test isolation
func (tr *TestRedis) Flush(t *testing.T) {
	t.Helper()

	if err := tr.Client.FlushAll(context.Background()).Err(); err != nil {
		t.Fatalf("failed to flush redis: %v", err)
	}
}

// TestConfig returns a configuration suitable for testing
func TestConfig() *config.Config {
	return &config.Config{
		Port:                  "0", // Random port
		Environment:           "test",
		JWTSecret:             "test-jwt-secret-key-for-testing-only",
		JWTRefreshSecret:      "test-jwt-refresh-secret-for-testing-only",
		AccessTokenTTL:        time.Hour,
		RefreshTokenTTL:       24 * time.Hour,
		SessionTTL:            24 * time.Hour,
		AuthRateLimit:         100, // Generous so ordinary tests never trip it
		AuthRateWindow:        time.Minute,
		APIRateLimit:          1000,
		APIRateWindow:         time.Minute,
		PresenceSweepInterval: time.Minute,
	}
}

// TestServer holds all components for integration testing
type TestServer struct {
	Server     *httptest.Server
	DB         *TestDB
	Redis      *TestRedis
	Repos      *repository.Repositories
	Services   *service.Services
	Hub        *websocket.Hub
	Tracker    *presence.Tracker
	Activities *activity.Log
	Sessions   *session.Store
	Tokens     *auth.TokenService
	Config     *config.Config
}

// NewTestServer creates a complete test server with all dependencies
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()

	testDB := NewTestDB(t)
	testRedis := NewTestRedis(t)
	cfg := TestConfig()

	repos := repoPostgres.NewRepositories(testDB.DB)
	sessions := session.NewStore(testRedis.Client)
	tokens := auth.NewTokenService(cfg.JWTSecret, cfg.JWTRefreshSecret, cfg.AccessTokenTTL, cfg.RefreshTokenTTL)
	limiter := ratelimit.NewLimiter(testRedis.Client)
	tracker := presence.NewTracker(testRedis.Client)

	hub := websocket.NewHub(testRedis.Client, tracker)
	go hub.Run()
	tracker.SetBroadcaster(hub)

	activities := activity.NewLog(testRedis.Client)
	activities.SetBroadcaster(hub)

	services := service.NewServices(repos, sessions, tokens, hub, activities, cfg)
	router := api.NewRouter(services, hub, activities, limiter, testDB.DB, testRedis.Client, cfg)

	server := httptest.NewServer(router)

	ts := &TestServer{
		Server:     server,
		DB:         testDB,
		Redis:      testRedis,
		Repos:      repos,
		Services:   services,
		Hub:        hub,
		Tracker:    tracker,
		Activities: activities,
		Sessions:   sessions,
		Tokens:     tokens,
		Config:     cfg,
	}

	t.Cleanup(func() {
		server.Close()
		hub.Stop()
	})

	return ts
}

// BaseURL returns the test server's base URL
func (ts *TestServer) BaseURL() string {
	return ts.Server.URL
}

// APIURL returns the full API URL for a given path
func (ts *TestServer) APIURL(path string) string {
	return fmt.Sprintf("%s/api/v1%s", ts.Server.URL, path)
}

// WebSocketURL returns the WebSocket URL with token
func (ts *TestServer) WebSocketURL(token string) string {
	wsURL := "ws" + ts.Server.URL[4:] // Replace "http" with "ws"
	return fmt.Sprintf("%s/api/v1/ws?token=%s", wsURL, token)
}
