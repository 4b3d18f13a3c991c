package helpers

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/hbomb79/Trove/internal/database"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/gommon/random"
	"github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	User         = "postgres"
	Password     = "postgres"
	MasterDBName = "TROVE_DB"
)

var dbManager = &databaseManager{}

// databaseManager is an internal test helper which facilitates
// the templating of a single 'master' database in a shared postgresql
// docker instance. This allows tests to use individual databases without
// needing to create multiple instances of docker. This manager will:
//   - automatically spawn the container,
//   - migrate the master database using Trove's embedded migrations,
//   - mark the master database as a template, and,
//   - facilitate provisioning of new databases based off that master database.
//
// The container is removed by the testcontainers reaper once the test
// binary exits.
type databaseManager struct {
	sync.Mutex
	host       string
	port       string
	connection *sqlx.DB
	spawnErr   error
}

// NewDatabase provisions a fresh, fully migrated database for the test
// and returns a connection to it. Tests calling this helper are skipped
// when running with -short, or when a Postgres container cannot be
// started (e.g. Docker is not available).
func NewDatabase(t *testing.T) *sqlx.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	if err := dbManager.start(t); err != nil {
		t.Skipf("skipping database test, postgres unavailable: %s", err)
	}

	name := "trove_" + random.String(12, random.Lowercase)
	dbManager.provisionDB(t, name)

	db, err := sqlx.Open(database.SqlDialect, fmt.Sprintf(database.SqlConnectionString, dbManager.host, User, Password, name, dbManager.port))
	if err != nil {
		t.Fatalf("failed to open connection to provisioned database '%s': %s", name, err)
	}

	t.Cleanup(func() { _ = db.Close() })
	return db
}

func (manager *databaseManager) start(t *testing.T) error {
	manager.Lock()
	defer manager.Unlock()

	if manager.connection != nil || manager.spawnErr != nil {
		return manager.spawnErr
	}

	t.Log("Initializing database management...")
	if err := manager.spawnPostgres(); err != nil {
		manager.spawnErr = err
		return err
	}

	t.Log("Migrating master database...")
	migrator := database.New()
	cfg := database.DatabaseConfig{User: User, Password: Password, Name: MasterDBName, Host: manager.host, Port: manager.port, ConnectAttempts: 5}
	if err := migrator.Connect(context.Background(), cfg); err != nil {
		manager.spawnErr = fmt.Errorf("failed to migrate master database: %w", err)
		return manager.spawnErr
	}
	_ = migrator.Close()

	// Template databases must not have any open connections when they are
	// cloned, so management operations are performed from the default DB.
	conn, err := sqlx.Open(database.SqlDialect, fmt.Sprintf(database.SqlConnectionString, manager.host, User, Password, "postgres", manager.port))
	if err != nil {
		manager.spawnErr = err
		return err
	}

	if _, err := conn.Exec(fmt.Sprintf(`ALTER DATABASE "%s" WITH is_template TRUE`, MasterDBName)); err != nil {
		manager.spawnErr = fmt.Errorf("failed to mark master database as template: %w", err)
		return manager.spawnErr
	}

	manager.connection = conn
	t.Log("Database management initialised!")
	return nil
}

func (manager *databaseManager) provisionDB(t *testing.T, databaseName string) {
	manager.Lock()
	defer manager.Unlock()

	_, err := manager.connection.Exec(fmt.Sprintf(`CREATE DATABASE "%s" TEMPLATE "%s"`, databaseName, MasterDBName))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "42P04" {
			t.Logf("Database '%s' already provisioned. Reusing database", databaseName)
			return
		}

		t.Fatalf("failed to provision database '%s' based on template database '%s': (%T) %s", databaseName, MasterDBName, err, err)
	}
}

func (manager *databaseManager) spawnPostgres() (err error) {
	// testcontainers panics when no docker host can be found
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to start container: %v", r)
		}
	}()

	ctx := context.Background()
	postgresC, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("docker.io/postgres:14.1-alpine"),
		postgres.WithDatabase(MasterDBName),
		postgres.WithUsername(User),
		postgres.WithPassword(Password),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
		testcontainers.WithHostConfigModifier(func(hostConfig *container.HostConfig) {
			hostConfig.Tmpfs = map[string]string{"/var/lib/postgresql/data": "rw"}
		}),
	)
	if err != nil {
		return fmt.Errorf("failed to start container: %w", err)
	}

	host, err := postgresC.Host(ctx)
	if err != nil {
		return err
	}

	port, err := postgresC.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return err
	}

	manager.host = host
	manager.port = port.Port()
	return nil
}
