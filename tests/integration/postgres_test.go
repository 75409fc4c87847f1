//go:build integration
// +build integration

package integration

import (
	"context"
	"database/sql"
	"strconv"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/storage/postgres"
)

const crmSchema = `
CREATE TABLE stores (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	city TEXT NOT NULL DEFAULT '',
	address TEXT NOT NULL DEFAULT '',
	phone TEXT NOT NULL DEFAULT '',
	is_active BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE floors (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	store_id BIGINT NOT NULL REFERENCES stores(id),
	manager_email TEXT NOT NULL DEFAULT ''
);

CREATE TABLE team_members (
	id BIGSERIAL PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	role TEXT NOT NULL
);

CREATE TABLE customers (
	id BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	phone TEXT,
	email TEXT,
	store_id TEXT,
	assigned_to TEXT,
	created_at TEXT,
	updated_at TEXT
);
`

const crmSeed = `
INSERT INTO stores (name, city, address, phone) VALUES
	('Linking Road', 'Mumbai', '12 Linking Rd', '022-4000100'),
	('MG Road', 'Bengaluru', '5 MG Rd', '080-4000200');

INSERT INTO floors (name, store_id, manager_email) VALUES
	('Ground Floor', 1, 'priya@karatlane.example'),
	('First Floor', 1, ''),
	('Ground Floor', 2, 'rahul@karatlane.example');

INSERT INTO team_members (email, role) VALUES
	('priya@karatlane.example', 'floor_manager'),
	('admin@karatlane.example', 'business_admin');
`

// setupPostgres starts a disposable PostgreSQL container and applies the
// CRM schema. Tests are skipped when no container runtime is available.
func setupPostgres(t *testing.T) *sql.DB {
	t.Helper()

	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("karat_test"),
		tcpostgres.WithUsername("karat"),
		tcpostgres.WithPassword("karat_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	_, err = db.Exec(crmSchema)
	require.NoError(t, err)
	_, err = db.Exec(crmSeed)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	})

	return db
}

func TestCRMStore_Postgres(t *testing.T) {
	db := setupPostgres(t)
	crm := postgres.NewCRMStore(db)
	ctx := context.Background()

	t.Run("list stores", func(t *testing.T) {
		got, err := crm.ListStores(ctx)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "Linking Road", got[0].Name)
		assert.Equal(t, "Bengaluru", got[1].City)
		assert.True(t, got[0].IsActive)
	})

	t.Run("list floors", func(t *testing.T) {
		got, err := crm.ListFloors(ctx)
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, 1, got[0].StoreID)
	})

	t.Run("floor by manager email", func(t *testing.T) {
		floor, err := crm.FloorByManagerEmail(ctx, "priya@karatlane.example")
		require.NoError(t, err)
		require.NotNil(t, floor)
		assert.Equal(t, "Ground Floor", floor.Name)
		assert.Equal(t, 1, floor.StoreID)
	})

	t.Run("floor by manager email absent", func(t *testing.T) {
		floor, err := crm.FloorByManagerEmail(ctx, "nobody@karatlane.example")
		require.NoError(t, err)
		assert.Nil(t, floor)
	})

	t.Run("role by email", func(t *testing.T) {
		role, err := crm.RoleByEmail(ctx, "admin@karatlane.example")
		require.NoError(t, err)
		assert.Equal(t, auth.RoleBusinessAdmin, role)
	})
}

func TestRowStore_Postgres(t *testing.T) {
	db := setupPostgres(t)
	rows := postgres.NewRowStore(db)
	ctx := context.Background()

	id, err := rows.Insert(ctx, "customers", map[string]any{
		"name":        "Asha Rao",
		"phone":       "9811000001",
		"store_id":    "1",
		"assigned_to": "u-sales",
	})
	require.NoError(t, err)
	require.Positive(t, id)

	_, err = rows.Insert(ctx, "customers", map[string]any{
		"name":     "Meera Iyer",
		"store_id": "2",
	})
	require.NoError(t, err)

	t.Run("select with store filter", func(t *testing.T) {
		got, err := rows.Select(ctx, "customers", postgres.Query{
			Filters: map[string]string{"store_id": "1"},
			OrderBy: "id",
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "Asha Rao", got[0]["name"])
	})

	t.Run("count", func(t *testing.T) {
		n, err := rows.Count(ctx, "customers", nil)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("update", func(t *testing.T) {
		ok, err := rows.Update(ctx, "customers", id, map[string]any{
			"phone": "9811000099",
		})
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := rows.Select(ctx, "customers", postgres.Query{
			Filters: map[string]string{"id": strconv.FormatInt(id, 10)},
		})
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "9811000099", got[0]["phone"])
	})

	t.Run("delete", func(t *testing.T) {
		ok, err := rows.Delete(ctx, "customers", id)
		require.NoError(t, err)
		assert.True(t, ok)

		n, err := rows.Count(ctx, "customers", nil)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})
}

func TestAuditTrail_Postgres(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	logger, err := audit.NewDBLogger(db)
	require.NoError(t, err)
	store := audit.NewDBStore(logger)

	require.NoError(t, logger.LogAuthentication(ctx,
		audit.EventTypeAuthSignIn, "u-mgr", "priya@karatlane.example",
		audit.EventStatusSuccess, "signed in"))
	require.NoError(t, logger.LogAuthentication(ctx,
		audit.EventTypeAuthSignInFailed, "u-mgr", "priya@karatlane.example",
		audit.EventStatusFailure, "bad password"))

	t.Run("search by user", func(t *testing.T) {
		events, err := store.Search(ctx, audit.SearchFilter{UserID: "u-mgr"})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})

	t.Run("search by event type", func(t *testing.T) {
		events, err := store.Search(ctx, audit.SearchFilter{
			EventTypes: []audit.EventType{audit.EventTypeAuthSignInFailed},
		})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, audit.EventStatusFailure, events[0].Status)
	})

	t.Run("cleanup keeps recent events", func(t *testing.T) {
		removed, err := store.Cleanup(ctx, audit.RetentionPolicy{RetentionDays: 30})
		require.NoError(t, err)
		assert.Zero(t, removed)

		events, err := store.Search(ctx, audit.SearchFilter{UserID: "u-mgr"})
		require.NoError(t, err)
		assert.Len(t, events, 2)
	})
}
