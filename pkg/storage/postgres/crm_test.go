package postgres

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/karatlane/karat/pkg/auth"
)

func TestCRMStore_ListStores(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewCRMStore(db)

	mock.ExpectQuery(`SELECT id, name, city, address, phone, is_active FROM stores ORDER BY id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "city", "address", "phone", "is_active"}).
			AddRow(1, "Flagship Store Mumbai", "Mumbai", "Linking Road", "+91-22-1111", true).
			AddRow(2, "City Centre Store Delhi", "Delhi", nil, nil, true))

	got, err := store.ListStores(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Flagship Store Mumbai", got[0].Name)
	assert.Equal(t, "Linking Road", got[0].Address)
	assert.Empty(t, got[1].Address)
	assert.Empty(t, got[1].Phone)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCRMStore_ListFloors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewCRMStore(db)

	mock.ExpectQuery(`SELECT id, name, store_id, manager_email FROM floors ORDER BY store_id, id`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "store_id", "manager_email"}).
			AddRow(1, "Ground Floor", 1, "asha@karatlane.example").
			AddRow(2, "Bridal Floor", 1, nil))

	got, err := store.ListFloors(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Ground Floor", got[0].Name)
	assert.Equal(t, "asha@karatlane.example", got[0].ManagerEmail)
	assert.Empty(t, got[1].ManagerEmail)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCRMStore_FloorByManagerEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewCRMStore(db)

	mock.ExpectQuery(`SELECT id, name, store_id, manager_email FROM floors WHERE manager_email = \$1`).
		WithArgs("asha@karatlane.example").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "store_id", "manager_email"}).
			AddRow(3, "Solitaire Floor", 2, "asha@karatlane.example"))

	floor, err := store.FloorByManagerEmail(context.Background(), "asha@karatlane.example")
	require.NoError(t, err)
	require.NotNil(t, floor)
	assert.Equal(t, 3, floor.ID)
	assert.Equal(t, 2, floor.StoreID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCRMStore_FloorByManagerEmailNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewCRMStore(db)

	mock.ExpectQuery(`SELECT id, name, store_id, manager_email FROM floors WHERE manager_email = \$1`).
		WithArgs("nobody@karatlane.example").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "store_id", "manager_email"}))

	floor, err := store.FloorByManagerEmail(context.Background(), "nobody@karatlane.example")
	require.NoError(t, err)
	assert.Nil(t, floor)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCRMStore_RoleByEmail(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	store := NewCRMStore(db)

	mock.ExpectQuery(`SELECT role FROM team_members WHERE email = \$1`).
		WithArgs("asha@karatlane.example").
		WillReturnRows(sqlmock.NewRows([]string{"role"}).AddRow("floor_manager"))

	role, err := store.RoleByEmail(context.Background(), "asha@karatlane.example")
	require.NoError(t, err)
	assert.Equal(t, auth.Role("floor_manager"), role)

	mock.ExpectQuery(`SELECT role FROM team_members WHERE email = \$1`).
		WithArgs("ghost@karatlane.example").
		WillReturnRows(sqlmock.NewRows([]string{"role"}))

	role, err = store.RoleByEmail(context.Background(), "ghost@karatlane.example")
	require.NoError(t, err)
	assert.Empty(t, role)

	assert.NoError(t, mock.ExpectationsWereMet())
}
