package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/floors"
	"github.com/karatlane/karat/pkg/stores"
)

// CRMStore provides the typed lookups the floor and store contexts
// consume, over the same handle the row store uses.
type CRMStore struct {
	db *sql.DB
}

// NewCRMStore wraps a database handle.
func NewCRMStore(db *sql.DB) *CRMStore {
	return &CRMStore{db: db}
}

// ListStores returns all stores ordered by ID.
func (s *CRMStore) ListStores(ctx context.Context) ([]stores.Store, error) {
	ctx, span := tracer.Start(ctx, "CRMStore.ListStores")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, city, address, phone, is_active FROM stores ORDER BY id`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close()

	var out []stores.Store
	for rows.Next() {
		var st stores.Store
		var address, phone sql.NullString
		if err := rows.Scan(&st.ID, &st.Name, &st.City, &address, &phone, &st.IsActive); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		st.Address = address.String
		st.Phone = phone.String
		out = append(out, st)
	}
	return out, rows.Err()
}

// ListFloors returns all floors across stores ordered by store and ID.
func (s *CRMStore) ListFloors(ctx context.Context) ([]floors.Floor, error) {
	ctx, span := tracer.Start(ctx, "CRMStore.ListFloors")
	defer span.End()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, store_id, manager_email FROM floors ORDER BY store_id, id`)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("list floors: %w", err)
	}
	defer rows.Close()

	var out []floors.Floor
	for rows.Next() {
		var f floors.Floor
		var managerEmail sql.NullString
		if err := rows.Scan(&f.ID, &f.Name, &f.StoreID, &managerEmail); err != nil {
			return nil, fmt.Errorf("scan floor: %w", err)
		}
		f.ManagerEmail = managerEmail.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// FloorByManagerEmail returns the floor assigned to a manager, or nil
// when there is none.
func (s *CRMStore) FloorByManagerEmail(ctx context.Context, email string) (*floors.Floor, error) {
	ctx, span := tracer.Start(ctx, "CRMStore.FloorByManagerEmail")
	defer span.End()

	var f floors.Floor
	var managerEmail sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, store_id, manager_email FROM floors WHERE manager_email = $1`,
		email,
	).Scan(&f.ID, &f.Name, &f.StoreID, &managerEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("floor by manager %s: %w", email, err)
	}
	f.ManagerEmail = managerEmail.String
	return &f, nil
}

// RoleByEmail looks up the persisted team-member role for a principal
// whose session carries none. Unknown emails return an empty role.
func (s *CRMStore) RoleByEmail(ctx context.Context, email string) (auth.Role, error) {
	ctx, span := tracer.Start(ctx, "CRMStore.RoleByEmail")
	defer span.End()

	var role string
	err := s.db.QueryRowContext(ctx,
		`SELECT role FROM team_members WHERE email = $1`, email,
	).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("role by email %s: %w", email, err)
	}
	return auth.Role(role), nil
}
