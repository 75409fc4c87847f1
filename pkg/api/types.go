package api

import (
	"context"
	"io"

	"github.com/karatlane/karat/pkg/identity"
	"github.com/karatlane/karat/pkg/scope"
	"github.com/karatlane/karat/pkg/storage/postgres"
)

// CRM tables served by the generic record handlers.
const (
	tableCustomers     = "customers"
	tableProducts      = "products"
	tableEscalations   = "escalations"
	tableAnnouncements = "announcements"
)

// Rows is the row-store surface the handlers consume.
type Rows interface {
	Select(ctx context.Context, table string, q postgres.Query) ([]map[string]any, error)
	Count(ctx context.Context, table string, filters map[string]string) (int, error)
	Insert(ctx context.Context, table string, values map[string]any) (int64, error)
	Update(ctx context.Context, table string, id int64, values map[string]any) (bool, error)
	Delete(ctx context.Context, table string, id int64) (bool, error)
}

// Media stores uploaded binary content, keyed by path.
type Media interface {
	Put(ctx context.Context, key string, content io.Reader, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// SessionState is the slice of the auth state store the server reads.
type SessionState interface {
	Snapshot() identity.Snapshot
}

// SignInRequest is the credential payload for POST /auth/signin.
type SignInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SessionResponse describes the caller's authentication state.
type SessionResponse struct {
	Authenticated bool   `json:"authenticated"`
	Loading       bool   `json:"loading"`
	Hydrated      bool   `json:"hydrated"`
	UserID        string `json:"user_id,omitempty"`
	Email         string `json:"email,omitempty"`
	Role          string `json:"role,omitempty"`
	StoreID       string `json:"store_id,omitempty"`
	Floor         string `json:"floor,omitempty"`
	Error         string `json:"error,omitempty"`
}

// ListResponse wraps a scoped record listing.
type ListResponse struct {
	Results []scope.Record `json:"results"`
	Count   int            `json:"count"`
	Scope   scope.Type     `json:"scope"`
}

// SetStoreRequest selects the caller's active store.
type SetStoreRequest struct {
	StoreID int `json:"store_id"`
}
