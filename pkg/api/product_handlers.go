package api

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/karatlane/karat/pkg/audit"
	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/contextkeys"
	"github.com/karatlane/karat/pkg/httputil"
	"github.com/karatlane/karat/pkg/storage/postgres"
)

// Product images are capped well below typical S3 part limits; catalog
// shots are small.
const maxImageBytes = 8 << 20

// listProducts handles GET /api/products. The catalog is shared across
// stores, so no scope filtering applies; optional category and store
// queries narrow the listing.
func (s *Server) listProducts(w http.ResponseWriter, r *http.Request) {
	filters := map[string]string{}
	if category := httputil.ParseQueryString(r, "category", ""); category != "" {
		filters["category"] = category
	}
	if storeID := httputil.ParseQueryString(r, "store_id", ""); storeID != "" {
		filters["store_id"] = storeID
	}

	limit, _ := httputil.ParseQueryInt(r, "limit", defaultPageSize)
	offset, _ := httputil.ParseQueryInt(r, "offset", 0)

	records, err := s.deps.Rows.Select(r.Context(), tableProducts, postgres.Query{
		Filters: filters,
		OrderBy: "name",
		Limit:   limit,
		Offset:  offset,
	})
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"results": emptyIfNilMaps(records),
		"count":   len(records),
	})
}

// uploadProductImage handles PUT /api/products/{id}/image. The catalog
// is shared across stores, so sales roles cannot rewrite it.
func (s *Server) uploadProductImage(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIntOrError(w, r, "id")
	if !ok {
		return
	}

	principal, _ := contextkeys.Principal(r.Context())
	if principal == nil {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	if principal.Class() == auth.ClassOwnData || principal.Class() == auth.ClassNoAccess {
		httputil.WriteForbidden(w, "your role cannot change the product catalog")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		httputil.WriteBadRequest(w, "content type must be an image")
		return
	}

	key := productImageKey(id)
	body := http.MaxBytesReader(w, r.Body, maxImageBytes)
	if err := s.deps.Media.Put(r.Context(), key, body, contentType); err != nil {
		httputil.WriteInternalError(w, err)
		return
	}

	s.deps.Audit.LogDataMutation(r.Context(), audit.EventTypeDataProductImageSet,
		principal.ID, audit.ResourceTypeProduct, strconv.Itoa(id), nil, "product image replaced")

	httputil.WriteSuccessMessage(w, "image uploaded", map[string]any{"key": key})
}

// getProductImage handles GET /api/products/{id}/image.
func (s *Server) getProductImage(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathIntOrError(w, r, "id")
	if !ok {
		return
	}

	data, err := s.deps.Media.Get(r.Context(), productImageKey(id))
	if err != nil {
		httputil.WriteNotFoundError(w, "image not found")
		return
	}

	w.Header().Set("Content-Type", http.DetectContentType(data))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func productImageKey(id int) string {
	return fmt.Sprintf("products/%d/image", id)
}
