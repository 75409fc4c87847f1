package middleware

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/karatlane/karat/pkg/contextkeys"
	"github.com/karatlane/karat/pkg/httputil"
	"github.com/karatlane/karat/pkg/stores"
)

// StoreContextMiddleware adds the active store to the request context.
// Routes with a {store_id} path variable get that store; everything else
// gets the user's current selection from the store context.
func StoreContextMiddleware(storeCtx *stores.Context) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			vars := mux.Vars(r)
			if storeIDStr, ok := vars["store_id"]; ok {
				storeID, err := strconv.Atoi(storeIDStr)
				if err != nil {
					httputil.WriteBadRequest(w, "invalid store ID")
					return
				}

				store, found := lookupStore(storeCtx, storeID)
				if !found {
					httputil.WriteNotFoundError(w, "store not found")
					return
				}

				ctx := contextkeys.WithStore(r.Context(), &store)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			// No explicit store in the route; fall back to the caller's
			// own selection, never another session's.
			if principal, ok := contextkeys.Principal(r.Context()); ok && principal != nil {
				storeID := storeCtx.CurrentStoreIDFor(r.Context(), principal.ID)
				if store, found := storeCtx.StoreData(storeID); found {
					ctx := contextkeys.WithStore(r.Context(), &store)
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			if store, ok := storeCtx.CurrentStoreData(); ok {
				ctx := contextkeys.WithStore(r.Context(), &store)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func lookupStore(storeCtx *stores.Context, storeID int) (stores.Store, bool) {
	for _, store := range storeCtx.Stores() {
		if store.ID == storeID {
			return store, true
		}
	}
	return stores.Store{}, false
}

// ActiveStore retrieves the active store from the request context.
func ActiveStore(r *http.Request) (*stores.Store, bool) {
	store, ok := r.Context().Value(contextkeys.StoreKey).(*stores.Store)
	return store, ok && store != nil
}
