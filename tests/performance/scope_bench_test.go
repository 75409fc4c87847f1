package performance

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/karatlane/karat/pkg/auth"
	"github.com/karatlane/karat/pkg/config"
	"github.com/karatlane/karat/pkg/scope"
)

func benchRecords(n int) []scope.Record {
	records := make([]scope.Record, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, scope.Record{
			"id":          i,
			"name":        fmt.Sprintf("customer-%d", i),
			"store_id":    fmt.Sprintf("%d", i%10),
			"assigned_to": fmt.Sprintf("u-%d", i%50),
		})
	}
	return records
}

// BenchmarkResolve measures scope resolution for each role class.
func BenchmarkResolve(b *testing.B) {
	principals := []*auth.Principal{
		{ID: "u-1", Role: auth.RoleBusinessAdmin},
		{ID: "u-2", Role: auth.RoleManager, StoreID: "3"},
		{ID: "u-3", Role: auth.RoleInhouseSales, StoreID: "3"},
		{ID: "u-4", Role: "unknown"},
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope.Resolve(principals[i%len(principals)])
	}
}

// BenchmarkFilterByScope measures row filtering over a store-scoped result set.
func BenchmarkFilterByScope(b *testing.B) {
	records := benchRecords(10000)
	s := scope.Resolve(&auth.Principal{ID: "u-1", Role: auth.RoleManager, StoreID: "3"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope.FilterByScope(records, s)
	}
}

// BenchmarkFilterByScopeOwnData measures the ownership OR-match path.
func BenchmarkFilterByScopeOwnData(b *testing.B) {
	records := benchRecords(10000)
	s := scope.Resolve(&auth.Principal{ID: "u-7", Role: auth.RoleInhouseSales, StoreID: "3"})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		scope.FilterByScope(records, s)
	}
}

// BenchmarkValidateStoreAccess measures the store write check.
func BenchmarkValidateStoreAccess(b *testing.B) {
	for i := 0; i < b.N; i++ {
		scope.ValidateStoreAccess("update_customer", "3", "3", string(auth.RoleManager))
	}
}

// BenchmarkPolicyRolesFor measures route lookup against a loaded access policy.
func BenchmarkPolicyRolesFor(b *testing.B) {
	dir := b.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	doc := `routes:
  - path: /api/customers/export
    roles: [platform_admin, business_admin]
  - path: /api/customers
    roles: [platform_admin, business_admin, manager, floor_manager, inhouse_sales, tele_calling, sales_associate]
  - path: /audit
    roles: [platform_admin, business_admin]
  - path: /api
    roles: [platform_admin, business_admin, manager, floor_manager, inhouse_sales, tele_calling, sales_associate]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		b.Fatalf("write policy: %v", err)
	}

	policy, err := config.LoadAccessPolicy(path, nil)
	if err != nil {
		b.Fatalf("load policy: %v", err)
	}

	paths := []string{
		"/api/customers/export",
		"/api/customers/42",
		"/audit/events",
		"/api/stores/current",
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		policy.RolesFor(paths[i%len(paths)])
	}
}
