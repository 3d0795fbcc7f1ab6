// Package directory is the tenant and warehouse registry. The scheduler fans
// synthetic events out across it, and request validation resolves tenants
// through it.
package directory

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a tenant or warehouse does not exist.
var ErrNotFound = errors.New("directory: not found")

// Tenant is one isolated customer of the platform.
type Tenant struct {
	ID        string
	Name      string
	Active    bool
	CreatedAt time.Time
}

// Warehouse is one physical site belonging to a tenant.
type Warehouse struct {
	ID        string
	TenantID  string
	Code      string
	Name      string
	Timezone  string
	Active    bool
	CreatedAt time.Time
}

// Directory lists tenants and their warehouses.
type Directory interface {
	// GetTenant returns one tenant by ID.
	GetTenant(ctx context.Context, id string) (*Tenant, error)

	// ActiveTenants returns every active tenant.
	ActiveTenants(ctx context.Context) ([]*Tenant, error)

	// ActiveWarehouses returns the tenant's active warehouses.
	ActiveWarehouses(ctx context.Context, tenantID string) ([]*Warehouse, error)
}
