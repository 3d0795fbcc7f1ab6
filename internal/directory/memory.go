package directory

import (
	"context"
	"sort"
	"sync"
)

// MemoryDirectory is an in-memory directory for tests and development.
type MemoryDirectory struct {
	mu         sync.RWMutex
	tenants    map[string]*Tenant
	warehouses map[string]*Warehouse
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		tenants:    make(map[string]*Tenant),
		warehouses: make(map[string]*Warehouse),
	}
}

// AddTenant registers a tenant. Test helper.
func (d *MemoryDirectory) AddTenant(t *Tenant) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *t
	d.tenants[t.ID] = &cp
}

// AddWarehouse registers a warehouse. Test helper.
func (d *MemoryDirectory) AddWarehouse(w *Warehouse) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := *w
	d.warehouses[w.ID] = &cp
}

func (d *MemoryDirectory) GetTenant(_ context.Context, id string) (*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.tenants[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (d *MemoryDirectory) ActiveTenants(_ context.Context) ([]*Tenant, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Tenant
	for _, t := range d.tenants {
		if t.Active {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (d *MemoryDirectory) ActiveWarehouses(_ context.Context, tenantID string) ([]*Warehouse, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Warehouse
	for _, w := range d.warehouses {
		if w.TenantID == tenantID && w.Active {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

var _ Directory = (*MemoryDirectory)(nil)
