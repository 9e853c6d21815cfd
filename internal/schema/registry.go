package schema

import (
	"fmt"
)

// Registry is the ordered set of table descriptors included in snapshots.
// Order is parent tables before children so inserts succeed even with foreign key checks on.
type Registry struct {
	descriptors []TableDescriptor
	index       map[string]int
}

// NewRegistry creates a registry from descriptors, rejecting invalid or duplicate names
func NewRegistry(descriptors ...TableDescriptor) (*Registry, error) {
	r := &Registry{
		descriptors: make([]TableDescriptor, 0, len(descriptors)),
		index:       make(map[string]int, len(descriptors)),
	}
	for _, d := range descriptors {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// DefaultRegistry returns the descriptors of the inventory/MRP schema
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultDescriptors()...)
	if err != nil {
		panic(err)
	}
	return r
}

// DefaultDescriptors lists the inventory/MRP tables in dependency order
func DefaultDescriptors() []TableDescriptor {
	id := []string{"id"}
	return []TableDescriptor{
		{Name: "suppliers", PrimaryKey: id},
		{Name: "locations", PrimaryKey: id},
		{Name: "parts", PrimaryKey: id},
		{Name: "part_suppliers", PrimaryKey: []string{"part_id", "supplier_id"}},
		{Name: "bill_of_materials", PrimaryKey: id},
		{Name: "inventory_items", PrimaryKey: id},
		{Name: "stock_movements", PrimaryKey: id},
		{Name: "purchase_orders", PrimaryKey: id},
		{Name: "purchase_order_lines", PrimaryKey: id},
		{Name: "sales_orders", PrimaryKey: id},
		{Name: "sales_order_lines", PrimaryKey: id},
		{Name: "work_orders", PrimaryKey: id},
		{Name: "picking_lists", PrimaryKey: id},
		{Name: "picking_list_items", PrimaryKey: id},
		{Name: "app_settings", PrimaryKey: []string{"setting_key"}},
	}
}

// Register appends a descriptor
func (r *Registry) Register(d TableDescriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if _, exists := r.index[d.Name]; exists {
		return fmt.Errorf("table %s registered twice", d.Name)
	}
	r.index[d.Name] = len(r.descriptors)
	r.descriptors = append(r.descriptors, d)
	return nil
}

// Lookup returns the descriptor for a table
func (r *Registry) Lookup(name string) (TableDescriptor, bool) {
	idx, ok := r.index[name]
	if !ok {
		return TableDescriptor{}, false
	}
	return r.descriptors[idx], true
}

// Descriptors returns a copy of the descriptors in registration order
func (r *Registry) Descriptors() []TableDescriptor {
	out := make([]TableDescriptor, len(r.descriptors))
	copy(out, r.descriptors)
	return out
}

// Len returns the number of registered tables
func (r *Registry) Len() int {
	return len(r.descriptors)
}
