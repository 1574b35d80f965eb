/*
policies.go - Policy Registry (vacation-type catalog)

PURPOSE:
  Read-only lookup of per-type leave rules by code. The Workflow Engine
  consults it before any balance mutation to decide duration, quota,
  overlap and documentation requirements.

LIFECYCLE:
  The catalog is configuration. It is seeded into vacation_types once (when
  the table is empty), loaded into memory at startup, and only changes by a
  configuration change followed by Load. Request processing never mutates it.

DEFAULT CATALOG:
  factory.DefaultCatalog() ships the nine standard types:
    annual            deducts regular balance
    emergency         uses emergency balance, max 3 days/request, 12 days/year
    maternity_single  fixed 98 days, documentation required
    maternity_twins   fixed 112 days, documentation required
    marriage          fixed 14 days, once per lifetime
    hajj              fixed 20 days, once per lifetime
    bereavement_d1    fixed 7 days
    bereavement_d2    fixed 3 days
    sick              documentation required

SEE ALSO:
  - factory/catalog.go: YAML/JSON catalog parsing
  - workflow.go: the only consumer of policy flags
*/
package leave

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/leave-engine/generic"
)

// Registry is safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	types map[string]VacationType
}

// NewRegistry builds a registry from an in-memory catalog.
func NewRegistry(types ...VacationType) *Registry {
	r := &Registry{types: make(map[string]VacationType, len(types))}
	for _, t := range types {
		r.types[t.Code] = t
	}
	return r
}

// GetPolicy returns the rules for code, active or not.
func (r *Registry) GetPolicy(code string) (VacationType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.types[code]
	if !ok {
		return VacationType{}, &generic.NotFoundError{Resource: "vacation_type", Key: code}
	}
	return t, nil
}

// List returns the catalog ordered by code.
func (r *Registry) List() []VacationType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]VacationType, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Load replaces the in-memory catalog with the persisted one.
func (r *Registry) Load(ctx context.Context, store Store) error {
	var types []VacationType
	err := store.WithTx(ctx, func(tx Tx) error {
		var err error
		types, err = tx.ListVacationTypes(ctx)
		return err
	})
	if err != nil {
		return err
	}

	loaded := make(map[string]VacationType, len(types))
	for _, t := range types {
		loaded[t.Code] = t
	}

	r.mu.Lock()
	r.types = loaded
	r.mu.Unlock()
	return nil
}

// Seed writes catalog into an empty vacation_types table, then loads the
// persisted catalog. A non-empty table is left untouched. Returns the number
// of types inserted.
func (r *Registry) Seed(ctx context.Context, store Store, catalog []VacationType, at time.Time) (int, error) {
	inserted := 0
	err := store.WithTx(ctx, func(tx Tx) error {
		existing, err := tx.ListVacationTypes(ctx)
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return nil
		}
		codes := make([]string, 0, len(catalog))
		for _, t := range catalog {
			if err := tx.InsertVacationType(ctx, t); err != nil {
				return err
			}
			codes = append(codes, t.Code)
			inserted++
		}
		return writeAudit(ctx, tx, at, generic.AuditVacationTypesSeeded, TableVacationTypes, 0, SystemUser,
			map[string]any{"codes": codes})
	})
	if err != nil {
		return 0, err
	}
	return inserted, r.Load(ctx, store)
}
