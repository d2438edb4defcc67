package launcher

import (
	"fmt"
	"sort"
	"sync"

	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step/migration"
	"github.com/tigerroll/dbmigrator/pkg/migrator/engine/step/reconcile"
)

const (
	// PassthroughDefinition binds the source columns to the write statement in select order.
	PassthroughDefinition = "passthrough"
	// ColumnsCheck compares the columns the source and destination rows share, as text.
	ColumnsCheck = "columns"
)

// Registry maps the definition keys referenced by jobs[].definition to their hooks.
// It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	migrations map[string]migration.Definition
	checks     map[string]reconcile.Check
}

// NewRegistry returns a Registry holding the built-in PassthroughDefinition and ColumnsCheck.
func NewRegistry() *Registry {
	r := &Registry{
		migrations: make(map[string]migration.Definition),
		checks:     make(map[string]reconcile.Check),
	}
	r.RegisterMigration(PassthroughDefinition, migration.Funcs{})
	r.RegisterCheck(ColumnsCheck, reconcile.Funcs{})
	return r
}

// RegisterMigration registers def under key, replacing any previous registration.
func (r *Registry) RegisterMigration(key string, def migration.Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.migrations[key] = def
}

// RegisterCheck registers check under key, replacing any previous registration.
func (r *Registry) RegisterCheck(key string, check reconcile.Check) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checks[key] = check
}

// Migration returns the definition registered under key.
func (r *Registry) Migration(key string) (migration.Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.migrations[key]
	if !ok {
		return nil, fmt.Errorf("no migration definition registered as '%s' (known: %v)", key, keys(r.migrations))
	}
	return def, nil
}

// Check returns the check registered under key.
func (r *Registry) Check(key string) (reconcile.Check, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.checks[key]
	if !ok {
		return nil, fmt.Errorf("no reconciliation check registered as '%s' (known: %v)", key, keys(r.checks))
	}
	return c, nil
}

func keys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
