package filedb

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Registry maps names to *Datastore instances sharing a directory and a set
// of base construction options, the way the teacher's Session/DB/Collection
// hierarchy (modern_session.go, compatibility.go) lets one process address
// many named collections. Unlike the teacher, there is no network session
// underneath: each name simply gets its own log file inside Dir.
type Registry struct {
	dir  string
	base Config

	mu          sync.Mutex
	collections map[string]*Datastore
}

// NewRegistry creates a Registry rooted at dir. base supplies the
// construction options shared by every collection opened through C
// (TimestampData, Hooks, CorruptAlertThreshold, CompareStrings,
// AutocompactionIntervalMs, Logger); its Filename and Autoload are ignored
// and overridden per collection.
func NewRegistry(dir string, base Config) *Registry {
	return &Registry{dir: dir, base: base, collections: map[string]*Datastore{}}
}

// C returns the named collection, opening (and autoloading) it on first
// use. Subsequent calls with the same name return the same *Datastore.
func (r *Registry) C(name string) (*Collection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ds, ok := r.collections[name]; ok {
		return ds, nil
	}

	cfg := r.base
	cfg.Filename = filepath.Join(r.dir, fmt.Sprintf("%s.db", name))
	cfg.Autoload = true

	ds, err := New(cfg)
	if err != nil {
		return nil, err
	}
	r.collections[name] = ds
	return ds, nil
}

// Close stops autocompaction on every opened collection.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ds := range r.collections {
		ds.StopAutocompaction()
	}
}
