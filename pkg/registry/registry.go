package registry

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

type Registry[T any] interface {
	Register(name string, item T) error
	Get(name string) (T, bool)
	List() []T
	Remove(name string) error
	Count() int
	Clear()
}

// LoadFailure records a component whose construction failed at load time.
// The registry stays usable; one bad component must not block boot.
type LoadFailure struct {
	Name string
	Err  error
	At   time.Time
}

// BaseRegistry is a concurrency-safe, id-keyed collection with explicit
// enable/disable. Disabled entries are invisible to Get/List; introspection
// uses GetAny/ListAll.
type BaseRegistry[T any] struct {
	mu       sync.RWMutex
	items    map[string]T
	disabled map[string]bool
	failures map[string]LoadFailure
}

func NewBaseRegistry[T any]() *BaseRegistry[T] {
	return &BaseRegistry[T]{
		items:    make(map[string]T),
		disabled: make(map[string]bool),
		failures: make(map[string]LoadFailure),
	}
}

func (r *BaseRegistry[T]) Register(name string, item T) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; exists {
		return fmt.Errorf("item with name '%s' already registered", name)
	}

	r.items[name] = item
	delete(r.failures, name)
	return nil
}

// Get returns the item only when it is registered and enabled.
func (r *BaseRegistry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.disabled[name] {
		var zero T
		return zero, false
	}
	item, exists := r.items[name]
	return item, exists
}

// GetAny returns the item regardless of its enabled state.
func (r *BaseRegistry[T]) GetAny(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	item, exists := r.items[name]
	return item, exists
}

// List returns the enabled items in no particular order.
func (r *BaseRegistry[T]) List() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]T, 0, len(r.items))
	for name, item := range r.items {
		if r.disabled[name] {
			continue
		}
		items = append(items, item)
	}
	return items
}

// ListAll returns every registered item, disabled ones included.
func (r *BaseRegistry[T]) ListAll() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := make([]T, 0, len(r.items))
	for _, item := range r.items {
		items = append(items, item)
	}
	return items
}

// Names returns the sorted names of enabled items.
func (r *BaseRegistry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.items))
	for name := range r.items {
		if r.disabled[name] {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *BaseRegistry[T]) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; !exists {
		return fmt.Errorf("item '%s' not found", name)
	}

	delete(r.items, name)
	delete(r.disabled, name)
	return nil
}

// Count reports the number of enabled items.
func (r *BaseRegistry[T]) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for name := range r.items {
		if !r.disabled[name] {
			n++
		}
	}
	return n
}

func (r *BaseRegistry[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = make(map[string]T)
	r.disabled = make(map[string]bool)
	r.failures = make(map[string]LoadFailure)
}

func (r *BaseRegistry[T]) Enable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; !exists {
		return fmt.Errorf("item '%s' not found", name)
	}
	delete(r.disabled, name)
	return nil
}

func (r *BaseRegistry[T]) Disable(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[name]; !exists {
		return fmt.Errorf("item '%s' not found", name)
	}
	r.disabled[name] = true
	return nil
}

func (r *BaseRegistry[T]) IsEnabled(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.items[name]
	return exists && !r.disabled[name]
}

// RecordFailure notes a component that could not be constructed.
func (r *BaseRegistry[T]) RecordFailure(name string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.failures[name] = LoadFailure{Name: name, Err: err, At: time.Now()}
}

// Failures returns load failures sorted by name.
func (r *BaseRegistry[T]) Failures() []LoadFailure {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]LoadFailure, 0, len(r.failures))
	for _, f := range r.failures {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var _ Registry[any] = (*BaseRegistry[any])(nil)
