package apphost

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"slices"
	"sync"
)

// Resolver looks up services by type. Both *Container and *Scope implement it.
type Resolver interface {
	// ResolveType returns the service registered for t.
	ResolveType(t reflect.Type) (any, error)

	// Contains reports whether a service is registered for t.
	Contains(t reflect.Type) bool
}

type serviceEntry struct {
	typ     reflect.Type
	scope   ServiceScope
	factory func(Resolver) (any, error)
	// borrowed instances are closed by their owner, not the container.
	borrowed bool

	mu       sync.Mutex
	created  bool
	instance any
}

// Container is the service registry modules fill during ConfigureServices and read from
// their lifecycle hooks. Services are keyed by their static type.
type Container struct {
	mu      sync.RWMutex
	entries map[reflect.Type]*serviceEntry
	created []any
	closed  bool
}

// NewContainer creates an empty container.
func NewContainer() *Container {
	return &Container{entries: make(map[reflect.Type]*serviceEntry)}
}

// Register adds an existing instance as a singleton for T. The container does not close
// instances it did not create.
func Register[T any](c *Container, instance T) error {
	t := reflect.TypeFor[T]()
	if isNilValue(instance) {
		return fmt.Errorf("%w: %s", ErrServiceNil, t)
	}
	return c.add(&serviceEntry{typ: t, scope: ServiceScopeSingleton, created: true, instance: instance})
}

// RegisterFactory adds a factory for T with the given lifetime. Instances created by the
// factory that implement io.Closer (or Close()) are closed with their owner.
func RegisterFactory[T any](c *Container, scope ServiceScope, factory func(Resolver) (T, error)) error {
	if !scope.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidServiceScope, scope)
	}
	return c.add(&serviceEntry{
		typ:   reflect.TypeFor[T](),
		scope: scope,
		factory: func(r Resolver) (any, error) {
			return factory(r)
		},
	})
}

// RegisterBorrowed adds a lazily created singleton for T that the container never
// closes. Use it to expose a resource whose lifetime a module manages itself, such as a
// client closed in ApplicationStopped.
func RegisterBorrowed[T any](c *Container, factory func(Resolver) (T, error)) error {
	return c.add(&serviceEntry{
		typ:      reflect.TypeFor[T](),
		scope:    ServiceScopeSingleton,
		borrowed: true,
		factory: func(r Resolver) (any, error) {
			return factory(r)
		},
	})
}

// Resolve returns the service registered for T.
func Resolve[T any](r Resolver) (T, error) {
	var zero T
	t := reflect.TypeFor[T]()
	v, err := r.ResolveType(t)
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, fmt.Errorf("%w: %s", ErrServiceNil, t)
	}
	typed, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %T is not assignable to %s", ErrServiceNotFound, v, t)
	}
	return typed, nil
}

// MustResolve is like Resolve but panics on error.
func MustResolve[T any](r Resolver) T {
	v, err := Resolve[T](r)
	if err != nil {
		panic(err)
	}
	return v
}

// Has reports whether a service is registered for T.
func Has[T any](r Resolver) bool {
	return r.Contains(reflect.TypeFor[T]())
}

func (c *Container) add(e *serviceEntry) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrScopeClosed
	}
	if _, exists := c.entries[e.typ]; exists {
		return fmt.Errorf("%w: %s", ErrServiceAlreadyRegistered, e.typ)
	}
	c.entries[e.typ] = e
	return nil
}

func (c *Container) lookup(t reflect.Type) (*serviceEntry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrScopeClosed
	}
	e, ok := c.entries[t]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, t)
	}
	return e, nil
}

// Contains implements Resolver.
func (c *Container) Contains(t reflect.Type) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[t]
	return ok
}

// ResolveType implements Resolver.
func (c *Container) ResolveType(t reflect.Type) (any, error) {
	e, err := c.lookup(t)
	if err != nil {
		return nil, err
	}
	switch e.scope {
	case ServiceScopeSingleton:
		return c.singleton(e)
	case ServiceScopeTransient:
		return e.factory(c)
	default:
		return nil, fmt.Errorf("%w: %s", ErrScopedServiceFromRoot, t)
	}
}

// singleton creates the instance on first successful resolution. A failed factory call
// is retried on the next resolution.
func (c *Container) singleton(e *serviceEntry) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.created {
		return e.instance, nil
	}
	instance, err := e.factory(c)
	if err != nil {
		return nil, err
	}
	e.instance, e.created = instance, true
	if e.borrowed {
		return instance, nil
	}
	c.mu.Lock()
	c.created = append(c.created, instance)
	c.mu.Unlock()
	return instance, nil
}

// CreateScope starts a unit of work. Scoped services resolved through it live until the
// scope is closed.
func (c *Container) CreateScope() *Scope {
	return &Scope{root: c, instances: make(map[reflect.Type]any)}
}

// Close closes singletons created by factories, most recent first. Further resolution
// fails with ErrScopeClosed.
func (c *Container) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	created := c.created
	c.created = nil
	c.mu.Unlock()

	return closeAll(created)
}

// Scope is a short-lived resolution context.
type Scope struct {
	root *Container

	mu        sync.Mutex
	instances map[reflect.Type]any
	created   []any
	closed    bool
}

// Contains implements Resolver.
func (s *Scope) Contains(t reflect.Type) bool {
	return s.root.Contains(t)
}

// ResolveType implements Resolver.
func (s *Scope) ResolveType(t reflect.Type) (any, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrScopeClosed
	}
	if v, ok := s.instances[t]; ok {
		s.mu.Unlock()
		return v, nil
	}
	s.mu.Unlock()

	e, err := s.root.lookup(t)
	if err != nil {
		return nil, err
	}

	switch e.scope {
	case ServiceScopeSingleton:
		return s.root.singleton(e)
	case ServiceScopeTransient:
		v, err := e.factory(s)
		if err != nil {
			return nil, err
		}
		s.track(v)
		return v, nil
	default:
		v, err := e.factory(s)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		defer s.mu.Unlock()
		if existing, ok := s.instances[t]; ok {
			// Lost a concurrent race; keep the first instance.
			_ = closeAll([]any{v})
			return existing, nil
		}
		s.instances[t] = v
		s.created = append(s.created, v)
		return v, nil
	}
}

func (s *Scope) track(v any) {
	s.mu.Lock()
	s.created = append(s.created, v)
	s.mu.Unlock()
}

// Close closes scoped and transient instances created through the scope, most recent
// first. It is safe to call more than once.
func (s *Scope) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	created := s.created
	s.created = nil
	s.instances = nil
	s.mu.Unlock()

	return closeAll(created)
}

type closerNoError interface {
	Close()
}

func closeAll(items []any) error {
	var errs []error
	for _, item := range slices.Backward(items) {
		switch c := item.(type) {
		case io.Closer:
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		case closerNoError:
			c.Close()
		}
	}
	return errors.Join(errs...)
}

func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
