package orabridge

import (
	"context"
	"strings"
	"sync"

	"github.com/semihalev/go-orabridge/nca"
)

// ObjectType is a described named object type.
type ObjectType struct {
	info nca.ObjectTypeInfo
}

// Schema returns the owning schema.
func (t *ObjectType) Schema() string { return t.info.Schema }

// Name returns the type name.
func (t *ObjectType) Name() string { return t.info.Name }

// FullName returns SCHEMA.NAME, or NAME when the schema is unknown.
func (t *ObjectType) FullName() string {
	if t.info.Schema == "" {
		return t.info.Name
	}
	return t.info.Schema + "." + t.info.Name
}

// Attributes returns the attribute descriptions in declaration order.
func (t *ObjectType) Attributes() []nca.ObjectAttr {
	return append([]nca.ObjectAttr(nil), t.info.Attributes...)
}

// New returns an instance with the given attribute values.
func (t *ObjectType) New(attrs map[string]any) *Object {
	return &Object{Type: t, Attrs: attrs}
}

// Object is an instance of a named object type. Attribute values are plain
// Go values keyed by attribute name.
type Object struct {
	Type  *ObjectType
	Attrs map[string]any
}

// TypeRegistry caches described object types by upper-cased name. Native
// type descriptors stay valid for the life of the Env.
type TypeRegistry struct {
	env *Env

	mu    sync.RWMutex
	types map[string]*ObjectType
}

func newTypeRegistry(env *Env) *TypeRegistry {
	return &TypeRegistry{env: env, types: make(map[string]*ObjectType)}
}

func typeKey(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// Lookup returns a cached type.
func (r *TypeRegistry) Lookup(name string) (*ObjectType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[typeKey(name)]
	return t, ok
}

// describe resolves name on conn, caching the result. It runs inside a
// blocking body.
func (r *TypeRegistry) describe(ec nca.ErrorContext, conn nca.Handle, name string) (*ObjectType, error) {
	if t, ok := r.Lookup(name); ok {
		return t, nil
	}
	info, err := r.env.adapter.DescribeObjectType(ec, conn, name)
	if err != nil {
		return nil, wrapf(err, "describe object type %s", name)
	}
	t := &ObjectType{info: info}
	r.mu.Lock()
	defer r.mu.Unlock()
	if cached, ok := r.types[typeKey(name)]; ok {
		return cached, nil
	}
	r.types[typeKey(name)] = t
	if full := typeKey(t.FullName()); full != typeKey(name) {
		r.types[full] = t
	}
	return t, nil
}

// GetObjectType describes a named object type.
func (c *Connection) GetObjectType(ctx context.Context, name string) (*ObjectType, error) {
	if t, ok := c.env.types.Lookup(name); ok {
		return t, nil
	}
	var typ *ObjectType
	return Run(ctx, c.env.sched, Task[*ObjectType]{
		Kind:   TaskObjectType,
		Guards: []*busyGuard{c.guard},
		Blocking: func(tc *TaskContext) error {
			conn, err := c.handle(tc)
			if err != nil {
				return err
			}
			typ, err = c.env.types.describe(tc.EC, conn, name)
			return err
		},
		Complete: func(tc *TaskContext) (*ObjectType, error) {
			return typ, nil
		},
	})
}
