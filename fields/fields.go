// Package fields is the registry of translatable fields. It is the only place
// that knows which field exists on which kind of entity; the tree walk and
// the overlay store stay unaware of module types.
//
// New module types plug in with Register, without touching traversal,
// addressing or storage.
package fields

import (
	"errors"
	"fmt"
	"iter"
	"sync"

	"github.com/hazyhaar/manualtr/address"
	"github.com/hazyhaar/manualtr/doctree"
)

// Kind identifies a field owner: an entity type plus, for modules, the
// content variant.
type Kind struct {
	Entity  string
	Variant string
}

func (k Kind) String() string {
	if k.Variant == "" {
		return k.Entity
	}
	return k.Entity + "/" + k.Variant
}

// KindOf returns the owner kind of a visited entity.
func KindOf(v doctree.Visit) Kind {
	return Kind{Entity: v.EntityType, Variant: v.Variant}
}

// Field describes one translatable field of an owner kind.
type Field struct {
	Name string
	// Get returns the original value, or false when the optional field is absent.
	Get func(entity any) (string, bool)
	// Set writes value into the entity. Used to render a resolved tree.
	Set func(entity any, value string) error
	// Sanitize cleans an incoming translated value. Nil means identity.
	Sanitize func(string) string
}

// Owner groups the translatable fields of one kind, in emission order.
type Owner struct {
	Fields []Field
}

// ErrUnknownField is returned when a kind has no field of the given name.
var ErrUnknownField = errors.New("fields: unknown field")

// Registry maps owner kinds to their translatable fields.
type Registry struct {
	mu     sync.RWMutex
	owners map[Kind]Owner
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{owners: make(map[Kind]Owner)}
}

// Register declares the translatable fields of kind k, replacing any previous
// declaration.
func (r *Registry) Register(k Kind, o Owner) error {
	seen := make(map[string]bool, len(o.Fields))
	for _, f := range o.Fields {
		if f.Name == "" || f.Get == nil || f.Set == nil {
			return fmt.Errorf("fields: register %s: field %q needs a name, getter and setter", k, f.Name)
		}
		if seen[f.Name] {
			return fmt.Errorf("fields: register %s: duplicate field %q", k, f.Name)
		}
		seen[f.Name] = true
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.owners[k] = o
	return nil
}

// FieldsFor lists the field names registered for k, in emission order.
func (r *Registry) FieldsFor(k Kind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o := r.owners[k]
	names := make([]string, len(o.Fields))
	for i, f := range o.Fields {
		names[i] = f.Name
	}
	return names
}

// Lookup returns the field descriptor for (k, name).
func (r *Registry) Lookup(k Kind, name string) (Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, f := range r.owners[k].Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// Get reads field name from a visited entity. An empty original counts as
// absent: there is nothing to translate.
func (r *Registry) Get(v doctree.Visit, name string) (string, bool) {
	f, ok := r.Lookup(KindOf(v), name)
	if !ok {
		return "", false
	}
	return present(f, v.Entity)
}

func present(f Field, entity any) (string, bool) {
	orig, ok := f.Get(entity)
	if !ok || orig == "" {
		return "", false
	}
	return orig, true
}

// Set writes field name on a visited entity.
func (r *Registry) Set(v doctree.Visit, name, value string) error {
	f, ok := r.Lookup(KindOf(v), name)
	if !ok {
		return fmt.Errorf("%w: %s.%s", ErrUnknownField, KindOf(v), name)
	}
	return f.Set(v.Entity, value)
}

// Sanitize applies the field's sanitizer to value. Unknown fields pass through
// unchanged.
func (r *Registry) Sanitize(k Kind, name, value string) string {
	f, ok := r.Lookup(k, name)
	if !ok || f.Sanitize == nil {
		return value
	}
	return f.Sanitize(value)
}

// Instance is one translatable field occurrence in a document.
type Instance struct {
	Address   address.Address
	Original  string
	Kind      Kind
	OwnerType string
	OwnerID   int64
}

// AddressOf derives the stable address of field name on v. Component rows
// are addressed through their section with the component id as sub id.
func AddressOf(v doctree.Visit, name string) (address.Address, error) {
	if v.EntityType == address.EntityComponent {
		return address.New(address.EntityComponent, v.SectionID, name, v.ID)
	}
	return address.New(v.EntityType, v.ID, name, 0)
}

// Surface yields every present translatable field of snap in walk order.
// Absent optional fields and empty originals are skipped. Structure and
// addressing errors are yielded once and stop the sequence.
func (r *Registry) Surface(snap *doctree.Snapshot) iter.Seq2[Instance, error] {
	return func(yield func(Instance, error) bool) {
		for v, err := range doctree.Walk(snap) {
			if err != nil {
				yield(Instance{}, err)
				return
			}
			k := KindOf(v)
			r.mu.RLock()
			owner := r.owners[k]
			r.mu.RUnlock()
			for _, f := range owner.Fields {
				orig, ok := present(f, v.Entity)
				if !ok {
					continue
				}
				addr, err := AddressOf(v, f.Name)
				if err != nil {
					yield(Instance{}, err)
					return
				}
				in := Instance{Address: addr, Original: orig, Kind: k, OwnerType: k.String(), OwnerID: v.ID}
				if !yield(in, nil) {
					return
				}
			}
		}
	}
}
