// Package address derives the stable key of one translatable field instance.
//
// An Address never depends on where an entity sits in the document tree: it is
// built from persistent ids only, so reordering siblings leaves every existing
// translation reachable under the same key.
//
//	module:7:caption:          image caption of module 7
//	component:16:description:102   description of component 102 in section 16
package address

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Entity types known to the addressing scheme.
const (
	EntityDocument  = "document"
	EntitySection   = "section"
	EntityModule    = "module"
	EntityComponent = "component"
)

// ErrAddressing is matched by every *AddressingError.
var ErrAddressing = errors.New("address: addressing error")

// AddressingError reports an entity that cannot be given a stable address,
// typically because it has no persistent id.
type AddressingError struct {
	EntityType string
	EntityID   int64
	FieldName  string
	Reason     string
}

func (e *AddressingError) Error() string {
	return fmt.Sprintf("address: %s %d field %q: %s", e.EntityType, e.EntityID, e.FieldName, e.Reason)
}

// Unwrap lets errors.Is match ErrAddressing.
func (e *AddressingError) Unwrap() error { return ErrAddressing }

// Address identifies one translatable field instance. SubID is zero when the
// owner has no repeated sub-elements.
type Address struct {
	EntityType string `json:"entity_type"`
	EntityID   int64  `json:"entity_id"`
	FieldName  string `json:"field_name"`
	SubID      int64  `json:"sub_id,omitempty"`
}

// New builds an Address and refuses entities without persistent ids.
func New(entityType string, entityID int64, fieldName string, subID int64) (Address, error) {
	a := Address{EntityType: entityType, EntityID: entityID, FieldName: fieldName, SubID: subID}
	if err := a.Validate(); err != nil {
		return Address{}, err
	}
	return a, nil
}

// Validate checks that every identity part is present. Component addresses
// require the component's own id as SubID.
func (a Address) Validate() error {
	fail := func(reason string) error {
		return &AddressingError{EntityType: a.EntityType, EntityID: a.EntityID, FieldName: a.FieldName, Reason: reason}
	}
	switch {
	case a.EntityType == "":
		return fail("missing entity type")
	case a.EntityID <= 0:
		return fail("missing persistent entity id")
	case a.FieldName == "":
		return fail("missing field name")
	case a.SubID < 0:
		return fail("negative sub id")
	case a.EntityType == EntityComponent && a.SubID == 0:
		return fail("component row without persistent id")
	}
	if strings.ContainsRune(a.EntityType, ':') || strings.ContainsRune(a.FieldName, ':') {
		return fail("reserved character ':' in identity")
	}
	return nil
}

// Key returns the canonical string form "type:id:field:sub". The sub part is
// empty when SubID is zero.
func (a Address) Key() string {
	sub := ""
	if a.SubID != 0 {
		sub = strconv.FormatInt(a.SubID, 10)
	}
	return a.EntityType + ":" + strconv.FormatInt(a.EntityID, 10) + ":" + a.FieldName + ":" + sub
}

func (a Address) String() string { return a.Key() }

// Parse reverses Key.
func Parse(key string) (Address, error) {
	parts := strings.Split(key, ":")
	if len(parts) != 4 {
		return Address{}, fmt.Errorf("address: parse %q: want 4 parts, got %d", key, len(parts))
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return Address{}, fmt.Errorf("address: parse %q: entity id: %w", key, err)
	}
	var sub int64
	if parts[3] != "" {
		sub, err = strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return Address{}, fmt.Errorf("address: parse %q: sub id: %w", key, err)
		}
	}
	return New(parts[0], id, parts[2], sub)
}
