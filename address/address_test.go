package address

import (
	"errors"
	"testing"
)

func TestKey_Canonical(t *testing.T) {
	cases := []struct {
		a    Address
		want string
	}{
		{Address{EntityModule, 7, "caption", 0}, "module:7:caption:"},
		{Address{EntityComponent, 16, "description", 102}, "component:16:description:102"},
		{Address{EntityDocument, 1, "title", 0}, "document:1:title:"},
	}
	for _, c := range cases {
		if got := c.a.Key(); got != c.want {
			t.Fatalf("Key() = %q, want %q", got, c.want)
		}
	}
}

func TestParse_RoundTrip(t *testing.T) {
	for _, key := range []string{"module:7:caption:", "component:16:description:102", "section:3:title:"} {
		a, err := Parse(key)
		if err != nil {
			t.Fatalf("Parse(%q): %v", key, err)
		}
		if a.Key() != key {
			t.Fatalf("round trip %q -> %q", key, a.Key())
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, key := range []string{"", "module:7:caption", "module:x:caption:", "module:7:caption:y", "module:0:caption:"} {
		if _, err := Parse(key); err == nil {
			t.Fatalf("Parse(%q): expected error", key)
		}
	}
}

func TestNew_RefusesMissingIDs(t *testing.T) {
	cases := []Address{
		{EntityModule, 0, "caption", 0},
		{EntityModule, -3, "caption", 0},
		{EntityComponent, 16, "description", 0},
		{"", 1, "title", 0},
		{EntitySection, 1, "", 0},
		{EntitySection, 1, "title", -1},
	}
	for _, c := range cases {
		_, err := New(c.EntityType, c.EntityID, c.FieldName, c.SubID)
		var ae *AddressingError
		if !errors.As(err, &ae) {
			t.Fatalf("New(%+v): want *AddressingError, got %v", c, err)
		}
		if !errors.Is(err, ErrAddressing) {
			t.Fatalf("New(%+v): errors.Is(ErrAddressing) = false", c)
		}
	}
}

func TestNew_StableAcrossCalls(t *testing.T) {
	a, err := New(EntityComponent, 16, "description", 101)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := New(EntityComponent, 16, "description", 101)
	if a != b || a.Key() != b.Key() {
		t.Fatalf("unstable address: %v vs %v", a, b)
	}
}
