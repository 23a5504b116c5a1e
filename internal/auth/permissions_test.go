package auth

import (
	"reflect"
	"testing"
)

func TestResolveUnionsCustomPermissions(t *testing.T) {
	r := NewResolver(nil)
	got := r.Resolve(&RoleAssignment{
		RoleTemplate:      RoleWaiter,
		CustomPermissions: []string{"payments:read", "orders:read", ""},
	})

	for _, key := range []string{"menu:read", "orders:read", "orders:write", "tables:read", "payments:read"} {
		if _, ok := got[key]; !ok {
			t.Fatalf("missing permission %q in %v", key, got)
		}
	}
	// base + custom, with the duplicated orders:read counted once and the
	// empty override dropped
	if len(got) != 5 {
		t.Fatalf("expected 5 permissions, got %d: %v", len(got), got)
	}
}

func TestResolveIdempotent(t *testing.T) {
	r := NewResolver(nil)
	a := &RoleAssignment{RoleTemplate: RoleManager, CustomPermissions: []string{"payments:write"}}

	first := r.Resolve(a)
	second := r.Resolve(a)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("resolve not idempotent: %v vs %v", first, second)
	}
}

func TestResolveUnknownTemplateIsEmpty(t *testing.T) {
	r := NewResolver(nil)
	if got := r.Resolve(&RoleAssignment{RoleTemplate: "deleted_template"}); len(got) != 0 {
		t.Fatalf("expected empty set for unknown template, got %v", got)
	}
	if got := r.Resolve(nil); len(got) != 0 {
		t.Fatalf("expected empty set for nil assignment, got %v", got)
	}
}

func TestResolveListMatchesSet(t *testing.T) {
	r := NewResolver(map[string][]string{"tester": {"a:b", "c:d"}})
	a := &RoleAssignment{RoleTemplate: "tester", CustomPermissions: []string{"c:d", "e:f"}}

	list := r.ResolveList(a)
	if len(list) != 3 {
		t.Fatalf("expected 3 permissions, got %v", list)
	}
	set := r.Resolve(a)
	for _, key := range list {
		if _, ok := set[key]; !ok {
			t.Fatalf("list/set mismatch on %q", key)
		}
	}
}
