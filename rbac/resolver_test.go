package rbac

import (
	"context"
	"errors"
	"testing"
)

func newResolverTest(t *testing.T) (*Resolver, *MemStore) {
	t.Helper()
	store := NewMemStoreWithDefaults("admin", "user")
	return NewResolver(store, "admin"), store
}

func TestAdminRoleShortCircuits(t *testing.T) {
	resolver, _ := newResolverTest(t)
	ctx := context.Background()

	subject := Subject{UserID: "u1", Roles: []string{"Admin"}}
	ok, err := resolver.Can(ctx, subject, "delete", "anything", nil)
	if err != nil {
		t.Fatalf("can: %v", err)
	}
	if !ok {
		t.Fatal("admin role did not short-circuit")
	}
}

func TestOwnerPredicateGrants(t *testing.T) {
	resolver, _ := newResolverTest(t)
	ctx := context.Background()
	subject := Subject{UserID: "u1", Roles: []string{"user"}}

	cases := []struct {
		name     string
		action   string
		resource string
		instance map[string]any
		want     bool
	}{
		{"own profile read", "read", "profile", map[string]any{"user_id": "u1"}, true},
		{"own profile update", "update", "profile", map[string]any{"user_id": "u1"}, true},
		{"foreign profile", "read", "profile", map[string]any{"user_id": "u2"}, false},
		{"nil instance fails closed", "read", "profile", nil, false},
		{"missing field fails closed", "read", "profile", map[string]any{"owner": "u1"}, false},
		{"non-string field fails closed", "read", "profile", map[string]any{"user_id": 42}, false},
		{"unrelated resource", "read", "role", map[string]any{"user_id": "u1"}, false},
		{"unrelated action", "delete", "profile", map[string]any{"user_id": "u1"}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ok, err := resolver.Can(ctx, subject, tc.action, tc.resource, tc.instance)
			if err != nil {
				t.Fatalf("can: %v", err)
			}
			if ok != tc.want {
				t.Fatalf("got %v, want %v", ok, tc.want)
			}
		})
	}
}

func TestEmptySubjectFieldsDeny(t *testing.T) {
	resolver, _ := newResolverTest(t)
	ctx := context.Background()

	for _, subject := range []Subject{
		{UserID: "", Roles: []string{"admin"}},
		{UserID: "u1", Roles: nil},
	} {
		ok, err := resolver.Can(ctx, subject, "read", "profile", map[string]any{"user_id": "u1"})
		if err != nil {
			t.Fatalf("can: %v", err)
		}
		if ok && subject.UserID == "" {
			t.Fatal("empty user id allowed")
		}
	}

	// Empty action or resource always denies.
	subject := Subject{UserID: "u1", Roles: []string{"admin"}}
	if ok, _ := resolver.Can(ctx, subject, "", "profile", nil); ok {
		t.Fatal("empty action allowed")
	}
	if ok, _ := resolver.Can(ctx, subject, "read", "", nil); ok {
		t.Fatal("empty resource allowed")
	}
}

func TestWildcardGrants(t *testing.T) {
	resolver, store := newResolverTest(t)
	ctx := context.Background()

	if _, err := store.CreateRole(ctx, &Role{
		Name:   "auditor",
		Grants: []Grant{{Action: "read", Resource: Wildcard}},
	}); err != nil {
		t.Fatalf("create role: %v", err)
	}

	subject := Subject{UserID: "u1", Roles: []string{"auditor"}}
	for _, resource := range []string{"profile", "role", "user"} {
		ok, err := resolver.Can(ctx, subject, "read", resource, nil)
		if err != nil {
			t.Fatalf("can: %v", err)
		}
		if !ok {
			t.Fatalf("wildcard grant denied read on %s", resource)
		}
	}
	if ok, _ := resolver.Can(ctx, subject, "delete", "profile", nil); ok {
		t.Fatal("wildcard resource leaked into other actions")
	}
}

func TestRoleEditsTakeEffectImmediately(t *testing.T) {
	resolver, store := newResolverTest(t)
	ctx := context.Background()

	if _, err := store.CreateRole(ctx, &Role{
		Name:   "support",
		Grants: []Grant{{Action: "read", Resource: "user"}},
	}); err != nil {
		t.Fatalf("create role: %v", err)
	}

	subject := Subject{UserID: "u1", Roles: []string{"support"}}
	if ok, _ := resolver.Can(ctx, subject, "read", "user", nil); !ok {
		t.Fatal("initial grant denied")
	}

	// There is no grant cache: replacing the grants changes the next check.
	if err := store.SetRoleGrants(ctx, "support", nil); err != nil {
		t.Fatalf("set grants: %v", err)
	}
	if ok, _ := resolver.Can(ctx, subject, "read", "user", nil); ok {
		t.Fatal("revoked grant still allowed")
	}
}

func TestPredicateEvalUnknownKind(t *testing.T) {
	p := &Predicate{Kind: PredicateKind(99), Field: "user_id"}
	_, err := p.Eval("u1", map[string]any{"user_id": "u1"})
	if !errors.Is(err, ErrInvalidPredicate) {
		t.Fatalf("expected ErrInvalidPredicate, got %v", err)
	}

	// Nil predicates are unconditional grants.
	var nilPredicate *Predicate
	ok, err := nilPredicate.Eval("u1", nil)
	if err != nil || !ok {
		t.Fatalf("nil predicate: ok=%v err=%v", ok, err)
	}
}
