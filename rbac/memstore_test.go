package rbac

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemStoreDefaultsSeedSystemRoles(t *testing.T) {
	store := NewMemStoreWithDefaults("admin", "user")
	ctx := context.Background()

	admin, err := store.GetRole(ctx, "admin")
	if err != nil {
		t.Fatalf("get admin: %v", err)
	}
	if !admin.IsSystem || len(admin.Grants) != 0 {
		t.Fatalf("unexpected admin role: %+v", admin)
	}

	user, err := store.GetRole(ctx, "USER")
	if err != nil {
		t.Fatalf("case-insensitive get: %v", err)
	}
	if !user.IsSystem || len(user.Grants) != 2 {
		t.Fatalf("unexpected default role: %+v", user)
	}
	for _, grant := range user.Grants {
		if grant.Resource != "profile" || grant.Condition == nil {
			t.Fatalf("unexpected grant: %+v", grant)
		}
	}
}

func TestMemStoreCreateAndDuplicate(t *testing.T) {
	store := NewMemStore()
	ctx := context.Background()

	created, err := store.CreateRole(ctx, &Role{Name: "Auditor"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated role id")
	}

	if _, err := store.CreateRole(ctx, &Role{Name: "auditor"}); !errors.Is(err, ErrExists) {
		t.Fatalf("duplicate: got %v, want ErrExists", err)
	}
	if _, err := store.CreateRole(ctx, &Role{Name: "  "}); err == nil {
		t.Fatal("expected error for blank name")
	}
	if _, err := store.GetRole(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing role: got %v, want ErrNotFound", err)
	}
}

func TestMemStoreReturnsClones(t *testing.T) {
	store := NewMemStoreWithDefaults("admin", "user")
	ctx := context.Background()

	role, err := store.GetRole(ctx, "user")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	// Mutating the returned value must not leak into the store.
	role.Grants[0].Action = "delete"
	role.Grants[0].Condition.Field = "tampered"
	role.Description = "tampered"

	again, err := store.GetRole(ctx, "user")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if again.Grants[0].Action != "read" || again.Grants[0].Condition.Field != "user_id" {
		t.Fatalf("store mutated through returned clone: %+v", again.Grants[0])
	}
	if again.Description == "tampered" {
		t.Fatal("description mutated through returned clone")
	}
}

func TestMemStoreGrantsForRolesAggregatesAndSkipsUnknown(t *testing.T) {
	store := NewMemStoreWithDefaults("admin", "user")
	ctx := context.Background()

	if _, err := store.CreateRole(ctx, &Role{
		Name:   "auditor",
		Grants: []Grant{{Action: "read", Resource: "user"}},
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	grants, err := store.GrantsForRoles(ctx, []string{"user", "auditor", "ghost"})
	if err != nil {
		t.Fatalf("grants: %v", err)
	}
	if len(grants) != 3 {
		t.Fatalf("expected 3 aggregated grants, got %d", len(grants))
	}
}

func TestMemStoreListRoles(t *testing.T) {
	store := NewMemStoreWithDefaults("admin", "user")
	ctx := context.Background()

	roles, err := store.ListRoles(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(roles))
	}
}

func TestMemStoreConcurrentAccess(t *testing.T) {
	store := NewMemStoreWithDefaults("admin", "user")
	ctx := context.Background()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				_, _ = store.GetRole(ctx, "user")
				_, _ = store.GrantsForRoles(ctx, []string{"user", "admin"})
				_ = store.SetRoleGrants(ctx, "user", []Grant{
					{Action: "read", Resource: "profile", Condition: OwnerEquals("user_id")},
					{Action: "update", Resource: "profile", Condition: OwnerEquals("user_id")},
				})
			}
		}(w)
	}
	wg.Wait()

	role, err := store.GetRole(ctx, "user")
	if err != nil {
		t.Fatalf("get after churn: %v", err)
	}
	if len(role.Grants) != 2 {
		t.Fatalf("grants corrupted: %+v", role.Grants)
	}
}
