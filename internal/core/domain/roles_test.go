package domain

import "testing"

func TestDefaultRoleRegistry_BuiltIns(t *testing.T) {
	r := DefaultRoleRegistry()

	for _, role := range []RoleName{RoleSiteAdmin, RoleFolderAdmin, RoleEditor, RoleAuthor, RoleReader, RoleSubmitter, RoleNoPermissions} {
		if !r.Known(role) {
			t.Fatalf("built-in role %s not registered", role)
		}
	}

	if perms := r.Permissions(RoleNoPermissions); len(perms) != 0 {
		t.Fatalf("no-permissions role must grant nothing, got %v", perms)
	}

	reader := r.Permissions(RoleReader)
	if len(reader) != 1 || reader[0] != PermRead {
		t.Fatalf("reader role should grant exactly read, got %v", reader)
	}
}

func TestRoleRegistry_UnknownRoleGrantsNothing(t *testing.T) {
	r := DefaultRoleRegistry()
	if perms := r.Permissions(RoleName("nonexistent")); perms != nil {
		t.Fatalf("unknown role granted %v", perms)
	}
}

func TestRoleRegistry_Union(t *testing.T) {
	r := DefaultRoleRegistry()

	perms := r.Union([]RoleName{RoleReader, RoleSubmitter, RoleReader})

	if len(perms) != 2 {
		t.Fatalf("expected 2 distinct permissions, got %v", perms)
	}
	// Union output is sorted.
	if perms[0] != PermInsert || perms[1] != PermRead {
		t.Fatalf("expected sorted [insert read], got %v", perms)
	}
}

func TestRoleRegistry_PermissionsCopyIsSafe(t *testing.T) {
	r := DefaultRoleRegistry()
	perms := r.Permissions(RoleEditor)
	perms[0] = Permission("tampered")

	if r.Permissions(RoleEditor)[0] == "tampered" {
		t.Fatal("registry leaked its internal slice")
	}
}
