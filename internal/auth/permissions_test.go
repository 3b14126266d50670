package auth

import "testing"

func TestHasPermission(t *testing.T) {
	tests := []struct {
		role Role
		perm Permission
		want bool
	}{
		{RoleViewer, PermHistoryRead, true},
		{RoleViewer, PermFilterRead, true},
		{RoleViewer, PermActivityRead, true},
		{RoleViewer, PermFilterWrite, false},
		{RoleViewer, PermPublish, false},
		{RoleViewer, PermHistoryClear, false},
		{RoleOperator, PermFilterWrite, true},
		{RoleOperator, PermRulesWrite, true},
		{RoleOperator, PermPublish, true},
		{Role("nobody"), PermHistoryRead, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.role)+"/"+string(tt.perm), func(t *testing.T) {
			if got := HasPermission(tt.role, tt.perm); got != tt.want {
				t.Errorf("HasPermission(%q, %q) = %v, want %v", tt.role, tt.perm, got, tt.want)
			}
		})
	}
}

func TestOperatorIncludesViewer(t *testing.T) {
	for _, p := range PermissionsForRole(RoleViewer) {
		if !HasPermission(RoleOperator, p) {
			t.Errorf("operator is missing viewer permission %q", p)
		}
	}
}

func TestPermissionsForRole_ReturnsCopy(t *testing.T) {
	perms := PermissionsForRole(RoleViewer)
	perms[0] = "mutated"

	if PermissionsForRole(RoleViewer)[0] == "mutated" {
		t.Error("PermissionsForRole() exposed the internal slice")
	}
	if PermissionsForRole(Role("nobody")) != nil {
		t.Error("PermissionsForRole(unknown) should be nil")
	}
}

func TestIsValidRole(t *testing.T) {
	for _, r := range ValidRoles {
		if !IsValidRole(r) {
			t.Errorf("IsValidRole(%q) = false, want true", r)
		}
	}
	if IsValidRole("admin") {
		t.Error(`IsValidRole("admin") = true, want false`)
	}
}
