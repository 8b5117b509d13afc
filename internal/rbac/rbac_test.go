package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		role   Role
		action Action
		want   bool
	}{
		{RoleEditor, ActionRead, true},
		{RoleEditor, ActionRevise, true},
		{RoleViewer, ActionRead, true},
		{RoleViewer, ActionRevise, false},
		{Role("ghost"), ActionRead, false},
	}
	for _, tc := range cases {
		if got := Can(tc.role, tc.action); got != tc.want {
			t.Errorf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	if Normalize("editor") != RoleEditor {
		t.Error("editor not preserved")
	}
	if Normalize("admin") != RoleViewer {
		t.Error("unknown roles must fall back to viewer")
	}
}
