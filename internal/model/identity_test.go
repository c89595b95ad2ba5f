package model

import "testing"

func TestIdentityKey(t *testing.T) {
	tests := []struct {
		name string
		a, b Identity
		same bool
	}{
		{
			name: "equal inputs",
			a:    Identity{AdminID: "a1", Roles: []string{"R"}, Permissions: []string{"p"}},
			b:    Identity{AdminID: "a1", Roles: []string{"R"}, Permissions: []string{"p"}, IsSuperAdmin: true},
			same: true,
		},
		{
			name: "separator inside a role",
			a:    Identity{AdminID: "a1", Roles: []string{"x|p:y"}},
			b:    Identity{AdminID: "a1", Roles: []string{"x"}, Permissions: []string{"y"}},
		},
		{
			name: "role moved to permission",
			a:    Identity{AdminID: "a1", Roles: []string{"x"}},
			b:    Identity{AdminID: "a1", Permissions: []string{"x"}},
		},
		{
			name: "admin id absorbs a role",
			a:    Identity{AdminID: "a1r1:x"},
			b:    Identity{AdminID: "a1", Roles: []string{"x"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.a.Key() == tt.b.Key(); got != tt.same {
				t.Errorf("Key(%+v) == Key(%+v) is %v, want %v", tt.a, tt.b, got, tt.same)
			}
		})
	}
}
