package domain

import "testing"

func TestIdentityAnonKey(t *testing.T) {
	tests := []struct {
		name    string
		id      Identity
		want    string
		durable bool
	}{
		{name: "session token wins", id: Identity{SessionToken: "sess", NetworkAddress: "203.0.113.1"}, want: "sess", durable: true},
		{name: "address fallback", id: Identity{NetworkAddress: "203.0.113.1"}, want: "203.0.113.1"},
		{name: "nothing to key on", id: Identity{}, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.id.AnonKey(); got != tc.want {
				t.Fatalf("AnonKey = %q, want %q", got, tc.want)
			}
			if got := tc.id.HasDurableToken(); got != tc.durable {
				t.Fatalf("HasDurableToken = %v, want %v", got, tc.durable)
			}
		})
	}
}
