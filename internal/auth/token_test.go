package auth

import "testing"

func TestSignVerifyRoundTrip(t *testing.T) {
	token := Sign("user-42", "secret")
	userID, err := Verify(token, "secret")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if userID != "user-42" {
		t.Errorf("got user %q", userID)
	}
}

func TestVerifyDottedUserID(t *testing.T) {
	// User ids may themselves contain dots; the last one separates the MAC.
	token := Sign("org.team.user", "secret")
	userID, err := Verify(token, "secret")
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if userID != "org.team.user" {
		t.Errorf("got user %q", userID)
	}
}

func TestVerifyRejects(t *testing.T) {
	cases := []struct {
		name  string
		token string
	}{
		{"no separator", "user-42"},
		{"empty user", ".deadbeef"},
		{"empty signature", "user-42."},
		{"wrong secret", Sign("user-42", "other-secret")},
		{"tampered user", "user-43." + Sign("user-42", "secret")[len("user-42."):]},
	}
	for _, tc := range cases {
		if _, err := Verify(tc.token, "secret"); err == nil {
			t.Errorf("%s: expected rejection for %q", tc.name, tc.token)
		}
	}
}
