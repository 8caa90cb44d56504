package auth

import (
	"testing"
)

func TestUserEnsureValidationStatusDefaultsToPending(t *testing.T) {
	u := &User{}

	u.EnsureValidationStatus()

	if u.ValidationStatus != ValidationPending {
		t.Fatalf("expected default status %q, got %q", ValidationPending, u.ValidationStatus)
	}
}

func TestUserEnsureValidationStatusKeepsExisting(t *testing.T) {
	u := &User{ValidationStatus: ValidationValidated}

	u.EnsureValidationStatus()

	if u.ValidationStatus != ValidationValidated {
		t.Fatalf("expected status %q to survive, got %q", ValidationValidated, u.ValidationStatus)
	}
}

func TestUserAddMetadata(t *testing.T) {
	u := &User{}

	u.AddMetadata("source", "import").AddMetadata("batch", 7)

	if u.Metadata["source"] != "import" {
		t.Fatalf("expected metadata source=import, got %v", u.Metadata["source"])
	}
	if u.Metadata["batch"] != 7 {
		t.Fatalf("expected metadata batch=7, got %v", u.Metadata["batch"])
	}
}

func TestUserTypeHelpers(t *testing.T) {
	cases := []struct {
		name    string
		input   UserType
		valid   bool
		admin   bool
		landing string
	}{
		{name: "centre", input: UserTypeCentre, valid: true, admin: false, landing: "/centre/dashboard"},
		{name: "jury", input: UserTypeJury, valid: true, admin: false, landing: "/jury/dashboard"},
		{name: "admin", input: UserTypeAdmin, valid: true, admin: true, landing: "/admin"},
		{name: "unknown", input: UserType("superuser"), valid: false, admin: false, landing: "/"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsValidUserType(tc.input); got != tc.valid {
				t.Fatalf("IsValidUserType(%q) = %t, expected %t", tc.input, got, tc.valid)
			}
			if got := IsAdminType(tc.input); got != tc.admin {
				t.Fatalf("IsAdminType(%q) = %t, expected %t", tc.input, got, tc.admin)
			}
			if got := DashboardPath(tc.input); got != tc.landing {
				t.Fatalf("DashboardPath(%q) = %q, expected %q", tc.input, got, tc.landing)
			}
		})
	}
}

func TestParseUserType(t *testing.T) {
	if got, ok := ParseUserType("jury"); !ok || got != UserTypeJury {
		t.Fatalf("ParseUserType(jury) = %q, %t", got, ok)
	}
	if _, ok := ParseUserType("root"); ok {
		t.Fatal("ParseUserType(root) should not be valid")
	}
}

func TestUserTypeRankOrdering(t *testing.T) {
	if !(userTypeRank(UserTypeCentre) < userTypeRank(UserTypeJury)) {
		t.Fatal("centre should rank below jury")
	}
	if !(userTypeRank(UserTypeJury) < userTypeRank(UserTypeAdmin)) {
		t.Fatal("jury should rank below admin")
	}
	if userTypeRank(UserType("unknown")) != 0 {
		t.Fatal("unknown types should rank below every valid type")
	}
}
