package auth

import (
	"errors"
	"testing"
	"time"
)

func TestGenerateAndParseToken(t *testing.T) {
	secret := "test-secret"
	claims := Claims{UserID: "u1", TenantID: "t1", RoleName: RoleApprover}

	token, err := GenerateToken(secret, claims, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	parsed, err := ParseToken(secret, token)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	if parsed.UserID != claims.UserID || parsed.TenantID != claims.TenantID || parsed.RoleName != claims.RoleName {
		t.Fatalf("claims mismatch: %+v", parsed)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, err := GenerateToken("one", Claims{UserID: "u1", TenantID: "t1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("two", token); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, err := GenerateToken("s", Claims{UserID: "u1", TenantID: "t1"}, -time.Minute)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("s", token); err == nil {
		t.Fatal("expected expiry error")
	}
}

func TestParseTokenRequiresTenant(t *testing.T) {
	token, err := GenerateToken("s", Claims{UserID: "u1"}, time.Hour)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if _, err := ParseToken("s", token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestRolePermissions(t *testing.T) {
	store := RoleStore{}
	if store.HasPermission(RolePreparer, PermPayrollApprove) {
		t.Fatal("preparer must not approve")
	}
	if !store.HasPermission(RoleApprover, PermPayrollProcess) {
		t.Fatal("expected approver to process")
	}
	if store.HasPermission(RoleApprover, PermPayrollReverse) {
		t.Fatal("approver must not reverse")
	}
	if !store.HasPermission(RoleAdmin, PermPayrollReverse) {
		t.Fatal("expected admin to reverse")
	}
	if store.HasPermission("unknown", PermPayrollRead) {
		t.Fatal("unknown role must have no permissions")
	}
}
