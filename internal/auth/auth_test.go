package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "portal-test-secret-0123"

func TestIssueAndVerify(t *testing.T) {
	v, err := NewVerifier(testSecret, "", "portal-ui")
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	token, err := v.Issue("user-42", "Kim", []string{"Admin", "viewer", "admin"}, 30*time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	p, err := v.Verify(token)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if p.UserID != "user-42" || p.Name != "Kim" {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if len(p.Roles) != 2 || !p.HasRole("admin") || !p.HasRole("viewer") {
		t.Fatalf("roles were not normalized: %v", p.Roles)
	}
}

func TestVerifyRejects(t *testing.T) {
	v, _ := NewVerifier(testSecret, "aiportal", "")
	other, _ := NewVerifier("another-secret-0123456", "aiportal", "")
	foreign, _ := NewVerifier(testSecret, "someone-else", "")
	scoped, _ := NewVerifier(testSecret, "aiportal", "portal-ui")

	wrongKey, _ := other.Issue("u", "", nil, time.Minute)
	wrongIssuer, _ := foreign.Issue("u", "", nil, time.Minute)
	noAudience, _ := v.Issue("u", "", nil, time.Minute)

	past := time.Now().Add(-time.Hour)
	v.now = func() time.Time { return past }
	expired, _ := v.Issue("u", "", nil, time.Minute)
	v.now = time.Now

	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u", "iss": "aiportal"}).SignedString(jwt.UnsafeAllowNoneSignatureType)

	cases := map[string]struct {
		verifier *Verifier
		token    string
	}{
		"empty":            {v, " "},
		"garbage":          {v, "not.a.jwt"},
		"wrong key":        {v, wrongKey},
		"wrong issuer":     {v, wrongIssuer},
		"expired":          {v, expired},
		"alg none":         {v, none},
		"missing audience": {scoped, noAudience},
	}
	for name, tc := range cases {
		if _, err := tc.verifier.Verify(tc.token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestNewVerifierRequiresSecret(t *testing.T) {
	if _, err := NewVerifier("short", "", ""); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestPermissions(t *testing.T) {
	viewer := Principal{UserID: "u", Roles: []string{RoleViewer}}
	operator := Principal{UserID: "u", Roles: []string{RoleOperator}}
	admin := Principal{UserID: "u", Roles: []string{RoleAdmin}}

	if !viewer.HasPermission(PermModelsRead) || viewer.HasPermission(PermModelsImport) {
		t.Fatal("viewer permissions wrong")
	}
	if !operator.HasPermission(PermApprovalsSubmit) {
		t.Fatal("operator should submit approvals")
	}
	if !admin.HasPermission("anything") {
		t.Fatal("admin should hold every permission")
	}
	if (Principal{}).HasPermission(PermModelsRead) {
		t.Fatal("no roles, no permissions")
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := context.Background()
	if _, ok := TokenFromContext(ctx); ok {
		t.Fatal("unexpected token")
	}
	ctx = ContextWithToken(ctx, "raw")
	ctx = ContextWithPrincipal(ctx, Principal{UserID: "user-1"})
	if tok, _ := TokenFromContext(ctx); tok != "raw" {
		t.Fatalf("token = %q", tok)
	}
	if id, ok := UserIDFromContext(ctx); !ok || id != "user-1" {
		t.Fatalf("user id = %q", id)
	}
	if ContextWithToken(ctx, "") != ctx {
		t.Fatal("empty token must not replace context")
	}
}
