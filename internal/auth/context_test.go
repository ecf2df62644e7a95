package auth

import (
	"context"
	"testing"
)

func TestPrincipalContextRoundtrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := PrincipalFromContext(ctx); ok {
		t.Fatalf("empty context must not yield a principal")
	}

	principal := Principal{User: &User{ID: "u1", Username: "alice"}, Roles: []Role{{Name: "VIEWER"}}}
	ctx = ContextWithPrincipal(ctx, principal)
	got, ok := PrincipalFromContext(ctx)
	if !ok || got.User.ID != "u1" {
		t.Fatalf("unexpected principal %+v ok=%v", got, ok)
	}
}

func TestTokenContextRoundtrip(t *testing.T) {
	ctx := context.Background()
	if _, ok := TokenFromContext(ctx); ok {
		t.Fatalf("empty context must not yield a token")
	}
	ctx = ContextWithToken(ctx, "raw-token")
	token, ok := TokenFromContext(ctx)
	if !ok || token != "raw-token" {
		t.Fatalf("unexpected token %q ok=%v", token, ok)
	}
}
