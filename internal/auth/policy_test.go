package auth

import (
	"context"
	"errors"
	"testing"
)

func TestAuthorizeChecksCurrentRoles(t *testing.T) {
	directory := newMemoryDirectory()
	user := directory.add(t, "admin", "s3cret", adminRole)
	engine := NewEngine(directory)

	decision, err := engine.Authorize(context.Background(), "ADMIN", user.ID)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if !decision.Allowed() {
		t.Fatalf("expected allow, got deny: %s", decision.Reason())
	}

	// Case-insensitive match, same as the directory treats role names.
	decision, err = engine.Authorize(context.Background(), "admin", user.ID)
	if err != nil || !decision.Allowed() {
		t.Fatalf("expected case-insensitive allow, got %v err=%v", decision, err)
	}

	decision, err = engine.Authorize(context.Background(), "AUDITOR", user.ID)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if decision.Allowed() {
		t.Fatalf("expected deny for missing role")
	}
	if decision.Reason() == "" {
		t.Fatalf("deny must carry a reason")
	}
}

func TestAuthorizeDeniesStalePrivilege(t *testing.T) {
	directory := newMemoryDirectory()
	user := directory.add(t, "admin", "s3cret", adminRole)
	engine := NewEngine(directory)

	// The token's scope claim still says ADMIN, but the directory has
	// since revoked the role. The decision follows the directory.
	directory.setRoles(user.ID, Role{Name: "VIEWER"})

	decision, err := engine.Authorize(context.Background(), "ADMIN", user.ID)
	if err != nil {
		t.Fatalf("Authorize: %v", err)
	}
	if decision.Allowed() {
		t.Fatalf("revoked role must deny even while the old token is alive")
	}
}

func TestAuthorizeDirectoryOutage(t *testing.T) {
	directory := newMemoryDirectory()
	user := directory.add(t, "admin", "s3cret", adminRole)
	directory.err = errors.New("connection reset")
	engine := NewEngine(directory)

	decision, err := engine.Authorize(context.Background(), "ADMIN", user.ID)
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if decision.Allowed() {
		t.Fatalf("outage must never allow")
	}
}

func TestAuthorizeEmptyInputs(t *testing.T) {
	engine := NewEngine(newMemoryDirectory())
	for _, tc := range []struct{ role, principal string }{
		{"", "id-x"},
		{"ADMIN", ""},
		{"  ", "  "},
	} {
		decision, err := engine.Authorize(context.Background(), tc.role, tc.principal)
		if err != nil {
			t.Fatalf("Authorize(%q,%q): %v", tc.role, tc.principal, err)
		}
		if decision.Allowed() {
			t.Fatalf("Authorize(%q,%q) must deny", tc.role, tc.principal)
		}
	}
}

func TestOwnsResult(t *testing.T) {
	if !OwnsResult("u1", "u1") {
		t.Fatalf("owner must pass the post-check")
	}
	if OwnsResult("u1", "u2") {
		t.Fatalf("non-owner must fail the post-check")
	}
	if OwnsResult("", "") {
		t.Fatalf("empty ids never match")
	}
}
