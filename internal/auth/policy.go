package auth

import (
	"context"
	"errors"
	"strings"
)

// Decision is the outcome of a policy check. A deny is a normal
// outcome, not an error; callers translate it to Unauthorized or
// Forbidden at their boundary.
type Decision struct {
	allowed bool
	reason  string
}

// Allow grants the operation.
func Allow() Decision {
	return Decision{allowed: true}
}

// Deny refuses the operation with a reason for logs and audit trails.
func Deny(reason string) Decision {
	return Decision{reason: reason}
}

// Allowed reports whether the operation may proceed.
func (d Decision) Allowed() bool { return d.allowed }

// Reason returns the deny reason, empty for an allow.
func (d Decision) Reason() string { return d.reason }

// Engine evaluates role requirements against the directory. Roles are
// resolved fresh at decision time rather than trusted from a token's
// scope claim, so a role revoked after issuance takes effect on the
// next check.
type Engine struct {
	directory Directory
}

// NewEngine constructs a policy engine over the given directory.
func NewEngine(directory Directory) *Engine {
	return &Engine{directory: directory}
}

// Authorize is the pre-check: may the principal invoke an operation
// gated by requiredRole. The error is non-nil only when the directory
// itself is unreachable; a plain "no" is a Deny with a nil error.
func (e *Engine) Authorize(ctx context.Context, requiredRole, principalID string) (Decision, error) {
	requiredRole = strings.TrimSpace(requiredRole)
	if requiredRole == "" {
		return Deny("no role requirement given"), nil
	}
	if strings.TrimSpace(principalID) == "" {
		return Deny("anonymous caller"), nil
	}
	roles, err := e.directory.RolesOf(ctx, principalID)
	if err != nil {
		if errors.Is(err, ErrPrincipalNotFound) {
			return Deny("principal no longer exists"), nil
		}
		return Deny("directory unavailable"), storeUnavailable(err)
	}
	for _, r := range roles {
		if strings.EqualFold(r.Name, requiredRole) {
			return Allow(), nil
		}
	}
	return Deny("missing role " + requiredRole), nil
}

// OwnsResult is the post-check: restricts single-record reads to
// self-access. Pure equality, no I/O.
func OwnsResult(ownerID, callerID string) bool {
	if ownerID == "" || callerID == "" {
		return false
	}
	return ownerID == callerID
}
