package rbac

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Mode selects how required permissions combine.
type Mode string

const (
	// ModeAll requires every listed permission.
	ModeAll Mode = "all"
	// ModeAny requires at least one listed permission.
	ModeAny Mode = "any"
)

// Verdict is the outcome of an authorization check.
type Verdict int

const (
	VerdictUnauthenticated Verdict = iota
	VerdictForbidden
	VerdictAuthorized
)

func (v Verdict) String() string {
	switch v {
	case VerdictUnauthenticated:
		return "unauthenticated"
	case VerdictForbidden:
		return "forbidden"
	case VerdictAuthorized:
		return "authorized"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Resolver computes the effective permission set of a user.
type Resolver interface {
	Resolve(ctx context.Context, userID uuid.UUID) (PermissionSet, error)
}

// DecisionRecorder observes authorization outcomes.
type DecisionRecorder interface {
	RecordDecision(mode Mode, verdict Verdict)
}

// Evaluate applies the combination rule to an already resolved set. The
// empty mode means ModeAll. A blank required name is never held.
func Evaluate(granted PermissionSet, mode Mode, required []string) Verdict {
	required = requiredPermissions(required)
	var ok bool
	switch mode {
	case ModeAny:
		ok = granted.HasAny(required)
	default:
		ok = granted.HasAll(required)
	}
	if ok {
		return VerdictAuthorized
	}
	return VerdictForbidden
}

// Authorizer answers authorization questions for principals.
type Authorizer struct {
	resolver Resolver
	recorder DecisionRecorder
}

// NewAuthorizer builds an Authorizer. recorder may be nil.
func NewAuthorizer(resolver Resolver, recorder DecisionRecorder) *Authorizer {
	return &Authorizer{resolver: resolver, recorder: recorder}
}

// Authorize returns the verdict for principal. A nil principal is
// unauthenticated and never reaches the resolver. Resolution failures are
// returned as errors, never as a verdict.
func (a *Authorizer) Authorize(ctx context.Context, principal *Principal, mode Mode, required ...string) (Verdict, error) {
	mode = normalizeMode(mode)
	if principal == nil {
		a.observe(mode, VerdictUnauthenticated)
		return VerdictUnauthenticated, nil
	}
	granted, err := a.resolver.Resolve(ctx, principal.ID)
	if err != nil {
		return VerdictForbidden, err
	}
	verdict := Evaluate(granted, mode, required)
	a.observe(mode, verdict)
	return verdict, nil
}

// Access resolves principal once for reuse across several checks, such as
// the regions of a page.
func (a *Authorizer) Access(ctx context.Context, principal *Principal) (Access, error) {
	if principal == nil {
		return Access{Resolved: true}, nil
	}
	granted, err := a.resolver.Resolve(ctx, principal.ID)
	if err != nil {
		return Access{}, err
	}
	return Access{Principal: principal, Permissions: granted, Resolved: true}, nil
}

// Check evaluates an already resolved snapshot and records the outcome.
func (a *Authorizer) Check(access Access, mode Mode, required ...string) Verdict {
	mode = normalizeMode(mode)
	verdict := access.Verdict(mode, required...)
	a.observe(mode, verdict)
	return verdict
}

func (a *Authorizer) observe(mode Mode, verdict Verdict) {
	if a.recorder != nil {
		a.recorder.RecordDecision(mode, verdict)
	}
}

// requiredPermissions trims and de-duplicates names. Blank names are kept so
// they fail the check, and case is preserved.
func requiredPermissions(perms []string) []string {
	seen := make(map[string]struct{}, len(perms))
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

func normalizeMode(mode Mode) Mode {
	if mode == ModeAny {
		return ModeAny
	}
	return ModeAll
}

// Access is a resolved snapshot of a principal's permissions for the
// duration of one request. The zero value is not yet resolved.
type Access struct {
	Principal   *Principal
	Permissions PermissionSet
	Resolved    bool
}

// Verdict evaluates required against the snapshot.
func (a Access) Verdict(mode Mode, required ...string) Verdict {
	if a.Principal == nil {
		return VerdictUnauthenticated
	}
	return Evaluate(a.Permissions, normalizeMode(mode), required)
}

// Can reports whether every required permission is held.
func (a Access) Can(required ...string) bool {
	return a.Verdict(ModeAll, required...) == VerdictAuthorized
}

// CanAny reports whether at least one required permission is held.
func (a Access) CanAny(required ...string) bool {
	return a.Verdict(ModeAny, required...) == VerdictAuthorized
}
