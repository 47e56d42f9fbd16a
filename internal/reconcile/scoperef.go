package reconcile

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// SessionKind distinguishes the opening and closing snapshots of one cash
// session.
type SessionKind string

const (
	SessionOpening SessionKind = "opening"
	SessionClosing SessionKind = "closing"
)

// InventoryAll is the scope ref covering every stock location.
const InventoryAll = "ALL"

// EncodeScopeRef produces the reference id stored on a reconciliation,
// discriminated on scope: cash-session carries a session uuid, method a
// method code, bank a payout id, inventory a location id or "ALL", manual a
// caller-supplied id.
func EncodeScopeRef(scope Scope, ref string) (string, error) {
	if !scope.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", ErrEmptyScopeRef
	}
	if scope == ScopeCashSession {
		base, _, ok := splitSessionRef(ref)
		if !ok {
			return "", fmt.Errorf("reconcile: invalid cash-session ref %q", ref)
		}
		if _, err := uuid.Parse(base); err != nil {
			return "", fmt.Errorf("reconcile: cash-session ref %q is not a session id: %w", ref, err)
		}
	}
	return ref, nil
}

// CashSessionRef builds the kind-suffixed reference id for a session
// snapshot.
func CashSessionRef(sessionID uuid.UUID, kind SessionKind) string {
	return sessionID.String() + ":" + string(kind)
}

// DecodeScopeRef splits a stored reference id back into its parts. For
// cash-session refs the kind is empty when the row predates kind suffixes.
func DecodeScopeRef(scope Scope, ref string) (id string, kind SessionKind, err error) {
	if !scope.Valid() {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownScope, scope)
	}
	if ref == "" {
		return "", "", ErrEmptyScopeRef
	}
	if scope != ScopeCashSession {
		return ref, "", nil
	}
	base, kind, ok := splitSessionRef(ref)
	if !ok {
		return "", "", fmt.Errorf("reconcile: invalid cash-session ref %q", ref)
	}
	if _, err := uuid.Parse(base); err != nil {
		return "", "", fmt.Errorf("reconcile: cash-session ref %q is not a session id: %w", ref, err)
	}
	return base, kind, nil
}

func splitSessionRef(ref string) (base string, kind SessionKind, ok bool) {
	idx := strings.IndexByte(ref, ':')
	if idx < 0 {
		return ref, "", true
	}
	switch SessionKind(ref[idx+1:]) {
	case SessionOpening, SessionClosing:
		return ref[:idx], SessionKind(ref[idx+1:]), true
	}
	return "", "", false
}
