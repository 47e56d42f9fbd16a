package reconcile

import (
	"testing"

	"github.com/google/uuid"
)

func TestEncodeScopeRef(t *testing.T) {
	sessionID := uuid.New()

	cases := []struct {
		name    string
		scope   Scope
		ref     string
		want    string
		wantErr bool
	}{
		{name: "method code", scope: ScopeMethod, ref: "CASH_MAIN", want: "CASH_MAIN"},
		{name: "inventory all", scope: ScopeInventory, ref: InventoryAll, want: "ALL"},
		{name: "session with kind", scope: ScopeCashSession, ref: CashSessionRef(sessionID, SessionClosing), want: sessionID.String() + ":closing"},
		{name: "bare session id", scope: ScopeCashSession, ref: sessionID.String(), want: sessionID.String()},
		{name: "session bad uuid", scope: ScopeCashSession, ref: "not-a-uuid:closing", wantErr: true},
		{name: "session bad kind", scope: ScopeCashSession, ref: sessionID.String() + ":midday", wantErr: true},
		{name: "unknown scope", scope: Scope("weekly"), ref: "x", wantErr: true},
		{name: "empty ref", scope: ScopeManual, ref: "  ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := EncodeScopeRef(tc.scope, tc.ref)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("EncodeScopeRef(%q, %q): expected error", tc.scope, tc.ref)
				}
				return
			}
			if err != nil {
				t.Fatalf("EncodeScopeRef(%q, %q): %v", tc.scope, tc.ref, err)
			}
			if got != tc.want {
				t.Fatalf("EncodeScopeRef(%q, %q) = %q, want %q", tc.scope, tc.ref, got, tc.want)
			}
		})
	}
}

func TestDecodeScopeRef(t *testing.T) {
	sessionID := uuid.New()

	id, kind, err := DecodeScopeRef(ScopeCashSession, CashSessionRef(sessionID, SessionOpening))
	if err != nil {
		t.Fatal(err)
	}
	if id != sessionID.String() || kind != SessionOpening {
		t.Fatalf("got (%q, %q)", id, kind)
	}

	// Legacy rows carry the bare session id; kind comes back empty.
	id, kind, err = DecodeScopeRef(ScopeCashSession, sessionID.String())
	if err != nil {
		t.Fatal(err)
	}
	if id != sessionID.String() || kind != "" {
		t.Fatalf("legacy ref: got (%q, %q)", id, kind)
	}

	if _, _, err := DecodeScopeRef(ScopeCashSession, "garbage:closing"); err == nil {
		t.Fatal("expected error for non-uuid base")
	}

	id, kind, err = DecodeScopeRef(ScopeMethod, "CASH_MAIN")
	if err != nil || id != "CASH_MAIN" || kind != "" {
		t.Fatalf("method ref: got (%q, %q, %v)", id, kind, err)
	}
}

func TestRoundTrip(t *testing.T) {
	sessionID := uuid.New()
	ref := CashSessionRef(sessionID, SessionClosing)
	encoded, err := EncodeScopeRef(ScopeCashSession, ref)
	if err != nil {
		t.Fatal(err)
	}
	id, kind, err := DecodeScopeRef(ScopeCashSession, encoded)
	if err != nil {
		t.Fatal(err)
	}
	if id != sessionID.String() || kind != SessionClosing {
		t.Fatalf("round trip lost parts: (%q, %q)", id, kind)
	}
}
