package audit

import (
	"context"
	"testing"
	"time"
)

func TestNilLedgerIsNoOp(t *testing.T) {
	var l *Ledger
	if err := l.DecryptFailure(context.Background(), "c1", "kek1", "orders", 0, "bad tag", time.Now()); err != nil {
		t.Fatalf("nil ledger DecryptFailure should no-op, got %v", err)
	}
	if err := l.RotationEvent(context.Background(), "c1", "kek1", "proactive", time.Now()); err != nil {
		t.Fatalf("nil ledger RotationEvent should no-op, got %v", err)
	}
	l.Close() // must not panic on a nil receiver
}

func TestSchemaDeclaresBothTables(t *testing.T) {
	if !contains(Schema, "decrypt_failures") || !contains(Schema, "dek_rotations") {
		t.Fatalf("schema missing expected table: %s", Schema)
	}
}

func contains(s, substr string) bool {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
