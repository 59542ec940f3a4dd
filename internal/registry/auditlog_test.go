package registry

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestAuditLog(t *testing.T) *AuditLog {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	a, err := OpenAuditLog(path)
	if err != nil {
		t.Fatalf("OpenAuditLog: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestRecordAndRecentCalls(t *testing.T) {
	a := openTestAuditLog(t)

	if err := a.RecordCall(CallRecord{
		Method: "echo", PeerIP: "10.0.0.1", Failed: false,
		Duration: 5 * time.Millisecond, At: time.Now(),
	}); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}
	if err := a.RecordCall(CallRecord{
		Method: "sum", PeerIP: "10.0.0.2", Failed: true, FaultNo: 1, FaultMsg: "bad type",
		Duration: 2 * time.Millisecond, At: time.Now(),
	}); err != nil {
		t.Fatalf("RecordCall: %v", err)
	}

	recent, err := a.RecentCalls(10)
	if err != nil {
		t.Fatalf("RecentCalls: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("RecentCalls returned %d rows, want 2", len(recent))
	}
	if recent[0].Method != "sum" || !recent[0].Failed || recent[0].FaultMsg != "bad type" {
		t.Fatalf("most recent call = %+v, want the failed sum call", recent[0])
	}
}

func TestFailureRate(t *testing.T) {
	a := openTestAuditLog(t)
	for i := 0; i < 3; i++ {
		a.RecordCall(CallRecord{Method: "m", PeerIP: "p", Failed: false, At: time.Now()})
	}
	a.RecordCall(CallRecord{Method: "m", PeerIP: "p", Failed: true, At: time.Now()})

	rate, err := a.FailureRate(time.Hour)
	if err != nil {
		t.Fatalf("FailureRate: %v", err)
	}
	if rate != 0.25 {
		t.Fatalf("FailureRate = %v, want 0.25", rate)
	}
}

func TestFailureRateWithNoCallsIsZero(t *testing.T) {
	a := openTestAuditLog(t)
	rate, err := a.FailureRate(time.Hour)
	if err != nil {
		t.Fatalf("FailureRate: %v", err)
	}
	if rate != 0 {
		t.Fatalf("FailureRate with no calls = %v, want 0", rate)
	}
}
