package noncecache

import "testing"

func TestCheckAndStore_RejectsReplayWithinRetention(t *testing.T) {
	c := New(60_000)
	n := []byte("0123456789ab")

	if err := c.CheckAndStore(n, 1_000_000); err != nil {
		t.Fatalf("first acceptance: %v", err)
	}
	if err := c.CheckAndStore(n, 1_005_000); err != ErrReplayDetected {
		t.Fatalf("replay within retention: err = %v, want ErrReplayDetected", err)
	}
}

func TestCheckAndStore_AcceptsAfterRetentionExpires(t *testing.T) {
	c := New(60_000)
	n := []byte("0123456789ab")

	if err := c.CheckAndStore(n, 0); err != nil {
		t.Fatal(err)
	}
	if err := c.CheckAndStore(n, 60_001); err != nil {
		t.Fatalf("expected acceptance after eviction: %v", err)
	}
}

func TestCheckAndStore_DistinctNoncesIndependent(t *testing.T) {
	c := New(60_000)
	if err := c.CheckAndStore([]byte("nonce-one-12"), 0); err != nil {
		t.Fatal(err)
	}
	if err := c.CheckAndStore([]byte("nonce-two-12"), 0); err != nil {
		t.Fatal(err)
	}
}

func TestCheckAndStore_FutureDatedEntryIsKept(t *testing.T) {
	c := New(60_000)
	n := []byte("0123456789ab")
	if err := c.CheckAndStore(n, 100_000); err != nil {
		t.Fatal(err)
	}
	// "now" moves backwards relative to the stored entry; it must not be
	// evicted as expired.
	if err := c.CheckAndStore(n, 50_000); err != ErrReplayDetected {
		t.Fatalf("err = %v, want ErrReplayDetected", err)
	}
}

func TestNew_NonPositiveRetentionUsesDefault(t *testing.T) {
	c := New(0)
	if c.retentionMS != DefaultRetentionMS {
		t.Fatalf("retentionMS = %d, want %d", c.retentionMS, DefaultRetentionMS)
	}
}
