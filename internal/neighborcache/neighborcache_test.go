package neighborcache

import (
	"net/netip"
	"testing"
	"time"
)

func TestExistsFalseBeforeMarked(t *testing.T) {
	c := New(time.Minute)
	if c.Exists(1, netip.MustParseAddr("2001:db8::1")) {
		t.Error("Exists true before any MarkPresent")
	}
}

func TestMarkPresentThenExists(t *testing.T) {
	c := New(time.Minute)
	addr := netip.MustParseAddr("2001:db8::1")
	c.MarkPresent(1, addr)
	if !c.Exists(1, addr) {
		t.Error("Exists false right after MarkPresent")
	}
}

func TestExistsIsPerScope(t *testing.T) {
	c := New(time.Minute)
	addr := netip.MustParseAddr("2001:db8::1")
	c.MarkPresent(1, addr)
	if c.Exists(2, addr) {
		t.Error("Exists true on a different scope id")
	}
}

func TestExistsExpiresAfterTTL(t *testing.T) {
	c := New(10 * time.Millisecond)
	addr := netip.MustParseAddr("2001:db8::1")
	c.MarkPresent(1, addr)
	time.Sleep(20 * time.Millisecond)
	if c.Exists(1, addr) {
		t.Error("Exists true after TTL elapsed")
	}
}

func TestSweepRemovesExpiredEntries(t *testing.T) {
	c := New(10 * time.Millisecond)
	addr := netip.MustParseAddr("2001:db8::1")
	c.MarkPresent(1, addr)
	time.Sleep(20 * time.Millisecond)
	c.Sweep()
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.m) != 0 {
		t.Errorf("len(m) = %d after Sweep, want 0", len(c.m))
	}
}

func TestNewDefaultsTTL(t *testing.T) {
	c := New(0)
	if c.ttl != DefaultTTL {
		t.Errorf("ttl = %v, want DefaultTTL", c.ttl)
	}
}
