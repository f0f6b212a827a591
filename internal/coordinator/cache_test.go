package coordinator

import (
	"testing"
	"time"

	"github.com/joshp123/kumocloud/internal/kumo"
)

func TestOverlayAppliesCachedCommands(t *testing.T) {
	cache := newCommandCache()
	cache.cache("abc123", "power", 1)
	cache.cache("abc123", "spCool", 22.5)
	cache.cache("abc123", "fanSpeed", "auto")
	cache.cache("other", "power", 0)

	detail := kumo.DeviceDetail{}
	cache.overlay("abc123", &detail)

	if detail.Power == nil || *detail.Power != 1 {
		t.Fatalf("power = %v, want 1", detail.Power)
	}
	if detail.SpCool == nil || *detail.SpCool != 22.5 {
		t.Fatalf("spCool = %v, want 22.5", detail.SpCool)
	}
	if detail.FanSpeed == nil || *detail.FanSpeed != "auto" {
		t.Fatalf("fanSpeed = %v, want auto", detail.FanSpeed)
	}
	if detail.OperationMode != nil {
		t.Fatalf("operationMode overlaid without a cached command")
	}
}

func TestOverlayCoercesJSONNumbers(t *testing.T) {
	cache := newCommandCache()
	// Values that round-tripped through JSON arrive as float64.
	cache.cache("abc123", "power", float64(1))
	cache.cache("abc123", "humidity", float64(45))
	cache.cache("abc123", "spHeat", 19)

	detail := kumo.DeviceDetail{}
	cache.overlay("abc123", &detail)

	if detail.Power == nil || *detail.Power != 1 {
		t.Fatalf("power = %v, want 1", detail.Power)
	}
	if detail.Humidity == nil || *detail.Humidity != 45 {
		t.Fatalf("humidity = %v, want 45", detail.Humidity)
	}
	if detail.SpHeat == nil || *detail.SpHeat != 19 {
		t.Fatalf("spHeat = %v, want 19", detail.SpHeat)
	}
}

func TestCullRemovesOnlyConfirmedEntries(t *testing.T) {
	cache := newCommandCache()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	clock := base
	cache.now = func() time.Time { return clock }

	cache.cache("abc123", "power", 1)
	clock = base.Add(10 * time.Second)
	cache.cache("abc123", "spCool", 22.0)
	clock = base.Add(20 * time.Second)
	cache.cache("other", "power", 0)

	// Server state as of base+10s confirms entries issued at or before it.
	cutoff := base.Add(10 * time.Second)
	cache.cull("abc123", &cutoff)

	detail := kumo.DeviceDetail{}
	cache.overlay("abc123", &detail)
	if detail.Power != nil {
		t.Fatalf("power entry issued before updatedAt survived cull")
	}
	if detail.SpCool != nil {
		t.Fatalf("spCool entry issued at updatedAt survived cull")
	}

	other := kumo.DeviceDetail{}
	cache.overlay("other", &other)
	if other.Power == nil {
		t.Fatalf("cull for abc123 removed an entry for another device")
	}
}

func TestCullSkipsWhenUpdatedAtMissing(t *testing.T) {
	cache := newCommandCache()
	cache.cache("abc123", "power", 1)

	cache.cull("abc123", nil)

	detail := kumo.DeviceDetail{}
	cache.overlay("abc123", &detail)
	if detail.Power == nil {
		t.Fatalf("entry culled despite missing updatedAt")
	}
}

func TestCleanupStaleKeepsFreshEntries(t *testing.T) {
	cache := newCommandCache()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	clock := base
	cache.now = func() time.Time { return clock }

	cache.cache("abc123", "power", 1)
	clock = base.Add(4 * time.Minute)
	cache.cache("abc123", "spCool", 22.0)

	clock = base.Add(staleCommandTTL + time.Second)
	cache.cleanupStale()

	detail := kumo.DeviceDetail{}
	cache.overlay("abc123", &detail)
	if detail.Power != nil {
		t.Fatalf("stale entry survived cleanup")
	}
	if detail.SpCool == nil {
		t.Fatalf("fresh entry removed by cleanup")
	}
}
