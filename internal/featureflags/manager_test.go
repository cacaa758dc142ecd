package featureflags

import (
	"fmt"
	"testing"
)

func TestEnabled_BooleanValues(t *testing.T) {
	m := NewManager("a=on,b=off,c=true,d=false,e=1,f=0")

	if !m.Enabled("a", "user_1") || !m.Enabled("c", "user_1") || !m.Enabled("e", "") {
		t.Fatal("expected enabled boolean values to evaluate true")
	}
	if m.Enabled("b", "user_1") || m.Enabled("d", "user_1") || m.Enabled("f", "user_1") {
		t.Fatal("expected disabled boolean values to evaluate false")
	}
	if m.Enabled("missing", "user_1") {
		t.Fatal("unknown flags are off")
	}
}

func TestEnabled_PercentageValues(t *testing.T) {
	m := NewManager("always=100%,never=0%,canary=25%")

	if !m.Enabled("always", "user_1") {
		t.Fatal("100% rollout should always be enabled")
	}
	if m.Enabled("never", "user_1") {
		t.Fatal("0% rollout should always be disabled")
	}

	first := m.Enabled("canary", "user_2abc")
	for i := 0; i < 5; i++ {
		if got := m.Enabled("canary", "user_2abc"); got != first {
			t.Fatal("rollout evaluation must be deterministic per user")
		}
	}

	if m.Enabled("canary", "") {
		t.Fatal("percentage rollout requires a signed-in user")
	}

	on := 0
	for i := 0; i < 400; i++ {
		if m.Enabled("canary", fmt.Sprintf("user_%d", i)) {
			on++
		}
	}
	if on == 0 || on == 400 {
		t.Fatalf("25%% rollout should split users, got %d/400", on)
	}
}

func TestParseAndSnapshot(t *testing.T) {
	m := NewManager(" bad ,offline_fallback=on, auto_badges = 20% ,live_notifications=off ")

	raw := m.Raw()
	if len(raw) != 3 {
		t.Fatalf("expected 3 parsed flags, got %d", len(raw))
	}
	if raw[OfflineFallback] != "on" || raw[AutoBadges] != "20%" || raw[LiveNotifications] != "off" {
		t.Fatalf("unexpected raw flags: %#v", raw)
	}

	snap := m.Snapshot("user_123")
	if len(snap) != 3 {
		t.Fatalf("expected snapshot size 3, got %d", len(snap))
	}
}

func TestNilManager(t *testing.T) {
	var m *Manager
	if m.Enabled(OfflineFallback, "user_1") {
		t.Fatal("nil manager enables nothing")
	}
	if len(m.Raw()) != 0 || len(m.Snapshot("user_1")) != 0 {
		t.Fatal("nil manager has no flags")
	}
}

func TestEnabled_UserAllowlist(t *testing.T) {
	m := NewManager("live_notifications=users:user_2aBc| user_9XyZ ,auto_badges=banana")

	if !m.Enabled(LiveNotifications, "user_2aBc") || !m.Enabled(LiveNotifications, "user_9XyZ") {
		t.Fatal("listed users should be enabled")
	}
	if m.Enabled(LiveNotifications, "user_2abc") {
		t.Fatal("allowlist matching is case-sensitive")
	}
	if m.Enabled(LiveNotifications, "") {
		t.Fatal("allowlist never matches anonymous callers")
	}
	if m.Enabled(AutoBadges, "user_2aBc") {
		t.Fatal("unknown values are off")
	}
	if got := m.Raw()[LiveNotifications]; got != "users:user_2aBc| user_9XyZ" {
		t.Fatalf("raw value should be kept verbatim, got %q", got)
	}
}
