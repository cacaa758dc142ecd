package featureflags

import (
	"hash/fnv"
	"slices"
	"strconv"
	"strings"
)

// Flags read by the services.
const (
	OfflineFallback   = "offline_fallback"
	AutoBadges        = "auto_badges"
	LiveNotifications = "live_notifications"
)

type ruleKind int

const (
	ruleOff ruleKind = iota
	ruleOn
	rulePercent
	ruleUsers
)

type rule struct {
	kind  ruleKind
	pct   int
	users []string
	raw   string
}

// Manager evaluates feature flags defined in a comma-separated list.
// Example: "offline_fallback=on,auto_badges=25%,live_notifications=users:user_2a|user_9z"
type Manager struct {
	rules map[string]rule
}

// NewManager parses raw. Malformed entries are skipped and unknown values
// evaluate as off.
func NewManager(raw string) *Manager {
	rules := make(map[string]rule)
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		key, value = normalize(key), strings.TrimSpace(value)
		if key == "" || value == "" {
			continue
		}
		rules[key] = parseRule(value)
	}
	return &Manager{rules: rules}
}

// parseRule accepts on/true/1, off/false/0, N% and users:a|b. User ids keep
// their case since identity-provider ids are case-sensitive.
func parseRule(value string) rule {
	r := rule{raw: value}
	if list, ok := strings.CutPrefix(value, "users:"); ok {
		r.kind = ruleUsers
		for _, id := range strings.Split(list, "|") {
			if id = strings.TrimSpace(id); id != "" {
				r.users = append(r.users, id)
			}
		}
		return r
	}

	value = normalize(value)
	r.raw = value
	switch value {
	case "on", "true", "1":
		r.kind = ruleOn
	case "off", "false", "0":
		r.kind = ruleOff
	default:
		pct, err := strconv.Atoi(strings.TrimSuffix(value, "%"))
		if err != nil || !strings.HasSuffix(value, "%") {
			r.kind = ruleOff
			break
		}
		r.kind, r.pct = rulePercent, min(max(pct, 0), 100)
	}
	return r
}

// Enabled reports whether name is on for userID, the identity-provider id.
// Rollouts and allowlists never include anonymous callers.
func (m *Manager) Enabled(name string, userID string) bool {
	if m == nil {
		return false
	}
	r, ok := m.rules[normalize(name)]
	if !ok {
		return false
	}

	switch r.kind {
	case ruleOn:
		return true
	case rulePercent:
		if r.pct >= 100 {
			return true
		}
		return userID != "" && r.pct > 0 && rolloutBucket(name, userID) < r.pct
	case ruleUsers:
		return userID != "" && slices.Contains(r.users, userID)
	default:
		return false
	}
}

// Raw returns the configured value of every flag.
func (m *Manager) Raw() map[string]string {
	out := map[string]string{}
	if m == nil {
		return out
	}
	for name, r := range m.rules {
		out[name] = r.raw
	}
	return out
}

// Snapshot evaluates every flag for one user.
func (m *Manager) Snapshot(userID string) map[string]bool {
	out := map[string]bool{}
	if m == nil {
		return out
	}
	for name := range m.rules {
		out[name] = m.Enabled(name, userID)
	}
	return out
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func rolloutBucket(name, userID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(normalize(name) + ":" + userID))
	return int(h.Sum32() % 100)
}
