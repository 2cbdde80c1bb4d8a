package core

import (
	"strings"
	"sync"
)

// SimpleCallback receives only the payload of a matched message.
type SimpleCallback func(payload []byte)

// ExtendedCallback receives the client handle, the matched topic, and the
// payload — used when a caller subscribed with a wildcard filter and needs
// to know which concrete topic fired.
type ExtendedCallback func(client *Controller, topic string, payload []byte)

// SubscriptionEntry is one registered filter. At least one of Simple or
// Extended should be set; both may be set, in which case both fire.
type SubscriptionEntry struct {
	Filter   string
	QoS      byte
	Simple   SimpleCallback
	Extended ExtendedCallback
}

// SubscriptionRegistry maps topic filter strings to the entry registered for
// them. It is touched both by inbound-publish dispatch on the connection's
// event path and by Subscribe/Unsubscribe called from arbitrary caller
// goroutines, so all access goes through mu.
type SubscriptionRegistry struct {
	mu      sync.RWMutex
	entries map[string]SubscriptionEntry
}

// NewSubscriptionRegistry returns an empty registry.
func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{entries: make(map[string]SubscriptionEntry)}
}

// Put inserts or replaces the entry for the given filter. Re-subscribing to
// an already-registered filter replaces its QoS and callbacks in place —
// the registry never accumulates more than one entry per filter.
func (r *SubscriptionRegistry) Put(entry SubscriptionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.Filter] = entry
}

// Remove deletes the entry for filter, if any.
func (r *SubscriptionRegistry) Remove(filter string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, filter)
}

// Clear empties the registry (used on clean-session connect and on hard
// disconnect).
func (r *SubscriptionRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make(map[string]SubscriptionEntry)
}

// Snapshot returns a copy of all entries, safe to range over without
// holding the registry's lock (used for auto-resubscribe).
func (r *SubscriptionRegistry) Snapshot() []SubscriptionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SubscriptionEntry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e)
	}
	return out
}

// MatchingEntries returns every registered entry whose filter matches topic,
// per the positional matcher in Matches.
func (r *SubscriptionRegistry) MatchingEntries(topic string) []SubscriptionEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	topicSegments := strings.Split(topic, "/")

	var matched []SubscriptionEntry
	for _, e := range r.entries {
		if matchesSegments(e.Filter, topicSegments) {
			matched = append(matched, e)
		}
	}
	return matched
}

// Matches reports whether the topic filter accepts topic under the
// positional matcher described below. It deliberately deviates from strict
// MQTT 3.1.1 filter semantics in two ways, both carried forward from the
// observed source behavior and preserved rather than corrected:
//
//   - A segment is treated as a wildcard if it *contains* '+' or '#'
//     anywhere, not only as the sole character of the segment.
//   - Matching is prefix-style: once every filter segment has matched, any
//     remaining topic segments are not examined. A filter with fewer
//     segments than the topic can still match.
//
// The filter fails to match whenever the topic is shorter than the filter.
func Matches(filter, topic string) bool {
	return matchesSegments(filter, strings.Split(topic, "/"))
}

func matchesSegments(filter string, topicSegments []string) bool {
	filterSegments := strings.Split(filter, "/")
	if len(topicSegments) < len(filterSegments) {
		return false
	}

	for i, seg := range filterSegments {
		if strings.ContainsAny(seg, "+#") {
			continue
		}
		if seg != topicSegments[i] {
			return false
		}
	}
	return true
}
