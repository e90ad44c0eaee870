package redisring

import "strings"

// HashSlots is the fixed number of hash slots keys are partitioned into.
const HashSlots = 16384

// Slot returns the hash slot for the key. If the key contains a hash tag
// (a non-empty substring between the first "{" and the first following
// "}"), only the tag is hashed, so that callers can force unrelated keys
// onto the same slot. An empty tag ("{}") or unmatched braces fall back
// to hashing the whole key.
func Slot(key string) int {
	if start := strings.Index(key, "{"); start >= 0 {
		if end := strings.Index(key[start+1:], "}"); end > 0 { // if end == 0, then it's {}, so we ignore it
			end += start + 1
			key = key[start+1 : end]
		}
	}
	return int(crc16(key) % HashSlots)
}

// SameSlot returns true if all keys hash to the same slot. It is
// vacuously true for an empty key list and always true for a single
// key. Multi-key cluster commands are only routable when this holds;
// callers whose keys span slots must fall back to per-key routing
// (Executor.ExecuteForEachKey) or to a cross-slot emulation such as
// Renamer.
func SameSlot(keys ...string) bool {
	if len(keys) < 2 {
		return true
	}
	slot := Slot(keys[0])
	for _, k := range keys[1:] {
		if Slot(k) != slot {
			return false
		}
	}
	return true
}
