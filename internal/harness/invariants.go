package harness

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// CounterEquals holds when the integer state value at key equals want.
func CounterEquals(key string, want int64) Invariant {
	return Invariant{
		Description: fmt.Sprintf("%s == %d", key, want),
		Check: func(rec OutcomeRecord) (bool, string) {
			got, ok := stateInt(rec, key)
			if !ok {
				return false, fmt.Sprintf("state %q missing or not an integer", key)
			}
			if got != want {
				return false, fmt.Sprintf("%s = %d, expected %d (lost %d)", key, got, want, want-got)
			}
			return true, fmt.Sprintf("%s = %d", key, got)
		},
	}
}

// NoOverlap holds when the integer state value at key, a count of
// overlapping ownerships, is zero.
func NoOverlap(key string) Invariant {
	return Invariant{
		Description: "no key owned by two actors at once",
		Check: func(rec OutcomeRecord) (bool, string) {
			n, ok := stateInt(rec, key)
			if !ok {
				return false, fmt.Sprintf("state %q missing or not an integer", key)
			}
			if n != 0 {
				return false, fmt.Sprintf("%d overlapping ownerships", n)
			}
			return true, "no overlapping ownership"
		},
	}
}

// AllSucceeded holds when every actor succeeded.
func AllSucceeded() Invariant {
	return Invariant{
		Description: "every actor succeeds",
		Check: func(rec OutcomeRecord) (bool, string) {
			var bad []string
			for _, a := range rec.Actors {
				if a.Status != StatusSucceeded {
					bad = append(bad, fmt.Sprintf("%s %s (%s)", a.Actor, a.Status, a.Reason))
				}
			}
			if len(bad) > 0 {
				return false, strings.Join(bad, "; ")
			}
			return true, fmt.Sprintf("all %d actors succeeded", len(rec.Actors))
		},
	}
}

// AtMostOneSuccess holds when no more than one actor with role succeeded.
func AtMostOneSuccess(role string) Invariant {
	return Invariant{
		Description: fmt.Sprintf("at most one %s succeeds", role),
		Check: func(rec OutcomeRecord) (bool, string) {
			n := rec.Count(role, StatusSucceeded)
			if n > 1 {
				return false, fmt.Sprintf("%d %ss succeeded", n, role)
			}
			return true, fmt.Sprintf("%d %s succeeded", n, role)
		},
	}
}

// TopologicalOrder holds when the []string state value at key lists every
// element of want in want's order.
func TopologicalOrder(key string, want []string) Invariant {
	return Invariant{
		Description: fmt.Sprintf("tasks complete in order %s", strings.Join(want, " → ")),
		Check: func(rec OutcomeRecord) (bool, string) {
			got, ok := rec.State[key].([]string)
			if !ok {
				return false, fmt.Sprintf("state %q missing or not a list", key)
			}
			pos := make(map[string]int, len(got))
			for i, id := range got {
				pos[id] = i
			}
			prev := -1
			for _, id := range want {
				i, done := pos[id]
				if !done {
					return false, fmt.Sprintf("%s never completed (order %v)", id, got)
				}
				if i < prev {
					return false, fmt.Sprintf("%s completed out of order (order %v)", id, got)
				}
				prev = i
			}
			return true, fmt.Sprintf("order %v", got)
		},
	}
}

// StateEquals holds when the state value at key deeply equals want.
func StateEquals(key string, want any) Invariant {
	return Invariant{
		Description: fmt.Sprintf("%s == %v", key, want),
		Check: func(rec OutcomeRecord) (bool, string) {
			got, ok := rec.State[key]
			if !ok {
				return false, fmt.Sprintf("state %q missing", key)
			}
			if !reflect.DeepEqual(got, want) {
				return false, fmt.Sprintf("%s = %v, expected %v", key, got, want)
			}
			return true, fmt.Sprintf("%s = %v", key, got)
		},
	}
}

// MaxLatency holds when the time.Duration state value at key is at most
// limit.
func MaxLatency(key string, limit time.Duration) Invariant {
	return Invariant{
		Description: fmt.Sprintf("%s <= %s", key, limit),
		Check: func(rec OutcomeRecord) (bool, string) {
			got, ok := rec.State[key].(time.Duration)
			if !ok {
				return false, fmt.Sprintf("state %q missing or not a duration", key)
			}
			if got > limit {
				return false, fmt.Sprintf("%s = %s, limit %s", key, got.Round(time.Millisecond), limit)
			}
			return true, fmt.Sprintf("%s = %s", key, got.Round(time.Millisecond))
		},
	}
}

// All holds when every invariant holds. The first violation is reported.
func All(invs ...Invariant) Invariant {
	descs := make([]string, len(invs))
	for i, inv := range invs {
		descs[i] = inv.Description
	}
	return Invariant{
		Description: strings.Join(descs, " and "),
		Check: func(rec OutcomeRecord) (bool, string) {
			details := make([]string, 0, len(invs))
			for _, inv := range invs {
				held, detail := inv.Check(rec)
				if !held {
					return false, detail
				}
				details = append(details, detail)
			}
			return true, strings.Join(details, "; ")
		},
	}
}

func stateInt(rec OutcomeRecord, key string) (int64, bool) {
	switch v := rec.State[key].(type) {
	case int:
		return int64(v), true
	case int64:
		return v, true
	case int32:
		return int64(v), true
	case uint64:
		return int64(v), true
	default:
		return 0, false
	}
}
