// Package grouping partitions a waiting-room snapshot into balanced
// video-call groups.  Distribute is a pure function: given the same
// ordered participant list and capacity it always produces the same
// groups, which keeps matchmaking reproducible and testable.
package grouping

import "errors"

// ErrInvalidCapacity is returned when maxPerRoom is below 1.  This is
// a configuration error and fatal to the caller; it must never be
// silently defaulted.
var ErrInvalidCapacity = errors.New("grouping: max per room must be at least 1")

// Distribute splits participants into groups of at most maxPerRoom
// members, preferring balance over filling rooms to capacity.
//
// Fewer than two participants yield no groups, since a conversation
// cannot happen alone.  Otherwise the list is cut sequentially into
// k = ceil(n/maxPerRoom) rooms where the first n%k rooms take one
// extra member.  A minimum of two members per room dominates the
// capacity target: a room left with a single member is dissolved and
// its member joins the smallest remaining room (the earliest room in
// the result wins ties), so a group may exceed maxPerRoom by one.
//
// The relative order of participants within each group matches the
// input order.
func Distribute[T any](participants []T, maxPerRoom int) ([][]T, error) {
	if maxPerRoom < 1 {
		return nil, ErrInvalidCapacity
	}
	total := len(participants)
	if total < 2 {
		return nil, nil
	}

	// ceil(total / maxPerRoom) without floats
	k := (total + maxPerRoom - 1) / maxPerRoom
	base := total / k
	remainder := total % k

	rooms := make([][]T, 0, k)
	idx := 0
	for i := 0; i < k; i++ {
		size := base
		if i < remainder {
			size++
		}
		// Full slice expression so a later merge append cannot write
		// into the caller's backing array.
		rooms = append(rooms, participants[idx:idx+size:idx+size])
		idx += size
	}

	// Dissolve singleton rooms.  With sequential slicing only trailing
	// rooms can end up with one member, but the sweep stays general.
	kept := make([][]T, 0, len(rooms))
	var singles []T
	for _, room := range rooms {
		if len(room) == 1 {
			singles = append(singles, room...)
		} else {
			kept = append(kept, room)
		}
	}
	for _, single := range singles {
		if len(kept) == 0 {
			// Unreachable while total >= 2, kept as a safety net.
			kept = append(kept, []T{single})
			continue
		}
		smallest := 0
		for i := 1; i < len(kept); i++ {
			if len(kept[i]) < len(kept[smallest]) {
				smallest = i
			}
		}
		kept[smallest] = append(kept[smallest], single)
	}
	return kept, nil
}
