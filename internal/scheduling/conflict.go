package scheduling

// Interval is a half-open [Start, End) range in minutes since midnight.
type Interval struct {
	Start int
	End   int
}

// Overlaps reports whether the intervals share at least one minute.
// Back-to-back intervals (a.End == b.Start) do not overlap.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start < o.End && o.Start < i.End
}

// FindConflicts returns the appointments in existing that occupy the same
// technician on the same day during an overlapping interval. The candidate
// itself (matched by non-zero ID) and appointments that do not hold a slot are
// skipped. An empty result means the candidate can be booked.
//
// FindConflicts is a read-then-decide check; it cannot prevent two racing
// writers on its own. The storage layer enforces the final word.
func FindConflicts(candidate Appointment, existing []Appointment) []Appointment {
	conflicts := make([]Appointment, 0)
	want := candidate.Interval()
	day := candidate.Day()
	for _, other := range existing {
		if candidate.ID != 0 && other.ID == candidate.ID {
			continue
		}
		if other.AssignedResourceID != candidate.AssignedResourceID {
			continue
		}
		if !other.Status.HoldsSlot() || !other.Day().Equal(day) {
			continue
		}
		got := other.Interval()
		if want.Overlaps(got) || got.Overlaps(want) {
			conflicts = append(conflicts, other)
		}
	}
	return conflicts
}
