package domain

import "errors"

var ErrInvalidRange = errors.New("start_time must be before end_time")

// Overlaps reports whether the half-open intervals [s1,e1) and [s2,e2)
// intersect. Times are HH:MM strings; an interval ending at 10:00 does not
// overlap one starting at 10:00.
func Overlaps(s1, e1, s2, e2 string) bool {
	return s1 < e2 && s2 < e1
}

// FindConflict checks the candidate interval against the appointments of the
// same date and returns the first one it overlaps. The appointment whose ID
// equals excludeID is skipped so an edited appointment never conflicts with
// itself; pass 0 when creating.
func FindConflict(start, end string, sameDate []Appointment, excludeID int64) (Appointment, bool, error) {
	if start >= end {
		return Appointment{}, false, ErrInvalidRange
	}
	for _, a := range sameDate {
		if excludeID != 0 && a.ID == excludeID {
			continue
		}
		if Overlaps(start, end, a.StartTime, a.EndTime) {
			return a, true, nil
		}
	}
	return Appointment{}, false, nil
}
