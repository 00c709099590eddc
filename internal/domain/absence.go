package domain

import "strings"

// AbsenceCodes are the normalized attendance cell values that count as an absence.
var AbsenceCodes = map[string]struct{}{
	"A":  {}, // absent
	"OL": {}, // on leave
}

// IsAbsenceCode reports whether a raw attendance cell denotes an absence.
func IsAbsenceCode(cell string) bool {
	_, ok := AbsenceCodes[NormalizeCell(cell)]
	return ok
}

// NormalizeCell trims and upper-cases an attendance cell.
func NormalizeCell(cell string) string {
	return strings.ToUpper(strings.TrimSpace(cell))
}

// AbsenceRecord lists the absence dates of one learner, keyed by email.
type AbsenceRecord struct {
	Email        string
	StudentName  string
	AbsenceDates []string
}
