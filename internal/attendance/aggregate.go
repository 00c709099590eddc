package attendance

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/absence-notifier/internal/domain"
)

// DuplicatePolicy decides how rows sharing an email are combined.
type DuplicatePolicy string

const (
	// DuplicateLastWins lets the last row for an email decide its record.
	DuplicateLastWins DuplicatePolicy = "last"
	// DuplicateMerge unions the absence dates of every row for an email.
	DuplicateMerge DuplicatePolicy = "merge"
)

func (p DuplicatePolicy) String() string { return string(p) }

func ParseDuplicatePolicy(s string) (DuplicatePolicy, error) {
	policy := DuplicatePolicy(strings.ToLower(strings.TrimSpace(s)))
	switch policy {
	case "":
		return DuplicateLastWins, nil
	case DuplicateLastWins, DuplicateMerge:
		return policy, nil
	}
	return "", fmt.Errorf("%w: invalid duplicate policy %q", domain.ErrValidation, s)
}

// AbsenceSet maps learner email to absence record, keeping first-seen order.
// Rows without an email never share an entry: each one is kept on its own so it
// can be reported as a failed recipient.
type AbsenceSet struct {
	order   []string
	records map[string]domain.AbsenceRecord
}

func newAbsenceSet() *AbsenceSet {
	return &AbsenceSet{records: make(map[string]domain.AbsenceRecord)}
}

func (s *AbsenceSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.order)
}

func (s *AbsenceSet) Get(email string) (domain.AbsenceRecord, bool) {
	if s == nil || email == "" {
		return domain.AbsenceRecord{}, false
	}
	record, ok := s.records[email]
	return record, ok
}

// Records returns the records in mapping order.
func (s *AbsenceSet) Records() []domain.AbsenceRecord {
	if s == nil {
		return nil
	}
	out := make([]domain.AbsenceRecord, 0, len(s.order))
	for _, key := range s.order {
		out = append(out, s.records[key])
	}
	return out
}

func (s *AbsenceSet) put(key string, record domain.AbsenceRecord) {
	if _, exists := s.records[key]; !exists {
		s.order = append(s.order, key)
	}
	s.records[key] = record
}

func (s *AbsenceSet) remove(key string) {
	if _, exists := s.records[key]; !exists {
		return
	}
	delete(s.records, key)
	for i, current := range s.order {
		if current == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// entryKey is the set key for a row. Emails cannot contain NUL, so the
// per-row keys of email-less rows never collide with a real address.
func entryKey(email string, row int) string {
	if email == "" {
		return fmt.Sprintf("\x00row:%d", row)
	}
	return email
}

// DateLabel strips the duplicate-column disambiguator from a date header ("12-01.1" -> "12-01").
func DateLabel(column string) string {
	label, _, _ := strings.Cut(column, ".")
	return label
}

// Aggregate scans every learner row and collects the dates coded as absences.
// Learners without absences are left out of the result, and so are placeholder
// rows named "NA". A date label appears at most once per learner, in first-seen
// column order.
func Aggregate(table *Table, policy DuplicatePolicy) *AbsenceSet {
	set := newAbsenceSet()
	if table == nil {
		return set
	}

	dateColumns := table.DatePositions()
	for row := range table.Rows {
		email := strings.TrimSpace(table.Value(row, ColumnEmail))
		name := strings.TrimSpace(table.Value(row, ColumnLearners))
		if isPlaceholderLearner(name) {
			continue
		}

		var absences []string
		for _, column := range dateColumns {
			if domain.IsAbsenceCode(table.Cell(row, column.Index)) && !containsLabel(absences, column.Label) {
				absences = append(absences, column.Label)
			}
		}

		key := entryKey(email, row)
		switch policy {
		case DuplicateMerge:
			mergeRow(set, key, email, name, absences)
		default:
			if len(absences) == 0 {
				set.remove(key)
				continue
			}
			set.put(key, domain.AbsenceRecord{Email: email, StudentName: name, AbsenceDates: absences})
		}
	}

	return set
}

// isPlaceholderLearner reports rows the export fills in for unassigned seats.
func isPlaceholderLearner(name string) bool {
	return strings.EqualFold(name, "NA")
}

func mergeRow(set *AbsenceSet, key, email, name string, absences []string) {
	existing, ok := set.records[key]
	if !ok {
		if len(absences) > 0 {
			set.put(key, domain.AbsenceRecord{Email: email, StudentName: name, AbsenceDates: absences})
		}
		return
	}

	dates := existing.AbsenceDates
	for _, label := range absences {
		if !containsLabel(dates, label) {
			dates = append(dates, label)
		}
	}
	if name == "" {
		name = existing.StudentName
	}

	set.put(key, domain.AbsenceRecord{Email: email, StudentName: name, AbsenceDates: dates})
}

func containsLabel(labels []string, label string) bool {
	for _, current := range labels {
		if current == label {
			return true
		}
	}
	return false
}
