package attendance

import (
	"fmt"
	"strings"

	"github.com/kursadbilgin/absence-notifier/internal/domain"
)

const (
	ColumnLearners = "Learners"
	ColumnEmail    = "Email"

	// firstDateColumn is the index of the first attendance date column.
	firstDateColumn = 4
)

var requiredColumns = []string{ColumnLearners, ColumnEmail}

// MissingColumnError reports a required identity column absent from the table header.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("Missing required column: %s", e.Column)
}

func (e *MissingColumnError) Unwrap() error {
	return domain.ErrValidation
}

// Table is the tabular body of an attendance export.
type Table struct {
	Columns []string
	Rows    [][]string

	index map[string]int
}

// NewTable builds a table from a raw header and data rows. Duplicate header names
// get ".N" suffixes, empty names become "Unnamed: <index>", and every name is trimmed.
func NewTable(header []string, rows [][]string) *Table {
	columns := normalizeHeader(header)
	index := make(map[string]int, len(columns))
	for i, column := range columns {
		if _, exists := index[column]; !exists {
			index[column] = i
		}
	}

	return &Table{
		Columns: columns,
		Rows:    rows,
		index:   index,
	}
}

// LoadTable reads the table body of the export at path and checks the identity columns.
func LoadTable(path string) (*Table, error) {
	records, err := readTableRecords(path)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: attendance table has no header row", domain.ErrValidation)
	}

	table := NewTable(records[0], records[1:])
	if err := table.Validate(); err != nil {
		return nil, err
	}

	return table, nil
}

// Validate checks that the required identity columns are present.
func (t *Table) Validate() error {
	for _, column := range requiredColumns {
		if !t.Has(column) {
			return &MissingColumnError{Column: column}
		}
	}
	return nil
}

func (t *Table) Has(column string) bool {
	_, ok := t.index[column]
	return ok
}

// Value returns the cell of row for column; missing cells read as empty.
func (t *Table) Value(row int, column string) string {
	if row < 0 || row >= len(t.Rows) {
		return ""
	}
	idx, ok := t.index[column]
	if !ok {
		return ""
	}
	return t.Cell(row, idx)
}

// Cell returns the cell of row at column position idx; missing cells read as empty.
func (t *Table) Cell(row, idx int) string {
	if row < 0 || row >= len(t.Rows) || idx < 0 || idx >= len(t.Rows[row]) {
		return ""
	}
	return t.Rows[row][idx]
}

// DateColumn is one attendance date column: its header position and its date label.
type DateColumn struct {
	Index int
	Label string
}

// DatePositions returns the attendance date columns in header order. Positions stay
// distinct even when two headers trim to the same name.
func (t *Table) DatePositions() []DateColumn {
	if len(t.Columns) <= firstDateColumn {
		return nil
	}
	positions := make([]DateColumn, 0, len(t.Columns)-firstDateColumn)
	for i := firstDateColumn; i < len(t.Columns); i++ {
		positions = append(positions, DateColumn{Index: i, Label: DateLabel(t.Columns[i])})
	}
	return positions
}

// DateColumns returns the attendance date column names in header order.
func (t *Table) DateColumns() []string {
	if len(t.Columns) <= firstDateColumn {
		return nil
	}
	dates := make([]string, len(t.Columns)-firstDateColumn)
	copy(dates, t.Columns[firstDateColumn:])
	return dates
}

func normalizeHeader(header []string) []string {
	columns := make([]string, len(header))
	seen := make(map[string]struct{}, len(header))
	counts := make(map[string]int, len(header))

	for i, raw := range header {
		name := raw
		if name == "" {
			name = fmt.Sprintf("Unnamed: %d", i)
		}

		unique := name
		if n := counts[name]; n > 0 {
			for {
				unique = fmt.Sprintf("%s.%d", name, n)
				if _, taken := seen[unique]; !taken {
					break
				}
				n++
			}
			counts[name] = n + 1
		} else {
			counts[name] = 1
		}

		seen[unique] = struct{}{}
		columns[i] = strings.TrimSpace(unique)
	}

	return columns
}
