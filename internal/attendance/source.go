package attendance

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kursadbilgin/absence-notifier/internal/domain"
	"github.com/xuri/excelize/v2"
)

const (
	// MetadataLines is the number of lines preceding the table header in an export.
	MetadataLines = 6
	// SessionLineIndex is the metadata line that carries the course name.
	SessionLineIndex = 3
)

const utf8BOM = "\ufeff"

// IsWorkbook reports whether path points to an .xlsx export.
func IsWorkbook(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}

// ReadLines returns the physical lines of an export without line terminators.
// Workbook rows are rendered as comma-joined lines.
func ReadLines(path string) ([]string, error) {
	if IsWorkbook(path) {
		rows, err := readWorkbookRows(path)
		if err != nil {
			return nil, err
		}
		lines := make([]string, 0, len(rows))
		for _, row := range rows {
			lines = append(lines, strings.Join(row, ","))
		}
		return lines, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read attendance file: %w", err)
	}

	text := strings.TrimPrefix(string(data), utf8BOM)
	if text == "" {
		return nil, nil
	}

	lines := strings.Split(text, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}

	return lines, nil
}

// readTableRecords returns the header and data records that follow the metadata block.
func readTableRecords(path string) ([][]string, error) {
	if IsWorkbook(path) {
		rows, err := readWorkbookRows(path)
		if err != nil {
			return nil, err
		}
		if len(rows) <= MetadataLines {
			return nil, nil
		}
		records := make([][]string, 0, len(rows)-MetadataLines)
		for _, row := range rows[MetadataLines:] {
			if isBlankRecord(row) {
				continue
			}
			records = append(records, row)
		}
		return records, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open attendance file: %w", err)
	}
	defer file.Close()

	reader := bufio.NewReader(file)
	for i := 0; i < MetadataLines; i++ {
		if _, err := reader.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("failed to skip metadata lines: %w", err)
		}
	}

	csvReader := csv.NewReader(reader)
	csvReader.FieldsPerRecord = -1
	csvReader.LazyQuotes = true

	records, err := csvReader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: malformed attendance table: %v", domain.ErrValidation, err)
	}

	return records, nil
}

func readWorkbookRows(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open attendance workbook: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheetName, err)
	}

	return rows, nil
}

func isBlankRecord(record []string) bool {
	for _, cell := range record {
		if cell != "" {
			return false
		}
	}
	return true
}
