package core

// batch.go turns an uploaded CSV into data rows ready for reconciliation.
//
// Parsing happens at two levels:
//  1. Header validation: the four required columns must be present, in any
//     order. A missing column fails the whole batch with ErrMalformedBatch.
//  2. Row parsing: each data row is converted to a BatchRow and validated.
//     A bad row is reported as a RowError and never fails the batch.

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Required column labels. Matching is case-insensitive.
const (
	ColStudentID   = "student_id"
	ColStudentName = "student_name"
	ColSubject     = "subject"
	ColMarks       = "marks"
)

// RequiredColumns lists the header labels every batch must carry.
var RequiredColumns = []string{ColStudentID, ColStudentName, ColSubject, ColMarks}

// HeaderIndex maps column names (lowercase) to their position in the CSV row.
type HeaderIndex map[string]int

var rowValidator = validator.New()

// rowFieldColumns maps BatchRow fields to the CSV column they came from.
var rowFieldColumns = map[string]string{
	"StudentID":   ColStudentID,
	"StudentName": ColStudentName,
	"Subject":     ColSubject,
	"Mark":        ColMarks,
}

// Batch is a parsed upload: the header index plus its non-blank data records.
type Batch struct {
	header  HeaderIndex
	records []batchRecord
}

type batchRecord struct {
	line   int
	fields []string
}

// Len returns the number of data rows in the batch.
func (b *Batch) Len() int {
	return len(b.records)
}

// ReadBatch reads a whole CSV batch from r. The reader is wrapped to skip a
// UTF-8 BOM and replace invalid UTF-8. Rows whose cells are all blank are
// dropped and do not count as data rows.
func ReadBatch(r io.Reader) (*Batch, error) {
	cr := csv.NewReader(cleanInput(r))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: no header row", ErrMalformedBatch)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}

	idx, err := ValidateHeaders(header)
	if err != nil {
		return nil, err
	}

	b := &Batch{header: idx}
	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("invalid csv: %w", err)
		}
		if isEmptyRow(fields) {
			continue
		}
		line, _ := cr.FieldPos(0)
		b.records = append(b.records, batchRecord{line: line, fields: fields})
	}

	return b, nil
}

// ValidateHeaders checks that every required column is present and returns
// the header index. The error wraps ErrMalformedBatch.
func ValidateHeaders(header []string) (HeaderIndex, error) {
	idx := MakeHeaderIndex(header)
	var missing []string

	for _, col := range RequiredColumns {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: missing required column(s): %s", ErrMalformedBatch, strings.Join(missing, ", "))
	}

	return idx, nil
}

// MakeHeaderIndex creates a HeaderIndex from a CSV header row.
// Keys are lowercased for case-insensitive matching; the first occurrence of
// a duplicated label wins.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := make(HeaderIndex, len(header))
	for i, h := range header {
		key := strings.ToLower(CleanCell(h))
		if _, dup := idx[key]; dup {
			continue
		}
		idx[key] = i
	}
	return idx
}

// CleanCell removes spreadsheet artifacts from a header or numeric cell:
// surrounding whitespace, an Excel formula prefix (="...") and stray quotes.
// Name and subject cells are only trimmed.
func CleanCell(s string) string {
	s = strings.TrimSpace(s)

	if strings.HasPrefix(s, "=\"") && strings.HasSuffix(s, "\"") {
		s = s[2 : len(s)-1]
	} else if strings.HasPrefix(s, "=") {
		s = s[1:]
	}

	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// parseRow converts one record to a BatchRow. A non-nil error means the row
// must be skipped.
func (b *Batch) parseRow(rec batchRecord) (BatchRow, error) {
	cell := func(col string) (string, error) {
		pos := b.header[col]
		if pos >= len(rec.fields) {
			return "", fmt.Errorf("missing value for %q", col)
		}
		return strings.TrimSpace(rec.fields[pos]), nil
	}

	rawID, err := cell(ColStudentID)
	if err != nil {
		return BatchRow{}, err
	}
	rawName, err := cell(ColStudentName)
	if err != nil {
		return BatchRow{}, err
	}
	rawSubject, err := cell(ColSubject)
	if err != nil {
		return BatchRow{}, err
	}
	rawMark, err := cell(ColMarks)
	if err != nil {
		return BatchRow{}, err
	}

	rawID, rawMark = CleanCell(rawID), CleanCell(rawMark)

	id, err := strconv.ParseInt(rawID, 10, 64)
	if err != nil {
		return BatchRow{}, fmt.Errorf("invalid integer for %q: %q", ColStudentID, rawID)
	}
	mark, err := strconv.Atoi(rawMark)
	if err != nil {
		return BatchRow{}, fmt.Errorf("invalid integer for %q: %q", ColMarks, rawMark)
	}

	row := BatchRow{
		Line:        rec.line,
		StudentID:   id,
		StudentName: rawName,
		Subject:     rawSubject,
		Mark:        mark,
	}

	if err := rowValidator.Struct(row); err != nil {
		return BatchRow{}, describeRowError(err)
	}

	return row, nil
}

// describeRowError turns validator output into a short reason naming the
// offending column.
func describeRowError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	fe := verrs[0]
	col, ok := rowFieldColumns[fe.Field()]
	if !ok {
		col = fe.Field()
	}

	switch fe.Tag() {
	case "required":
		return fmt.Errorf("empty required field %q", col)
	case "lte":
		if col == ColStudentID {
			return fmt.Errorf("%s %v exceeds %d", col, fe.Value(), MaxClaimedID)
		}
		return fmt.Errorf("%s %v out of range [%d, %d]", col, fe.Value(), MinMark, MaxMark)
	case "gte":
		return fmt.Errorf("%s %v out of range [%d, %d]", col, fe.Value(), MinMark, MaxMark)
	case "gt":
		return fmt.Errorf("%s must be positive, got %v", col, fe.Value())
	case "max":
		return fmt.Errorf("%s longer than %s characters", col, fe.Param())
	default:
		return fmt.Errorf("invalid %s: %v", col, fe.Value())
	}
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
