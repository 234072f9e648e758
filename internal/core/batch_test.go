package core

import (
	"errors"
	"strings"
	"testing"
)

func TestReadBatch_Headers(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
		wantLen int
	}{
		{
			name:    "exact columns",
			input:   "student_id,student_name,subject,marks\n1,Ann,Math,70\n",
			wantLen: 1,
		},
		{
			name:    "reordered, mixed case, extra column",
			input:   "Subject, MARKS ,notes,Student_Name,student_id\nMath,70,x,Ann,1\n",
			wantLen: 1,
		},
		{
			name:    "header only",
			input:   "student_id,student_name,subject,marks\n",
			wantLen: 0,
		},
		{
			name:    "missing marks column",
			input:   "student_id,student_name,subject\n1,Ann,Math\n",
			wantErr: true,
		},
		{
			name:    "no header row",
			input:   "",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ReadBatch(strings.NewReader(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedBatch) {
					t.Fatalf("expected ErrMalformedBatch, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if b.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", b.Len(), tt.wantLen)
			}
		})
	}
}

func TestReadBatch_MissingColumnsNamed(t *testing.T) {
	_, err := ReadBatch(strings.NewReader("student_id,subject\n"))
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "student_name, marks") {
		t.Errorf("error %q should name the missing columns", err)
	}
	if MapError(err).Code != "VAL001" {
		t.Errorf("MapError code = %q, want VAL001", MapError(err).Code)
	}
}

func TestReadBatch_BOMAndBlankRows(t *testing.T) {
	input := "\xEF\xBB\xBFstudent_id,student_name,subject,marks\n1,Ann,Math,70\n\n , , , \n2,Bob,Art,50\n"

	b, err := ReadBatch(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (blank rows dropped)", b.Len())
	}
	if got := b.records[0].line; got != 2 {
		t.Errorf("first data row line = %d, want 2", got)
	}
	if got := b.records[1].line; got != 5 {
		t.Errorf("second data row line = %d, want 5", got)
	}
}

func TestParseRow(t *testing.T) {
	header := "student_id,student_name,subject,marks\n"

	tests := []struct {
		name       string
		row        string
		wantErr    string
		wantID     int64
		wantMark   int
		wantSubj   string
		wantPerson string
	}{
		{name: "valid", row: "10,Ann,Math,70", wantID: 10, wantMark: 70, wantSubj: "Math", wantPerson: "Ann"},
		{name: "whitespace trimmed", row: " 10 , Ann , Math , 70 ", wantID: 10, wantMark: 70, wantSubj: "Math", wantPerson: "Ann"},
		{name: "excel formula prefix", row: `="10",Ann,Math,="70"`, wantID: 10, wantMark: 70, wantSubj: "Math", wantPerson: "Ann"},
		{name: "name keeps apostrophe", row: "10,Chris',Math,70", wantID: 10, wantMark: 70, wantSubj: "Math", wantPerson: "Chris'"},
		{name: "subject keeps leading equals", row: "10,Ann,=Math,70", wantID: 10, wantMark: 70, wantSubj: "=Math", wantPerson: "Ann"},
		{name: "mark lower bound", row: "10,Ann,Math,0", wantID: 10, wantMark: 0, wantSubj: "Math", wantPerson: "Ann"},
		{name: "mark upper bound", row: "10,Ann,Math,100", wantID: 10, wantMark: 100, wantSubj: "Math", wantPerson: "Ann"},
		{name: "non-integer id", row: "abc,Bad,Math,50", wantErr: `invalid integer for "student_id"`},
		{name: "non-integer mark", row: "10,Ann,Math,7.5", wantErr: `invalid integer for "marks"`},
		{name: "mark above range", row: "10,Ann,Math,101", wantErr: "marks 101 out of range [0, 100]"},
		{name: "mark below range", row: "10,Ann,Math,-1", wantErr: "marks -1 out of range [0, 100]"},
		{name: "zero id", row: "0,Ann,Math,50", wantErr: "student_id must be positive"},
		{name: "negative id", row: "-4,Ann,Math,50", wantErr: "student_id must be positive"},
		{name: "id at bound", row: "2147483647,Ann,Math,50", wantID: 2147483647, wantMark: 50, wantSubj: "Math", wantPerson: "Ann"},
		{name: "id above bound", row: "2147483648,Ann,Math,50", wantErr: "student_id 2147483648 exceeds 2147483647"},
		{name: "id beyond int64", row: "99999999999999999999,Ann,Math,50", wantErr: `invalid integer for "student_id"`},
		{name: "blank name", row: "10,,Math,50", wantErr: `empty required field "student_name"`},
		{name: "blank subject", row: "10,Ann, ,50", wantErr: `empty required field "subject"`},
		{name: "short row", row: "10,Ann", wantErr: `missing value for "subject"`},
		{name: "subject too long", row: "10,Ann," + strings.Repeat("x", 101) + ",50", wantErr: "subject longer than 100 characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := ReadBatch(strings.NewReader(header + tt.row + "\n"))
			if err != nil {
				t.Fatalf("ReadBatch: %v", err)
			}
			if b.Len() != 1 {
				t.Fatalf("Len() = %d, want 1", b.Len())
			}

			row, err := b.parseRow(b.records[0])
			if tt.wantErr != "" {
				if err == nil {
					t.Fatalf("expected error containing %q, got row %+v", tt.wantErr, row)
				}
				if !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("error = %q, want it to contain %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if row.StudentID != tt.wantID || row.Mark != tt.wantMark || row.Subject != tt.wantSubj || row.StudentName != tt.wantPerson {
				t.Errorf("row = %+v", row)
			}
			if row.Line != 2 {
				t.Errorf("Line = %d, want 2", row.Line)
			}
		})
	}
}

func TestCleanCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  plain  ", "plain"},
		{`="00123"`, "00123"},
		{"=42", "42"},
		{`"quoted"`, "quoted"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := CleanCell(tt.in); got != tt.want {
				t.Errorf("CleanCell(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestMakeHeaderIndex_FirstDuplicateWins(t *testing.T) {
	idx := MakeHeaderIndex([]string{"Marks", "student_id", "marks"})
	if idx["marks"] != 0 {
		t.Errorf("marks index = %d, want 0", idx["marks"])
	}
	if idx["student_id"] != 1 {
		t.Errorf("student_id index = %d, want 1", idx["student_id"])
	}
}

func TestSummaryMessage(t *testing.T) {
	tests := []struct {
		name    string
		summary Summary
		want    string
	}{
		{
			name:    "plain success",
			summary: Summary{Processed: 3},
			want:    "Successfully processed 3 records!",
		},
		{
			name: "created and errors",
			summary: Summary{
				Processed:       2,
				Errors:          1,
				CreatedStudents: []CreatedStudent{{ID: 10, DisplayName: "Ann"}},
			},
			want: "Successfully processed 2 records! Created 1 new student accounts. 1 errors occurred.",
		},
		{
			name: "remap",
			summary: Summary{
				Processed:       1,
				CreatedStudents: []CreatedStudent{{ID: 12, DisplayName: "Eve"}},
				Remaps:          []Remap{{Claimed: 5, Assigned: 12}},
			},
			want: "Successfully processed 1 records! Created 1 new student accounts. Student IDs already taken were reassigned: 5 -> 12.",
		},
		{
			name:    "dry run",
			summary: Summary{Processed: 4, DryRun: true},
			want:    "Dry run: 4 records would be processed.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.summary.Message(); got != tt.want {
				t.Errorf("Message() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseRole(t *testing.T) {
	if r, err := ParseRole(" Admin "); err != nil || r != RoleAdmin {
		t.Errorf("ParseRole(Admin) = %q, %v", r, err)
	}
	if _, err := ParseRole("staff"); err == nil {
		t.Error("ParseRole(staff) expected error")
	}
}
