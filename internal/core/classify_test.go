package core

import (
	"fmt"
	"testing"
)

func TestSuggestType(t *testing.T) {
	tests := []struct {
		name   string
		values []string
		want   ColumnType
	}{
		{"no values", nil, ColumnText},
		{"only blanks", []string{"", "   ", "\t"}, ColumnText},
		{"all integers", []string{"1", "2", "3"}, ColumnNumber},
		{"exactly at threshold", []string{"1", "2", "3", "4", "x"}, ColumnNumber},
		{"below threshold", []string{"1", "2", "3", "x", "y"}, ColumnText},
		{"grouping separators", []string{"1,234.50", "2,000", "-3", "4e3"}, ColumnNumber},
		{"blanks ignored in ratio", []string{"10", "", "20", " ", "30"}, ColumnNumber},
		{"infinities are not numbers", []string{"Inf", "NaN", "Inf"}, ColumnText},
		{"underscore separators are not numbers", []string{"1_000", "2_500", "3_000"}, ColumnText},
		{"hex literals are not numbers", []string{"0x1p4", "0x10", "-0X1P-2"}, ColumnText},
		{"month and year", []string{"Jan 2024", "February 2023", "sept. 2022"}, ColumnDate},
		{"iso dates", []string{"2024-01-15", "2024-02-01", "2023-12-31"}, ColumnDate},
		{"iso datetimes", []string{"2024-01-15T10:30:00Z", "2024-01-16T00:00:00"}, ColumnDate},
		{"slash dates", []string{"01/15/2024", "15/01/2024"}, ColumnDate},
		{"dash dates", []string{"01-15-2024", "31-12-2023"}, ColumnDate},
		{"day month year", []string{"12 March 2024", "1 Jan 2023"}, ColumnDate},
		{"generic parser", []string{"oct 7, 1970", "May 8, 2009 5:57:51 PM"}, ColumnDate},
		{"dates below threshold", []string{"2024-01-15", "2024-01-16", "2024-01-17", "soon"}, ColumnText},
		{"plain words", []string{"alpha", "beta", "gamma"}, ColumnText},
		{"short tokens are not dates", []string{"abc", "def"}, ColumnText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SuggestType(tt.values); got != tt.want {
				t.Errorf("SuggestType(%q) = %q, want %q", tt.values, got, tt.want)
			}
		})
	}
}

func TestSuggestType_NumberWinsOverDate(t *testing.T) {
	// Compact numeric dates satisfy both checks; numbers are checked first.
	if got := SuggestType([]string{"20240115", "20240116", "20240117"}); got != ColumnNumber {
		t.Errorf("SuggestType() = %q, want %q", got, ColumnNumber)
	}
}

func TestSuggestType_Deterministic(t *testing.T) {
	values := []string{"2024-01-15", "n/a", "2024-01-17", "2024-01-18", "2024-01-19"}
	first := SuggestType(values)
	for i := 0; i < 10; i++ {
		if got := SuggestType(values); got != first {
			t.Fatalf("run %d: SuggestType() = %q, want %q", i, got, first)
		}
	}
}

func TestSuggestColumns(t *testing.T) {
	headers := []string{"id", "name", "joined", "id"}
	rows := [][]string{
		{"1", "Ann", "2024-01-01", "9"},
		{"2", "Bob", "2024-02-01", "8"},
		{"3", "Cy", "", "7"},
		{"4", "Di", "", "6"},
		{"x", "Ed", "", "5"},
	}

	cols := SuggestColumns(headers, rows)
	if len(cols) != len(headers) {
		t.Fatalf("len(cols) = %d, want %d", len(cols), len(headers))
	}

	want := []ColumnType{ColumnNumber, ColumnText, ColumnDate, ColumnNumber}
	for i, c := range cols {
		if c.Name != headers[i] {
			t.Errorf("cols[%d].Name = %q, want %q", i, c.Name, headers[i])
		}
		if c.SuggestedType != want[i] {
			t.Errorf("cols[%d].SuggestedType = %q, want %q", i, c.SuggestedType, want[i])
		}
		if c.AssignedType != c.SuggestedType {
			t.Errorf("cols[%d].AssignedType = %q, want suggested %q", i, c.AssignedType, c.SuggestedType)
		}
	}
}

func TestSuggestColumns_ShortRows(t *testing.T) {
	cols := SuggestColumns([]string{"a", "b"}, [][]string{{"1"}, {"2"}})
	if cols[0].SuggestedType != ColumnNumber {
		t.Errorf("cols[0] = %q, want number", cols[0].SuggestedType)
	}
	if cols[1].SuggestedType != ColumnText {
		t.Errorf("cols[1] = %q, want text", cols[1].SuggestedType)
	}
}

func BenchmarkSuggestType(b *testing.B) {
	values := make([]string, 100)
	for i := range values {
		values[i] = fmt.Sprintf("2024-01-%02d", i%28+1)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SuggestType(values)
	}
}
