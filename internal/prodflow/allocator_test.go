package prodflow

import (
	"context"
	"errors"
	"testing"
)

// stubSheet serves canned rows per range and records writes.
type stubSheet struct {
	rows    map[string][][]string
	readErr error
	writes  []CellWrite
	batches [][]CellWrite
}

func (s *stubSheet) ReadRange(_ context.Context, _ string, rangeSpec string) ([][]string, error) {
	if s.readErr != nil {
		return nil, s.readErr
	}
	return s.rows[rangeSpec], nil
}

func (s *stubSheet) WriteCell(_ context.Context, _ string, rangeSpec, value string) error {
	s.writes = append(s.writes, CellWrite{Range: rangeSpec, Value: value})
	return nil
}

func (s *stubSheet) BatchWrite(_ context.Context, _ string, writes []CellWrite) error {
	s.batches = append(s.batches, writes)
	return nil
}

func TestNextAvailableRowFindsFirstGap(t *testing.T) {
	sheet := &stubSheet{rows: map[string][][]string{
		"short!E6:E1000": {{"#1"}, {"#2"}, {}, {"#4"}},
	}}
	row, err := NextAvailableRow(context.Background(), sheet, "store", "short", "E")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != 8 {
		t.Fatalf("expected row 8, got %d", row)
	}
}

func TestNextAvailableRowAppendsPastEnd(t *testing.T) {
	sheet := &stubSheet{rows: map[string][][]string{
		"short!E6:E1000": {{"#1"}, {"#2"}},
	}}
	row, err := NextAvailableRow(context.Background(), sheet, "store", "short", "E")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != 8 {
		t.Fatalf("expected row 8, got %d", row)
	}
}

func TestNextAvailableRowEmptyColumn(t *testing.T) {
	sheet := &stubSheet{rows: map[string][][]string{}}
	row, err := NextAvailableRow(context.Background(), sheet, "store", "short", "E")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != 6 {
		t.Fatalf("expected header offset 6, got %d", row)
	}
}

func TestNextOrdinalIgnoresMalformedTokens(t *testing.T) {
	sheet := &stubSheet{rows: map[string][][]string{
		"long!F6:F1000": {{"#3"}, {"n/a"}, {"#12"}, {"#x"}, {""}, {"#7"}},
	}}
	ordinal, err := NextOrdinal(context.Background(), sheet, "store", "long", "F")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ordinal != 13 {
		t.Fatalf("expected 13, got %d", ordinal)
	}
}

func TestNextOrdinalStartsAtOne(t *testing.T) {
	sheet := &stubSheet{rows: map[string][][]string{}}
	ordinal, err := NextOrdinal(context.Background(), sheet, "store", "long", "F")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ordinal != 1 {
		t.Fatalf("expected 1, got %d", ordinal)
	}
}

func TestNextOrdinalPropagatesReadError(t *testing.T) {
	readErr := errors.New("store unavailable")
	sheet := &stubSheet{readErr: readErr}
	if _, err := NextOrdinal(context.Background(), sheet, "store", "long", "F"); !errors.Is(err, readErr) {
		t.Fatalf("expected read error, got %v", err)
	}
}

func TestFindRowByOrdinal(t *testing.T) {
	sheet := &stubSheet{rows: map[string][][]string{
		"long!F6:F1000": {{"#1"}, {"#2"}, {"#3"}},
	}}
	row, err := FindRowByOrdinal(context.Background(), sheet, "store", "long", "F", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != 7 {
		t.Fatalf("expected row 7, got %d", row)
	}

	row, err = FindRowByOrdinal(context.Background(), sheet, "store", "long", "F", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if row != 0 {
		t.Fatalf("expected 0 for absent ordinal, got %d", row)
	}
}

func TestParseOrdinalToken(t *testing.T) {
	cases := []struct {
		cell string
		n    int
		ok   bool
	}{
		{"#12", 12, true},
		{" #3 ", 3, true},
		{"#0", 0, false},
		{"#-1", 0, false},
		{"12", 0, false},
		{"#", 0, false},
		{"#12a", 0, false},
		{"", 0, false},
	}
	for _, tc := range cases {
		n, ok := ParseOrdinalToken(tc.cell)
		if n != tc.n || ok != tc.ok {
			t.Errorf("ParseOrdinalToken(%q) = (%d, %v), want (%d, %v)", tc.cell, n, ok, tc.n, tc.ok)
		}
	}
}
