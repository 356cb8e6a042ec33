package prodflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// The store is the sole source of truth for row and ordinal allocation: both
// scans re-read the column on every call, so the system stays correct across
// restarts as long as prior writes landed.
const (
	recordScanStart = 6
	recordScanEnd   = 1000
)

func columnRange(record, column string, startRow, endRow int) string {
	return fmt.Sprintf("%s!%s%d:%s%d", record, column, startRow, column, endRow)
}

func scanColumn(ctx context.Context, client SheetClient, storeID, record, column string) ([][]string, error) {
	return client.ReadRange(ctx, storeID, columnRange(record, column, recordScanStart, recordScanEnd))
}

// NextAvailableRow returns the first row at or after the header offset whose
// cell in the given column is empty, appending past the end when none is.
func NextAvailableRow(ctx context.Context, client SheetClient, storeID, record, column string) (int, error) {
	rows, err := scanColumn(ctx, client, storeID, record, column)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			return recordScanStart + i, nil
		}
	}
	return recordScanStart + len(rows), nil
}

// NextOrdinal returns max over cells matching "#<digits>" plus one, or 1 when
// no cell matches. Malformed tokens are ignored, not errors. The ordinal scan
// is independent of the empty-row scan: a row can hold a title without an
// ordinal or vice versa.
func NextOrdinal(ctx context.Context, client SheetClient, storeID, record, column string) (int, error) {
	rows, err := scanColumn(ctx, client, storeID, record, column)
	if err != nil {
		return 0, err
	}
	max := 0
	for _, row := range rows {
		if len(row) == 0 {
			continue
		}
		if n, ok := ParseOrdinalToken(row[0]); ok && n > max {
			max = n
		}
	}
	return max + 1, nil
}

// FindRowByOrdinal returns the row whose ordinal cell equals the given
// ordinal token, or 0 when no row matches.
func FindRowByOrdinal(ctx context.Context, client SheetClient, storeID, record, column string, ordinal int) (int, error) {
	rows, err := scanColumn(ctx, client, storeID, record, column)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		if n, ok := ParseOrdinalToken(row[0]); ok && n == ordinal {
			return recordScanStart + i, nil
		}
	}
	return 0, nil
}

func ParseOrdinalToken(cell string) (int, bool) {
	cell = strings.TrimSpace(cell)
	if !strings.HasPrefix(cell, "#") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimPrefix(cell, "#"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

func OrdinalToken(n int) string {
	return "#" + strconv.Itoa(n)
}
