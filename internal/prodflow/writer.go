package prodflow

import (
	"context"
	"fmt"
	"sort"
)

// RecordWriter applies field writes to one record row. Multiple fields for
// the same record go out as a single batched write so partially visible
// state never appears within one record. Primary and aggregate records are
// written by separate calls and are not transactional with each other.
type RecordWriter struct {
	client SheetClient
}

func NewRecordWriter(client SheetClient) *RecordWriter {
	return &RecordWriter{client: client}
}

func (w *RecordWriter) WriteFields(ctx context.Context, storeID, record string, rowIndex int, fields map[string]string) error {
	if w == nil || w.client == nil {
		return fmt.Errorf("record writer is not configured")
	}
	if rowIndex < 1 || len(fields) == 0 {
		return ErrInvalidInput
	}
	columns := make([]string, 0, len(fields))
	for column := range fields {
		columns = append(columns, column)
	}
	sort.Strings(columns)

	if len(columns) == 1 {
		column := columns[0]
		return w.client.WriteCell(ctx, storeID, cellRange(record, column, rowIndex), fields[column])
	}
	writes := make([]CellWrite, 0, len(columns))
	for _, column := range columns {
		writes = append(writes, CellWrite{
			Range: cellRange(record, column, rowIndex),
			Value: fields[column],
		})
	}
	return w.client.BatchWrite(ctx, storeID, writes)
}

func cellRange(record, column string, row int) string {
	return fmt.Sprintf("%s!%s%d", record, column, row)
}
