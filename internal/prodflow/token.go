package prodflow

import (
	"fmt"
	"strconv"
	"strings"
)

type TokenKind string

const (
	KindSelectDate   TokenKind = "select_date"
	KindSelectEditor TokenKind = "select_editor"
	KindSelectThumb  TokenKind = "select_thumb"
)

// tokenDelimiter may not occur inside any field: store and record
// identifiers are platform-generated opaque strings and row indexes are
// numeric.
const tokenDelimiter = "|"

const tokenFieldCount = 7

// InteractionToken correlates a follow-up control activation back to its
// record rows without server-side session state. The token is the state: it
// is encoded once when the controls are rendered and decoded once per
// activation.
type InteractionToken struct {
	Kind                TokenKind
	StoreID             string
	RecordName          string
	AggregateRecordName string
	Type                WorkflowType
	RowIndex            int
	AggregateRowIndex   int
}

func (t InteractionToken) Encode() string {
	return strings.Join([]string{
		string(t.Kind),
		t.StoreID,
		t.RecordName,
		t.AggregateRecordName,
		string(t.Type),
		strconv.Itoa(t.RowIndex),
		strconv.Itoa(t.AggregateRowIndex),
	}, tokenDelimiter)
}

func DecodeInteractionToken(raw string) (InteractionToken, error) {
	parts := strings.Split(raw, tokenDelimiter)
	if len(parts) != tokenFieldCount {
		return InteractionToken{}, fmt.Errorf("%w: expected %d fields, got %d", ErrBadToken, tokenFieldCount, len(parts))
	}
	kind := TokenKind(parts[0])
	switch kind {
	case KindSelectDate, KindSelectEditor, KindSelectThumb:
	default:
		return InteractionToken{}, fmt.Errorf("%w: unknown kind %q", ErrBadToken, parts[0])
	}
	workflowType := WorkflowType(parts[4])
	if workflowType != TypeShort && workflowType != TypeLong {
		return InteractionToken{}, fmt.Errorf("%w: unknown type %q", ErrBadToken, parts[4])
	}
	rowIndex, err := strconv.Atoi(parts[5])
	if err != nil || rowIndex < 1 {
		return InteractionToken{}, fmt.Errorf("%w: bad row index %q", ErrBadToken, parts[5])
	}
	aggregateRowIndex, err := strconv.Atoi(parts[6])
	if err != nil || aggregateRowIndex < 0 {
		return InteractionToken{}, fmt.Errorf("%w: bad aggregate row index %q", ErrBadToken, parts[6])
	}
	if strings.TrimSpace(parts[1]) == "" || strings.TrimSpace(parts[2]) == "" {
		return InteractionToken{}, fmt.Errorf("%w: missing store or record", ErrBadToken)
	}
	return InteractionToken{
		Kind:                kind,
		StoreID:             parts[1],
		RecordName:          parts[2],
		AggregateRecordName: parts[3],
		Type:                workflowType,
		RowIndex:            rowIndex,
		AggregateRowIndex:   aggregateRowIndex,
	}, nil
}
