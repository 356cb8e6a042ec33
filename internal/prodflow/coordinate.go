package prodflow

// Per-type column layout of the production records. The aggregate record has
// its own layout that does not vary by type.
func OrdinalColumn(t WorkflowType) string {
	if t == TypeShort {
		return "E"
	}
	return "F"
}

func TitleColumn(t WorkflowType) string {
	if t == TypeShort {
		return "F"
	}
	return "G"
}

func DateColumn(t WorkflowType) string {
	if t == TypeShort {
		return "G"
	}
	return "H"
}

func EditorColumn(t WorkflowType) string {
	if t == TypeShort {
		return "H"
	}
	return "I"
}

func ThumbColumn(t WorkflowType) string {
	return "K"
}

const (
	aggregateOrdinalColumn = "F"
	aggregateTitleColumn   = "G"
	aggregateDateColumn    = "H"
	aggregateEditorColumn  = "I"
	aggregateThumbColumn   = "K"
)

func aggregateColumnForKind(kind TokenKind) string {
	switch kind {
	case KindSelectDate:
		return aggregateDateColumn
	case KindSelectEditor:
		return aggregateEditorColumn
	case KindSelectThumb:
		return aggregateThumbColumn
	default:
		return ""
	}
}

func columnForKind(kind TokenKind, t WorkflowType) string {
	switch kind {
	case KindSelectDate:
		return DateColumn(t)
	case KindSelectEditor:
		return EditorColumn(t)
	case KindSelectThumb:
		return ThumbColumn(t)
	default:
		return ""
	}
}

// RecordCoordinate is derived once per creation event and carried forward in
// interaction tokens. RowIndex is the first empty row at allocation time;
// Ordinal is the human-facing "#N" sequence, independent of RowIndex.
type RecordCoordinate struct {
	StoreID           string
	RecordName        string
	Type              WorkflowType
	RowIndex          int
	Ordinal           int
	AggregateRecord   string
	AggregateRowIndex int
	AggregateOrdinal  int
}
