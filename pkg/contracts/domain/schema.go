package domain

// SemanticType is the inferred meaning of a column's values
type SemanticType string

const (
	TypeDatetime    SemanticType = "datetime"
	TypeNumeric     SemanticType = "numeric"
	TypeBoolean     SemanticType = "boolean"
	TypeCategorical SemanticType = "categorical"
	TypeString      SemanticType = "string"
	TypeUnknown     SemanticType = "unknown"
)

// PatternFamily is a name-driven domain tag for a column
type PatternFamily string

const (
	PatternNone            PatternFamily = ""
	PatternDate            PatternFamily = "date_columns"
	PatternAmount          PatternFamily = "amount_columns"
	PatternTransactionType PatternFamily = "type_columns"
	PatternAccount         PatternFamily = "account_columns"
)

// ColumnProfile describes one column of a SchemaDocument
type ColumnProfile struct {
	Type           SemanticType  `json:"type"`
	Pattern        PatternFamily `json:"pattern,omitempty"`
	UniqueCount    int           `json:"unique_values"`
	NullCount      int           `json:"null_count"`
	NullPercentage float64       `json:"null_percentage"`
	SampleValues   []Value       `json:"sample_values"`
}

// NullColumn names a column whose null share exceeds the quality threshold
type NullColumn struct {
	Column         string  `json:"column"`
	NullPercentage float64 `json:"null_percentage"`
}

// TypeIssue flags a column whose storage disagrees with its content
type TypeIssue struct {
	Column string `json:"column"`
	Issue  string `json:"issue"`
}

// DataQuality holds dataset-level quality flags
type DataQuality struct {
	DuplicateRows     int          `json:"duplicate_rows"`
	NullColumns       []NullColumn `json:"null_columns"`
	InconsistentTypes []TypeIssue  `json:"inconsistent_types"`
}

// SchemaDocument is a read-only profile of a dataset at one point in time
type SchemaDocument struct {
	TotalRows       int                      `json:"total_rows"`
	TotalColumns    int                      `json:"total_columns"`
	ColumnOrder     []string                 `json:"column_order"`
	Columns         map[string]ColumnProfile `json:"column_info"`
	DataQuality     DataQuality              `json:"data_quality"`
	DateColumns     []string                 `json:"date_columns"`
	NumericColumns  []string                 `json:"numeric_columns"`
	CurrencyColumns []string                 `json:"currency_columns"`
	Patterns        map[string]PatternFamily `json:"hsbc_patterns"`
}

// ColumnsWithPattern returns the columns tagged with family, in column order
func (s SchemaDocument) ColumnsWithPattern(family PatternFamily) []string {
	var out []string
	for _, c := range s.ColumnOrder {
		if s.Patterns[c] == family {
			out = append(out, c)
		}
	}
	return out
}
