package domain

import "time"

// SourceKind identifies where a dataset came from
type SourceKind string

const (
	SourceFile   SourceKind = "file"
	SourceAPI    SourceKind = "api"
	SourceURL    SourceKind = "url"
	SourceJSON   SourceKind = "json"
	SourceSheets SourceKind = "sheets"
)

// SourceDescriptor accompanies every ingested dataset
type SourceDescriptor struct {
	Kind        SourceKind `json:"kind"`
	Location    string     `json:"location"`
	Filename    string     `json:"filename,omitempty"`
	Format      string     `json:"format,omitempty"`
	Size        int64      `json:"size,omitempty"`
	ContentType string     `json:"content_type,omitempty"`
	IngestedAt  time.Time  `json:"ingested_at"`
}

// DatasetInfo is the catalogue entry of a stored dataset
type DatasetInfo struct {
	ID       string           `json:"id"`
	Source   SourceDescriptor `json:"source"`
	Rows     int              `json:"rows"`
	Columns  []string         `json:"columns"`
	ParentID string           `json:"parent_id,omitempty"`
	Stage    string           `json:"stage"`
}
