// Package api contains the HTTP contract of the data engine.
// Version v1 represents the current stable API version.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Dataset API Requests

// IngestRequest ingests one source, or a batch when Sources is set.
// A single source is the request body itself: {"type": "api", "url": ...}.
type IngestRequest struct {
	Type    string            `json:"type,omitempty" validate:"omitempty,oneof=api url json sheets"`
	Sources []json.RawMessage `json:"sources,omitempty" validate:"omitempty,max=50"`

	raw json.RawMessage
}

// Raw returns the undecoded body of a single-source request
func (r *IngestRequest) Raw() json.RawMessage {
	return r.raw
}

// UnmarshalJSON keeps the raw body so the source can be decoded by type
func (r *IngestRequest) UnmarshalJSON(data []byte) error {
	type plain IngestRequest
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	*r = IngestRequest(p)
	r.raw = append(json.RawMessage(nil), data...)
	return nil
}

// Bind implements render.Binder
func (r *IngestRequest) Bind(_ *http.Request) error {
	if r.Type == "" && len(r.Sources) == 0 {
		return errors.New("type or sources is required")
	}
	return nil
}

// NormalizeRequest runs ad-hoc normalization rules, or the pattern-driven
// default pass when Default is true
type NormalizeRequest struct {
	Rules   []json.RawMessage `json:"rules,omitempty" validate:"omitempty,max=100"`
	Default bool              `json:"default,omitempty"`
}

// Bind implements render.Binder
func (r *NormalizeRequest) Bind(_ *http.Request) error {
	if !r.Default && len(r.Rules) == 0 {
		return errors.New("rules are required unless default is set")
	}
	return nil
}

// ApplyRulesRequest names the stored rules to apply. Empty means all rules of the kind.
type ApplyRulesRequest struct {
	Names []string `json:"names,omitempty" validate:"omitempty,dive,required,max=200"`
}

// Bind implements render.Binder
func (r *ApplyRulesRequest) Bind(_ *http.Request) error {
	return nil
}

// Rule API Requests

// RulePath identifies a stored rule
type RulePath struct {
	Kind string `json:"kind" validate:"required,rule_kind"`
	Name string `json:"name" validate:"required,max=200"`
}

// Job API Requests

// JobListRequest filters the job listing
type JobListRequest struct {
	Status    string `json:"status" query:"status" validate:"omitempty,oneof=pending running completed failed cancelled"`
	Kind      string `json:"kind" query:"kind" validate:"omitempty,max=100"`
	DatasetID string `json:"dataset_id" query:"dataset_id" validate:"omitempty,max=100"`
	Limit     int    `json:"limit" query:"limit" validate:"min=0,max=1000"`
	Since     string `json:"since" query:"since" validate:"omitempty,iso8601"`
}

// UploadRequest describes the multipart upload envelope
type UploadRequest struct {
	Filename string `json:"filename" validate:"required,filename"`
}
