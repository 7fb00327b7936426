package types

import "time"

// RawVoterRecord is a voter row as returned by the extraction service,
// before normalization. Field presence is not guaranteed; the aggregator
// validates and normalizes before anything is persisted.
type RawVoterRecord struct {
	SerialNumber string `json:"serial_number,omitempty"`
	Name         string `json:"name,omitempty"`
	RelativeName string `json:"relative_name,omitempty"`
	RelationType string `json:"relation_type,omitempty"`
	HouseNumber  string `json:"house_number,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Age          string `json:"age,omitempty"`
	PhotoID      string `json:"photo_id,omitempty"`
	LocationName string `json:"location_name,omitempty"`

	// Page is the document page the record was read from, when the model
	// reports it. Used for boundary deduplication between adjacent segments.
	Page int `json:"page,omitempty"`
}

// Voter is a canonical extracted voter record. Voters are created only by
// the aggregator and carry full provenance back to the attempt that
// produced them.
type Voter struct {
	ID           string `json:"id"`
	DocumentID   string `json:"document_id"`
	SerialNumber int    `json:"serial_number,omitempty"`
	Name         string `json:"name"`
	RelativeName string `json:"relative_name,omitempty"`
	RelationType string `json:"relation_type,omitempty"`
	HouseNumber  string `json:"house_number,omitempty"`
	Gender       string `json:"gender,omitempty"`
	Age          int    `json:"age,omitempty"`
	PhotoID      string `json:"photo_id,omitempty"`

	// Fingerprint is the normalized hash of the record's identifying
	// fields, used for idempotent merges and boundary deduplication.
	Fingerprint string `json:"fingerprint"`

	// Provenance.
	RunID     string `json:"run_id"`
	SegmentID string `json:"segment_id"`
	AttemptID string `json:"attempt_id"`

	// LocationID references resolved constituency data. Empty when the
	// record's free-text location could not be matched; such records are
	// flagged for review rather than dropped.
	LocationID  string    `json:"location_id,omitempty"`
	NeedsReview bool      `json:"needs_review,omitempty"`
	Page        int       `json:"page,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
