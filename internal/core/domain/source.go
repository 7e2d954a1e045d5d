package domain

import "time"

// Source represents a literature record selected for extraction.
// ID is the client-side identifier; PersistedID is assigned by the
// reference-library service once the record is saved.
type Source struct {
	ID          string    `json:"id"          db:"id"`
	PersistedID string    `json:"persisted_id" db:"persisted_id"`
	Title       string    `json:"title"       db:"title"`
	DOI         string    `json:"doi"         db:"doi"`
	ExternalID  string    `json:"external_id" db:"external_id"`
	Authors     []string  `json:"authors"     db:"-"`
	Journal     string    `json:"journal"     db:"journal"`
	Year        int       `json:"year"        db:"year"`
	Abstract    string    `json:"abstract"    db:"abstract"`
	FullText    string    `json:"full_text"   db:"full_text"`
	URL         string    `json:"url"         db:"url"`
	CreatedAt   time.Time `json:"created_at"  db:"created_at"`
}

// Valid reports whether the source carries the minimum fields required
// to attempt a save: a title plus at least one stable identifier.
func (s *Source) Valid() bool {
	if s.Title == "" {
		return false
	}
	return s.DOI != "" || s.ExternalID != "" || s.ID != ""
}

// ContentTier classifies how much usable content a source carries.
type ContentTier string

const (
	TierFullText         ContentTier = "full_text"
	TierAbstractOverflow ContentTier = "abstract_overflow" // abstract long enough to stand in for full text
	TierAbstract         ContentTier = "abstract"
	TierNone             ContentTier = "none"
)

// SaveReceipt is returned by the persistence collaborator for one record.
type SaveReceipt struct {
	ID        string `json:"id"`
	Duplicate bool   `json:"duplicate"`
}

// ExtractionItem is one prepared entry of the downstream extraction payload.
type ExtractionItem struct {
	PersistedID string      `json:"persisted_id"`
	Title       string      `json:"title"`
	Tier        ContentTier `json:"tier"`
	Content     string      `json:"content"`
	Reason      string      `json:"reason"`
}

// PayloadStats summarizes the prepare stage's keep/drop decisions.
type PayloadStats struct {
	Total            int `json:"total"`
	FullText         int `json:"full_text"`
	AbstractOverflow int `json:"abstract_overflow"`
	Abstract         int `json:"abstract"`
	Dropped          int `json:"dropped"`
}

// ExtractionPayload is the prepared input for the downstream extraction call.
type ExtractionPayload struct {
	RunID string           `json:"run_id"`
	Items []ExtractionItem `json:"items"`
	Stats PayloadStats     `json:"stats"`
}

// ExtractionReport is the downstream extraction service's response. The
// orchestrator treats it as opaque beyond these envelope fields.
type ExtractionReport struct {
	ExtractionID   string    `json:"extraction_id"`
	ItemsProcessed int       `json:"items_processed"`
	CompletedAt    time.Time `json:"completed_at"`
}
