package model

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ErrInvalidStatus is returned when a signal status value is outside the
// legal set. The record is never mutated on rejection.
var ErrInvalidStatus = errors.New("model: invalid signal status")

// SourceFailureLimit is the consecutive-failure count at which a source is
// auto-disabled. The flag is sticky; clearing it is a manual operation.
const SourceFailureLimit = 5

// Source is an external feed the ingest stage pulls from. Health tracking is
// independent of any individual content item.
type Source struct {
	ID                     uuid.UUID  `json:"id"`
	Name                   string     `json:"name"`
	FeedURL                string     `json:"feed_url"`
	Active                 bool       `json:"active"`
	AutoDisabled           bool       `json:"auto_disabled"`
	ConsecutiveFailures    int        `json:"consecutive_failures"`
	ReliabilityScore       float64    `json:"reliability_score"`
	LastIngestedAt         *time.Time `json:"last_ingested_at,omitempty"`
	LastSuccessfulIngestAt *time.Time `json:"last_successful_ingest_at,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
}

// Ingestable reports whether the ingest stage should pull from this source.
func (s Source) Ingestable() bool {
	return s.Active && !s.AutoDisabled
}

// SignalStatus is the triage state of a signal.
type SignalStatus string

const (
	SignalPending  SignalStatus = "pending"
	SignalFlagged  SignalStatus = "flagged"
	SignalApproved SignalStatus = "approved"
	SignalArchived SignalStatus = "archived"
)

// ValidSignalStatus reports whether status is one of the four legal values.
func ValidSignalStatus(status SignalStatus) bool {
	switch status {
	case SignalPending, SignalFlagged, SignalApproved, SignalArchived:
		return true
	}
	return false
}

// Signal is one triaged news item produced by the ingest stage.
// approved and archived are terminal for the automated path; operators may
// still move a signal between any two legal states manually.
type Signal struct {
	ID              uuid.UUID    `json:"id"`
	SourceID        uuid.UUID    `json:"source_id"`
	Title           string       `json:"title"`
	URL             string       `json:"url"`
	Summary         string       `json:"summary"`
	Status          SignalStatus `json:"status"`
	ConfidenceScore float64      `json:"confidence_score"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// Article is a synthesized piece created from an approved signal.
// IsDraft flips false exactly once at publish time.
type Article struct {
	ID          uuid.UUID  `json:"id"`
	SignalID    *uuid.UUID `json:"signal_id,omitempty"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	IsDraft     bool       `json:"is_draft"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// SpendRecord is one append-only entry in the spend ledger. Ceiling checks
// sum CostUsd over calendar windows.
type SpendRecord struct {
	ID           uuid.UUID  `json:"id"`
	ItemID       *uuid.UUID `json:"item_id,omitempty"`
	Model        string     `json:"model"`
	PromptName   string     `json:"prompt_name"`
	InputTokens  int        `json:"input_tokens"`
	OutputTokens int        `json:"output_tokens"`
	CostUsd      float64    `json:"cost_usd"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Validate checks a spend record before it enters the ledger.
func (r SpendRecord) Validate() error {
	if r.Model == "" {
		return fmt.Errorf("model: spend record missing model identifier")
	}
	if r.CostUsd < 0 {
		return fmt.Errorf("model: spend record cost must not be negative")
	}
	return nil
}
