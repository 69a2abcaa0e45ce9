// Package idea defines the IdeaSpark domain model: the persisted idea
// record, its enumerated metadata fields, and the shape returned by the
// AI extraction service.
//
// An [Idea] is the unit of persistence. Records are owned by exactly one
// user and ordered by creation time in every listing. Identity fields
// (ID, OwnerID, CreatedAt) are immutable after creation; all writes that
// touch an existing record go through field-level patches that never
// carry the ID.
package idea

import "time"

// Status tracks an idea's lifecycle stage. New records always start at
// [StatusIdea]; the status only changes through an explicit update.
type Status string

const (
	StatusIdea        Status = "Idea"
	StatusDevelopment Status = "Development"
	StatusTesting     Status = "Testing"
	StatusPublished   Status = "Published"
)

// IsValid reports whether s is a recognised status.
func (s Status) IsValid() bool {
	switch s {
	case StatusIdea, StatusDevelopment, StatusTesting, StatusPublished:
		return true
	}
	return false
}

// Category classifies an idea by the context it belongs to.
type Category string

const (
	CategoryWork        Category = "Work"
	CategoryLeisure     Category = "Leisure"
	CategorySideProject Category = "Side Project"
	CategoryOther       Category = "Other"
)

// IsValid reports whether c is a recognised category.
func (c Category) IsValid() bool {
	switch c {
	case CategoryWork, CategoryLeisure, CategorySideProject, CategoryOther:
		return true
	}
	return false
}

// Platform names the primary target device class for an idea.
type Platform string

const (
	PlatformDesktop Platform = "Desktop"
	PlatformMobile  Platform = "Mobile"
	PlatformTablet  Platform = "Tablet"
	PlatformTV      Platform = "TV"
)

// IsValid reports whether p is a recognised platform.
func (p Platform) IsValid() bool {
	switch p {
	case PlatformDesktop, PlatformMobile, PlatformTablet, PlatformTV:
		return true
	}
	return false
}

// Idea is a persisted idea record.
type Idea struct {
	// ID is the store-assigned record identifier. Immutable. Never part
	// of a write payload — it addresses the record, it is not data.
	ID string `json:"id"`

	// OwnerID identifies the user who owns this record. Immutable.
	OwnerID string `json:"userId"`

	// Title is a short display name for the idea.
	Title string `json:"title"`

	// Description is a one-or-two sentence summary.
	Description string `json:"description"`

	// Status is the lifecycle stage. Always [StatusIdea] on creation.
	Status Status `json:"status"`

	// Category classifies the idea.
	Category Category `json:"category"`

	// Importance ranks the idea from 1 (lowest) to 5 (highest). The
	// range is enforced by contract with the extraction and mutation
	// services, not re-validated here.
	Importance int `json:"importance"`

	// TargetAudience is a free-text audience description.
	TargetAudience string `json:"targetAudience"`

	// Platform is the primary target device class.
	Platform Platform `json:"platform"`

	// AppURL is an optional link to a deployed app or repository.
	AppURL string `json:"appUrl,omitempty"`

	// Blueprint is the long-form technical write-up in markdown with a
	// fixed section structure (System Architecture, Core Functionality,
	// Database Schema, Roadmap).
	Blueprint string `json:"devPrompt"`

	// CreatedAt is set once when the record is created. Immutable.
	CreatedAt time.Time `json:"createdAt"`

	// Tags are searchable labels produced by the extraction service.
	Tags []string `json:"tags"`

	// ImageURL references the illustrative image. Empty on creation and
	// filled asynchronously; a record without an image is valid.
	ImageURL string `json:"imageUrl,omitempty"`
}

// Analysis is the structured output of the idea extraction service for a
// single spoken transcript. It is the [Idea] shape minus the fields the
// caller owns (identity, status, URLs, image, timestamp).
type Analysis struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       Category `json:"category"`
	Importance     int      `json:"importance"`
	TargetAudience string   `json:"targetAudience"`
	Platform       Platform `json:"platform"`
	Tags           []string `json:"tags"`
	Blueprint      string   `json:"devPrompt"`
}
