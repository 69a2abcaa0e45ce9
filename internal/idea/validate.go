package idea

import (
	"errors"
	"fmt"
)

// ValidateAnalysis checks that an extraction-service response carries the
// required fields and recognised enum values.
//
// Rules:
//   - Title and Description must be non-empty.
//   - Category and Platform must be recognised values.
//   - Importance must be in [1, 5].
//   - Blueprint must be non-empty.
func ValidateAnalysis(a Analysis) error {
	var errs []error

	if a.Title == "" {
		errs = append(errs, errors.New("title must not be empty"))
	}
	if a.Description == "" {
		errs = append(errs, errors.New("description must not be empty"))
	}
	if !a.Category.IsValid() {
		errs = append(errs, fmt.Errorf("category %q is not a recognised category", a.Category))
	}
	if !a.Platform.IsValid() {
		errs = append(errs, fmt.Errorf("platform %q is not a recognised platform", a.Platform))
	}
	if a.Importance < 1 || a.Importance > 5 {
		errs = append(errs, fmt.Errorf("importance %d is out of range [1, 5]", a.Importance))
	}
	if a.Blueprint == "" {
		errs = append(errs, errors.New("devPrompt must not be empty"))
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Fields flattens an Idea into a field-level write payload for the record
// store. The ID is deliberately absent: write payloads never contain the
// identifier field.
func (i Idea) Fields() map[string]any {
	tags := i.Tags
	if tags == nil {
		tags = []string{}
	}
	return map[string]any{
		"userId":         i.OwnerID,
		"title":          i.Title,
		"description":    i.Description,
		"status":         i.Status,
		"category":       i.Category,
		"importance":     i.Importance,
		"targetAudience": i.TargetAudience,
		"platform":       i.Platform,
		"appUrl":         i.AppURL,
		"devPrompt":      i.Blueprint,
		"createdAt":      i.CreatedAt,
		"tags":           tags,
		"imageUrl":       i.ImageURL,
	}
}
