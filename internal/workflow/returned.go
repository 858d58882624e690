// Package workflow holds the vocabulary shared by every reviewable record in the
// system: client KYC records and loan applications both move through the same
// submit/review/return shape and attach the same structured correction list.
package workflow

import (
	"strings"

	id "loankyc/pkg/domain"
	dErrors "loankyc/pkg/domain-errors"
)

// ItemType says which part of a submission a returned item points at.
type ItemType string

const (
	ItemDocument     ItemType = "document"
	ItemField        ItemType = "field"
	ItemAmount       ItemType = "amount"
	ItemTerm         ItemType = "term"
	ItemPurpose      ItemType = "purpose"
	ItemPersonalInfo ItemType = "personal_info"
	ItemEmployment   ItemType = "employment"
	ItemOther        ItemType = "other"
)

var validItemTypes = map[ItemType]bool{
	ItemDocument:     true,
	ItemField:        true,
	ItemAmount:       true,
	ItemTerm:         true,
	ItemPurpose:      true,
	ItemPersonalInfo: true,
	ItemEmployment:   true,
	ItemOther:        true,
}

func (t ItemType) IsValid() bool { return validItemTypes[t] }

// ReturnedItem is one correction instruction attached to a return.
//
// Invariants:
//   - Message is non-empty
//   - DocumentType is set iff Type == document
//   - Field is set iff Type == field
type ReturnedItem struct {
	Type         ItemType        `json:"type"`
	DocumentType id.DocumentType `json:"documentType,omitempty"`
	Field        string          `json:"field,omitempty"`
	Message      string          `json:"message"`
}

// Normalize trims free-text fields and canonicalizes casing.
func (i *ReturnedItem) Normalize() {
	i.Type = ItemType(strings.ToLower(strings.TrimSpace(string(i.Type))))
	i.DocumentType = id.DocumentType(strings.ToUpper(strings.TrimSpace(string(i.DocumentType))))
	i.Field = strings.TrimSpace(i.Field)
	i.Message = strings.TrimSpace(i.Message)
}

// Validate checks a single, already-normalized item.
func (i ReturnedItem) Validate() error {
	if !i.Type.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "returned item type is not supported")
	}
	if i.Message == "" {
		return dErrors.New(dErrors.CodeValidation, "returned item message is required")
	}
	switch i.Type {
	case ItemDocument:
		if i.DocumentType == "" {
			return dErrors.New(dErrors.CodeValidation, "document items require documentType")
		}
		if !i.DocumentType.IsValid() {
			return dErrors.New(dErrors.CodeValidation, "document items reference an unsupported documentType")
		}
		if i.Field != "" {
			return dErrors.New(dErrors.CodeValidation, "document items must not set field")
		}
	case ItemField:
		if i.Field == "" {
			return dErrors.New(dErrors.CodeValidation, "field items require field")
		}
		if i.DocumentType != "" {
			return dErrors.New(dErrors.CodeValidation, "field items must not set documentType")
		}
	default:
		if i.DocumentType != "" || i.Field != "" {
			return dErrors.New(dErrors.CodeValidation, "only document and field items may reference a documentType or field")
		}
	}
	return nil
}

// PrepareReturn normalizes and validates a return request. It returns a fresh
// slice so the caller's input is never aliased into stored state.
func PrepareReturn(reason string, items []ReturnedItem) (string, []ReturnedItem, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", nil, dErrors.New(dErrors.CodeValidation, "return reason is required")
	}
	if len(items) == 0 {
		return "", nil, dErrors.New(dErrors.CodeValidation, "at least one returned item is required")
	}
	out := make([]ReturnedItem, len(items))
	for i, item := range items {
		item.Normalize()
		if err := item.Validate(); err != nil {
			return "", nil, err
		}
		out[i] = item
	}
	return reason, out, nil
}

// Cues splits returned items into the two prompts shown to a client: fields to
// edit and documents to upload. Order within each list follows the input.
type Cues struct {
	Edit   []ReturnedItem `json:"edit"`
	Upload []ReturnedItem `json:"upload"`
}

func SplitCues(items []ReturnedItem) Cues {
	var c Cues
	for _, item := range items {
		if item.Type == ItemDocument {
			c.Upload = append(c.Upload, item)
			continue
		}
		c.Edit = append(c.Edit, item)
	}
	return c
}

// CloneItems copies items so stored records never share backing arrays.
func CloneItems(items []ReturnedItem) []ReturnedItem {
	if items == nil {
		return nil
	}
	return append([]ReturnedItem(nil), items...)
}
