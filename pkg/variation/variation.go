// Package variation manages change orders raised against a project and the
// status flow that takes them from draft to an approved or rejected decision.
package variation

import (
	"errors"
	"fmt"
	"time"

	"github.com/costwise/costwise/pkg/match"
	"github.com/costwise/costwise/pkg/money"
)

var (
	ErrVariationNotFound = errors.New("variation not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrNotDraft          = errors.New("variation can only be edited in draft")
	ErrUnlinked          = errors.New("variation must be linked to a cost line before approval")
	ErrInvalidCategory   = errors.New("unknown variation category")
	ErrApprovedImmutable = errors.New("approved variations cannot be deleted")
)

type Status string

const (
	StatusDraft     Status = "draft"
	StatusSubmitted Status = "submitted"
	StatusApproved  Status = "approved"
	StatusRejected  Status = "rejected"
)

// transitions lists the allowed status moves. Approved is terminal, a
// rejected variation can be reopened as a draft.
var transitions = map[Status][]Status{
	StatusDraft:     {StatusSubmitted},
	StatusSubmitted: {StatusApproved, StatusRejected},
	StatusRejected:  {StatusDraft},
}

func canTransition(from Status, to Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

type Category string

const (
	CategoryClientInstruction Category = "client_instruction"
	CategoryDesignDevelopment Category = "design_development"
	CategorySiteCondition     Category = "site_condition"
	CategoryProvisionalSum    Category = "provisional_sum"
	CategoryOther             Category = "other"
)

func validCategory(c Category) bool {
	switch c {
	case CategoryClientInstruction, CategoryDesignDevelopment, CategorySiteCondition,
		CategoryProvisionalSum, CategoryOther:
		return true
	}
	return false
}

// Variation is a change order. Amount may be negative for omissions. Only
// approved variations feed the cost plan forecast.
type Variation struct {
	Uid        string
	ProjectUid string
	// CostLineUid is empty until the variation is linked to a cost line.
	CostLineUid string
	// Number is assigned on creation and unique per project.
	Number      int
	Title       string
	Detail      string
	Category    Category
	Amount      money.Cents
	Status      Status
	MatchScore  float64
	MatchMethod match.Method
	// SubmittedAt and DecidedAt stay zero until the respective transition.
	SubmittedAt time.Time
	DecidedAt   time.Time
	CreatedAt   time.Time
}

// Code renders the number the way it appears on site paperwork, "VO-007".
func (v Variation) Code() string {
	return fmt.Sprintf("VO-%03d", v.Number)
}
