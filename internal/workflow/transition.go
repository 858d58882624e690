package workflow

import (
	"fmt"
	"strings"

	dErrors "loankyc/pkg/domain-errors"
)

// Action names a requested transition.
type Action string

const (
	ActionSubmit           Action = "submit"
	ActionStartReview      Action = "start_review"
	ActionApprove          Action = "approve"
	ActionReject           Action = "reject"
	ActionReturn           Action = "return_to_client"
	ActionResubmit         Action = "resubmit"
	ActionUpdateRiskRating Action = "update_risk_rating"

	// ActionUploadDocument is guarded like a transition but never changes
	// status.
	ActionUploadDocument Action = "upload_document"
)

func (a Action) String() string { return string(a) }

// InvalidTransitionError reports an action attempted from a status that does
// not allow it. Callers recover by re-reading state.
type InvalidTransitionError struct {
	Current   string
	Attempted Action
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s from status %s", strings.ReplaceAll(string(e.Attempted), "_", " "), e.Current)
}

func (e *InvalidTransitionError) ErrorCode() dErrors.Code { return dErrors.CodeInvalidTransition }

// NewInvalidTransition builds an InvalidTransitionError from any status type.
func NewInvalidTransition[S ~string](current S, attempted Action) error {
	return &InvalidTransitionError{Current: string(current), Attempted: attempted}
}

// RequireReason trims and checks a mandatory reason.
func RequireReason(reason string) (string, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return "", dErrors.New(dErrors.CodeValidation, "reason is required")
	}
	return reason, nil
}
