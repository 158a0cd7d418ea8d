package purge

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"riskbot/internal/models"
)

// State of a purge request
type State int

const (
	StateIdle State = iota
	StateConfirming
	StateAwaitingVerification
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConfirming:
		return "confirming"
	case StateAwaitingVerification:
		return "awaiting_verification"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrNoSession is returned when a button refers to a request that is gone
var ErrNoSession = errors.New("purge request no longer valid")

// Callback payloads
const (
	CallbackConfirm = "purge:confirm"
	CallbackCancel  = "purge:cancel"
	verifyPrefix    = "purge_verify:"
)

// VerifyData builds the payload of an approve or deny button
func VerifyData(approve bool, requesterID int64) string {
	decision := "deny"
	if approve {
		decision = "approve"
	}
	return verifyPrefix + decision + ":" + strconv.FormatInt(requesterID, 10)
}

// IsVerifyData reports whether data belongs to a verification button
func IsVerifyData(data string) bool {
	return strings.HasPrefix(data, verifyPrefix)
}

// ParseVerifyData decodes a payload built by VerifyData
func ParseVerifyData(data string) (approve bool, requesterID int64, err error) {
	parts := strings.Split(strings.TrimPrefix(data, verifyPrefix), ":")
	if len(parts) != 2 || !IsVerifyData(data) {
		return false, 0, fmt.Errorf("malformed verification payload %q", data)
	}
	switch parts[0] {
	case "approve":
		approve = true
	case "deny":
	default:
		return false, 0, fmt.Errorf("unknown verification decision %q", parts[0])
	}
	requesterID, err = strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return false, 0, fmt.Errorf("bad requester id in %q: %w", data, err)
	}
	return approve, requesterID, nil
}

// Request is the in-memory state of one purge, keyed by whoever started it
type Request struct {
	RequesterID int64
	TargetID    int64
	// Admin requests purge another user's risks and skip verification
	Admin bool
	State State

	Candidates       []models.Risk
	WithCondition    []models.Risk
	WithoutCondition []models.Risk
	SkippedGroups    []string

	CurrentCondition *models.Condition
	// PromptMessageID is the confirmation message shown to the requester
	PromptMessageID int
}

// Partition splits candidates by whether their group has any condition.
// Every candidate lands in exactly one of the two slices, in input order.
func Partition(candidates []models.Risk, hasCondition func(groupID int64) bool) (with, without []models.Risk) {
	for _, r := range candidates {
		if hasCondition(r.GroupID) {
			with = append(with, r)
		} else {
			without = append(without, r)
		}
	}
	return with, without
}

// SelectCondition picks one condition using pick(n) in [0, n).
// Reports false when there is nothing to pick from.
func SelectCondition(conds []models.Condition, pick func(n int) int) (models.Condition, bool) {
	if len(conds) == 0 {
		return models.Condition{}, false
	}
	return conds[pick(len(conds))], true
}

// Report summarizes one finalized batch
type Report struct {
	Purged    int
	Attempted int
	Deleted   int
	Failed    int
}

// Summary renders the report for the requester
func (r Report) Summary(targetID int64) string {
	var b strings.Builder
	fmt.Fprintf(&b, "✅ Purge complete for user %d.\n\n", targetID)
	fmt.Fprintf(&b, "Marked %d risk(s) as purged.\n", r.Purged)
	if r.Attempted > 0 {
		fmt.Fprintf(&b, "Attempted to delete %d posted message(s):\n", r.Attempted)
		fmt.Fprintf(&b, "  - Successfully deleted: %d\n", r.Deleted)
		fmt.Fprintf(&b, "  - Failed to delete: %d\n", r.Failed)
	}
	if r.Failed > 0 {
		b.WriteString("\n(Failures can happen if a message was already deleted or if I no longer have permission to delete messages in that group.)")
	}
	return b.String()
}
