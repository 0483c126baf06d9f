// Package fanout decomposes one group-level calendar operation into
// independent per-member sub-operations and aggregates the outcomes. There is
// no cross-member transactionality: members already created stay created when
// a later member fails, and the mixed outcome is reported as partial success.
package fanout

import "context"

// Status is the aggregate outcome of a fan-out.
type Status string

const (
	// StatusSuccess means every member's sub-operation succeeded.
	StatusSuccess Status = "success"

	// StatusPartialSuccess means the outcomes were mixed.
	StatusPartialSuccess Status = "partial_success"

	// StatusFailure means no member's sub-operation succeeded.
	StatusFailure Status = "failure"
)

// Created records one member whose sub-operation succeeded.
type Created struct {
	MemberID  string `json:"member_id"`
	CreatedID string `json:"created_id"`
}

// Failed records one member whose sub-operation failed, with the reason the
// caller reports back to the user.
type Failed struct {
	MemberID string `json:"member_id"`
	Reason   string `json:"reason"`
}

// Result collects the per-member outcomes of one fan-out, in member order.
type Result struct {
	Created []Created `json:"created"`
	Failed  []Failed  `json:"failed"`
}

// Status derives the aggregate outcome. A fan-out over zero members reports
// success: there was nothing to do and nothing failed.
func (r Result) Status() Status {
	switch {
	case len(r.Failed) == 0:
		return StatusSuccess
	case len(r.Created) == 0:
		return StatusFailure
	default:
		return StatusPartialSuccess
	}
}

// Run builds and executes one sub-operation per member. Every member is
// attempted; a failing member is recorded and the loop moves on. execute
// returns the identifier of whatever the sub-operation created (typically the
// per-member event id from a request/reply exchange).
func Run[O any](
	ctx context.Context,
	members []string,
	build func(memberID string) O,
	execute func(ctx context.Context, memberID string, op O) (string, error),
) Result {
	var res Result
	for _, memberID := range members {
		op := build(memberID)
		createdID, err := execute(ctx, memberID, op)
		if err != nil {
			res.Failed = append(res.Failed, Failed{
				MemberID: memberID,
				Reason:   err.Error(),
			})
			continue
		}
		res.Created = append(res.Created, Created{
			MemberID:  memberID,
			CreatedID: createdID,
		})
	}
	return res
}
