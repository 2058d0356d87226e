package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
)

// Outcome is the user's answer to "did the deal work out".
type Outcome int

const (
	OutcomeUnset Outcome = iota
	OutcomeSuccess
	OutcomeFailed
)

// CompletionMode selects what closing a thread does to its response.
type CompletionMode int

const (
	// ArchiveOnComplete keeps the response, status ARCHIVED.
	ArchiveOnComplete CompletionMode = iota
	// DeleteOnComplete withdraws the response outright.
	DeleteOnComplete
)

// RatingRule selects who is offered the rating step on a successful deal.
type RatingRule int

const (
	// RatingNonOwnerOnly offers the rating only to the responder; listing
	// owners close without rating.
	RatingNonOwnerOnly RatingRule = iota
	// RatingAlways offers the rating to both participants.
	RatingAlways
)

// Policy fixes the completion workflow variant at composition time instead of
// branching ad hoc inside the flow.
type Policy struct {
	Mode   CompletionMode
	Rating RatingRule
	// UpdateAggregateRate issues a best-effort aggregate rating refresh on
	// the counterpart's profile after feedback is recorded.
	UpdateAggregateRate bool
}

// DefaultPolicy is archive-on-complete with the rating offered to responders
// only and no aggregate refresh.
func DefaultPolicy() Policy {
	return Policy{Mode: ArchiveOnComplete, Rating: RatingNonOwnerOnly}
}

// MaxReviewLength bounds the free-text review.
const MaxReviewLength = 5000

// Completion workflow errors.
var (
	ErrNoCompletion       = errors.New("chat: no completion in progress")
	ErrCompletionArchived = errors.New("chat: thread is already completed")
	ErrCompletionBlocked  = errors.New("chat: completion requires an outcome and, when applicable, a rating")
	ErrInvalidRating      = errors.New("chat: rating must be between 1 and 5")
	ErrRatingNotOffered   = errors.New("chat: rating is not collected for this outcome or role")
	ErrReviewTooLong      = errors.New("chat: review exceeds the maximum length")
)

// Completion is the ephemeral state of closing the open thread. It exists
// between BeginCompletion and Confirm/Cancel and is never persisted.
type Completion struct {
	outcome Outcome
	rating  *int
	review  string
}

// Outcome returns the currently chosen outcome.
func (c *Completion) Outcome() Outcome { return c.outcome }

// Rating returns the chosen rating, nil when unset.
func (c *Completion) Rating() *int { return c.rating }

// Review returns the review text.
func (c *Completion) Review() string { return c.review }

// BeginCompletion opens the completion workflow for the selected thread.
// Only an active thread can be completed.
func (s *Session) BeginCompletion() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.selected == nil {
		return ErrNoThread
	}
	if s.selected.Status == StatusArchived {
		return ErrCompletionArchived
	}
	s.completion = &Completion{}
	return nil
}

// Completion returns the in-progress completion state, nil when none.
func (s *Session) Completion() *Completion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.completion
}

// SetOutcome records the success/failed choice. The user can toggle freely
// until confirmation.
func (s *Session) SetOutcome(outcome Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completion == nil {
		return ErrNoCompletion
	}
	s.completion.outcome = outcome
	return nil
}

// SetRating records the 1-5 mark. Only available when the outcome is success
// and the policy offers the rating to the current role.
func (s *Session) SetRating(rating int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completion == nil {
		return ErrNoCompletion
	}
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	if s.completion.outcome != OutcomeSuccess || !s.ratingOfferedLocked() {
		return ErrRatingNotOffered
	}
	s.completion.rating = &rating
	return nil
}

// SetReview records the free-text review, bounded at MaxReviewLength.
func (s *Session) SetReview(review string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.completion == nil {
		return ErrNoCompletion
	}
	if len(review) > MaxReviewLength {
		return ErrReviewTooLong
	}
	s.completion.review = review
	return nil
}

// CanConfirm reports whether the confirm action is enabled: an outcome must
// be chosen, and a successful deal needs the rating whenever the policy
// offers it to the current role.
func (s *Session) CanConfirm() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.canConfirmLocked()
}

func (s *Session) canConfirmLocked() bool {
	c := s.completion
	if c == nil || c.outcome == OutcomeUnset {
		return false
	}
	if c.outcome == OutcomeSuccess && s.ratingOfferedLocked() && c.rating == nil {
		return false
	}
	return true
}

// ratingOfferedLocked applies the policy's rating rule to the open thread.
func (s *Session) ratingOfferedLocked() bool {
	if s.selected == nil {
		return false
	}
	if s.policy.Rating == RatingAlways {
		return true
	}
	return s.selected.OwnerID != s.user.ID
}

// CancelCompletion discards the ephemeral completion state.
func (s *Session) CancelCompletion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completion = nil
}

// ConfirmCompletion runs the close workflow: record feedback when a rating
// was collected, then archive or delete the response per policy, and only
// after that succeeds remove the thread from the active list and reset the
// ephemeral state. Any failure leaves the completion open for retry.
func (s *Session) ConfirmCompletion(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.selected == nil {
		s.mu.Unlock()
		return ErrNoThread
	}
	if s.completion == nil {
		s.mu.Unlock()
		return ErrNoCompletion
	}
	if !s.canConfirmLocked() {
		s.mu.Unlock()
		return ErrCompletionBlocked
	}

	thread := s.selected
	c := *s.completion
	collectRating := c.outcome == OutcomeSuccess && s.ratingOfferedLocked() && c.rating != nil
	policy := s.policy
	s.mu.Unlock()

	if collectRating {
		var review *string
		if trimmed := strings.TrimSpace(c.review); trimmed != "" {
			review = &trimmed
		}
		if err := s.stores.Feedback.CreateFeedback(ctx, thread.ServiceID, *c.rating, review); err != nil {
			s.recordErr("Failed to record feedback.")
			return fmt.Errorf("chat: feedback: %w", err)
		}
		if policy.UpdateAggregateRate {
			// Best effort; a failed aggregate refresh never blocks archival.
			if err := s.stores.Feedback.UpdateRate(ctx, thread.CounterpartID, *c.rating); err != nil {
				log.Printf("chat: aggregate rate update for user %d failed: %v", thread.CounterpartID, err)
			}
		}
	}

	var err error
	switch policy.Mode {
	case DeleteOnComplete:
		err = s.stores.Responses.DeleteResponse(ctx, thread.ServiceID, thread.ResponseID)
	default:
		err = s.stores.Responses.SetResponseStatus(ctx, thread.ServiceID, thread.ResponseID, StatusArchived)
	}
	if err != nil {
		s.recordErr("Failed to complete the deal.")
		return fmt.Errorf("chat: complete: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = ""
	s.completion = nil
	// A refresh may have replaced the lists while the store calls were in
	// flight, so the local effect is applied by response id against whatever
	// is installed now, not against the captured pointer.
	if policy.Mode == DeleteOnComplete {
		s.sent = removeThread(s.sent, thread.ResponseID)
		s.owned = removeThread(s.owned, thread.ResponseID)
	} else {
		thread.Status = StatusArchived
		if t := findThread(s.sent, thread.ResponseID); t != nil {
			t.Status = StatusArchived
		}
		if t := findThread(s.owned, thread.ResponseID); t != nil {
			t.Status = StatusArchived
		}
	}
	if s.selected != nil && s.selected.ResponseID == thread.ResponseID {
		s.selected = nil
		s.messages = nil
		s.seen = make(map[uint]struct{})
		s.state = StateNoThread
	}
	return nil
}

func (s *Session) recordErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = msg
}

func removeThread(threads []*Thread, responseID uint) []*Thread {
	out := threads[:0]
	for _, t := range threads {
		if t.ResponseID != responseID {
			out = append(out, t)
		}
	}
	return out
}
