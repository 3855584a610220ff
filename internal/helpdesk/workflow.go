package helpdesk

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/gogogo1024/campus-desk/internal/auth"
	"github.com/gogogo1024/campus-desk/internal/common"
	"github.com/gogogo1024/campus-desk/internal/observability"
	"github.com/gogogo1024/campus-desk/internal/queue"
)

// transitions lists the statuses an admin may move a ticket to. Terminal statuses have no
// entry and accept nothing.
var transitions = map[string][]string{
	common.StatusPending:  {common.StatusInReview, common.StatusApproved, common.StatusRejected, common.StatusCompleted, common.StatusCancelled, common.StatusOnHold},
	common.StatusInReview: {common.StatusPending, common.StatusApproved, common.StatusRejected, common.StatusCompleted, common.StatusCancelled, common.StatusOnHold},
	common.StatusApproved: {common.StatusCompleted, common.StatusRejected, common.StatusOnHold},
	common.StatusOnHold:   {common.StatusPending, common.StatusInReview, common.StatusCancelled, common.StatusRejected},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(t *common.Ticket, to string) error {
	if t.Status == to {
		return common.Conflict("ticket %s is already %s", t.TicketNumber, to)
	}
	if !CanTransition(t.Status, to) {
		return common.Conflict("cannot move ticket %s from %s to %s", t.TicketNumber, t.Status, to)
	}
	return nil
}

// UpdateStatus is the admin status change. Tickets leaving the active set give up their queue
// position and the office queue is compacted; tickets returning to it go to the tail.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Principal, id, status, remarks string) (*common.Ticket, error) {
	if !actor.IsAdmin() {
		return nil, common.Forbidden("only admins change ticket status")
	}
	status = strings.TrimSpace(status)
	if !common.IsValidStatus(status) {
		return nil, common.Invalid("status", "unknown status %q", status)
	}
	if utf8.RuneCountInString(remarks) > maxComment {
		return nil, common.Invalid("remarks", "must be at most %d characters", maxComment)
	}
	return s.transition(ctx, actor, id, status, strings.TrimSpace(remarks))
}

// Cancel lets the creator (or an admin) withdraw a ticket that is still open.
func (s *Service) Cancel(ctx context.Context, actor auth.Principal, id, reason string) (*common.Ticket, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, t) {
		return nil, common.Forbidden("ticket %s belongs to another user", id)
	}
	if utf8.RuneCountInString(reason) > maxComment {
		return nil, common.Invalid("reason", "must be at most %d characters", maxComment)
	}
	return s.transition(ctx, actor, id, common.StatusCancelled, strings.TrimSpace(reason))
}

func (s *Service) transition(ctx context.Context, actor auth.Principal, id, to, remarks string) (*common.Ticket, error) {
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(t, to); err != nil {
		return nil, err
	}
	officeID := t.OfficeID()
	var out *common.Ticket
	apply := func(ctx context.Context, tx *queue.Tx) error {
		// re-read under the office lock; another request may have moved it
		cur, err := s.repo.Get(ctx, id)
		if err != nil {
			return err
		}
		if err := checkTransition(cur, to); err != nil {
			return err
		}
		from := cur.Status
		wasActive, nowActive := common.IsActiveStatus(from), common.IsActiveStatus(to)
		now := s.nowMillis()
		cur.Status = to
		cur.UpdatedAt = now
		cur.Events = append(cur.Events, common.TicketEvent{
			Type: common.EventStatusChanged, At: now, Actor: actor.UserID,
			Note: fmt.Sprintf("Status changed from %s to %s", from, to),
		})
		if remarks != "" {
			cur.Events = append(cur.Events, common.TicketEvent{Type: common.EventComment, At: now, Actor: actor.UserID, Note: remarks})
		}
		if common.IsTerminalStatus(to) {
			cur.ClosedAt = now
		}
		left := wasActive && !nowActive && cur.QueueNumber != nil
		if !nowActive {
			cur.ClearQueue()
		}
		if nowActive && !wasActive && tx != nil && cur.QueueNumber == nil {
			if _, err := tx.Renumber(ctx); err != nil {
				return err
			}
			if err := tx.Requeue(ctx, cur); err != nil {
				return err
			}
			cur.Events = append(cur.Events, common.TicketEvent{
				Type: common.EventQueued, At: now, Actor: "system",
				Note: fmt.Sprintf("Back in queue as #%d", *cur.QueueNumber),
			})
		}
		if err := s.repo.Update(ctx, cur); err != nil {
			return err
		}
		if left && tx != nil {
			if _, err := tx.Renumber(ctx); err != nil {
				// the status change is committed; the sweep or a manual renumber converges later
				common.L().Error("renumber after status change failed", zap.String("office", tx.OfficeID), zap.Error(err))
			}
		}
		out = cur
		return nil
	}
	if officeID == "" {
		err = apply(ctx, nil)
	} else {
		err = s.queues.WithOffice(ctx, officeID, apply)
	}
	if err != nil {
		return nil, err
	}
	observability.TicketStatusChanged.Add(1)
	if common.IsTerminalStatus(to) {
		observability.TicketClosed.Add(1)
	}
	common.L().Info("ticket status changed",
		zap.String("ticket", out.TicketNumber),
		zap.String("status", to),
		zap.String("actor", actor.UserID))
	return out, nil
}

// AddComment appends a comment from the creator or an admin.
func (s *Service) AddComment(ctx context.Context, actor auth.Principal, id, text string) (*common.TicketEvent, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, common.Invalid("comment", "is required")
	}
	if utf8.RuneCountInString(text) > maxComment {
		return nil, common.Invalid("comment", "must be at most %d characters", maxComment)
	}
	t, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !canSee(actor, t) {
		return nil, common.Forbidden("ticket %s belongs to another user", id)
	}
	ev := common.TicketEvent{Type: common.EventComment, At: s.nowMillis(), Actor: actor.UserID, Note: text}
	// Update rewrites the whole row, so routed tickets are updated under the office lock
	if office := t.OfficeID(); office != "" {
		err = s.queues.WithOffice(ctx, office, func(ctx context.Context, _ *queue.Tx) error {
			cur, err := s.repo.Get(ctx, id)
			if err != nil {
				return err
			}
			cur.Events = append(cur.Events, ev)
			cur.UpdatedAt = ev.At
			return s.repo.Update(ctx, cur)
		})
	} else {
		t.Events = append(t.Events, ev)
		t.UpdatedAt = ev.At
		err = s.repo.Update(ctx, t)
	}
	if err != nil {
		return nil, err
	}
	observability.TicketCommented.Add(1)
	return &ev, nil
}

// Events returns the audit trail of a ticket.
func (s *Service) Events(ctx context.Context, actor auth.Principal, id string) ([]common.TicketEvent, error) {
	t, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if t.Events == nil {
		return []common.TicketEvent{}, nil
	}
	return t.Events, nil
}
