package wallcas

import (
	"context"
	"errors"
	"fmt"

	"github.com/aweris/wallcas/internal/backoff"
)

// PublishState classifies the combined result of a publish.
type PublishState int

const (
	// Published: content is stored and the ledger accepted its address.
	Published PublishState = iota + 1
	// OrphanedContent: content is stored but the ledger refused or failed
	// the submission. The entry is harmless and the sweeper reclaims it.
	OrphanedContent
	// PendingConfirmation: content is stored and the submission timed out,
	// so the ledger write may still land.
	PendingConfirmation
)

func (s PublishState) String() string {
	switch s {
	case Published:
		return "published"
	case OrphanedContent:
		return "orphaned"
	case PendingConfirmation:
		return "pending"
	default:
		return "unknown"
	}
}

// Publication is the result of Publish.
type Publication struct {
	Address  Address
	State    PublishState
	Settling bool // accepted, not yet queryable
	TxID     string
}

// Publish stores body and then hands its address to the ledger.
//
// The content write always completes before the ledger is called, so no
// reader can see a ledger record ahead of its content. If the content
// cannot be made durable (after the configured retries), is swept while
// waiting for a retry, or ctx ends first, the ledger is never called. A failed submission leaves the content in
// place and yields OrphanedContent with an error wrapping
// ErrLedgerSubmitFailed; the submission is not retried. Publishing the same
// body again is always safe.
func (s *Store) Publish(ctx context.Context, body string, submit Submitter) (Publication, error) {
	a, err := s.Put(ctx, body)
	pub := Publication{Address: a}
	log := s.log.WithField("address", a.String())

	if err != nil {
		if !errors.Is(err, ErrDurabilityDegraded) {
			return pub, fmt.Errorf("publish %s: %w", a, err)
		}
		_, err = backoff.Retry(ctx, s.clock, s.opts.PersistAttempts, s.opts.PersistBackoff, func() (struct{}, error) {
			err := s.Persist(ctx, a)
			if errors.Is(err, ErrNotFound) {
				// swept while waiting; nothing left to persist
				return struct{}{}, backoff.Permanent(err)
			}
			return struct{}{}, err
		})
		if err != nil {
			log.WithError(err).Warn("content not durable, ledger submission skipped")
			return pub, fmt.Errorf("publish %s: %w", a, err)
		}
	}

	if err := ctx.Err(); err != nil {
		return pub, fmt.Errorf("publish %s: %w", a, err)
	}

	out := submit.Submit(ctx, a)
	pub.TxID = out.TxID

	status := out.Status
	if status == LedgerFailed && errors.Is(out.Err, context.DeadlineExceeded) {
		status = LedgerTimeout
	}

	switch status {
	case LedgerAccepted:
		pub.State = Published
	case LedgerSettling:
		pub.State = Published
		pub.Settling = true
	case LedgerTimeout:
		pub.State = PendingConfirmation
		log.WithError(out.Err).Info("ledger submission timed out, confirmation pending")
	default:
		pub.State = OrphanedContent
		log.WithError(out.Err).WithField("status", status.String()).Warn("ledger submission failed, content orphaned")
		if out.Err != nil {
			return pub, fmt.Errorf("publish %s: %w: %s: %w", a, ErrLedgerSubmitFailed, status, out.Err)
		}
		return pub, fmt.Errorf("publish %s: %w: %s", a, ErrLedgerSubmitFailed, status)
	}

	return pub, nil
}
