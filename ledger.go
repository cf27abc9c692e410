package wallcas

import (
	"context"
	"time"
)

// LedgerStatus is the ledger's answer to a submission.
type LedgerStatus int

const (
	// LedgerAccepted means the record is durable and queryable.
	LedgerAccepted LedgerStatus = iota
	// LedgerSettling means the record was accepted but may not be
	// queryable yet.
	LedgerSettling
	// LedgerRejected means the ledger refused the record.
	LedgerRejected
	// LedgerFailed means the submission did not reach a verdict.
	LedgerFailed
	// LedgerTimeout means no answer arrived in time; the record may
	// still land.
	LedgerTimeout
)

func (s LedgerStatus) String() string {
	switch s {
	case LedgerAccepted:
		return "accepted"
	case LedgerSettling:
		return "settling"
	case LedgerRejected:
		return "rejected"
	case LedgerFailed:
		return "failed"
	case LedgerTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// LedgerOutcome is what a Submitter reports back.
type LedgerOutcome struct {
	Status LedgerStatus
	TxID   string
	Err    error
}

// Submitter submits an address to the ledger. The structural metadata
// (author, category, parent, anonymity) is attached by the implementation.
type Submitter interface {
	Submit(ctx context.Context, a Address) LedgerOutcome
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, a Address) LedgerOutcome

func (f SubmitterFunc) Submit(ctx context.Context, a Address) LedgerOutcome {
	return f(ctx, a)
}

// Record is a ledger entry as returned by a query. Only Address refers to
// content held here; the rest is carried through for the caller.
type Record struct {
	ID         string
	ParentID   string // empty for top-level posts
	Author     string
	Anonymous  bool
	Address    Address
	Category   uint8
	Timestamp  time.Time
	Upvotes    uint64
	ReplyCount uint64
}

// Filter narrows a ledger query. Zero fields do not filter.
type Filter struct {
	Addresses []Address
	ParentID  string
	Author    string
	Category  *uint8
}

// Query reads records from the ledger.
type Query interface {
	Records(ctx context.Context, f Filter) ([]Record, error)
}
