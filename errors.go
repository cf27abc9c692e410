package wallcas

import "errors"

var (
	ErrMalformedAddress   = errors.New("wallcas: malformed address")
	ErrDurabilityDegraded = errors.New("wallcas: durability degraded")
	ErrLedgerSubmitFailed = errors.New("wallcas: ledger submit failed")
	ErrNotFound           = errors.New("wallcas: not found")
	ErrNoRemote           = errors.New("wallcas: no remote configured")
	ErrClosed             = errors.New("wallcas: store closed")
	ErrInvalidRetention   = errors.New("wallcas: invalid retention")
)
