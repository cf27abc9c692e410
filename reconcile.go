package wallcas

import (
	"context"
	"fmt"
	"sort"
)

// ResolvedRecord is a ledger record joined with its content.
type ResolvedRecord struct {
	Record
	Body  string
	Found bool
}

// ResolveRecords attaches bodies to ledger records in one batch. Order is
// preserved; records whose content is unavailable come back with Found
// unset.
func (s *Store) ResolveRecords(ctx context.Context, records []Record) []ResolvedRecord {
	addrs := make([]Address, len(records))
	for i, r := range records {
		addrs[i] = r.Address
	}
	resolved := s.ResolveMany(ctx, addrs)

	out := make([]ResolvedRecord, len(records))
	for i, r := range records {
		res := resolved[r.Address]
		out[i] = ResolvedRecord{Record: r, Body: res.Body, Found: res.Found}
	}
	return out
}

// Report describes where the ledger and the store disagree.
type Report struct {
	// Records whose content is not retrievable.
	Dangling []Record
	// Stored addresses that no queried record references. Relative to the
	// filter: a narrow filter reports content referenced elsewhere too.
	Unreferenced []Address
	// Entries held only in the cache because their durable write failed.
	Pending []Address
	// Records checked and durable entries seen.
	Records int
	Entries int
}

// Reconcile compares ledger records matching f against the store. It only
// reads; acting on the report (re-publishing, sweeping) is up to the
// caller.
func (s *Store) Reconcile(ctx context.Context, q Query, f Filter) (Report, error) {
	records, err := q.Records(ctx, f)
	if err != nil {
		return Report{}, fmt.Errorf("query ledger: %w", err)
	}

	rep := Report{Records: len(records)}
	referenced := make(map[Address]struct{}, len(records))
	for _, r := range s.ResolveRecords(ctx, records) {
		if r.Address.IsZero() {
			continue
		}
		referenced[r.Address] = struct{}{}
		if !r.Found {
			rep.Dangling = append(rep.Dangling, r.Record)
		}
	}

	err = s.List(ctx, func(e Entry) error {
		rep.Entries++
		if _, ok := referenced[e.Address]; !ok {
			rep.Unreferenced = append(rep.Unreferenced, e.Address)
		}
		return nil
	})
	if err != nil {
		return rep, fmt.Errorf("scan store: %w", err)
	}
	sort.Slice(rep.Unreferenced, func(i, j int) bool {
		return rep.Unreferenced[i].String() < rep.Unreferenced[j].String()
	})

	rep.Pending = s.Pending()
	return rep, nil
}
