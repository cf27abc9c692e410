// Package wallcas is a content-addressed store for posts whose addresses are
// kept on a ledger.
//
// A body is stored under its keccak-256 digest, the same 32-byte value the
// ledger records. Reads go through an in-memory cache in front of a durable
// tier (badger by default). Lookups never fail: absent, corrupt or slow
// content resolves to Missing.
//
// Basic usage:
//
//	s, _ := wallcas.Open(wallcas.WithDataDir(".wallcas"))
//	defer s.Close()
//
//	// Store content; the address is what goes on the ledger
//	addr, _ := s.Put(ctx, "hello wall")
//	fmt.Println(addr) // 0x...
//
//	// Resolve one address, or a page of them at once
//	res := s.Get(ctx, addr)
//	page := s.ResolveMany(ctx, []wallcas.Address{addr, other})
//
// Publishing stores the content before the ledger ever sees the address:
//
//	pub, err := s.Publish(ctx, body, wallcas.SubmitterFunc(func(ctx context.Context, a wallcas.Address) wallcas.LedgerOutcome {
//	    tx, err := ledger.Post(ctx, a)
//	    ...
//	}))
//	switch pub.State {
//	case wallcas.Published:
//	case wallcas.OrphanedContent:      // ledger refused, content is swept later
//	case wallcas.PendingConfirmation:  // ledger timed out, may still land
//	}
//
// Retention:
//
//	removed, _ := s.Sweep(ctx, 30*24*time.Hour)
//	go s.RunSweeper(ctx, time.Hour, wallcas.DefaultRetention)
//
// With remote replication:
//
//	s, _ := wallcas.Open(wallcas.WithRemote("ghcr.io/org/wall-content:main"))
//	s.Push(ctx)
//	s.Pull(ctx)
package wallcas
