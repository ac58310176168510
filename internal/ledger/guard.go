package ledger

import "context"

type transferKey struct{}

// withinTransfer marks ctx as belonging to an external transfer issued by
// the ledger. Mutations that see the mark are refused with
// domain.ErrReentrantCall instead of blocking on the ledger lock.
func withinTransfer(ctx context.Context) context.Context {
	return context.WithValue(ctx, transferKey{}, true)
}

func inTransfer(ctx context.Context) bool {
	v, _ := ctx.Value(transferKey{}).(bool)
	return v
}
