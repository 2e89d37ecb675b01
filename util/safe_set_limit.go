package util

import "golang.org/x/sync/errgroup"

// SafeSetLimit sets the limit on an errgroup.Group. A zero limit would block
// every Go call forever, so it panics instead.
func SafeSetLimit(g *errgroup.Group, limit int) {
	if limit == 0 {
		panic("limit cannot be 0")
	}

	g.SetLimit(limit)
}
