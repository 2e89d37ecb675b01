package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/sync/errgroup"
)

func TestSafeSetLimit(t *testing.T) {
	g := &errgroup.Group{}

	assert.NotPanics(t, func() { SafeSetLimit(g, 4) })
	assert.NotPanics(t, func() { SafeSetLimit(g, -1) }, "negative means no limit")
	assert.PanicsWithValue(t, "limit cannot be 0", func() { SafeSetLimit(g, 0) })
}
