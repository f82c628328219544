package app

import (
	"sync/atomic"

	"github.com/florianilch/clawd/internal/proxy"
)

// Health tracks readiness for the /readyz check. The proxy is ready between
// a successful bind and the start of shutdown.
type Health struct {
	ready atomic.Bool
}

// Compile-time check that Health implements proxy.ReadinessChecker interface
var _ proxy.ReadinessChecker = (*Health)(nil)

// NewHealth creates a new Health instance initialized as not ready.
func NewHealth() *Health {
	return &Health{}
}

func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *Health) IsReady() bool {
	return h.ready.Load()
}
