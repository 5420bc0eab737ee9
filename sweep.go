package gateway

import (
	"context"
	"time"
)

// RunSweeper periodically drops expired entries from the bounded stores and
// enforces their capacity ceilings. Expired entries are already rejected on
// read; the sweep reclaims the memory of entries nobody asks for again. It
// blocks until ctx is done; run it in its own goroutine alongside the HTTP
// server.
func (h *Handler) RunSweeper(ctx context.Context) {
	interval := h.cfg.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			codesExpired, codesEvicted := h.codes.Sweep()
			clientsExpired, clientsEvicted := h.clients.Sweep()
			if codesExpired+codesEvicted+clientsExpired+clientsEvicted > 0 {
				h.log.Debug("swept bounded stores",
					"codes_expired", codesExpired,
					"codes_evicted", codesEvicted,
					"clients_expired", clientsExpired,
					"clients_evicted", clientsEvicted,
				)
			}
		}
	}
}
