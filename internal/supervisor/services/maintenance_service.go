// Casthouse - Live Streaming and VOD Platform
// Copyright 2026 Casthouse Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/casthouse/casthouse

package services

import (
	"context"
	"time"

	"github.com/casthouse/casthouse/internal/logging"
)

// ValueLogGC triggers one round of store garbage collection. Satisfied by
// *store.Store.
type ValueLogGC interface {
	RunValueLogGC(discardRatio float64) error
}

// MaintenanceService periodically reclaims Badger value-log space. Expired
// grant and claim entries leave garbage behind that only GC returns to disk.
type MaintenanceService struct {
	store        ValueLogGC
	interval     time.Duration
	discardRatio float64
}

// NewMaintenanceService wraps store GC as a supervised service. A zero
// interval defaults to 10 minutes.
func NewMaintenanceService(store ValueLogGC, interval time.Duration) *MaintenanceService {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &MaintenanceService{store: store, interval: interval, discardRatio: 0.5}
}

// Serve implements suture.Service. GC failures are logged, not propagated;
// a full value log is not worth restarting the storage layer over.
func (m *MaintenanceService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := m.store.RunValueLogGC(m.discardRatio); err != nil {
				logging.Warn().Err(err).Msg("Value log GC failed")
			}
		}
	}
}

// String identifies the service in supervisor logs.
func (m *MaintenanceService) String() string {
	return "store-maintenance"
}
