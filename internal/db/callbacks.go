/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"github.com/friendsincode/slidify/internal/telemetry"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

const (
	_startTime = "slidify:start_time"

	slowQueryThreshold = 500 * time.Millisecond
)

// RegisterCallbacks records query latency and errors for every CRUD operation
// and logs statements slower than slowQueryThreshold.
func RegisterCallbacks(db *gorm.DB, logger zerolog.Logger) error {
	logger = logger.With().Str("component", "db").Logger()
	cb := db.Callback()

	return errors.Join(
		cb.Query().Before("gorm:query").Register("telemetry:before_query", beforeCallback),
		cb.Query().After("gorm:query").Register("telemetry:after_query", afterCallback("query", logger)),
		cb.Create().Before("gorm:create").Register("telemetry:before_create", beforeCallback),
		cb.Create().After("gorm:create").Register("telemetry:after_create", afterCallback("create", logger)),
		cb.Update().Before("gorm:update").Register("telemetry:before_update", beforeCallback),
		cb.Update().After("gorm:update").Register("telemetry:after_update", afterCallback("update", logger)),
		cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", beforeCallback),
		cb.Delete().After("gorm:delete").Register("telemetry:after_delete", afterCallback("delete", logger)),
	)
}

func beforeCallback(db *gorm.DB) {
	db.InstanceSet(_startTime, time.Now())
}

func afterCallback(operation string, logger zerolog.Logger) func(*gorm.DB) {
	return func(db *gorm.DB) {
		v, ok := db.InstanceGet(_startTime)
		if !ok {
			return
		}
		start, ok := v.(time.Time)
		if !ok {
			return
		}
		elapsed := time.Since(start)

		table := db.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(elapsed.Seconds())

		if db.Error != nil && !errors.Is(db.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, table).Inc()
		}
		if elapsed > slowQueryThreshold {
			logger.Warn().
				Str("operation", operation).
				Str("table", table).
				Dur("elapsed", elapsed).
				Msg("slow database statement")
		}
	}
}

// UpdateConnectionMetrics updates connection pool metrics.
func UpdateConnectionMetrics(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	stats := sqlDB.Stats()
	telemetry.DatabaseConnectionsActive.Set(float64(stats.InUse))
	telemetry.DatabaseConnectionsIdle.Set(float64(stats.Idle))
}
