package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/agora/pkg/auth"
	"github.com/platinummonkey/agora/pkg/observability"
	"github.com/platinummonkey/agora/pkg/rbac"
	"golang.org/x/sync/errgroup"
)

// statsCollector refreshes the gauges that are read from the database rather
// than counted on the request path
type statsCollector struct {
	users   *auth.Store
	roles   *rbac.Store
	db      *sql.DB
	metrics *observability.Metrics
}

// Collect queries the counts concurrently and publishes them together
func (c *statsCollector) Collect(ctx context.Context) error {
	var (
		byStatus    map[auth.Status]int64
		roles       int64
		assignments int64
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		byStatus, err = c.users.CountByStatus(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		roles, err = c.roles.CountRoles(gctx)
		return err
	})
	g.Go(func() error {
		var err error
		assignments, err = c.roles.CountAssignments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("failed to collect stats: %w", err)
	}

	counts := make(map[string]int64, len(byStatus))
	for status, n := range byStatus {
		counts[string(status)] = n
	}
	c.metrics.SetUserCounts(counts)
	c.metrics.SetRoleCounts(roles, assignments)
	if c.db != nil {
		c.metrics.RecordDBStats(c.db.Stats())
	}
	return nil
}
