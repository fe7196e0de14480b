package dashboard

import (
	"context"

	"github.com/stockbook/stockbook/internal/shop"
	"github.com/stockbook/stockbook/internal/store"
)

// StatsSource computes current shop statistics.
type StatsSource func(ctx context.Context) (*StatsData, error)

// StoreStats returns a StatsSource reading pending counts from st and
// stock warnings from sh.
func StoreStats(st *store.Store, sh *shop.Shop) StatsSource {
	return func(ctx context.Context) (*StatsData, error) {
		counts, err := st.UnsyncedCounts(ctx)
		if err != nil {
			return nil, err
		}
		levels, err := sh.StockLevels(ctx)
		if err != nil {
			return nil, err
		}
		items, err := st.GetItems(ctx)
		if err != nil {
			return nil, err
		}

		stats := &StatsData{
			Pending:    make(map[string]int, len(counts)),
			Items:      len(items),
			OutOfStock: len(levels.OutOfStock),
			RunningLow: len(levels.RunningLow),
		}
		for entity, n := range counts {
			stats.Pending[string(entity)] = n
		}
		if run, err := st.LastSyncRun(ctx, true); err == nil {
			finished := run.FinishedAt
			stats.LastSync = &finished
		}
		return stats, nil
	}
}
