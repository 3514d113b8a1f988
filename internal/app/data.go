package app

import (
	"context"

	"daybook/internal/store"
	"daybook/internal/taskboard"
)

// GetPipelineStatus reports the summarization pipeline's current and recent
// task activity, for polling surfaces that want to show progress without
// subscribing to the board's live channel.
func (a *App) GetPipelineStatus(ctx context.Context) taskboard.State {
	return a.board.State()
}

// DataStats reports row counts across the content-bearing tables.
func (a *App) DataStats(ctx context.Context) (store.DataStats, error) {
	return a.store.Stats(ctx)
}

// ClearDataResult reports how many rows the clear-data command removed.
type ClearDataResult struct {
	ItemsDeleted int64
}

// ClearSyncedData deletes all synced content and summaries but keeps
// credentials and preferences intact.
func (a *App) ClearSyncedData(ctx context.Context) (ClearDataResult, error) {
	before, err := a.store.Stats(ctx)
	if err != nil {
		return ClearDataResult{}, err
	}
	if err := a.store.ClearSyncedContent(ctx); err != nil {
		return ClearDataResult{}, err
	}
	return ClearDataResult{ItemsDeleted: before.ContentItems + before.Summaries}, nil
}

// FactoryReset wipes every row in the store, including credentials and
// preferences, and disables summarization until a credential is saved
// again. The OS keyring master key is left untouched — a corrupted store
// is not a reason to lose the ability to decrypt a future restore.
func (a *App) FactoryReset(ctx context.Context) error {
	if err := a.store.FactoryReset(ctx); err != nil {
		return err
	}
	return a.reloadPipeline(ctx)
}
