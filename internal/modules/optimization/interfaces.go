package optimization

import "context"

// AssetSource supplies the read-only universe snapshot for one run.
// Implemented by the universe module to avoid a dependency cycle.
type AssetSource interface {
	LoadUniverse(ctx context.Context, lookbackDays int) ([]Asset, error)
}
