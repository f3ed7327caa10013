package testing

import (
	"context"
	"sync"

	"github.com/aristath/allocator/internal/modules/optimization"
)

// MockAssetSource is a mock implementation of optimization.AssetSource
type MockAssetSource struct {
	mu           sync.Mutex
	assets       []optimization.Asset
	err          error
	lookbackDays int
}

// NewMockAssetSource creates a new mock asset source
func NewMockAssetSource(assets []optimization.Asset) *MockAssetSource {
	return &MockAssetSource{assets: assets}
}

// SetError sets the error to return from LoadUniverse
func (m *MockAssetSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// LookbackDays returns the lookback of the last LoadUniverse call
func (m *MockAssetSource) LookbackDays() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lookbackDays
}

// LoadUniverse returns the configured assets
func (m *MockAssetSource) LoadUniverse(_ context.Context, lookbackDays int) ([]optimization.Asset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lookbackDays = lookbackDays
	if m.err != nil {
		return nil, m.err
	}
	return m.assets, nil
}
