package universe

import (
	"testing"

	"github.com/rs/zerolog"

	testingpkg "github.com/aristath/allocator/internal/testing"
)

func newTestHistoryDB(t *testing.T) *HistoryDB {
	t.Helper()
	return NewHistoryDB(testingpkg.NewTestDB(t).Conn(), zerolog.Nop())
}
