package buffer

import (
	"fmt"
	"testing"

	"bufhash/pkg/storage/page"
	"bufhash/pkg/wal"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestParallelPool(t *testing.T, n, poolSizePerInstance int) *ParallelPool {
	t.Helper()
	dir := t.TempDir()
	pp, err := NewParallelPool(n, poolSizePerInstance, func(shard int) string {
		return fmt.Sprintf("%s/shard-%d.db", dir, shard)
	}, wal.NewNoopManager())
	require.NoError(t, err)
	return pp
}

func TestParallelPoolShardRoutingMatchesModulo(t *testing.T) {
	pp := newTestParallelPool(t, 4, 4)

	var ids []page.ID
	for i := 0; i < 6; i++ {
		p, err := pp.NewPage()
		require.NoError(t, err)
		ids = append(ids, p.ID())
		require.True(t, pp.UnpinPage(p.ID(), false))
	}

	for _, id := range ids {
		_, resident := pp.instances[int32(id)%4].frameTable.Load(id)
		assert.True(t, resident, "page %d not held by shard %d", id, int32(id)%4)
	}
}

func TestParallelPoolFetchRoutesToOwningShard(t *testing.T) {
	pp := newTestParallelPool(t, 4, 4)

	p, err := pp.FetchPage(page.ID(7))
	require.Error(t, err) // never allocated, nothing to read
	assert.Nil(t, p)

	owner := pp.instanceOf(page.ID(7))
	assert.Same(t, pp.instances[3], owner)
}

func TestParallelPoolSizeSumsInstances(t *testing.T) {
	pp := newTestParallelPool(t, 3, 5)
	assert.Equal(t, 15, pp.PoolSize())
}

func TestParallelPoolFlushAll(t *testing.T) {
	pp := newTestParallelPool(t, 2, 2)
	p, err := pp.NewPage()
	require.NoError(t, err)
	p.SetDirty(true)
	require.True(t, pp.UnpinPage(p.ID(), true))

	require.NoError(t, pp.FlushAll())
}
