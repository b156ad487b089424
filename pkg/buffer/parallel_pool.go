package buffer

import (
	"bufhash/pkg/storage/disk"
	"bufhash/pkg/storage/page"
	"bufhash/pkg/wal"

	"golang.org/x/sync/errgroup"
)

// ParallelPool shards N buffer-pool instances by page_id mod N,
// trading one coarse latch for N independent ones. Each instance owns
// the page ids congruent to its own index modulo N, so routing never
// needs a directory — it is pure arithmetic.
type ParallelPool struct {
	instances []*Instance
	nextIndex int32 // rotates across NewPage calls for fairness
}

// NewParallelPool opens one FileManager per shard under dbPathFor and
// builds N Instances, each of poolSizePerInstance frames.
func NewParallelPool(n int, poolSizePerInstance int, dbPathFor func(shard int) string, lm wal.Manager) (*ParallelPool, error) {
	instances := make([]*Instance, n)
	for i := 0; i < n; i++ {
		dm, err := disk.NewFileManager(dbPathFor(i))
		if err != nil {
			return nil, err
		}
		instances[i] = NewInstance(poolSizePerInstance, dm, lm, int32(n), int32(i))
	}
	return &ParallelPool{instances: instances}, nil
}

func (p *ParallelPool) instanceOf(id page.ID) *Instance {
	n := int32(len(p.instances))
	idx := int32(id) % n
	if idx < 0 {
		idx += n
	}
	return p.instances[idx]
}

func (p *ParallelPool) FetchPage(id page.ID) (*page.Page, error) {
	return p.instanceOf(id).FetchPage(id)
}

func (p *ParallelPool) UnpinPage(id page.ID, isDirty bool) bool {
	return p.instanceOf(id).UnpinPage(id, isDirty)
}

func (p *ParallelPool) FlushPage(id page.ID) bool {
	return p.instanceOf(id).FlushPage(id)
}

func (p *ParallelPool) DeletePage(id page.ID) bool {
	return p.instanceOf(id).DeletePage(id)
}

// NewPage sweeps instances starting at a rotating cursor, returning
// the first successful allocation; the cursor advances by one
// regardless of outcome, so no single shard is favored under
// sustained contention.
func (p *ParallelPool) NewPage() (*page.Page, error) {
	n := int32(len(p.instances))
	start := p.nextIndex
	p.nextIndex = (p.nextIndex + 1) % n

	var lastErr error
	for i := int32(0); i < n; i++ {
		idx := (start + i) % n
		frame, err := p.instances[idx].NewPage()
		if err == nil {
			return frame, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// FlushAll fans every instance's flush out onto its own goroutine and
// waits for all of them — a shard's flush never blocks another's.
func (p *ParallelPool) FlushAll() error {
	var g errgroup.Group
	for _, inst := range p.instances {
		inst := inst
		g.Go(func() error {
			inst.FlushAllPages()
			return nil
		})
	}
	return g.Wait()
}

// PoolSize sums every shard's frame count.
func (p *ParallelPool) PoolSize() int {
	total := 0
	for _, inst := range p.instances {
		total += inst.PoolSize()
	}
	return total
}

// NumInstances reports the shard count, mostly useful for tests.
func (p *ParallelPool) NumInstances() int { return len(p.instances) }
