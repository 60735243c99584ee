package core

import (
	"context"
	"slices"
	"sync"
)

// PartitionLocks serializes work per VERSAO. Different partitions proceed
// concurrently; entries are removed once nobody holds or waits for them.
type PartitionLocks struct {
	mu    sync.Mutex
	locks map[string]*partitionLock
}

type partitionLock struct {
	ch   chan struct{} // buffered(1): a token in the channel means held
	refs int
}

// NewPartitionLocks creates an empty lock table.
func NewPartitionLocks() *PartitionLocks {
	return &PartitionLocks{locks: make(map[string]*partitionLock)}
}

// Lock blocks until the partition is free or ctx is done. On success the
// returned func releases the partition and must be called exactly once.
func (p *PartitionLocks) Lock(ctx context.Context, versao string) (func(), error) {
	p.mu.Lock()
	l, ok := p.locks[versao]
	if !ok {
		l = &partitionLock{ch: make(chan struct{}, 1)}
		p.locks[versao] = l
	}
	l.refs++
	p.mu.Unlock()

	select {
	case l.ch <- struct{}{}:
		var once sync.Once
		return func() {
			once.Do(func() {
				<-l.ch
				p.release(versao, l)
			})
		}, nil
	case <-ctx.Done():
		p.release(versao, l)
		return nil, ctx.Err()
	}
}

// LockAll locks every distinct non-empty VERSAO in sorted order, so callers
// holding overlapping sets cannot deadlock. On failure nothing stays held.
func (p *PartitionLocks) LockAll(ctx context.Context, versions []string) (func(), error) {
	keys := slices.Clone(versions)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	unlocks := make([]func(), 0, len(keys))
	unlockAll := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, v := range keys {
		if v == "" {
			continue
		}
		unlock, err := p.Lock(ctx, v)
		if err != nil {
			unlockAll()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return unlockAll, nil
}

func (p *PartitionLocks) release(versao string, l *partitionLock) {
	p.mu.Lock()
	defer p.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, versao)
	}
}

// Held returns the number of partitions currently locked or awaited.
func (p *PartitionLocks) Held() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}
