package state

import "sync"

// Cache holds the most recent snapshot. It is informational only and never used as a merge base.
type Cache struct {
	data *Snapshot
	sync.RWMutex
}

func (c *Cache) Get() *Snapshot {
	c.RLock()
	defer c.RUnlock()
	if c.data == nil {
		return nil
	}
	s := *c.data
	return &s
}

func (c *Cache) Set(s Snapshot) {
	c.Lock()
	c.data = &s
	c.Unlock()
}
