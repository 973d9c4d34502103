package tracker

import (
	"sync"

	"github.com/lintang-b-s/transitx/pkg/datastructure"
)

// SnapshotCache is the shared read view of all vehicles. Writers replace
// whole value entries so readers never observe a partially updated vehicle.
type SnapshotCache struct {
	mu            sync.RWMutex
	byID          map[string]datastructure.VehicleSnapshot
	byBlock       map[string]map[string]struct{}
	events        []datastructure.VehicleEvent
	eventsMaxSize int
}

func NewSnapshotCache(eventsMaxSize int) *SnapshotCache {
	return &SnapshotCache{
		byID:          make(map[string]datastructure.VehicleSnapshot),
		byBlock:       make(map[string]map[string]struct{}),
		eventsMaxSize: eventsMaxSize,
	}
}

// Update publishes the new snapshot for a vehicle and keeps the block index
// in sync.
func (c *SnapshotCache) Update(snapshot datastructure.VehicleSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if old, ok := c.byID[snapshot.VehicleID]; ok && old.BlockID != snapshot.BlockID {
		if vehicles, ok := c.byBlock[old.BlockID]; ok {
			delete(vehicles, snapshot.VehicleID)
			if len(vehicles) == 0 {
				delete(c.byBlock, old.BlockID)
			}
		}
	}
	c.byID[snapshot.VehicleID] = snapshot
	if snapshot.BlockID != "" {
		vehicles, ok := c.byBlock[snapshot.BlockID]
		if !ok {
			vehicles = make(map[string]struct{})
			c.byBlock[snapshot.BlockID] = vehicles
		}
		vehicles[snapshot.VehicleID] = struct{}{}
	}
}

// Get returns the snapshot for a vehicle.
func (c *SnapshotCache) Get(vehicleID string) (datastructure.VehicleSnapshot, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.byID[vehicleID]
	return s, ok
}

// All returns snapshots for every known vehicle.
func (c *SnapshotCache) All() []datastructure.VehicleSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]datastructure.VehicleSnapshot, 0, len(c.byID))
	for _, s := range c.byID {
		out = append(out, s)
	}
	return out
}

// StoreEvent keeps the event in the bounded recent-events buffer, newest
// first.
func (c *SnapshotCache) StoreEvent(event datastructure.VehicleEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append([]datastructure.VehicleEvent{event}, c.events...)
	if c.eventsMaxSize > 0 && len(c.events) > c.eventsMaxSize {
		c.events = c.events[:c.eventsMaxSize]
	}
}

// RecentEvents returns a copy of the recent-events buffer, newest first.
func (c *SnapshotCache) RecentEvents() []datastructure.VehicleEvent {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]datastructure.VehicleEvent, len(c.events))
	copy(out, c.events)
	return out
}

// PredictableCount returns how many vehicles are currently predictable.
func (c *SnapshotCache) PredictableCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, s := range c.byID {
		if s.Predictable {
			n++
		}
	}
	return n
}

// ForBlock returns the snapshots of vehicles currently assigned to a block.
func (c *SnapshotCache) ForBlock(blockID string) []datastructure.VehicleSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	vehicles, ok := c.byBlock[blockID]
	if !ok {
		return nil
	}
	out := make([]datastructure.VehicleSnapshot, 0, len(vehicles))
	for id := range vehicles {
		out = append(out, c.byID[id])
	}
	return out
}
