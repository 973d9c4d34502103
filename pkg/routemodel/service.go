package routemodel

import (
	"time"
)

// Model is the immutable, pre-loaded route model shared read-only by all
// vehicles. Keyed by a configuration revision.
type Model struct {
	revision string
	blocks   []*Block
	byID     map[string]*Block
	byRoute  map[string][]*Block
}

func NewModel(revision string, blocks []*Block) *Model {
	byID := make(map[string]*Block, len(blocks))
	byRoute := make(map[string][]*Block)
	for _, b := range blocks {
		byID[b.ID()] = b
		for _, routeID := range b.RouteIDs() {
			byRoute[routeID] = append(byRoute[routeID], b)
		}
	}
	return &Model{
		revision: revision,
		blocks:   blocks,
		byID:     byID,
		byRoute:  byRoute,
	}
}

func (m *Model) Revision() string {
	return m.revision
}

func (m *Model) Blocks() []*Block {
	return m.blocks
}

// BlockByID returns nil when the block is not in the model.
func (m *Model) BlockByID(id string) *Block {
	return m.byID[id]
}

func (m *Model) BlocksForRoute(routeID string) []*Block {
	return m.byRoute[routeID]
}

// IsActive reports whether the block is in service at t, allowing it to be
// considered startLookAhead before its scheduled start.
func (m *Model) IsActive(b *Block, t time.Time, startLookAhead time.Duration) bool {
	secs := secondsIntoDay(t)
	start := b.StartTimeSecs() - int(startLookAhead.Seconds())
	end := b.EndTimeSecs()
	if start == NoScheduleTime || end == NoScheduleTime {
		return false
	}
	// Blocks that span midnight have end times beyond 24h in the schedule.
	if secs >= start && secs <= end {
		return true
	}
	secsNextDay := secs + 24*3600
	return secsNextDay >= start && secsNextDay <= end
}

// ActiveBlocks returns every block in service at t.
func (m *Model) ActiveBlocks(t time.Time, startLookAhead time.Duration) []*Block {
	active := make([]*Block, 0, len(m.blocks))
	for _, b := range m.blocks {
		if m.IsActive(b, t, startLookAhead) {
			active = append(active, b)
		}
	}
	return active
}

// ActiveBlocksForRoute returns blocks serving routeID that are in service
// at t.
func (m *Model) ActiveBlocksForRoute(routeID string, t time.Time, startLookAhead time.Duration) []*Block {
	active := make([]*Block, 0, 4)
	for _, b := range m.byRoute[routeID] {
		if m.IsActive(b, t, startLookAhead) {
			active = append(active, b)
		}
	}
	return active
}
