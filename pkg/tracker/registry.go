package tracker

import "sync"

type vehicleEntry struct {
	mu    sync.Mutex
	state *VehicleState
}

// Registry holds one VehicleState per vehicle id. Lookup/insert is guarded
// by its own lock while state mutation happens under the per-vehicle lock,
// so reports for different vehicles never contend.
type Registry struct {
	mu       sync.RWMutex
	vehicles map[string]*vehicleEntry
	cfg      Config
}

func NewRegistry(cfg Config) *Registry {
	return &Registry{
		vehicles: make(map[string]*vehicleEntry),
		cfg:      cfg,
	}
}

func (r *Registry) entry(vehicleID string) *vehicleEntry {
	r.mu.RLock()
	e, ok := r.vehicles[vehicleID]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.vehicles[vehicleID]; ok {
		return e
	}
	e = &vehicleEntry{state: NewVehicleState(vehicleID, r.cfg)}
	r.vehicles[vehicleID] = e
	return e
}

// WithVehicle runs fn with the vehicle's state under its exclusive lock.
// Reports for the same vehicle are thereby strictly serialized.
func (r *Registry) WithVehicle(vehicleID string, fn func(*VehicleState)) {
	e := r.entry(vehicleID)
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.state)
}

// VehicleIDs returns a snapshot of all known vehicle ids.
func (r *Registry) VehicleIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.vehicles))
	for id := range r.vehicles {
		ids = append(ids, id)
	}
	return ids
}
