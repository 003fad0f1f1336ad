package geo

import (
	"math"
	"sync"
)

// Attribute selects which of a responder's two independent positions an
// index operation targets.
type Attribute string

// The two indexed position attributes per responder.
const (
	AttrCurrent Attribute = "current"
	AttrHome    Attribute = "home"
)

// Entry is one indexed responder position plus the profile fields radius
// queries filter on.
type Entry struct {
	ID        string
	Point     Point
	Role      string
	Available bool
}

// Filter narrows a radius query, e.g. to available responders.
type Filter func(Entry) bool

// Available matches entries whose responder carries the given role and is
// currently marked available.
func Available(role string) Filter {
	return func(e Entry) bool {
		return e.Available && e.Role == role
	}
}

// cellSizeDeg is the grid bucket edge in degrees of latitude, roughly
// 5.5 km, sized so the default current-location radius spans few cells.
const cellSizeDeg = 0.05

type cellKey struct {
	x, y int
}

// Index is a grid-bucketed in-memory position index. Each of the two
// attributes is an independent index; an entry's Point is replaced as a
// whole under the lock, so a concurrent read never observes mixed
// coordinates.
type Index struct {
	mu      sync.RWMutex
	entries map[Attribute]map[string]Entry
	cells   map[Attribute]map[cellKey]map[string]struct{}
}

// NewIndex returns an empty index covering both position attributes.
func NewIndex() *Index {
	idx := &Index{
		entries: make(map[Attribute]map[string]Entry),
		cells:   make(map[Attribute]map[cellKey]map[string]struct{}),
	}
	for _, attr := range []Attribute{AttrCurrent, AttrHome} {
		idx.entries[attr] = make(map[string]Entry)
		idx.cells[attr] = make(map[cellKey]map[string]struct{})
	}
	return idx
}

func cellOf(p Point) cellKey {
	return cellKey{
		x: int(math.Floor(p.Longitude / cellSizeDeg)),
		y: int(math.Floor(p.Latitude / cellSizeDeg)),
	}
}

// Upsert inserts or replaces one responder's position in one attribute
// index. A point at the origin is treated as unknown and removes the
// responder from that index instead.
func (idx *Index) Upsert(id string, attr Attribute, p Point, role string, available bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.dropLocked(id, attr)
	if p.IsZero() || !p.Valid() {
		return
	}
	idx.entries[attr][id] = Entry{ID: id, Point: p, Role: role, Available: available}
	key := cellOf(p)
	bucket, ok := idx.cells[attr][key]
	if !ok {
		bucket = make(map[string]struct{})
		idx.cells[attr][key] = bucket
	}
	bucket[id] = struct{}{}
}

// SetAvailability flips the availability flag on a responder's entries in
// both attribute indices without touching positions.
func (idx *Index) SetAvailability(id string, available bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, attr := range []Attribute{AttrCurrent, AttrHome} {
		if e, ok := idx.entries[attr][id]; ok {
			e.Available = available
			idx.entries[attr][id] = e
		}
	}
}

// Remove drops a responder from both attribute indices.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.dropLocked(id, AttrCurrent)
	idx.dropLocked(id, AttrHome)
}

func (idx *Index) dropLocked(id string, attr Attribute) {
	e, ok := idx.entries[attr][id]
	if !ok {
		return
	}
	delete(idx.entries[attr], id)
	key := cellOf(e.Point)
	if bucket, ok := idx.cells[attr][key]; ok {
		delete(bucket, id)
		if len(bucket) == 0 {
			delete(idx.cells[attr], key)
		}
	}
}

// Query returns the unordered ids of responders whose indexed position for
// attr lies within radiusMeters great-circle distance of center and whose
// entry matches filter. A nil filter matches everything.
func (idx *Index) Query(center Point, radiusMeters float64, attr Attribute, filter Filter) []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	// Candidate cell window. Longitude degrees shrink with latitude, so
	// widen the x span accordingly, capped at the full circle.
	latSpan := radiusMeters / 111320.0
	cosLat := math.Cos(center.Latitude * math.Pi / 180)
	lonSpan := 180.0
	if cosLat > 1e-6 {
		lonSpan = latSpan / cosLat
	}

	minCell := cellOf(Point{Longitude: center.Longitude - lonSpan, Latitude: center.Latitude - latSpan})
	maxCell := cellOf(Point{Longitude: center.Longitude + lonSpan, Latitude: center.Latitude + latSpan})

	var ids []string
	for x := minCell.x; x <= maxCell.x; x++ {
		for y := minCell.y; y <= maxCell.y; y++ {
			for id := range idx.cells[attr][cellKey{x: x, y: y}] {
				e := idx.entries[attr][id]
				if filter != nil && !filter(e) {
					continue
				}
				if Distance(center, e.Point) <= radiusMeters {
					ids = append(ids, id)
				}
			}
		}
	}
	return ids
}
