package geo_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mitrahelp/mitrahelp-api/geo"
	"github.com/mitrahelp/mitrahelp-api/models"
)

// jakarta is the query center used throughout. Offsets below are in
// degrees of latitude: 0.01 degrees is roughly 1.11 km.
var jakarta = geo.Point{Longitude: 106.8456, Latitude: -6.2088}

func offsetNorth(p geo.Point, km float64) geo.Point {
	return geo.Point{Longitude: p.Longitude, Latitude: p.Latitude + km/111.195}
}

func TestIndexQueryByAttribute(t *testing.T) {
	idx := geo.NewIndex()

	// X: current position 3 km out, no home on record
	idx.Upsert("responder-x", geo.AttrCurrent, offsetNorth(jakarta, 3), models.RoleResponder, true)

	// Y: current position far away, home 10 km out
	idx.Upsert("responder-y", geo.AttrCurrent, offsetNorth(jakarta, 80), models.RoleResponder, true)
	idx.Upsert("responder-y", geo.AttrHome, offsetNorth(jakarta, 10), models.RoleResponder, true)

	// Z: current 8 km (outside 5 km), home 20 km (outside 15 km)
	idx.Upsert("responder-z", geo.AttrCurrent, offsetNorth(jakarta, 8), models.RoleResponder, true)
	idx.Upsert("responder-z", geo.AttrHome, offsetNorth(jakarta, 20), models.RoleResponder, true)

	filter := geo.Available(models.RoleResponder)

	current := idx.Query(jakarta, geo.DefaultCurrentRadiusMeters, geo.AttrCurrent, filter)
	assert.ElementsMatch(t, []string{"responder-x"}, current)

	home := idx.Query(jakarta, geo.DefaultHomeRadiusMeters, geo.AttrHome, filter)
	assert.ElementsMatch(t, []string{"responder-y"}, home)
}

func TestIndexOriginMeansUnknown(t *testing.T) {
	idx := geo.NewIndex()

	idx.Upsert("responder-a", geo.AttrCurrent, offsetNorth(jakarta, 1), models.RoleResponder, true)
	assert.Len(t, idx.Query(jakarta, geo.DefaultCurrentRadiusMeters, geo.AttrCurrent, nil), 1)

	// pushing the origin removes the entry rather than indexing (0,0)
	idx.Upsert("responder-a", geo.AttrCurrent, geo.Point{}, models.RoleResponder, true)
	assert.Empty(t, idx.Query(jakarta, geo.DefaultCurrentRadiusMeters, geo.AttrCurrent, nil))

	// and nothing near Null Island either
	assert.Empty(t, idx.Query(geo.Point{Longitude: 0.001, Latitude: 0.001}, 5000, geo.AttrCurrent, nil))
}

func TestIndexAvailabilityFilter(t *testing.T) {
	idx := geo.NewIndex()

	idx.Upsert("busy", geo.AttrCurrent, offsetNorth(jakarta, 1), models.RoleResponder, false)
	idx.Upsert("free", geo.AttrCurrent, offsetNorth(jakarta, 2), models.RoleResponder, true)
	idx.Upsert("bystander", geo.AttrCurrent, offsetNorth(jakarta, 1), models.RoleRequester, true)

	got := idx.Query(jakarta, geo.DefaultCurrentRadiusMeters, geo.AttrCurrent, geo.Available(models.RoleResponder))
	assert.ElementsMatch(t, []string{"free"}, got)

	// flipping availability takes effect without re-upserting positions
	idx.SetAvailability("busy", true)
	idx.SetAvailability("free", false)

	got = idx.Query(jakarta, geo.DefaultCurrentRadiusMeters, geo.AttrCurrent, geo.Available(models.RoleResponder))
	assert.ElementsMatch(t, []string{"busy"}, got)
}

func TestIndexRemove(t *testing.T) {
	idx := geo.NewIndex()

	idx.Upsert("gone", geo.AttrCurrent, offsetNorth(jakarta, 1), models.RoleResponder, true)
	idx.Upsert("gone", geo.AttrHome, offsetNorth(jakarta, 2), models.RoleResponder, true)
	idx.Remove("gone")

	assert.Empty(t, idx.Query(jakarta, geo.DefaultCurrentRadiusMeters, geo.AttrCurrent, nil))
	assert.Empty(t, idx.Query(jakarta, geo.DefaultHomeRadiusMeters, geo.AttrHome, nil))
}

func TestIndexUpsertReplacesOldCell(t *testing.T) {
	idx := geo.NewIndex()

	idx.Upsert("mover", geo.AttrCurrent, offsetNorth(jakarta, 1), models.RoleResponder, true)
	idx.Upsert("mover", geo.AttrCurrent, offsetNorth(jakarta, 200), models.RoleResponder, true)

	got := idx.Query(jakarta, geo.DefaultCurrentRadiusMeters, geo.AttrCurrent, nil)
	assert.Empty(t, got)

	got = idx.Query(offsetNorth(jakarta, 200), 5000, geo.AttrCurrent, nil)
	assert.ElementsMatch(t, []string{"mover"}, got)
}

func TestIndexConcurrentAccess(t *testing.T) {
	idx := geo.NewIndex()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("responder-%d", i)
			idx.Upsert(id, geo.AttrCurrent, offsetNorth(jakarta, float64(i%5)), models.RoleResponder, true)
		}(i)
		go func() {
			defer wg.Done()
			idx.Query(jakarta, geo.DefaultCurrentRadiusMeters, geo.AttrCurrent, geo.Available(models.RoleResponder))
		}()
	}
	wg.Wait()

	got := idx.Query(jakarta, geo.DefaultCurrentRadiusMeters, geo.AttrCurrent, nil)
	assert.Len(t, got, 50)
}
