package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupService(t *testing.T) {
	info, err := LookupService(ServiceNAM)
	require.NoError(t, err)
	assert.Equal(t, "nam_ncep", info.Table)
	assert.Equal(t, 6*time.Hour, info.CycleInterval)
	assert.True(t, info.ZeroHourRainfall)

	_, err = LookupService("ecmwf-ifs")
	assert.True(t, errors.Is(err, ErrUnknownService))
}

func TestServices_SortedAndUniqueTables(t *testing.T) {
	all := Services()
	require.Len(t, all, 10)

	tables := make(map[string]bool)
	for i, s := range all {
		if i > 0 {
			assert.Less(t, all[i-1].ID, s.ID)
		}
		assert.False(t, tables[s.Table], "table %s shared", s.Table)
		tables[s.Table] = true
		assert.Positive(t, s.TimeStep, s.ID)
	}
}

func TestExcludeZeroHour(t *testing.T) {
	nam, _ := LookupService(ServiceNAM)
	gfs, _ := LookupService(ServiceGFS)

	assert.True(t, SelectionRequest{Service: nam, DataType: DataRain}.ExcludeZeroHour())
	assert.False(t, SelectionRequest{Service: nam, DataType: DataWindPressure}.ExcludeZeroHour())
	assert.False(t, SelectionRequest{Service: gfs, DataType: DataRain}.ExcludeZeroHour())
}

func TestSelectionRequest_Validate(t *testing.T) {
	gfs, _ := LookupService(ServiceGFS)
	start := time.Date(2024, time.September, 10, 0, 0, 0, 0, time.UTC)

	ok := SelectionRequest{Service: gfs, WindowStart: start, WindowEnd: start.Add(time.Hour)}
	assert.NoError(t, ok.Validate())

	noService := ok
	noService.Service = ServiceInfo{}
	assert.Error(t, noService.Validate())

	inverted := ok
	inverted.WindowEnd = start
	assert.Error(t, inverted.Validate())

	negative := ok
	negative.TauFloor = -3
	assert.EqualError(t, negative.Validate(), "tau floor -3 is negative")
}

func TestFilterMatches(t *testing.T) {
	cycle := time.Date(2024, time.September, 10, 0, 0, 0, 0, time.UTC)
	r := CatalogRecord{Service: ServiceNAM, Cycle: cycle, ValidTime: cycle, Tau: 0}
	f := Filter{Service: ServiceNAM, Start: cycle, End: cycle.Add(6 * time.Hour)}

	assert.True(t, f.Matches(r))

	excl := f
	excl.ExcludeZeroHour = true
	assert.False(t, excl.Matches(r))

	floor := f
	floor.MinTau = 1
	assert.False(t, floor.Matches(r))

	scoped := f
	scoped.Scope = Scope{Storm: "05"}
	assert.False(t, scoped.Matches(r))
}

func TestSelection_Contains(t *testing.T) {
	t0 := time.Date(2024, time.September, 10, 0, 0, 0, 0, time.UTC)
	sel := Selection{
		{ID: 1, ValidTime: t0},
		{ID: 2, ValidTime: t0.Add(3 * time.Hour)},
	}
	assert.True(t, sel.Contains(t0.Add(3*time.Hour)))
	assert.False(t, sel.Contains(t0.Add(time.Hour)))
	assert.Equal(t, []int64{1, 2}, sel.IDs())
}
