package domain

import (
	"errors"
	"fmt"
	"time"
)

// Policy is the temporal assembly rule for a selection.
type Policy int

const (
	PolicySingleForecast Policy = iota
	PolicyMultiForecast
	PolicyNowcast
)

func (p Policy) String() string {
	switch p {
	case PolicyNowcast:
		return "nowcast"
	case PolicyMultiForecast:
		return "multi_forecast"
	default:
		return "single_forecast"
	}
}

// PolicyFromFlags maps the request flags to a policy. Nowcast wins over
// multiple forecasts when both are set.
func PolicyFromFlags(nowcast, multipleForecasts bool) Policy {
	switch {
	case nowcast:
		return PolicyNowcast
	case multipleForecasts:
		return PolicyMultiForecast
	default:
		return PolicySingleForecast
	}
}

// DataType is the meteorological variable family a request asks for.
type DataType string

const (
	DataWindPressure DataType = "wind_pressure"
	DataRain         DataType = "rain"
	DataIce          DataType = "ice"
	DataHumidity     DataType = "humidity"
	DataTemperature  DataType = "temperature"
)

// Valid reports whether d is a known data type.
func (d DataType) Valid() bool {
	switch d {
	case DataWindPressure, DataRain, DataIce, DataHumidity, DataTemperature:
		return true
	}
	return false
}

// SelectionRequest is the input to one domain's file selection.
type SelectionRequest struct {
	Service     ServiceInfo
	Scope       Scope
	WindowStart time.Time
	WindowEnd   time.Time
	TauFloor    int
	Policy      Policy
	DataType    DataType
}

// Validate checks the window and tau floor.
func (r SelectionRequest) Validate() error {
	if r.Service.ID == "" {
		return errors.New("selection request has no service")
	}
	if !r.WindowStart.Before(r.WindowEnd) {
		return fmt.Errorf("window start %s is not before window end %s",
			r.WindowStart.Format(time.RFC3339), r.WindowEnd.Format(time.RFC3339))
	}
	if r.TauFloor < 0 {
		return fmt.Errorf("tau floor %d is negative", r.TauFloor)
	}
	return nil
}

// ExcludeZeroHour reports whether the provider's zero-hour rainfall must be skipped.
func (r SelectionRequest) ExcludeZeroHour() bool {
	return r.DataType == DataRain && r.Service.ZeroHourRainfall
}
