package service

import (
	"time"

	"github.com/gtrade-dashboard/internal/types"
)

const pnlDateLayout = "2006-01-02"

// PnLSeries is the in-process daily PnL history. One point per UTC day:
// a refresh on the same day replaces that day's point, a new day appends.
// Earlier points are never edited.
type PnLSeries struct {
	retention int
	points    []types.PnLDataPoint
}

// NewPnLSeries creates a series keeping at most retention points
func NewPnLSeries(retention int) *PnLSeries {
	if retention <= 0 {
		retention = 90
	}
	return &PnLSeries{retention: retention}
}

// Record sets the point for the day of at and returns a copy of the series.
// byStrategy is keyed by strategy id; config validation limits ids to
// types.StrategyIDs so every strategy has a column.
func (s *PnLSeries) Record(at time.Time, byStrategy map[string]float64, total float64) []types.PnLDataPoint {
	point := types.PnLDataPoint{
		Timestamp: at.UTC().Format(pnlDateLayout),
		StrategyA: byStrategy["A"],
		StrategyB: byStrategy["B"],
		StrategyC: byStrategy["C"],
		StrategyD: byStrategy["D"],
		Total:     total,
	}

	n := len(s.points)
	switch {
	case n > 0 && s.points[n-1].Timestamp == point.Timestamp:
		s.points[n-1] = point
	case n > 0 && s.points[n-1].Timestamp > point.Timestamp:
		// Clock went backwards; keep the series ascending
	default:
		s.points = append(s.points, point)
	}

	if len(s.points) > s.retention {
		s.points = append([]types.PnLDataPoint(nil), s.points[len(s.points)-s.retention:]...)
	}
	return s.Points()
}

// Points returns a copy of the series in ascending date order
func (s *PnLSeries) Points() []types.PnLDataPoint {
	out := make([]types.PnLDataPoint, len(s.points))
	copy(out, s.points)
	return out
}
