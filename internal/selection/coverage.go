package selection

import (
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/domain"
)

// Gap is a stretch of the window with no record for longer than one time step.
type Gap struct {
	From time.Time
	To   time.Time
}

func (g Gap) String() string {
	return g.From.Format(time.RFC3339) + " to " + g.To.Format(time.RFC3339)
}

// Gaps walks the window edges and the selection's valid times and reports
// every consecutive pair further apart than step.
func Gaps(sel domain.Selection, start, end time.Time, step time.Duration) []Gap {
	points := make([]time.Time, 0, len(sel)+2)
	points = append(points, start)
	points = append(points, sel.ValidTimes()...)
	points = append(points, end)

	var gaps []Gap
	for i := 1; i < len(points); i++ {
		if points[i].Sub(points[i-1]) > step {
			gaps = append(gaps, Gap{From: points[i-1], To: points[i]})
		}
	}
	return gaps
}

// CheckCoverage returns an error wrapping domain.ErrInsufficientData when the
// selection leaves any gap longer than step.
func CheckCoverage(sel domain.Selection, start, end time.Time, step time.Duration) error {
	gaps := Gaps(sel, start, end, step)
	if len(gaps) == 0 {
		return nil
	}
	parts := make([]string, len(gaps))
	for i, g := range gaps {
		parts[i] = g.String()
	}
	return fmt.Errorf("%w: no data from %s", domain.ErrInsufficientData, strings.Join(parts, ", "))
}
