package selection

import (
	"sort"
	"time"

	"github.com/couchcryptid/metget-build-service/internal/domain"
)

// MergeFallback keeps every primary record and adds the fallback records
// whose valid time the primary lacks. Both inputs must be normalized; the
// result is normalized too. A primary that already covers every fallback
// instant is returned unchanged.
func MergeFallback(primary, fallback domain.Selection) domain.Selection {
	out := make(domain.Selection, len(primary), len(primary)+len(fallback))
	copy(out, primary)

	for _, r := range fallback {
		if !primary.Contains(r.ValidTime) {
			out = append(out, r)
		}
	}
	if len(out) == len(primary) {
		return out
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ValidTime.Before(out[j].ValidTime)
	})
	return out
}

// normalize clamps records to [start, end], orders them by valid time and
// keeps the highest ingestion id where a valid time repeats.
func normalize(recs []domain.CatalogRecord, start, end time.Time) domain.Selection {
	in := make(domain.Selection, 0, len(recs))
	for _, r := range recs {
		if r.ValidTime.Before(start) || r.ValidTime.After(end) {
			continue
		}
		in = append(in, r)
	}

	sort.SliceStable(in, func(i, j int) bool {
		if !in[i].ValidTime.Equal(in[j].ValidTime) {
			return in[i].ValidTime.Before(in[j].ValidTime)
		}
		return in[i].ID > in[j].ID
	})

	out := in[:0]
	for _, r := range in {
		if n := len(out); n > 0 && out[n-1].ValidTime.Equal(r.ValidTime) {
			continue
		}
		out = append(out, r)
	}
	return out
}
