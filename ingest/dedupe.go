package ingest

import (
	"sort"

	"github.com/marketlens/marketlens/core"
)

// DedupeEvents collapses events describing the same occurrence down to one
// representative each. Candidates are grouped by normalized headline; within a
// group the winner is chosen by a fixed preference order, so the result is
// deterministic regardless of the order sources finished in.
//
// Preference: live origin over seed, then newer event time, then higher
// impact, then higher confidence.
func DedupeEvents(events []core.Event) []core.Event {
	if len(events) == 0 {
		return nil
	}

	ranked := make([]core.Event, len(events))
	copy(ranked, events)
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if (a.Origin == core.OriginLive) != (b.Origin == core.OriginLive) {
			return a.Origin == core.OriginLive
		}
		if !a.EventTime.Equal(b.EventTime) {
			return a.EventTime.After(b.EventTime)
		}
		if a.Impact != b.Impact {
			return a.Impact > b.Impact
		}
		return a.Confidence > b.Confidence
	})

	seen := make(map[string]struct{}, len(ranked))
	out := make([]core.Event, 0, len(ranked))
	for _, event := range ranked {
		key := core.NormalizeHeadline(event.Headline)
		if key == "" {
			key = event.EventID
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, event)
	}
	return out
}
