package resolver

import (
	"sort"
	"strings"
	"time"

	"github.com/hayasaka/discbox/internal/domain/track"
)

// shortFormMax is the longest duration still considered short-form clip
// content rather than a song.
const shortFormMax = 60 * time.Second

// shortFormMarkers flag short-form uploads whose reported duration is
// missing or wrong.
var shortFormMarkers = []string{"#shorts", "#short", "tiktok"}

// longFormKeywords mark titles that are likely full songs rather than
// teasers or clips.
var longFormKeywords = []string{"official", "audio", "song", "lyric"}

func isShortDuration(d time.Duration) bool {
	return d > 0 && d <= shortFormMax
}

// isShortForm flags clips by duration when known, falling back to title
// markers only when the duration is unknown. A known long duration
// overrides the markers.
func isShortForm(t *track.Track) bool {
	if t.Duration > 0 {
		return t.Duration <= shortFormMax
	}
	title := strings.ToLower(t.Title)
	for _, marker := range shortFormMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return false
}

func longFormScore(t *track.Track) int {
	title := strings.ToLower(t.Title)
	score := 0
	for _, kw := range longFormKeywords {
		if strings.Contains(title, kw) {
			score++
		}
	}
	return score
}

// applySearchFilters filters and ranks raw search results per the options.
// The incoming relevance order is preserved among equally ranked results.
func applySearchFilters(results []*track.Track, opts SearchOptions) []*track.Track {
	filtered := make([]*track.Track, 0, len(results))
	for _, t := range results {
		if opts.ExcludeShortForm && isShortForm(t) {
			continue
		}
		if opts.MinDuration > 0 && t.Duration > 0 && t.Duration < opts.MinDuration {
			continue
		}
		filtered = append(filtered, t)
	}

	if opts.PreferLongForm {
		sort.SliceStable(filtered, func(i, j int) bool {
			return longFormScore(filtered[i]) > longFormScore(filtered[j])
		})
	}

	if opts.Limit > 0 && len(filtered) > opts.Limit {
		filtered = filtered[:opts.Limit]
	}
	return filtered
}
