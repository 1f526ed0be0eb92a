package extract

import "github.com/ppiankov/trawler/internal/model"

// Strategy picks which source locators the next extraction cycle reads
// after a validation shortfall. The gap report is the input; whether to
// re-read the same sources or seek additional ones is the strategy's call.
type Strategy interface {
	Plan(spec model.DomainSpec, gap *model.GapReport, consumed []string, progressed bool) []string
}

// GapFocused re-extracts the already-consumed sources with a gap-focused
// prompt first, and reaches for untouched domain sources only after a
// cycle that made no progress.
type GapFocused struct{}

// Plan returns the locators for the next cycle.
func (GapFocused) Plan(spec model.DomainSpec, gap *model.GapReport, consumed []string, progressed bool) []string {
	if gap == nil || len(consumed) == 0 {
		return spec.Sources
	}

	if progressed {
		return consumed
	}

	// No progress on the same material: widen to sources not yet read.
	used := make(map[string]bool, len(consumed))
	for _, loc := range consumed {
		used[loc] = true
	}
	var fresh []string
	for _, loc := range spec.Sources {
		if !used[loc] {
			fresh = append(fresh, loc)
		}
	}
	if len(fresh) == 0 {
		// Nothing left to widen to; the same sources are all there is.
		return consumed
	}
	return append(append([]string{}, consumed...), fresh...)
}
