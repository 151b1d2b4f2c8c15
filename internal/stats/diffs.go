package stats

import "sort"

// statusRank orders diff statuses for display: modifications first,
// then additions, deletions, and anything else.
func statusRank(status string) int {
	switch status {
	case "modified":
		return 0
	case "added":
		return 1
	case "deleted":
		return 2
	default:
		return 3
	}
}

// SortFileDiffs orders entries by status rank, then path.
func SortFileDiffs(diffs []FileDiff) {
	sort.SliceStable(diffs, func(i, j int) bool {
		ri, rj := statusRank(diffs[i].Status), statusRank(diffs[j].Status)
		if ri != rj {
			return ri < rj
		}
		return diffs[i].Path < diffs[j].Path
	})
}

// MergeFileDiff folds one incoming entry into a per-path map. Counts
// sum across contributing records; the latest explicit non-"modified"
// status overrides the prior one.
func MergeFileDiff(byPath map[string]FileDiff, incoming FileDiff) {
	if incoming.Path == "" {
		return
	}
	if incoming.Status == "" {
		incoming.Status = "modified"
	}
	existing, ok := byPath[incoming.Path]
	if !ok {
		byPath[incoming.Path] = incoming
		return
	}
	existing.Additions += incoming.Additions
	existing.Deletions += incoming.Deletions
	if incoming.Status != "modified" {
		existing.Status = incoming.Status
	}
	byPath[incoming.Path] = existing
}

// mergeFileDiffs folds incoming entries into an already deduplicated
// list and returns the merged, sorted result.
func mergeFileDiffs(current []FileDiff, incoming []FileDiff) []FileDiff {
	byPath := make(map[string]FileDiff, len(current)+len(incoming))
	for _, d := range current {
		MergeFileDiff(byPath, d)
	}
	for _, d := range incoming {
		MergeFileDiff(byPath, d)
	}
	return flattenDiffs(byPath)
}

func flattenDiffs(byPath map[string]FileDiff) []FileDiff {
	out := make([]FileDiff, 0, len(byPath))
	for _, d := range byPath {
		out = append(out, d)
	}
	SortFileDiffs(out)
	return out
}

// DiffTotals sums line counts over a deduplicated list.
func DiffTotals(diffs []FileDiff) Diffs {
	var d Diffs
	for _, fd := range diffs {
		d.Additions += fd.Additions
		d.Deletions += fd.Deletions
	}
	return d
}

// incrementalDiffs subtracts the previous day's cumulative per-file
// state from the current day's, keeping only net new line changes.
func incrementalDiffs(current, previous []FileDiff) []FileDiff {
	if len(previous) == 0 {
		return current
	}
	prevByPath := make(map[string]FileDiff, len(previous))
	for _, p := range previous {
		prevByPath[p.Path] = p
	}
	out := make([]FileDiff, 0, len(current))
	for _, c := range current {
		p, ok := prevByPath[c.Path]
		if !ok {
			out = append(out, c)
			continue
		}
		adds := satSub(c.Additions, p.Additions)
		dels := satSub(c.Deletions, p.Deletions)
		if adds > 0 || dels > 0 {
			out = append(out, FileDiff{Path: c.Path, Additions: adds, Deletions: dels, Status: c.Status})
		}
	}
	return out
}
