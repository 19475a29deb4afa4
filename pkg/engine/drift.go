package engine

// Change describes how one control moved between two reports.
type Change struct {
	ControlID string
	Title     string
	Before    Status
	After     Status
	Message   string
}

// Drift is the comparison of a report against an earlier one for the same policy.
type Drift struct {
	Regressed []Change // passed before, does not pass now
	Fixed     []Change // did not pass before, passes now
	Changed   []Change // non-passing before and now, with a different status
	Unchanged []Change
	Added     []Change // present only in the current report
	Removed   []Change // present only in the previous report
}

// HasRegressions reports whether any control stopped passing.
func (d Drift) HasRegressions() bool {
	return len(d.Regressed) > 0
}

// CompareReports matches results by control id. Current-report order is kept for
// everything except Removed, which follows the previous report.
func CompareReports(prev, curr *Report) Drift {
	var d Drift
	if curr == nil {
		return d
	}

	before := make(map[string]ControlResult)
	if prev != nil {
		for _, r := range prev.Results {
			before[r.ControlID] = r
		}
	}

	seen := make(map[string]bool, len(curr.Results))
	for _, r := range curr.Results {
		seen[r.ControlID] = true
		old, ok := before[r.ControlID]
		c := Change{ControlID: r.ControlID, Title: r.Title, After: r.Status, Message: r.Message}
		if !ok {
			d.Added = append(d.Added, c)
			continue
		}
		c.Before = old.Status

		switch {
		case old.Status == r.Status:
			d.Unchanged = append(d.Unchanged, c)
		case old.Status == StatusPass:
			d.Regressed = append(d.Regressed, c)
		case r.Status == StatusPass:
			d.Fixed = append(d.Fixed, c)
		default:
			d.Changed = append(d.Changed, c)
		}
	}

	if prev != nil {
		for _, r := range prev.Results {
			if !seen[r.ControlID] {
				d.Removed = append(d.Removed, Change{
					ControlID: r.ControlID,
					Title:     r.Title,
					Before:    r.Status,
					Message:   r.Message,
				})
			}
		}
	}
	return d
}
