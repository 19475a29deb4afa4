package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reportWith(results ...ControlResult) *Report {
	return &Report{PolicyName: "p", Results: results, Summary: Summarize(results)}
}

func TestCompareReports(t *testing.T) {
	prev := reportWith(
		ControlResult{ControlID: "SAME", Status: StatusPass},
		ControlResult{ControlID: "REGRESS", Status: StatusPass},
		ControlResult{ControlID: "FIX", Status: StatusFail},
		ControlResult{ControlID: "SHIFT", Status: StatusFail},
		ControlResult{ControlID: "GONE", Status: StatusError},
	)
	curr := reportWith(
		ControlResult{ControlID: "SAME", Status: StatusPass},
		ControlResult{ControlID: "REGRESS", Status: StatusFail, Message: "Expected 'SHA512', found 'MD5'."},
		ControlResult{ControlID: "FIX", Status: StatusPass},
		ControlResult{ControlID: "SHIFT", Status: StatusError},
		ControlResult{ControlID: "NEW", Status: StatusUnknown},
	)

	d := CompareReports(prev, curr)

	require.Len(t, d.Regressed, 1)
	assert.Equal(t, "REGRESS", d.Regressed[0].ControlID)
	assert.Equal(t, StatusPass, d.Regressed[0].Before)
	assert.Equal(t, StatusFail, d.Regressed[0].After)
	assert.True(t, d.HasRegressions())

	require.Len(t, d.Fixed, 1)
	assert.Equal(t, "FIX", d.Fixed[0].ControlID)

	require.Len(t, d.Changed, 1)
	assert.Equal(t, "SHIFT", d.Changed[0].ControlID)

	require.Len(t, d.Unchanged, 1)
	assert.Equal(t, "SAME", d.Unchanged[0].ControlID)

	require.Len(t, d.Added, 1)
	assert.Equal(t, "NEW", d.Added[0].ControlID)

	require.Len(t, d.Removed, 1)
	assert.Equal(t, "GONE", d.Removed[0].ControlID)
}

func TestCompareReportsWithoutBaseline(t *testing.T) {
	curr := reportWith(ControlResult{ControlID: "A", Status: StatusFail})
	d := CompareReports(nil, curr)
	assert.Len(t, d.Added, 1)
	assert.False(t, d.HasRegressions())

	assert.Equal(t, Drift{}, CompareReports(curr, nil))
}
