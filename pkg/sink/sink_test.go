package sink

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gosec-audit/pkg/engine"
)

func sampleReport() *engine.Report {
	results := []engine.ControlResult{
		{ControlID: "CFG-01", Title: "Password hashing", Status: engine.StatusFail, Message: "Expected 'SHA512', found 'MD5'.", RelevanceNote: "Design 07", Remediation: "Set ENCRYPT_METHOD SHA512 in /etc/login.defs."},
		{ControlID: "SVC-01", Title: "sshd running", Status: engine.StatusPass, Message: "Service 'sshd' is running."},
		{ControlID: "X-01", Title: "Future", Status: engine.StatusUnknown, Message: engine.MessageNotImplemented},
	}
	return &engine.Report{
		PolicyName:  "CIS Ubuntu Baseline",
		GeneratedAt: time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC),
		Hostname:    "web-01",
		Results:     results,
		Summary:     engine.Summarize(results),
	}
}

func TestConsoleRender(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Console{Out: &buf}).Render(sampleReport()))
	out := buf.String()

	assert.Contains(t, out, "Policy: CIS Ubuntu Baseline")
	assert.Contains(t, out, "Host:   web-01")
	assert.Contains(t, out, "CFG-01       | FAIL    | Expected 'SHA512', found 'MD5'.")
	assert.Contains(t, out, "  [FIX]: Set ENCRYPT_METHOD SHA512 in /etc/login.defs.")
	assert.Contains(t, out, "Summary: 3 controls, 1 passed, 1 failed, 0 errors, 1 unknown")
	assert.Equal(t, 1, strings.Count(out, "[FIX]"))
	assert.NotContains(t, out, "\x1b[")

	// Results appear in report order.
	assert.Less(t, strings.Index(out, "CFG-01"), strings.Index(out, "SVC-01"))
	assert.Less(t, strings.Index(out, "SVC-01"), strings.Index(out, "X-01"))
}

func TestConsoleRenderColor(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&Console{Out: &buf, Color: true}).Render(sampleReport()))
	assert.Contains(t, buf.String(), "\x1b[")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestConsoleRenderReportsWriteFailure(t *testing.T) {
	err := (&Console{Out: failingWriter{}}).Render(sampleReport())
	require.Error(t, err)
}

func TestConsoleRenderDrift(t *testing.T) {
	var buf bytes.Buffer
	c := &Console{Out: &buf}

	require.NoError(t, c.RenderDrift(engine.Drift{}))
	assert.Contains(t, buf.String(), "No change")

	buf.Reset()
	require.NoError(t, c.RenderDrift(engine.Drift{
		Regressed: []engine.Change{{ControlID: "CFG-01", Before: engine.StatusPass, After: engine.StatusFail}},
		Added:     []engine.Change{{ControlID: "NEW-01", After: engine.StatusPass}},
	}))
	assert.Contains(t, buf.String(), "REGRESSED CFG-01: PASS -> FAIL")
	assert.Contains(t, buf.String(), "NEW NEW-01: PASS")
}

func TestWriteJSONDocumentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "audit_report.json")
	require.NoError(t, WriteJSON(path, sampleReport()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc struct {
		PolicyName string           `json:"policy_name"`
		Timestamp  string           `json:"timestamp"`
		Hostname   string           `json:"hostname"`
		Results    []map[string]any `json:"results"`
		Summary    map[string]int   `json:"summary"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "CIS Ubuntu Baseline", doc.PolicyName)
	assert.Equal(t, "2026-10-19T09:30:00Z", doc.Timestamp)
	assert.Equal(t, "web-01", doc.Hostname)
	require.Len(t, doc.Results, 3)
	assert.Equal(t, "CFG-01", doc.Results[0]["id"])
	assert.Equal(t, "Design 07", doc.Results[0]["design_concept"])
	assert.Equal(t, "Set ENCRYPT_METHOD SHA512 in /etc/login.defs.", doc.Results[0]["remediation"])
	assert.NotContains(t, doc.Results[1], "remediation")
	assert.NotContains(t, doc.Results[2], "remediation")
	assert.Equal(t, map[string]int{"pass": 1, "fail": 1, "error": 0, "unknown": 1}, doc.Summary)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.ElementsMatch(t, []string{"audit_report.json", "audit_report.json.lock"}, names)
}

func TestWriteJSONReplacesExistingReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit_report.json")
	require.NoError(t, os.WriteFile(path, []byte(strings.Repeat("stale ", 1000)), 0o600))

	require.NoError(t, WriteJSON(path, sampleReport()))

	got, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "web-01", got.Hostname)
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestWriteJSONRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit_report.json")
	want := sampleReport()
	require.NoError(t, WriteJSON(path, want))

	got, err := ReadJSON(path)
	require.NoError(t, err)
	assert.Equal(t, want.PolicyName, got.PolicyName)
	assert.True(t, want.GeneratedAt.Equal(got.GeneratedAt))
	assert.Equal(t, want.Summary, got.Summary)
	require.Len(t, got.Results, len(want.Results))
	for i := range want.Results {
		assert.Equal(t, want.Results[i].ControlID, got.Results[i].ControlID)
		assert.Equal(t, want.Results[i].Status, got.Results[i].Status)
		assert.Equal(t, want.Results[i].Remediation, got.Results[i].Remediation)
	}
}

func TestWriteJSONConcurrentWritersLeaveValidDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit_report.json")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, WriteJSON(path, sampleReport()))
		}()
	}
	wg.Wait()

	_, err := ReadJSON(path)
	require.NoError(t, err)
}

func TestWriteJSONFailureIsWriteError(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := WriteJSON(filepath.Join(blocker, "audit_report.json"), sampleReport())
	require.Error(t, err)
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.Contains(t, werr.Path, "audit_report.json")
}

func TestReadJSONErrors(t *testing.T) {
	_, err := ReadJSON(filepath.Join(t.TempDir(), "missing.json"))
	require.ErrorIs(t, err, os.ErrNotExist)

	bad := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o600))
	_, err = ReadJSON(bad)
	require.Error(t, err)
}
