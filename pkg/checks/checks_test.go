package checks

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/gosec-audit/pkg/engine"
	"github.com/user/gosec-audit/pkg/policy"
)

const loginDefs = `# /etc/login.defs
MAIL_DIR        /var/mail
PASS_MAX_DAYS   99999
ENCRYPT_METHOD MD5
UMASK=022
LOGIN_RETRIES: 5
; legacy comment
QUOTED="yes please"
`

func memFS(t *testing.T, files map[string]string) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	for name, body := range files {
		require.NoError(t, afero.WriteFile(fs, name, []byte(body), 0o644))
	}
	return fs
}

func TestConfigFileValue(t *testing.T) {
	fs := memFS(t, map[string]string{"/etc/login.defs": loginDefs})
	h := &ConfigFileValue{FS: fs}

	tests := []struct {
		name     string
		control  policy.Control
		status   engine.Status
		contains []string
	}{
		{
			name:     "mismatch reports both values",
			control:  policy.Control{ID: "CFG-01", Target: "/etc/login.defs", Parameter: "ENCRYPT_METHOD", ExpectedValue: "SHA512"},
			status:   engine.StatusFail,
			contains: []string{"SHA512", "MD5"},
		},
		{
			name:     "whitespace separator",
			control:  policy.Control{ID: "CFG-02", Target: "/etc/login.defs", Parameter: "PASS_MAX_DAYS", ExpectedValue: "99999"},
			status:   engine.StatusPass,
			contains: []string{"'PASS_MAX_DAYS' matches baseline."},
		},
		{
			name:    "equals separator",
			control: policy.Control{ID: "CFG-03", Target: "/etc/login.defs", Parameter: "UMASK", ExpectedValue: "022"},
			status:  engine.StatusPass,
		},
		{
			name:    "colon separator with numeric comparison",
			control: policy.Control{ID: "CFG-04", Target: "/etc/login.defs", Parameter: "LOGIN_RETRIES", ExpectedValue: "5", Comparison: "lte"},
			status:  engine.StatusPass,
		},
		{
			name:    "quotes stripped",
			control: policy.Control{ID: "CFG-05", Target: "/etc/login.defs", Parameter: "QUOTED", ExpectedValue: "yes please"},
			status:  engine.StatusPass,
		},
		{
			name:     "missing parameter",
			control:  policy.Control{ID: "CFG-06", Target: "/etc/login.defs", Parameter: "SHA_CRYPT_MIN_ROUNDS", ExpectedValue: "5000"},
			status:   engine.StatusFail,
			contains: []string{"Parameter 'SHA_CRYPT_MIN_ROUNDS' not found in '/etc/login.defs'."},
		},
		{
			name:     "missing file",
			control:  policy.Control{ID: "CFG-07", Target: "/nonexistent/file.conf", Parameter: "X", ExpectedValue: "Y"},
			status:   engine.StatusFail,
			contains: []string{"not found"},
		},
		{
			name:    "case insensitive comparison",
			control: policy.Control{ID: "CFG-08", Target: "/etc/login.defs", Parameter: "ENCRYPT_METHOD", ExpectedValue: "md5", Comparison: "IGNORE_CASE"},
			status:  engine.StatusPass,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Evaluate(context.Background(), tt.control)
			require.NoError(t, err)
			assert.Equal(t, tt.status, out.Status, out.Message)
			for _, s := range tt.contains {
				assert.Contains(t, out.Message, s)
			}
		})
	}
}

func TestConfigFileValueLastOccurrenceWins(t *testing.T) {
	fs := memFS(t, map[string]string{"/etc/ssh/sshd_config": "PermitRootLogin yes\n#PermitRootLogin no\nPermitRootLogin no\n"})
	out, err := (&ConfigFileValue{FS: fs}).Evaluate(context.Background(), policy.Control{
		ID: "SSH-01", Target: "/etc/ssh/sshd_config", Parameter: "PermitRootLogin", ExpectedValue: "no",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPass, out.Status)
}

func TestConfigFileValueRequiresParameter(t *testing.T) {
	fs := memFS(t, map[string]string{"/etc/login.defs": loginDefs})
	_, err := (&ConfigFileValue{FS: fs}).Evaluate(context.Background(), policy.Control{
		ID: "CFG-09", CheckType: TypeConfigFileValue, Target: "/etc/login.defs",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parameter is required")
}

func TestServicePresence(t *testing.T) {
	fs := memFS(t, map[string]string{
		"/proc/1/comm":      "systemd\n",
		"/proc/1/cmdline":   "/sbin/init\x00splash\x00",
		"/proc/412/comm":    "sshd\n",
		"/proc/900/comm":    "unattended-upgr\n",
		"/proc/901/cmdline": "/usr/bin/containerd\x00--config\x00",
		"/proc/self/comm":   "go\n",
		"/proc/meminfo":     "MemTotal: 1 kB\n",
	})
	h := &ServicePresence{FS: fs}

	tests := []struct {
		name     string
		service  string
		expected string
		status   engine.Status
		message  string
	}{
		{"running as expected", "sshd", "running", engine.StatusPass, "Service 'sshd' is running."},
		{"alias active", "sshd", "active", engine.StatusPass, "Service 'sshd' is running."},
		{"stopped as expected", "telnetd", "stopped", engine.StatusPass, "Service 'telnetd' is stopped."},
		{"running but should be absent", "sshd", "absent", engine.StatusFail, "Service 'sshd' is running, expected stopped."},
		{"stopped but should run", "auditd", "present", engine.StatusFail, "Service 'auditd' is stopped, expected running."},
		{"matched by cmdline", "containerd", "running", engine.StatusPass, "Service 'containerd' is running."},
		{"truncated comm", "unattended-upgrades", "running", engine.StatusPass, "Service 'unattended-upgrades' is running."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Evaluate(context.Background(), policy.Control{ID: "SVC", Target: tt.service, ExpectedValue: tt.expected})
			require.NoError(t, err)
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.message, out.Message)
		})
	}

	_, err := h.Evaluate(context.Background(), policy.Control{ID: "SVC", Target: "sshd", ExpectedValue: "sometimes"})
	require.Error(t, err)
}

func TestServicePresenceWithoutProcfs(t *testing.T) {
	h := &ServicePresence{FS: afero.NewMemMapFs()}
	_, err := h.Evaluate(context.Background(), policy.Control{ID: "SVC", Target: "sshd", ExpectedValue: "running"})
	require.Error(t, err)
}

func TestFilePermission(t *testing.T) {
	fs := memFS(t, map[string]string{"/etc/shadow": "root:*:1::::::\n", "/usr/bin/passwd": "ELF"})
	require.NoError(t, fs.Chmod("/etc/shadow", 0o640))
	require.NoError(t, fs.Chmod("/usr/bin/passwd", 0o755|os.ModeSetuid))
	h := &FilePermission{FS: fs}

	tests := []struct {
		name       string
		target     string
		expected   string
		comparison string
		status     engine.Status
		message    string
	}{
		{"exact match", "/etc/shadow", "0640", "", engine.StatusPass, "'/etc/shadow' has mode 0640."},
		{"exact mismatch", "/etc/shadow", "600", "exact", engine.StatusFail, "Expected mode 0600, found 0640."},
		{"stricter than max", "/etc/shadow", "0644", "max_mode", engine.StatusPass, "'/etc/shadow' has mode 0640."},
		{"looser than max", "/etc/shadow", "0600", "max_mode", engine.StatusFail, "Expected mode 0600 or stricter, found 0640."},
		{"setuid bit counted", "/usr/bin/passwd", "4755", "", engine.StatusPass, "'/usr/bin/passwd' has mode 4755."},
		{"missing file", "/etc/gshadow", "0640", "", engine.StatusFail, "File '/etc/gshadow' not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Evaluate(context.Background(), policy.Control{
				ID: "PERM", Target: tt.target, ExpectedValue: tt.expected, Comparison: tt.comparison,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.message, out.Message)
		})
	}

	_, err := h.Evaluate(context.Background(), policy.Control{ID: "PERM", Target: "/etc/shadow", ExpectedValue: "rw-r-----"})
	require.Error(t, err)
	_, err = h.Evaluate(context.Background(), policy.Control{ID: "PERM", Target: "/etc/shadow", ExpectedValue: "0640", Comparison: "regex"})
	require.Error(t, err)
}

func TestJSONValue(t *testing.T) {
	fs := memFS(t, map[string]string{
		"/etc/docker/daemon.json": `{"log-driver":"json-file","icc":false,"log-opts":{"max-size":"10m","max-file":3}}`,
		"/etc/broken.json":        `{"icc":`,
	})
	h := &JSONValue{FS: fs}

	tests := []struct {
		name     string
		target   string
		path     string
		expected string
		status   engine.Status
		message  string
	}{
		{"string", "/etc/docker/daemon.json", `$["log-driver"]`, "json-file", engine.StatusPass, `'$["log-driver"]' matches baseline.`},
		{"bool", "/etc/docker/daemon.json", "$.icc", "false", engine.StatusPass, "'$.icc' matches baseline."},
		{"nested number", "/etc/docker/daemon.json", `$["log-opts"]["max-file"]`, "5", engine.StatusFail, "Expected '5', found '3'."},
		{"missing key", "/etc/docker/daemon.json", "$.userns", "default", engine.StatusFail, "Path '$.userns' not found in '/etc/docker/daemon.json'."},
		{"missing file", "/etc/containerd.json", "$.x", "y", engine.StatusFail, "File '/etc/containerd.json' not found."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := h.Evaluate(context.Background(), policy.Control{ID: "JSON", Target: tt.target, Parameter: tt.path, ExpectedValue: tt.expected})
			require.NoError(t, err)
			assert.Equal(t, tt.status, out.Status)
			assert.Equal(t, tt.message, out.Message)
		})
	}

	_, err := h.Evaluate(context.Background(), policy.Control{ID: "JSON", Target: "/etc/broken.json", Parameter: "$.icc", ExpectedValue: "false"})
	require.Error(t, err)
}

func TestCommandOutput(t *testing.T) {
	var gotName string
	var gotArgs []string
	h := &CommandOutput{Run: func(_ context.Context, name string, args ...string) ([]byte, error) {
		gotName, gotArgs = name, args
		return []byte("kernel.randomize_va_space = 2\n"), nil
	}}

	out, err := h.Evaluate(context.Background(), policy.Control{
		ID: "CMD-01", Target: `sysctl "kernel.randomize_va_space"`, ExpectedValue: "kernel.randomize_va_space = 2",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPass, out.Status)
	assert.Equal(t, "sysctl", gotName)
	assert.Equal(t, []string{"kernel.randomize_va_space"}, gotArgs)

	out, err = h.Evaluate(context.Background(), policy.Control{
		ID: "CMD-02", Target: "sysctl kernel.randomize_va_space", ExpectedValue: `= 0$`, Comparison: "regex",
	})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusFail, out.Status)
	assert.Contains(t, out.Message, "found 'kernel.randomize_va_space = 2'")
}

func TestCommandOutputErrors(t *testing.T) {
	failing := &CommandOutput{Run: func(context.Context, string, ...string) ([]byte, error) {
		return nil, errors.New("exit status 1: permission denied")
	}}
	_, err := failing.Evaluate(context.Background(), policy.Control{ID: "CMD", Target: "auditctl -s", ExpectedValue: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")

	_, err = failing.Evaluate(context.Background(), policy.Control{ID: "CMD", Target: `echo "unterminated`, ExpectedValue: "x"})
	require.Error(t, err)
}

func TestCommandOutputExec(t *testing.T) {
	if _, err := exec.LookPath("echo"); err != nil {
		t.Skip("echo not available")
	}
	out, err := (&CommandOutput{}).Evaluate(context.Background(), policy.Control{ID: "CMD", Target: "echo enforcing", ExpectedValue: "enforcing"})
	require.NoError(t, err)
	assert.Equal(t, engine.StatusPass, out.Status)
}

func TestCompare(t *testing.T) {
	tests := []struct {
		mode, expected, actual string
		want                   bool
		wantErr                bool
	}{
		{"", "SHA512", "SHA512", true, false},
		{"exact", "SHA512", "sha512", false, false},
		{"ignore_case", "SHA512", "sha512", true, false},
		{"regex", "^SHA(256|512)$", "SHA256", true, false},
		{"regex", "(", "x", false, true},
		{"gte", "14", "16", true, false},
		{"gte", "14", "8", false, false},
		{"lte", "90", "99999", false, false},
		{"lte", "abc", "1", false, true},
		{"lte", "90", "never", false, false},
		{"max_mode", "0644", "0600", true, false},
		{"max_mode", "0600", "0644", false, false},
		{"fuzzy", "a", "a", false, true},
	}
	for _, tt := range tests {
		got, err := Compare(tt.mode, tt.expected, tt.actual)
		if tt.wantErr {
			assert.Error(t, err, "%s %q %q", tt.mode, tt.expected, tt.actual)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s %q %q", tt.mode, tt.expected, tt.actual)
	}
}

func TestRegisterBuiltinsEndToEnd(t *testing.T) {
	fs := memFS(t, map[string]string{"/etc/login.defs": loginDefs})
	reg := engine.NewRegistry()
	require.NoError(t, RegisterBuiltins(reg, fs))
	assert.Equal(t, []string{
		TypeCommandOutput, TypeConfigFileValue, TypeFilePermission, TypeJSONValue, TypeServiceProcessPresence,
	}, reg.CheckTypes())
	for _, ct := range reg.CheckTypes() {
		assert.NotEmpty(t, reg.Describe(ct), ct)
	}

	p := &policy.Policy{Name: "CIS Ubuntu Baseline", Controls: []policy.Control{
		{
			ID: "CFG-01", Title: "Password hashing", CheckType: TypeConfigFileValue,
			Target: "/etc/login.defs", Parameter: "ENCRYPT_METHOD", ExpectedValue: "SHA512",
			RemediationGuidance: "Set ENCRYPT_METHOD SHA512 in /etc/login.defs.",
		},
		{ID: "CFG-02", Title: "Missing", CheckType: TypeConfigFileValue, Target: "/nonexistent/file.conf", Parameter: "X", ExpectedValue: "Y"},
		{ID: "X-01", Title: "Future check", CheckType: "unregistered_type"},
		{ID: "CFG-03", Title: "Max days", CheckType: TypeConfigFileValue, Target: "/etc/login.defs", Parameter: "PASS_MAX_DAYS", ExpectedValue: "99999"},
	}}

	report := engine.NewEvaluator(reg, 1).Audit(context.Background(), p, engine.WithIdentity(engine.StaticIdentity("ci")))
	require.Len(t, report.Results, 4)

	cfg01 := report.Results[0]
	assert.Equal(t, engine.StatusFail, cfg01.Status)
	assert.Contains(t, cfg01.Message, "SHA512")
	assert.Contains(t, cfg01.Message, "MD5")
	assert.Equal(t, "Set ENCRYPT_METHOD SHA512 in /etc/login.defs.", cfg01.Remediation)

	missing := report.Results[1]
	assert.Equal(t, engine.StatusFail, missing.Status)
	assert.Contains(t, missing.Message, "not found")
	assert.Equal(t, engine.DefaultRemediation, missing.Remediation)

	unknown := report.Results[2]
	assert.Equal(t, engine.StatusUnknown, unknown.Status)
	assert.Equal(t, "Check type not implemented.", unknown.Message)
	assert.Empty(t, unknown.Remediation)

	assert.Equal(t, engine.StatusPass, report.Results[3].Status)
	assert.Equal(t, engine.Summary{Pass: 1, Fail: 2, Unknown: 1}, report.Summary)
	assert.True(t, report.Failed(false))
}
