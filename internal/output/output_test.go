package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestUI() (*UI, *bytes.Buffer, *bytes.Buffer) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	return &UI{Out: out, ErrOut: errOut}, out, errOut
}

func TestInfo(t *testing.T) {
	u, out, _ := newTestUI()
	u.Info("reviewing %s", "proj-1")
	assert.Contains(t, out.String(), "reviewing proj-1")
}

func TestSuccess(t *testing.T) {
	u, out, _ := newTestUI()
	u.Success("committed %d items", 42)
	assert.Contains(t, out.String(), "committed 42 items")
}

func TestWarning(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Warning("judge %s", "degraded")
	assert.Contains(t, errOut.String(), "judge degraded")
}

func TestError(t *testing.T) {
	u, _, errOut := newTestUI()
	u.Error("run %s", "failed")
	assert.Contains(t, errOut.String(), "run failed")
}

func TestVerboseLog_Enabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = true
	u.VerboseLog("detail %d", 1)
	assert.Contains(t, out.String(), "detail 1")
}

func TestVerboseLog_Disabled(t *testing.T) {
	u, out, _ := newTestUI()
	u.Verbose = false
	u.VerboseLog("detail %d", 1)
	assert.Empty(t, out.String())
}

func TestDryRunMsg_Enabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = true
	u.DryRunMsg("would import %s", "bundle.yaml")
	assert.Contains(t, errOut.String(), "[DRY-RUN]")
	assert.Contains(t, errOut.String(), "would import bundle.yaml")
}

func TestDryRunMsg_Disabled(t *testing.T) {
	u, _, errOut := newTestUI()
	u.DryRun = false
	u.DryRunMsg("would import %s", "bundle.yaml")
	assert.Empty(t, errOut.String())
}

func TestColorHelpers(t *testing.T) {
	// Color helpers should return non-empty strings
	assert.NotEmpty(t, Cyan("test"))
	assert.NotEmpty(t, Green("test"))
	assert.NotEmpty(t, Yellow("test"))
	assert.NotEmpty(t, Red("test"))
}

func TestStatusColor(t *testing.T) {
	assert.NotEmpty(t, StatusColor("PASS"))
	assert.NotEmpty(t, StatusColor("WARN"))
	assert.NotEmpty(t, StatusColor("FAIL"))
	assert.NotEmpty(t, StatusColor("PENDING"))
	assert.Equal(t, "unknown", StatusColor("unknown"))
}

func TestRunStatusColor(t *testing.T) {
	assert.NotEmpty(t, RunStatusColor("committed"))
	assert.NotEmpty(t, RunStatusColor("running"))
	assert.NotEmpty(t, RunStatusColor("superseded"))
	assert.NotEmpty(t, RunStatusColor("failed"))
	assert.Equal(t, "unknown", RunStatusColor("unknown"))
}

func TestConfidenceColor(t *testing.T) {
	assert.NotEmpty(t, ConfidenceColor(0.95))
	assert.NotEmpty(t, ConfidenceColor(0.65))
	assert.NotEmpty(t, ConfidenceColor(0.3))
}

func TestTable(t *testing.T) {
	u, out, _ := newTestUI()
	table := u.Table([]string{"Dimension", "Status"})
	require.NotNil(t, table)

	table.Append([]string{"schedule", "PASS"})
	table.Append([]string{"license", "FAIL"})
	err := table.Render()
	require.NoError(t, err)

	result := out.String()
	assert.True(t, strings.Contains(result, "schedule"),
		"table output should contain dimensions")
	assert.True(t, strings.Contains(result, "license"),
		"table output should contain dimensions")
}
