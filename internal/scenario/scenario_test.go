package scenario

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLotASustainableGolden(t *testing.T) {
	sc, err := Load(filepath.Join("testdata", "lot_a_sustainable.yaml"))
	require.NoError(t, err)

	report, err := Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, report.Passed(), "failures: %v", report.Failures)

	data, err := report.JSON()
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, sc.Name, data)
}

func TestRunReportsExpectationMismatches(t *testing.T) {
	sc, err := Parse([]byte(`
name: mismatches
steps:
  - {op: register, caller: owner, args: {lot: L1}}
  - {op: register, caller: owner, args: {lot: L1}}
  - {op: update_stage, caller: owner, args: {lot: L1, stage: completed}, expect: unauthorized}
`))
	require.NoError(t, err)

	report, err := Run(context.Background(), sc)
	require.NoError(t, err)
	require.Len(t, report.Trace, 3)
	assert.Equal(t, "DUPLICATE_LOT", report.Trace[1].Outcome)
	assert.Equal(t, OutcomeOK, report.Trace[2].Outcome)
	assert.Equal(t, []string{
		"step 2 (register): expected OK, got DUPLICATE_LOT",
		"step 3 (update_stage): expected unauthorized, got OK",
	}, report.Failures)
	assert.False(t, report.Passed())
}

func TestRunWithCustomOwner(t *testing.T) {
	sc, err := Parse([]byte(`
name: custom-owner
owner: acme-owner
steps:
  - {op: assign_role, caller: owner, args: {identity: v, role: vendor}, expect: UNAUTHORIZED}
  - {op: assign_role, caller: acme-owner, args: {identity: v, role: vendor}}
  - {op: assign_role, caller: acme-owner, args: {identity: w, role: auditor}, expect: INVALID_ROLE}
  - {op: get_role, args: {identity: v}}
  - {op: list_roles}
`))
	require.NoError(t, err)

	report, err := Run(context.Background(), sc)
	require.NoError(t, err)
	assert.True(t, report.Passed(), "failures: %v", report.Failures)
	assert.Equal(t, "vendor", report.Trace[3].Result)
	assert.Equal(t, []string{"v=vendor"}, report.Trace[4].Result)
}

func TestParseRejectsMalformedScenarios(t *testing.T) {
	cases := map[string]string{
		"missing name":  "steps: [{op: exists}]",
		"no steps":      "name: empty",
		"unknown op":    "name: x\nsteps: [{op: teleport}]",
		"unknown field": "name: x\nstep: [{op: exists}]",
		"bad clock":     "name: x\nclock: yesterday\nsteps: [{op: exists}]",
		"missing op":    "name: x\nsteps: [{caller: owner}]",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestRunAbortsOnMalformedArguments(t *testing.T) {
	sc, err := Parse([]byte(`
name: bad-args
steps:
  - {op: register, caller: owner, args: {lot: L1}}
  - {op: capture, caller: owner, args: {lot: L1, temperature: warm}}
`))
	require.NoError(t, err)

	_, err = Run(context.Background(), sc)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "steps[1] (capture)")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
