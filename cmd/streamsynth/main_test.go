package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kingrea/streamsynth/internal/config"
	"github.com/kingrea/streamsynth/internal/graph/graphtest"
	"github.com/kingrea/streamsynth/internal/synth"
)

const infeasible = `
id: starved
segments:
  - id: p
    stages: [{id: fp, push: 1, init_mult: 1, steady_mult: 1}]
    output: [{weight: 1, edges: [e]}]
  - id: c
    input: [{edge: e, weight: 1}]
    stages: [{id: fc, peek: 4, pop: 1, init_mult: 2, steady_mult: 1}]
edges:
  - {id: e, from: p, to: c}
`

func writeGraph(t *testing.T, dir, name, src string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeWithInput(t, "", args...)
}

func executeWithInput(t *testing.T, input string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetIn(strings.NewReader(input))
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSynthWritesPlans(t *testing.T) {
	dir := t.TempDir()
	chain := writeGraph(t, dir, "chain.yaml", graphtest.Chain)
	joiner := writeGraph(t, dir, "joiner.yaml", graphtest.Joiner)
	outDir := filepath.Join(dir, "out")

	out, err := execute(t, "synth", "--dir", dir, "--out", outDir, chain, joiner)
	require.NoError(t, err)
	require.Contains(t, out, "chain.yaml")

	plan, err := synth.LoadPlanFile(filepath.Join(outDir, "chain.yaml"))
	require.NoError(t, err)
	require.Equal(t, "chain", plan.Graph)
	require.Len(t, plan.Rounds, 2)

	plan, err = synth.LoadPlanFile(filepath.Join(outDir, "joiner.yaml"))
	require.NoError(t, err)
	require.Len(t, plan.Balance.Fixes, 1)
}

func TestSynthToStdout(t *testing.T) {
	dir := t.TempDir()
	chain := writeGraph(t, dir, "chain.yaml", graphtest.Chain)

	out, err := execute(t, "synth", "--dir", dir, "--stdout", chain)
	require.NoError(t, err)
	plan, err := synth.DecodePlan(strings.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, "chain", plan.Graph)
	_, err = os.Stat(filepath.Join(dir, "plans"))
	require.True(t, os.IsNotExist(err), "stdout mode should not write plan files")
}

func TestSynthDefaultsOutputUnderProjectDir(t *testing.T) {
	dir := t.TempDir()
	chain := writeGraph(t, dir, "chain.yaml", graphtest.Chain)

	_, err := execute(t, "synth", "--dir", dir, chain)
	require.NoError(t, err)
	_, err = synth.LoadPlanFile(filepath.Join(dir, "plans", "chain.yaml"))
	require.NoError(t, err)
}

func TestSynthRejectsDuplicateGraphIDs(t *testing.T) {
	dir := t.TempDir()
	first := writeGraph(t, dir, "first.yaml", graphtest.Chain)
	second := writeGraph(t, dir, "second.yaml", graphtest.Chain)
	outDir := filepath.Join(dir, "out")

	_, err := execute(t, "synth", "--dir", dir, "--out", outDir, first, second)
	require.Error(t, err)
	require.Contains(t, err.Error(), `both define graph "chain"`)
	_, statErr := os.Stat(filepath.Join(outDir, "chain.yaml"))
	require.True(t, os.IsNotExist(statErr), "no plan should be written")

	_, err = execute(t, "synth", "--dir", dir, "--stdout", first, second)
	require.NoError(t, err)
}

func TestSynthReadsStdin(t *testing.T) {
	dir := t.TempDir()
	out, err := executeWithInput(t, graphtest.Joiner, "synth", "--dir", dir, "--stdout", "-")
	require.NoError(t, err)
	plan, err := synth.DecodePlan(strings.NewReader(out))
	require.NoError(t, err)
	require.Equal(t, "joiner", plan.Graph)

	_, err = executeWithInput(t, "", "synth", "--dir", dir, "--stdout", "-")
	require.Error(t, err)
	require.Contains(t, err.Error(), "load -")
}

func TestZeroFlagsKeepConfiguredValues(t *testing.T) {
	dir := t.TempDir()
	chain := writeGraph(t, dir, "chain.yaml", graphtest.Chain)

	_, err := execute(t, "check", "--dir", dir, "--cache-size", "0", "--max-sweeps", "0", chain)
	require.NoError(t, err)

	cmd := newCheckCmd()
	root := newRootCmd()
	root.AddCommand(cmd)
	require.NoError(t, root.PersistentFlags().Set("dir", dir))
	require.NoError(t, cmd.ParseFlags([]string{"--cache-size", "0", "--max-sweeps", "0"}))
	cfg, err := loadSettings(cmd)
	require.NoError(t, err)
	require.Equal(t, config.Default().RateCache.Size, cfg.RateCache.Size)
	require.Equal(t, config.Default().Balance.MaxSweeps, cfg.Balance.MaxSweeps)
}

func TestSynthPipeliningFlag(t *testing.T) {
	dir := t.TempDir()
	chain := writeGraph(t, dir, "chain.yaml", graphtest.Chain)

	out, err := execute(t, "synth", "--dir", dir, "--stdout", "--pipelining=false", chain)
	require.NoError(t, err)
	plan, err := synth.DecodePlan(strings.NewReader(out))
	require.NoError(t, err)
	require.Empty(t, plan.Rounds)
	for _, ch := range plan.Channels {
		require.Equal(t, 1, ch.Rotation, ch.ID)
	}
}

func TestSynthFailsOnInfeasibleGraph(t *testing.T) {
	dir := t.TempDir()
	bad := writeGraph(t, dir, "starved.yaml", infeasible)

	_, err := execute(t, "synth", "--dir", dir, "--stdout", bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "starved.yaml")
}

func TestCheckReportsEachGraph(t *testing.T) {
	dir := t.TempDir()
	chain := writeGraph(t, dir, "chain.yaml", graphtest.Chain)
	bad := writeGraph(t, dir, "starved.yaml", infeasible)

	out, err := execute(t, "check", "--dir", dir, chain, bad)
	require.Error(t, err)
	require.Contains(t, err.Error(), "1 of 2 graphs failed")
	require.Contains(t, out, "ok   "+chain)
	require.Contains(t, out, "FAIL "+bad)

	out, err = execute(t, "check", "--dir", dir, chain)
	require.NoError(t, err)
	require.Contains(t, out, "2 prime-pump rounds")
}

func TestInitWritesConfig(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "init", "--dir", dir)
	require.NoError(t, err)
	require.Contains(t, out, config.FileName)

	cfg, err := config.LoadDir(dir)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(dir, config.FileName), cfg.Path)
}

func TestSettingsLayering(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, config.FileName), []byte(`
version: 1
pipelining: false
balance:
  in_place: false
  max_sweeps: 8
`), 0o644))

	cmd := newCheckCmd()
	root := newRootCmd()
	root.AddCommand(cmd)
	require.NoError(t, root.PersistentFlags().Set("dir", dir))
	require.NoError(t, cmd.ParseFlags([]string{"--max-sweeps", "12"}))

	t.Setenv("STREAMSYNTH_BALANCE_IN_PLACE", "true")
	cfg, err := loadSettings(cmd)
	require.NoError(t, err)
	require.False(t, cfg.Pipelining, "file value")
	require.True(t, cfg.Balance.InPlace, "environment overrides file")
	require.Equal(t, 12, cfg.Balance.MaxSweeps, "flag overrides file")
	require.Equal(t, "info", cfg.Logging.Level)
}

func TestSettingsRejectInvalidValues(t *testing.T) {
	dir := t.TempDir()
	chain := writeGraph(t, dir, "chain.yaml", graphtest.Chain)
	t.Setenv("STREAMSYNTH_LOGGING_LEVEL", "loud")

	_, err := execute(t, "check", "--dir", dir, chain)
	require.Error(t, err)
	require.Contains(t, err.Error(), "logging.level")
}

func TestViewLoadsPlans(t *testing.T) {
	dir := t.TempDir()
	chain := writeGraph(t, dir, "chain.yaml", graphtest.Chain)
	planPath := filepath.Join(dir, "plans", "chain.yaml")
	_, err := execute(t, "synth", "--dir", dir, "--out", filepath.Dir(planPath), chain)
	require.NoError(t, err)

	var got []*synth.Plan
	original := runViewer
	t.Cleanup(func() { runViewer = original })
	runViewer = func(plans []*synth.Plan) error {
		got = plans
		return nil
	}

	_, err = execute(t, "view", planPath)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "chain", got[0].Graph)

	got = nil
	_, err = execute(t, "view", "--dir", dir, "--graph", chain)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Len(t, got[0].Rounds, 2)
}
