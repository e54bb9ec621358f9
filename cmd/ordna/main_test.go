package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testPlan = `{
  "version": "ordna.plan.v1",
  "nodes": [
    {"id": "design", "title": "Design", "duration": "2h"},
    {"id": "build", "title": "Build", "duration": "4h"},
    {"id": "review", "title": "Review", "duration": "1h"}
  ],
  "edges": [
    {"id": "e1", "from": "design", "to": "build"},
    {"id": "e2", "from": "build", "to": "review"}
  ]
}`

func testEnv(t *testing.T) (planPath, configPath string) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "config"))
	t.Setenv("XDG_DATA_HOME", filepath.Join(dir, "data"))
	t.Setenv("ORDNA_CONFIG", "")
	t.Setenv("ORDNA_PLAN_PATH", "")
	t.Setenv("ORDNA_DEV_MODE", "")
	t.Setenv("ORDNA_APP_NAME", "")

	planPath = filepath.Join(dir, "plan.json")
	if err := os.WriteFile(planPath, []byte(testPlan), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	configPath = filepath.Join(dir, "missing-config.toml")
	return planPath, configPath
}

func runCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), err
}

func TestRunVersionFlag(t *testing.T) {
	testEnv(t)
	out, err := runCommand(t, "-version")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.HasPrefix(out, "ordna ") {
		t.Fatalf("unexpected version output %q", out)
	}
}

func TestRunUnknownCommand(t *testing.T) {
	testEnv(t)
	if _, err := runCommand(t, "shuffle"); err == nil {
		t.Fatal("expected unknown command error")
	}
}

func TestRunMissingCommand(t *testing.T) {
	testEnv(t)
	if _, err := runCommand(t); err == nil {
		t.Fatal("expected missing command error")
	}
}

func TestRunPathsCommand(t *testing.T) {
	testEnv(t)
	out, err := runCommand(t, "paths")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	for _, key := range []string{"app:", "config:", "data_dir:", "plan:"} {
		if !strings.Contains(out, key) {
			t.Fatalf("paths output missing %q:\n%s", key, out)
		}
	}
}

func TestRunOrderFromPlan(t *testing.T) {
	planPath, configPath := testEnv(t)
	out, err := runCommand(t, "-plan", planPath, "-config", configPath, "order")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 || !strings.Contains(lines[0], "design") || !strings.Contains(lines[2], "review") {
		t.Fatalf("unexpected order output:\n%s", out)
	}
}

func TestRunCriticalJSON(t *testing.T) {
	planPath, configPath := testEnv(t)
	out, err := runCommand(t, "-plan", planPath, "-config", configPath, "-json", "critical")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	var payload struct {
		Path []string `json:"path"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(payload.Path) != 3 {
		t.Fatalf("chain nodes are all critical, got %v", payload.Path)
	}
}

func TestRunRankJSON(t *testing.T) {
	planPath, configPath := testEnv(t)
	out, err := runCommand(t, "-plan", planPath, "-config", configPath, "-json", "rank")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	var payload struct {
		Ranking []struct {
			NodeID string  `json:"node_id"`
			Rank   int     `json:"rank"`
			Total  float64 `json:"total"`
		} `json:"ranking"`
	}
	if err := json.Unmarshal([]byte(out), &payload); err != nil {
		t.Fatalf("decode output: %v\n%s", err, out)
	}
	if len(payload.Ranking) != 3 || payload.Ranking[0].Rank != 1 {
		t.Fatalf("unexpected ranking %+v", payload.Ranking)
	}
}

func TestRunScheduleRequiresNodeID(t *testing.T) {
	planPath, configPath := testEnv(t)
	if _, err := runCommand(t, "-plan", planPath, "-config", configPath, "schedule"); err == nil {
		t.Fatal("expected node id error")
	}
	out, err := runCommand(t, "-plan", planPath, "-config", configPath, "schedule", "build")
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(out, "node: build") || !strings.Contains(out, "slack: 0s") {
		t.Fatalf("unexpected schedule output:\n%s", out)
	}
}

func TestRunImportThenExport(t *testing.T) {
	planPath, configPath := testEnv(t)
	dir := t.TempDir()
	installed := filepath.Join(dir, "store", "plan.json")

	if _, err := runCommand(t, "-plan", installed, "-config", configPath, "import", "-in", planPath); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := os.Stat(installed); err != nil {
		t.Fatalf("installed plan missing: %v", err)
	}

	out, err := runCommand(t, "-plan", installed, "-config", configPath, "export")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	var plan struct {
		Version string `json:"version"`
		Nodes   []any  `json:"nodes"`
		Edges   []any  `json:"edges"`
	}
	if err := json.Unmarshal([]byte(out), &plan); err != nil {
		t.Fatalf("decode exported plan: %v\n%s", err, out)
	}
	if plan.Version != "ordna.plan.v1" || len(plan.Nodes) != 3 || len(plan.Edges) != 2 {
		t.Fatalf("unexpected exported plan %+v", plan)
	}
}

func TestRunImportRejectsCyclePlan(t *testing.T) {
	_, configPath := testEnv(t)
	dir := t.TempDir()
	cyclic := filepath.Join(dir, "cyclic.json")
	content := `{
  "version": "ordna.plan.v1",
  "nodes": [
    {"id": "a", "duration": "1h"},
    {"id": "b", "duration": "1h"}
  ],
  "edges": [
    {"id": "e1", "from": "a", "to": "b"},
    {"id": "e2", "from": "b", "to": "a"}
  ]
}`
	if err := os.WriteFile(cyclic, []byte(content), 0o644); err != nil {
		t.Fatalf("write plan: %v", err)
	}
	installed := filepath.Join(dir, "plan.json")
	if _, err := runCommand(t, "-plan", installed, "-config", configPath, "import", "-in", cyclic); err == nil {
		t.Fatal("cyclic plan must be rejected")
	}
	if _, err := os.Stat(installed); err == nil {
		t.Fatal("rejected plan must not be installed")
	}
}
