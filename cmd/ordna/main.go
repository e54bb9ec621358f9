package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	charmLog "github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/hylla/ordna/internal/adapters/server"
	"github.com/hylla/ordna/internal/adapters/server/common"
	"github.com/hylla/ordna/internal/app"
	"github.com/hylla/ordna/internal/config"
	"github.com/hylla/ordna/internal/notify"
	"github.com/hylla/ordna/internal/platform"
	"github.com/hylla/ordna/internal/priority"
)

// version is stamped by the release build.
var version = "dev"

// main wires signal-driven cancellation around run and maps any error
// to a non-zero exit.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// run runs the requested command flow.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("ordna", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var (
		configPath string
		planPath   string
		appName    string
		devMode    bool
		asJSON     bool
		showVer    bool
	)
	defaultDevMode := version == "dev"
	if envDev, ok := parseBoolEnv("ORDNA_DEV_MODE"); ok {
		defaultDevMode = envDev
	}
	if envApp := strings.TrimSpace(os.Getenv("ORDNA_APP_NAME")); envApp != "" {
		appName = envApp
	} else {
		appName = "ordna"
	}
	fs.StringVar(&configPath, "config", "", "path to config TOML")
	fs.StringVar(&planPath, "plan", "", "path to plan JSON")
	fs.StringVar(&appName, "app", appName, "application name for config/data path resolution")
	fs.BoolVar(&devMode, "dev", defaultDevMode, "use dev mode paths (<app>-dev)")
	fs.BoolVar(&asJSON, "json", false, "emit machine-readable JSON output")
	fs.BoolVar(&showVer, "version", false, "show version")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if showVer {
		_, _ = fmt.Fprintf(stdout, "ordna %s\n", version)
		return nil
	}

	paths, err := platform.DefaultPathsWithOptions(platform.Options{
		AppName: appName,
		DevMode: devMode,
	})
	if err != nil {
		return err
	}

	command := firstArg(fs.Args())
	switch command {
	case "version":
		_, _ = fmt.Fprintf(stdout, "ordna %s\n", version)
		return nil
	case "paths":
		_, _ = fmt.Fprintf(stdout, "app: %s\n", appName)
		_, _ = fmt.Fprintf(stdout, "dev_mode: %t\n", devMode)
		_, _ = fmt.Fprintf(stdout, "config: %s\n", paths.ConfigPath)
		_, _ = fmt.Fprintf(stdout, "data_dir: %s\n", paths.DataDir)
		_, _ = fmt.Fprintf(stdout, "plan: %s\n", paths.PlanPath)
		return nil
	case "order", "batches", "critical", "rank", "schedule", "events", "export", "import", "serve":
		// Continue.
	case "":
		return errors.New("missing command (order, batches, critical, rank, schedule, events, export, import, serve, paths, version)")
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	planOverridden := strings.TrimSpace(planPath) != ""
	if configPath == "" {
		if envPath := strings.TrimSpace(os.Getenv("ORDNA_CONFIG")); envPath != "" {
			configPath = envPath
		} else {
			configPath = paths.ConfigPath
		}
	}
	if !planOverridden {
		if envPath := strings.TrimSpace(os.Getenv("ORDNA_PLAN_PATH")); envPath != "" {
			planPath = envPath
		} else {
			planPath = paths.PlanPath
		}
	}

	cfg, err := config.Load(configPath, config.Default())
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}

	logger, err := newRuntimeLogger(stderr, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("configure runtime logger: %w", err)
	}
	logger.Info("startup configuration resolved", "app", appName, "dev_mode", devMode, "command", command)
	logger.Debug("runtime paths resolved", "config_path", configPath, "data_dir", paths.DataDir, "plan_path", planPath)

	engine := app.NewEngine(engineConfig(cfg), uuid.NewString, time.Now, logger)
	defer engine.Close()

	if command != "import" {
		if err := loadPlanFile(ctx, engine, planPath); err != nil {
			logger.Error("plan load failed", "plan_path", planPath, "err", err)
			return fmt.Errorf("load plan %q: %w", planPath, err)
		}
	}

	switch command {
	case "order":
		return writeOrder(ctx, engine, stdout, asJSON)
	case "batches":
		return writeBatches(ctx, engine, stdout, asJSON)
	case "critical":
		return writeCriticalPath(ctx, engine, stdout, asJSON)
	case "rank":
		return writeRanking(ctx, engine, stdout, asJSON)
	case "schedule":
		return writeNodeSchedule(ctx, engine, fs.Args()[1:], stdout, asJSON)
	case "events":
		return writeEvents(ctx, engine, stdout, asJSON)
	case "export":
		return runExport(ctx, engine, fs.Args()[1:], stdout)
	case "import":
		return runImport(ctx, engine, fs.Args()[1:], planPath, logger)
	case "serve":
		return runServe(ctx, engine, cfg, fs.Args()[1:], logger)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// engineConfig maps persisted config values into engine tuning.
func engineConfig(cfg config.Config) app.Config {
	return app.Config{
		Scoring: priority.Config{
			Weights: priority.Weights{
				Urgency: cfg.Scoring.UrgencyWeight,
				FanOut:  cfg.Scoring.FanOutWeight,
				Risk:    cfg.Scoring.RiskWeight,
			},
			CriticalBonus: cfg.Scoring.CriticalBonus,
			RiskHalfLife:  cfg.RiskHalfLife(),
			NeutralRisk:   cfg.Scoring.NeutralRisk,
		},
		SlackTolerance: cfg.SlackTolerance(),
		Notify: notify.Config{
			ScoreThreshold: cfg.Notify.ScoreThreshold,
			SlackThreshold: cfg.SlackThreshold(),
			Buffer:         cfg.Notify.SubscriberBuffer,
		},
	}
}

// loadPlanFile replays one plan file into the engine; a missing file
// means an empty graph.
func loadPlanFile(ctx context.Context, engine *app.Engine, planPath string) error {
	file, err := os.Open(planPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer file.Close()

	plan, err := app.ReadPlan(file)
	if err != nil {
		return err
	}
	return engine.ImportPlan(ctx, plan)
}

// writeOrder prints the topological execution order.
func writeOrder(ctx context.Context, engine *app.Engine, stdout io.Writer, asJSON bool) error {
	order := engine.GetOrder(ctx)
	if asJSON {
		return writeJSON(stdout, map[string]any{"order": order})
	}
	for i, id := range order {
		_, _ = fmt.Fprintf(stdout, "%d. %s\n", i+1, id)
	}
	return nil
}

// writeBatches prints parallel execution waves.
func writeBatches(ctx context.Context, engine *app.Engine, stdout io.Writer, asJSON bool) error {
	batches := engine.GetParallelBatches(ctx)
	if asJSON {
		return writeJSON(stdout, map[string]any{"batches": batches})
	}
	for i, batch := range batches {
		_, _ = fmt.Fprintf(stdout, "wave %d: %s\n", i+1, strings.Join(batch, ", "))
	}
	return nil
}

// writeCriticalPath prints the zero-slack node set and project finish.
func writeCriticalPath(ctx context.Context, engine *app.Engine, stdout io.Writer, asJSON bool) error {
	result := engine.GetScheduleResult(ctx)
	if asJSON {
		return writeJSON(stdout, map[string]any{
			"anchor":         result.Anchor,
			"project_finish": result.ProjectFinish,
			"path":           result.CriticalPath,
		})
	}
	_, _ = fmt.Fprintf(stdout, "project finish: %s\n", result.ProjectFinish.Format(time.RFC3339))
	for _, id := range result.CriticalPath {
		_, _ = fmt.Fprintf(stdout, "critical: %s\n", id)
	}
	return nil
}

// writeRanking prints the priority ranking, highest first.
func writeRanking(ctx context.Context, engine *app.Engine, stdout io.Writer, asJSON bool) error {
	ranking := engine.GetPriorityRanking(ctx)
	if asJSON {
		return writeJSON(stdout, map[string]any{"ranking": ranking})
	}
	for _, score := range ranking {
		_, _ = fmt.Fprintf(stdout, "%3d  %-24s  %.4f\n", score.Rank, score.NodeID, score.Total)
	}
	return nil
}

// writeNodeSchedule prints earliest/latest bounds and slack for one node.
func writeNodeSchedule(ctx context.Context, engine *app.Engine, args []string, stdout io.Writer, asJSON bool) error {
	nodeID := firstArg(args)
	if nodeID == "" {
		return errors.New("schedule requires a node id")
	}
	sched, err := engine.GetNodeSchedule(ctx, nodeID)
	if err != nil {
		return err
	}
	if asJSON {
		return writeJSON(stdout, sched)
	}
	_, _ = fmt.Fprintf(stdout, "node: %s\n", sched.NodeID)
	_, _ = fmt.Fprintf(stdout, "earliest: %s .. %s\n", sched.EarliestStart.Format(time.RFC3339), sched.EarliestFinish.Format(time.RFC3339))
	_, _ = fmt.Fprintf(stdout, "latest:   %s .. %s\n", sched.LatestStart.Format(time.RFC3339), sched.LatestFinish.Format(time.RFC3339))
	_, _ = fmt.Fprintf(stdout, "slack: %s\n", sched.Slack)
	_, _ = fmt.Fprintf(stdout, "critical: %t\n", sched.OnCriticalPath)
	return nil
}

// writeEvents prints recent derived-state change events, oldest first.
func writeEvents(ctx context.Context, engine *app.Engine, stdout io.Writer, asJSON bool) error {
	events := engine.RecentEvents(ctx, 0)
	if asJSON {
		return writeJSON(stdout, map[string]any{"events": events})
	}
	for _, event := range events {
		_, _ = fmt.Fprintf(stdout, "%s %s %s: %s -> %s\n",
			event.OccurredAt.Format(time.RFC3339), event.NodeID, event.Field, event.OldValue, event.NewValue)
	}
	return nil
}

// runExport writes the current plan to a file or stdout.
func runExport(ctx context.Context, engine *app.Engine, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("ordna export", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var outPath string
	fs.StringVar(&outPath, "out", "-", "output file path ('-' for stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	plan, err := engine.ExportPlan(ctx)
	if err != nil {
		return err
	}
	if outPath == "-" {
		return app.WritePlan(stdout, plan)
	}
	file, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer file.Close()
	if err := app.WritePlan(file, plan); err != nil {
		return err
	}
	return file.Close()
}

// runImport validates one plan file through the engine and installs it
// as the active plan.
func runImport(ctx context.Context, engine *app.Engine, args []string, planPath string, logger *charmLog.Logger) error {
	fs := flag.NewFlagSet("ordna import", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	var inPath string
	fs.StringVar(&inPath, "in", "", "input plan JSON path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if strings.TrimSpace(inPath) == "" {
		return errors.New("import requires -in <path>")
	}

	file, err := os.Open(inPath)
	if err != nil {
		return fmt.Errorf("open plan file: %w", err)
	}
	defer file.Close()
	plan, err := app.ReadPlan(file)
	if err != nil {
		return err
	}
	// Replaying through the engine validates node ids, edges, and
	// acyclicity before anything is installed.
	if err := engine.ImportPlan(ctx, plan); err != nil {
		return err
	}
	normalized, err := engine.ExportPlan(ctx)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(planPath), 0o755); err != nil {
		return fmt.Errorf("create plan dir: %w", err)
	}
	out, err := os.Create(planPath)
	if err != nil {
		return fmt.Errorf("create plan file: %w", err)
	}
	defer out.Close()
	if err := app.WritePlan(out, normalized); err != nil {
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	logger.Info("plan imported", "in", inPath, "plan_path", planPath,
		"nodes", len(normalized.Nodes), "edges", len(normalized.Edges))
	return nil
}

// runServe starts the composed HTTP/MCP server and blocks until shutdown.
func runServe(ctx context.Context, engine *app.Engine, cfg config.Config, args []string, logger *charmLog.Logger) error {
	fs := flag.NewFlagSet("ordna serve", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	bind := cfg.Server.Bind
	fs.StringVar(&bind, "bind", bind, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	serverCfg := server.Config{
		HTTPBind:      bind,
		APIEndpoint:   cfg.Server.APIEndpoint,
		MCPEndpoint:   cfg.Server.MCPEndpoint,
		ServerName:    "ordna",
		ServerVersion: version,
	}
	logger.Info("server starting", "bind", serverCfg.HTTPBind,
		"api", serverCfg.APIEndpoint, "mcp", serverCfg.MCPEndpoint)
	err := server.Run(ctx, serverCfg, common.NewEngineAdapter(engine))
	if err != nil {
		logger.Error("server terminated with error", "err", err)
		return err
	}
	logger.Info("server stopped")
	return nil
}

// writeJSON writes one indented JSON document to stdout.
func writeJSON(stdout io.Writer, payload any) error {
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

// firstArg returns the first argument trimmed, or empty when there is
// none.
func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return strings.TrimSpace(args[0])
}

// parseBoolEnv reads a boolean environment variable, reporting whether
// it was set to something recognizable.
func parseBoolEnv(name string) (bool, bool) {
	raw := strings.TrimSpace(os.Getenv(name))
	if raw == "" {
		return false, false
	}
	switch strings.ToLower(raw) {
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}

// newRuntimeLogger configures the runtime logger from config state.
func newRuntimeLogger(stderr io.Writer, level string) (*charmLog.Logger, error) {
	parsed, err := charmLog.ParseLevel(strings.TrimSpace(strings.ToLower(level)))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", level, err)
	}
	logger := charmLog.NewWithOptions(stderr, charmLog.Options{
		Level:           parsed,
		ReportTimestamp: true,
	})
	return logger, nil
}
