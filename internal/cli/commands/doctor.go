package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/millbrook-data/strata/internal/cli/output"
	"github.com/millbrook-data/strata/internal/config"
	"github.com/millbrook-data/strata/internal/state"
	"github.com/millbrook-data/strata/pkg/adapter"
	"github.com/millbrook-data/strata/pkg/core"
)

// NewDoctorCommand creates the doctor command.
func NewDoctorCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the project's health",
		Long: `Check that the project is runnable: the configuration resolves, the
graph document decodes and validates, the warehouse answers, and the
history store is writable.

Exits non-zero when any check fails, so it can gate CI pipelines.`,
		Example: `  # Check everything
  strata doctor

  # Machine-readable report
  strata doctor --output json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDoctor(cmd)
		},
	}

	return cmd
}

// DoctorCheck is one health check result.
type DoctorCheck struct {
	Name    string   `json:"name"`
	Status  string   `json:"status"` // "pass", "warn", "error"
	Details []string `json:"details,omitempty"`
}

// DoctorOutput is the JSON output for the doctor command.
type DoctorOutput struct {
	Checks  []DoctorCheck `json:"checks"`
	Healthy bool          `json:"healthy"`
}

func runDoctor(cmd *cobra.Command) error {
	cmdCtx := NewCommandContextWithoutEngine(cmd)
	cfg := cmdCtx.Cfg
	r := cmdCtx.Renderer

	out := DoctorOutput{Healthy: true}
	for _, check := range []DoctorCheck{
		checkConfig(cfg),
		checkGraph(cfg),
		checkWarehouse(cmd.Context(), cfg, cmdCtx.Logger),
		checkHistory(cfg),
	} {
		out.Checks = append(out.Checks, check)
		if check.Status == "error" {
			out.Healthy = false
		}
	}

	if r.EffectiveMode() == output.ModeJSON {
		if err := r.JSON(out); err != nil {
			return err
		}
	} else {
		renderDoctorText(r, out)
	}

	if !out.Healthy {
		return fmt.Errorf("doctor found problems")
	}
	return nil
}

func renderDoctorText(r *output.Renderer, out DoctorOutput) {
	r.Header(1, "Project Health")
	r.Println("")

	for _, check := range out.Checks {
		symbol := r.Styles().Success.Render("✓")
		switch check.Status {
		case "warn":
			symbol = r.Styles().Warning.Render("⚠")
		case "error":
			symbol = r.Styles().Error.Render("✗")
		}
		r.Printf("  %s %s\n", symbol, check.Name)
		for _, d := range check.Details {
			r.Muted("      " + d)
		}
	}

	r.Println("")
	if out.Healthy {
		r.Success("everything looks good")
	} else {
		r.Error("problems found; fix the failing checks above")
	}
}

// checkConfig verifies the resolved configuration.
func checkConfig(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{Name: "config", Status: "pass"}

	if file := config.GetConfigFileUsed(); file != "" {
		check.Details = append(check.Details, "using "+file)
	} else {
		check.Status = "warn"
		check.Details = append(check.Details, "no strata.yaml found, running on defaults")
	}
	check.Details = append(check.Details, "environment: "+cfg.Environment)

	if cfg.Target == nil {
		check.Status = "error"
		check.Details = append(check.Details, "no target configured")
		return check
	}
	if err := cfg.Target.Validate(); err != nil {
		check.Status = "error"
		check.Details = append(check.Details, err.Error())
	}
	return check
}

// checkGraph verifies the graph document decodes and validates.
func checkGraph(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{Name: "graph", Status: "pass"}

	g, err := loadGraph(cfg)
	if err != nil {
		check.Status = "error"
		check.Details = append(check.Details, err.Error())
		return check
	}
	if err := g.CompilationErr(); err != nil {
		check.Status = "error"
		check.Details = append(check.Details, "compilation errors: "+err.Error())
		return check
	}
	if err := g.Normalize(); err != nil {
		check.Status = "error"
		check.Details = append(check.Details, err.Error())
		return check
	}
	if err := g.Validate(); err != nil {
		check.Status = "error"
		check.Details = append(check.Details, err.Error())
		return check
	}

	byKind := make(map[core.ActionKind]int)
	for _, a := range g.Actions {
		byKind[a.Kind]++
	}
	kinds := make([]string, 0, len(byKind))
	for k := range byKind {
		kinds = append(kinds, fmt.Sprintf("%d %s", byKind[k], k))
	}
	sort.Strings(kinds)
	check.Details = append(check.Details,
		fmt.Sprintf("%d action(s): %s", len(g.Actions), strings.Join(kinds, ", ")))
	return check
}

// checkWarehouse verifies the warehouse answers a trivial query.
func checkWarehouse(ctx context.Context, cfg *config.Config, logger *slog.Logger) DoctorCheck {
	check := DoctorCheck{Name: "warehouse", Status: "pass"}

	if cfg.Target == nil {
		check.Status = "error"
		check.Details = append(check.Details, "no target configured")
		return check
	}

	db, err := adapter.NewAdapter(cfg.Target.AdapterConfig(), logger)
	if err != nil {
		check.Status = "error"
		check.Details = append(check.Details, err.Error())
		return check
	}

	if err := db.Connect(ctx, cfg.Target.AdapterConfig()); err != nil {
		check.Status = "error"
		check.Details = append(check.Details, "connect failed: "+err.Error())
		return check
	}
	defer db.Close()

	rows, err := db.Query(ctx, "SELECT 1")
	if err != nil {
		check.Status = "error"
		check.Details = append(check.Details, "probe query failed: "+err.Error())
		return check
	}
	defer rows.Close()

	check.Details = append(check.Details, "connected ("+db.DialectName()+")")
	return check
}

// checkHistory verifies the history store opens and has a schema.
func checkHistory(cfg *config.Config) DoctorCheck {
	check := DoctorCheck{Name: "history", Status: "pass"}

	if cfg.StatePath == "" {
		check.Status = "warn"
		check.Details = append(check.Details, "history recording disabled (no state_path)")
		return check
	}

	if dir := filepath.Dir(cfg.StatePath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0750); err != nil {
			check.Status = "error"
			check.Details = append(check.Details, "state directory not writable: "+err.Error())
			return check
		}
	}

	store := state.NewSQLiteStore(nil)
	if err := store.Open(cfg.StatePath); err != nil {
		check.Status = "error"
		check.Details = append(check.Details, "open failed: "+err.Error())
		return check
	}
	defer store.Close()

	if err := store.InitSchema(); err != nil {
		check.Status = "error"
		check.Details = append(check.Details, "schema init failed: "+err.Error())
		return check
	}

	runs, err := store.ListRuns(1)
	if err != nil {
		check.Status = "error"
		check.Details = append(check.Details, "read failed: "+err.Error())
		return check
	}
	if len(runs) == 0 {
		check.Details = append(check.Details, "no runs recorded yet")
	} else {
		check.Details = append(check.Details, "last run "+string(runs[0].Status))
	}
	return check
}
