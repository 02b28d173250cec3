package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/banshee-data/charges.report/internal/db"
	"github.com/banshee-data/charges.report/internal/fsutil"
	"github.com/banshee-data/charges.report/internal/security"
)

func newRunsCmd(g *globalFlags) *cobra.Command {
	runs := &cobra.Command{
		Use:   "runs",
		Short: "Inspect the run history",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openHistory(g, true)
			if err != nil {
				return err
			}
			defer database.Close()

			rs, err := db.NewRunStore(database).List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeRunList(cmd.OutOrStdout(), rs)
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "maximum number of runs (0 lists all)")

	var asJSON bool
	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openHistory(g, true)
			if err != nil {
				return err
			}
			defer database.Close()

			run, err := db.NewRunStore(database).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(run)
			}
			return writeRun(cmd.OutOrStdout(), run)
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "print the run as JSON")

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete one recorded run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := openHistory(g, true)
			if err != nil {
				return err
			}
			defer database.Close()

			if err := db.NewRunStore(database).Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted run %s\n", args[0])
			return nil
		},
	}

	export := &cobra.Command{
		Use:   "export <run-id> <file.json>",
		Short: "Write one recorded run as JSON",
		Long:  "Write one recorded run as JSON. The file must be under the working directory or the system temp directory.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := security.ValidateExportPath(args[1]); err != nil {
				return err
			}
			database, err := openHistory(g, true)
			if err != nil {
				return err
			}
			defer database.Close()

			run, err := db.NewRunStore(database).Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(run, "", "  ")
			if err != nil {
				return err
			}
			if err := fsutil.OSFileSystem{}.WriteFile(args[1], append(data, '\n'), 0o644); err != nil {
				return fmt.Errorf("export run: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "exported run %s to %s\n", run.RunID, args[1])
			return nil
		},
	}

	runs.AddCommand(list, show, del, export)
	return runs
}

func writeRunList(w io.Writer, rs []*db.Run) error {
	if len(rs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tCREATED\tDATA\tN\tF\tP\tΔAIC\tΔBIC\t")
	for _, r := range rs {
		c := r.Comparison
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%.3f\t%.3g\t%.2f\t%.2f\t\n",
			r.RunID, r.Created().Format(time.RFC3339), r.DataPath, r.Observations,
			c.F, c.PValue, c.DeltaAIC, c.DeltaBIC)
	}
	return tw.Flush()
}

func writeRun(w io.Writer, r *db.Run) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\t\n", r.RunID)
	fmt.Fprintf(tw, "created\t%s\t\n", r.Created().Format(time.RFC3339))
	fmt.Fprintf(tw, "data\t%s\t\n", r.DataPath)
	fmt.Fprintf(tw, "observations\t%d\t\n", r.Observations)
	fmt.Fprintf(tw, "reference level\t%s\t\n", r.ReferenceLevel)
	fmt.Fprintf(tw, "confidence level\t%g\t\n", r.ConfidenceLevel)
	c := r.Comparison
	fmt.Fprintf(tw, "F test\tF(%d, %d) = %.4f, p = %.4g\t\n", c.DF1, c.DF2, c.F, c.PValue)
	fmt.Fprintf(tw, "Δ AIC / Δ BIC\t%.3f / %.3f\t\n", c.DeltaAIC, c.DeltaBIC)
	fmt.Fprintf(tw, "Δ adj R²\t%.5f\t\n", c.DeltaAdjRSquared)

	for _, m := range r.Models {
		fmt.Fprintf(tw, "\n%s: %s\n", m.Name, m.Formula)
		fmt.Fprintf(tw, "R² %.4f  adj R² %.4f  AIC %.2f  BIC %.2f\n", m.RSquared, m.AdjRSquared, m.AIC, m.BIC)
		fmt.Fprintln(tw, "term\testimate\tstd err\tp\tlow\thigh\t")
		for _, co := range m.Coefficients {
			fmt.Fprintf(tw, "%s\t%.2f\t%.2f\t%.3g\t%.2f\t%.2f\t\n",
				co.Term, co.Estimate, co.StdErr, co.PValue, co.CILow, co.CIHigh)
		}
	}

	if len(r.Predictions) > 0 {
		fmt.Fprintln(tw, "\npredictions")
		fmt.Fprintln(tw, "age\tgroup\tfit\tlow\thigh\t")
		for _, p := range r.Predictions {
			fmt.Fprintf(tw, "%g\t%s\t%.2f\t%.2f\t%.2f\t\n", p.Age, p.Group, p.Fit, p.Low, p.High)
		}
	}
	return tw.Flush()
}
