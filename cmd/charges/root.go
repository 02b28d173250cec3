package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/charges.report/internal/analysis"
	"github.com/banshee-data/charges.report/internal/config"
	"github.com/banshee-data/charges.report/internal/db"
	"github.com/banshee-data/charges.report/internal/fsutil"
	"github.com/banshee-data/charges.report/internal/monitoring"
	"github.com/banshee-data/charges.report/internal/report"
	"github.com/banshee-data/charges.report/internal/version"
)

var errNoDatabase = errors.New("no run history database: set --db or db_path in the config")

// globalFlags are shared by every command.
type globalFlags struct {
	configPath string
	dbPath     string
	quiet      bool
}

// analyseFlags override the data and output locations of the config.
type analyseFlags struct {
	dataPath  string
	outputDir string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	a := &analyseFlags{}

	root := &cobra.Command{
		Use:   "charges",
		Short: "Compare additive and interaction models of insurance charges",
		Long: `charges loads an insurance charges CSV, fits charges ~ age + smoker and
charges ~ age * smoker by ordinary least squares, compares them with a
nested F-test and information criteria, and draws the fitted lines.

Without a subcommand it runs the analysis with the configured defaults.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if g.quiet {
				monitoring.SetLogger(nil)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyse(cmd, g, a)
		},
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "analysis config JSON (default: built-in defaults)")
	root.PersistentFlags().StringVar(&g.dbPath, "db", "", "run history SQLite database (overrides db_path)")
	root.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "suppress progress logging")
	addAnalyseFlags(root, a)

	analyse := &cobra.Command{
		Use:     "analyse",
		Aliases: []string{"analyze"},
		Short:   "Run the analysis and write the report and charts",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyse(cmd, g, a)
		},
	}
	addAnalyseFlags(analyse, a)

	root.AddCommand(
		analyse,
		newRunsCmd(g),
		newMigrateCmd(g),
		newVersionCmd(),
	)
	return root
}

func addAnalyseFlags(cmd *cobra.Command, a *analyseFlags) {
	cmd.Flags().StringVar(&a.dataPath, "data", "", "insurance charges CSV (overrides data_path)")
	cmd.Flags().StringVar(&a.outputDir, "out", "", "output directory for the report and charts (overrides output_dir)")
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}
}

// loadConfig resolves the config file and applies the flag overrides.
func loadConfig(g *globalFlags, a *analyseFlags) (*config.AnalysisConfig, error) {
	cfg := config.EmptyAnalysisConfig()
	if g.configPath != "" {
		var err error
		if cfg, err = config.LoadAnalysisConfig(g.configPath); err != nil {
			return nil, err
		}
	}
	if a != nil && a.dataPath != "" {
		cfg.DataPath = &a.dataPath
	}
	if a != nil && a.outputDir != "" {
		cfg.OutputDir = &a.outputDir
	}
	if g.dbPath != "" {
		cfg.DBPath = &g.dbPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runAnalyse(cmd *cobra.Command, g *globalFlags, a *analyseFlags) error {
	cfg, err := loadConfig(g, a)
	if err != nil {
		return err
	}

	fs := fsutil.OSFileSystem{}
	res, err := analysis.Run(cmd.Context(), fs, analysis.OptionsFromConfig(cfg))
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if err := report.Write(out, res); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	path, err := report.WriteFile(fs, cfg.GetOutputDir(), res)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nreport written to %s\n", path)

	if cfg.GetDBPath() == "" {
		return nil
	}
	run, err := res.Record(cfg)
	if err != nil {
		return fmt.Errorf("record run: %w", err)
	}
	database, err := db.Open(cfg.GetDBPath())
	if err != nil {
		return err
	}
	defer database.Close()
	if err := db.NewRunStore(database).Insert(cmd.Context(), run); err != nil {
		return err
	}
	fmt.Fprintf(out, "recorded run %s\n", run.RunID)
	return nil
}

// openHistory opens the run history named by --db or the config.
func openHistory(g *globalFlags, migrateSchema bool) (*db.DB, error) {
	cfg, err := loadConfig(g, nil)
	if err != nil {
		return nil, err
	}
	path := cfg.GetDBPath()
	if path == "" {
		return nil, errNoDatabase
	}
	if migrateSchema {
		return db.Open(path)
	}
	return db.OpenWithoutMigrations(path)
}
