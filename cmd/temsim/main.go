package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/san-kum/temsim/internal/automation"
	"github.com/san-kum/temsim/internal/config"
	"github.com/san-kum/temsim/internal/experiment"
	"github.com/san-kum/temsim/internal/logging"
	"github.com/san-kum/temsim/internal/params"
	"github.com/san-kum/temsim/internal/runner"
	"github.com/san-kum/temsim/internal/storage"
	"github.com/san-kum/temsim/internal/teminput"
	"github.com/san-kum/temsim/internal/viz"
	"github.com/spf13/cobra"
)

var (
	settings *config.Settings
	logger   *slog.Logger

	binary   string
	dataDir  string
	logLevel string
	outDir   string

	pdbFile   string
	crdFile   string
	keyword   string
	dose      float64
	noise     string
	seed      int64
	outFile   string
	preset    string
	sweepMin  float64
	sweepMax  float64
	sweepStep int
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "temsim",
		Short:         "prepare and run TEM-simulator micrograph simulations",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadSettings(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&binary, "binary", config.DefaultBinary, "TEM-simulator executable")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", config.DefaultDataDir, "run record directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", config.DefaultLogLevel, "debug, info, warn or error")

	validateCmd := &cobra.Command{
		Use:   "validate [params.yaml]",
		Short: "check a parameter file and report every violation",
		Args:  cobra.ExactArgs(1),
		RunE:  validateParams,
	}
	addOverrideFlags(validateCmd)

	renderCmd := &cobra.Command{
		Use:   "render [params.yaml]",
		Short: "print the simulator input file for a parameter file",
		Args:  cobra.ExactArgs(1),
		RunE:  renderInput,
	}
	addOverrideFlags(renderCmd)
	addPathFlags(renderCmd, false)

	runCmd := &cobra.Command{
		Use:   "run [params.yaml]",
		Short: "write the input files, run TEM-simulator and record the run",
		Args:  cobra.ExactArgs(1),
		RunE:  runSimulation,
	}
	addOverrideFlags(runCmd)
	addPathFlags(runCmd, true)

	scenarioCmd := &cobra.Command{
		Use:   "scenario [scenario.yaml]",
		Short: "run every step of a scenario file in order",
		Args:  cobra.ExactArgs(1),
		RunE:  runScenario,
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep [params.yaml]",
		Short: "run one simulation per electron dose over an even range",
		Args:  cobra.ExactArgs(1),
		RunE:  runSweep,
	}
	addPathFlags(sweepCmd, true)
	sweepCmd.Flags().Float64Var(&sweepMin, "min", 20, "lowest dose (e/nm²)")
	sweepCmd.Flags().Float64Var(&sweepMax, "max", 200, "highest dose (e/nm²)")
	sweepCmd.Flags().IntVar(&sweepStep, "steps", 5, "number of doses")
	sweepCmd.Flags().StringVar(&noise, "noise", "", "override detector noise (yes/no)")
	sweepCmd.Flags().Int64Var(&seed, "seed", 0, "override random seed")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	showCmd := &cobra.Command{
		Use:   "show [run_id]",
		Short: "show a recorded run",
		Args:  cobra.ExactArgs(1),
		RunE:  showRun,
	}

	exportJSONCmd := &cobra.Command{
		Use:   "export-json [run_id]",
		Short: "export run metadata and parameters to JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return storage.New(settings.DataDir).ExportJSON(os.Stdout, args[0])
		},
	}

	defaultsCmd := &cobra.Command{
		Use:   "defaults",
		Short: "write a complete parameter file with default values",
		RunE:  writeDefaults,
	}
	defaultsCmd.Flags().StringVarP(&outFile, "output", "o", "", "write to file instead of stdout")
	defaultsCmd.Flags().StringVar(&preset, "preset", "", "start from a preset")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available parameter presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range params.ListPresets() {
				fmt.Printf("  %-14s %s\n", name, params.Presets[name].Description)
			}
			return nil
		},
	}

	defocusCmd := &cobra.Command{
		Use:   "defocus [params.yaml | defocus.txt]",
		Short: "plot the defocus values a parameter file draws, or a defocus file holds",
		Args:  cobra.ExactArgs(1),
		RunE:  plotDefocus,
	}
	addOverrideFlags(defocusCmd)

	rotationsCmd := &cobra.Command{
		Use:   "rotations [coords.txt]",
		Short: "print particle rotation angles from a coordinate file",
		Args:  cobra.ExactArgs(1),
		RunE:  printRotations,
	}

	rootCmd.AddCommand(validateCmd, renderCmd, runCmd, scenarioCmd, sweepCmd, listCmd, showCmd, exportJSONCmd, defaultsCmd, presetsCmd, defocusCmd, rotationsCmd)

	if err := rootCmd.Execute(); err != nil {
		var verr *params.ValidationError
		if errors.As(err, &verr) {
			fmt.Fprintln(os.Stderr, viz.RenderViolations(verr))
		} else {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func addOverrideFlags(cmd *cobra.Command) {
	cmd.Flags().Float64Var(&dose, "dose", 0, "override electron dose (e/nm²)")
	cmd.Flags().StringVar(&noise, "noise", "", "override detector noise (yes/no)")
	cmd.Flags().Int64Var(&seed, "seed", 0, "override random seed")
}

// addPathFlags registers the particle inputs. Commands that run the
// simulator need an existing coordinate file; render only names one and
// falls back to <out-dir>/<pdb stem><keyword>.txt.
func addPathFlags(cmd *cobra.Command, requireCrd bool) {
	cmd.Flags().StringVar(&pdbFile, "pdb", "", "particle pdb file")
	usage := "particle coordinate file"
	if !requireCrd {
		usage += " (default <out-dir>/<pdb stem><keyword>.txt)"
	}
	cmd.Flags().StringVar(&crdFile, "crd", "", usage)
	cmd.Flags().StringVar(&outDir, "out-dir", "", "output directory (default pdb directory)")
	cmd.Flags().StringVar(&keyword, "keyword", "", "output name suffix (default random)")
	_ = cmd.MarkFlagRequired("pdb")
	if requireCrd {
		_ = cmd.MarkFlagRequired("crd")
	}
}

// loadSettings reads the environment, then lets explicit flags win.
func loadSettings(cmd *cobra.Command) error {
	s, err := config.Load()
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("binary") {
		s.Binary = binary
	}
	if flags.Changed("data") {
		s.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		s.LogLevel = logLevel
	}
	if flags.Changed("out-dir") {
		s.OutputDir = outDir
	}
	settings = s
	logger = logging.NewLogger(s.LogLevel, os.Stderr)
	return nil
}

func overrides(cmd *cobra.Command) (params.Overrides, error) {
	var o params.Overrides
	flags := cmd.Flags()
	if flags.Changed("dose") {
		o.Dose = &dose
	}
	if flags.Changed("noise") {
		t, err := parseToggle(noise)
		if err != nil {
			return o, err
		}
		o.Noise = &t
	}
	if flags.Changed("seed") {
		o.Seed = &seed
	}
	return o, nil
}

func parseToggle(s string) (params.Toggle, error) {
	switch strings.ToLower(s) {
	case "yes", "y", "true", "on":
		return params.Yes, nil
	case "no", "n", "false", "off":
		return params.No, nil
	}
	return "", fmt.Errorf("noise must be yes or no, got %q", s)
}

func loadParams(cmd *cobra.Command, path string) (*params.Config, error) {
	o, err := overrides(cmd)
	if err != nil {
		return nil, err
	}
	return params.LoadWithOverrides(path, o)
}

func inputs(paramsFile string) experiment.Inputs {
	return experiment.Inputs{
		PDB:         pdbFile,
		Coordinates: crdFile,
		ParamsFile:  paramsFile,
		OutputDir:   settings.OutputDir,
		Keyword:     keyword,
	}
}

func newRunner() *runner.Runner {
	r := runner.New(settings.Binary, settings.BinaryArgs...)
	r.Logger = logger
	return r
}

func validateParams(cmd *cobra.Command, args []string) error {
	if _, err := loadParams(cmd, args[0]); err != nil {
		return err
	}
	fmt.Println(viz.RenderViolations(nil))
	return nil
}

func renderInput(cmd *cobra.Command, args []string) error {
	cfg, err := loadParams(cmd, args[0])
	if err != nil {
		return err
	}
	exp, err := experiment.New(cfg, inputs(args[0]), logger)
	if err != nil {
		return err
	}
	data, err := teminput.Render(exp.Config(), exp.Paths())
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runSimulation(cmd *cobra.Command, args []string) error {
	cfg, err := loadParams(cmd, args[0])
	if err != nil {
		return err
	}

	st := storage.New(settings.DataDir)
	if err := st.Init(); err != nil {
		return err
	}

	exp, err := experiment.New(cfg, inputs(args[0]), logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	fmt.Printf("running %s simulation...\n", cfg.MolecularModel.ParticleName)
	result, err := exp.Run(ctx, newRunner())
	if err != nil {
		return err
	}

	runID, err := st.Save(result)
	if err != nil {
		return err
	}
	logger.Info("run recorded", "run_id", runID, "input", result.Paths.Input)

	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	fmt.Println(viz.RunSummary(meta))
	return nil
}

func runScenario(cmd *cobra.Command, args []string) error {
	sc, err := automation.LoadScenario(args[0])
	if err != nil {
		return err
	}
	if sc.OutputDir == "" {
		sc.OutputDir = settings.OutputDir
	}
	return executeScenario(sc)
}

func runSweep(cmd *cobra.Command, args []string) error {
	sweep := automation.DoseSweep{Min: sweepMin, Max: sweepMax, Count: sweepStep}
	o, err := overrides(cmd)
	if err != nil {
		return err
	}
	sweep.Noise, sweep.Seed = o.Noise, o.Seed

	steps, err := sweep.Steps()
	if err != nil {
		return err
	}
	// Steps share the parameter file's seed unless one is given, so keep
	// the output names apart with the user's keyword as a prefix.
	for i := range steps {
		steps[i].Keyword = keyword + "_" + steps[i].Name
	}

	return executeScenario(&automation.Scenario{
		Name:        "dose-sweep",
		Config:      args[0],
		PDB:         pdbFile,
		Coordinates: crdFile,
		OutputDir:   settings.OutputDir,
		Steps:       steps,
	})
}

func executeScenario(sc *automation.Scenario) error {
	if err := sc.Validate(); err != nil {
		return err
	}

	st := storage.New(settings.DataDir)
	if err := st.Init(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	results, err := automation.RunScenario(ctx, sc, newRunner(), st, logger)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STEP\tRUN ID\tDOSE\tNOISE\tSEED\tMICROGRAPH")
	for _, r := range results {
		cfg := r.Result.Config
		fmt.Fprintf(w, "%s\t%s\t%g\t%s\t%d\t%s\n",
			r.Step,
			r.RunID,
			cfg.Beam.ElectronDose,
			cfg.Detector.Noise,
			r.Result.Seed,
			r.Result.Paths.Micrograph,
		)
	}
	if ferr := w.Flush(); ferr != nil && err == nil {
		err = ferr
	}
	if err != nil {
		return fmt.Errorf("%s stopped after %d of %d steps: %w", sc.Name, len(results), len(sc.Steps), err)
	}
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := storage.New(settings.DataDir).List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPARTICLE\tTIME\tKV\tDOSE\tNOISE\tSAMPLES\tSEED")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%g\t%g\t%s\t%d\t%d\n",
			run.ID,
			run.Particle,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.VoltageKV,
			run.Dose,
			run.Noise,
			run.NSamples,
			run.Seed,
		)
	}

	return w.Flush()
}

func showRun(cmd *cobra.Command, args []string) error {
	st := storage.New(settings.DataDir)
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}
	fmt.Println(viz.RunSummary(meta))

	input, err := st.LoadInput(args[0])
	if err != nil {
		return err
	}
	sections, err := teminput.ParseSections(bytes.NewReader(input))
	if err != nil {
		return fmt.Errorf("stored input: %w", err)
	}
	fmt.Println(viz.InputSummary(sections))
	if len(meta.Defocus) > 0 {
		fmt.Println()
		fmt.Println(viz.DefocusPlot(meta.Defocus))
	}
	return nil
}

func writeDefaults(cmd *cobra.Command, args []string) error {
	cfg := params.DefaultConfig()
	if preset != "" {
		cfg = params.GetPreset(preset)
		if cfg == nil {
			return fmt.Errorf("unknown preset: %s (available: %v)", preset, params.ListPresets())
		}
	}

	if outFile != "" {
		return params.Save(outFile, cfg)
	}
	data, err := params.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func plotDefocus(cmd *cobra.Command, args []string) error {
	path := args[0]
	var values []float64

	if strings.EqualFold(filepath.Ext(path), ".txt") {
		v, err := teminput.ReadDefocusFile(path)
		if err != nil {
			return err
		}
		values = v
	} else {
		cfg, err := loadParams(cmd, path)
		if err != nil {
			return err
		}
		if cfg.CTF == nil {
			return fmt.Errorf("%s has no ctf_parameters; every tilt uses defocus %g µm", path, *cfg.Optics.DefocusUM)
		}
		// experiment.New fixes the seed the same way a run would.
		exp, err := experiment.New(cfg, experiment.Inputs{PDB: path}, logger)
		if err != nil {
			return err
		}
		v, err := exp.SampleDefocus()
		if err != nil {
			return err
		}
		values = v
		fmt.Printf("seed: %d\n", exp.Seed())
	}

	fmt.Println(viz.DefocusPlot(values))
	return nil
}

func printRotations(cmd *cobra.Command, args []string) error {
	rows, err := teminput.ReadRotations(args[0])
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tX\tY\tZ\tPHI\tTHETA\tPSI")
	for i, row := range rows {
		fmt.Fprintf(w, "%d", i+1)
		for _, v := range row {
			fmt.Fprintf(w, "\t%g", v)
		}
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "%d particles\n", len(rows))
	return w.Flush()
}
