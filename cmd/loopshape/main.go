package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/guptarohit/asciigraph"
	"github.com/san-kum/loopshape/internal/config"
	"github.com/san-kum/loopshape/internal/freq"
	"github.com/san-kum/loopshape/internal/linalg"
	"github.com/san-kum/loopshape/internal/lti"
	"github.com/san-kum/loopshape/internal/pipeline"
	"github.com/san-kum/loopshape/internal/report"
	"github.com/san-kum/loopshape/internal/sim"
	"github.com/san-kum/loopshape/internal/storage"
	"github.com/san-kum/loopshape/internal/sweep"
	"github.com/san-kum/loopshape/internal/synth"
	"github.com/san-kum/loopshape/internal/tui"
	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/mat"
)

var (
	dataDir    string
	verbose    bool
	configFile string
	// Bracket overrides
	gammaLow  float64
	gammaHigh float64
	gammaTol  float64
	maxIter   int
	// Output
	saveName string
	plotPath string
	asJSON   bool
	width    int
	height   int
	// D-K
	dkIterations int
	browse       bool
	// Step response
	stepInput  int
	stepOutput int
	duration   float64
	dt         float64
	method     string
	// Sweeps
	sweepFile  string
	sweepDef   sweep.Sweep
	monteCarlo sweep.MonteCarlo
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "loopshape",
		Short:         "H-infinity loop shaping and D-K iteration lab",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", ".loopshape", "data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging to stderr")
	rootCmd.PersistentFlags().IntVar(&width, "width", 80, "plot width")
	rootCmd.PersistentFlags().IntVar(&height, "height", 12, "plot height")

	synthCmd := &cobra.Command{
		Use:   "synth [preset]",
		Short: "synthesize an H-infinity controller",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSynth,
	}
	synthCmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")
	synthCmd.Flags().Float64Var(&gammaLow, "low", config.DefaultGammaLow, "gamma lower bound")
	synthCmd.Flags().Float64Var(&gammaHigh, "high", config.DefaultGammaHigh, "gamma upper bound")
	synthCmd.Flags().Float64Var(&gammaTol, "tol", config.DefaultGammaTol, "gamma tolerance")
	synthCmd.Flags().IntVar(&maxIter, "max-iter", synth.DefaultMaxIter, "bisection iteration cap")
	synthCmd.Flags().StringVar(&saveName, "save", "", "save the result under this name")
	synthCmd.Flags().StringVar(&plotPath, "plot", "", "write a singular value plot (.png or .svg)")

	dkCmd := &cobra.Command{
		Use:   "dk [preset]",
		Short: "run D-K iteration",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDK,
	}
	dkCmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")
	dkCmd.Flags().IntVar(&dkIterations, "iterations", config.DefaultDKIterations, "maximum D-K iterations")
	dkCmd.Flags().BoolVar(&browse, "tui", false, "browse iterations interactively")

	bodeCmd := &cobra.Command{
		Use:   "bode [preset]",
		Short: "singular values of the open-loop generalized plant",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runBode,
	}
	bodeCmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")

	lqrCmd := &cobra.Command{
		Use:   "lqr [preset]",
		Short: "H2 state feedback baseline for the control channel",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLQR,
	}
	lqrCmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")

	stepCmd := &cobra.Command{
		Use:   "step [preset]",
		Short: "closed-loop step response of the synthesized controller",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStep,
	}
	stepCmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")
	stepCmd.Flags().IntVar(&stepInput, "input", 0, "exogenous input channel to step")
	stepCmd.Flags().IntVar(&stepOutput, "output", -1, "output channel to show (-1 for the last)")
	stepCmd.Flags().Float64Var(&duration, "duration", 10, "simulation horizon (s)")
	stepCmd.Flags().Float64Var(&dt, "dt", 0.01, "sample time (s)")
	stepCmd.Flags().StringVar(&method, "method", sim.MethodZOH, "integration method (zoh, rk4)")
	stepCmd.Flags().StringVar(&plotPath, "plot", "", "write the response plot (.png or .svg)")

	sweepCmd := &cobra.Command{
		Use:   "sweep [preset]",
		Short: "redesign the controller across a coefficient range",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	sweepCmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")
	sweepCmd.Flags().StringVar(&sweepFile, "file", "", "sweep definition (yaml)")
	sweepCmd.Flags().StringVar(&sweepDef.System, "system", "plant", "system to vary")
	sweepCmd.Flags().StringVar(&sweepDef.Field, "field", sweep.FieldGain, "coefficient field (num, den, gain)")
	sweepCmd.Flags().IntVar(&sweepDef.Index, "index", 0, "coefficient index")
	sweepCmd.Flags().Float64Var(&sweepDef.Min, "min", 0.5, "first value")
	sweepCmd.Flags().Float64Var(&sweepDef.Max, "max", 2, "last value")
	sweepCmd.Flags().IntVar(&sweepDef.Steps, "steps", 7, "number of values")

	mcCmd := &cobra.Command{
		Use:   "montecarlo [preset]",
		Short: "close perturbed plants with the nominal controller",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runMonteCarlo,
	}
	mcCmd.Flags().StringVar(&configFile, "config", "", "scenario file (yaml)")
	mcCmd.Flags().StringSliceVar(&monteCarlo.Systems, "systems", nil, "systems to perturb (default: the first)")
	mcCmd.Flags().Float64Var(&monteCarlo.Perturbation, "perturbation", 0.1, "relative coefficient perturbation")
	mcCmd.Flags().IntVar(&monteCarlo.Trials, "trials", 100, "number of trials")
	mcCmd.Flags().Int64Var(&monteCarlo.Seed, "seed", 0, "random seed (0 for time-based)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list built-in scenarios",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tBRACKET\tDESCRIPTION")
			for _, name := range config.ListPresets() {
				s := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t(%g, %g)\t%s\n", name, s.Bracket.Low, s.Bracket.High, s.Description)
			}
			return w.Flush()
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [preset] [path]",
		Short: "write a preset to a scenario file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s := config.GetPreset(args[0])
			if s == nil {
				return fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
			}
			return config.Save(args[1], s)
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list saved results",
		RunE:  listRecords,
	}

	showCmd := &cobra.Command{
		Use:   "show [name]",
		Short: "show a saved result",
		Args:  cobra.ExactArgs(1),
		RunE:  showRecord,
	}
	showCmd.Flags().BoolVar(&asJSON, "json", false, "print the record as JSON")

	exportCSVCmd := &cobra.Command{
		Use:   "export-csv [name]",
		Short: "export singular values of a saved result to CSV",
		Args:  cobra.ExactArgs(1),
		RunE:  exportCSV,
	}

	rootCmd.AddCommand(synthCmd, dkCmd, stepCmd, sweepCmd, mcCmd, bodeCmd, lqrCmd, presetsCmd, initCmd, listCmd, showCmd, exportCSVCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadScenario picks the scenario from --config or a preset name, then
// applies any bracket flags the user set explicitly.
func loadScenario(cmd *cobra.Command, args []string) (*config.Scenario, error) {
	var s *config.Scenario
	switch {
	case configFile != "":
		var err error
		s, err = config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
	case len(args) > 0:
		s = config.GetPreset(args[0])
		if s == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", args[0], config.ListPresets())
		}
	default:
		s = config.GetPreset("mixed_sensitivity")
	}

	flags := cmd.Flags()
	if flags.Changed("low") {
		s.Bracket.Low = gammaLow
	}
	if flags.Changed("high") {
		s.Bracket.High = gammaHigh
	}
	if flags.Changed("tol") {
		s.Bracket.Tol = gammaTol
	}
	if flags.Changed("max-iter") {
		s.Bracket.MaxIter = maxIter
	}
	if flags.Changed("iterations") {
		s.DK.Iterations = dkIterations
	}
	return s, nil
}

func runSynth(cmd *cobra.Command, args []string) error {
	s, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r, err := pipeline.Run(ctx, s, pipeline.Options{Logger: slog.Default()})
	if err != nil {
		return err
	}

	fmt.Println(report.Summary(r))
	fmt.Println()
	fmt.Println(report.SigmaPlot(r.Response, width, height))
	fmt.Println()
	fmt.Printf("Final Gamma = %.6g, Max Singular Value = %.6g\n", r.Result.Gamma, r.Peak.Value)

	if plotPath != "" {
		if err := report.SavePlot(plotPath, r.Response, s.Name+" closed loop"); err != nil {
			return err
		}
		fmt.Printf("plot written to %s\n", plotPath)
	}
	if saveName != "" {
		st := storage.New(dataDir)
		if err := st.Init(); err != nil {
			return err
		}
		if err := st.Save(storage.NewRecord(saveName, s.Name, r.Result, r.Peak), r.Response); err != nil {
			return err
		}
		fmt.Printf("saved as %s\n", saveName)
	}
	return nil
}

func runStep(cmd *cobra.Command, args []string) error {
	s, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r, err := pipeline.Run(ctx, s, pipeline.Options{Logger: slog.Default()})
	if err != nil {
		return err
	}
	res, err := pipeline.Simulate(ctx, r, stepInput, sim.Config{Dt: dt, Duration: duration, Method: method})
	if err != nil {
		return err
	}

	out := stepOutput
	if out < 0 {
		out = r.Result.ClosedLoop.Outputs() - 1
	}
	if out >= r.Result.ClosedLoop.Outputs() {
		return fmt.Errorf("output %d out of range (%d outputs)", out, r.Result.ClosedLoop.Outputs())
	}
	y := res.Channel(out)
	info := sim.AnalyzeStep(res.Times, y)

	fmt.Println(report.StepPlot(res.Times, y, width, height))
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "final value\t%.5g\n", info.Final)
	fmt.Fprintf(w, "peak\t%.5g\n", info.Peak)
	fmt.Fprintf(w, "overshoot\t%.2f%%\n", info.Overshoot)
	fmt.Fprintf(w, "rise time\t%.4g s\n", info.RiseTime)
	fmt.Fprintf(w, "settling time (2%%)\t%.4g s\n", info.Settling)
	if err := w.Flush(); err != nil {
		return err
	}

	if plotPath != "" {
		title := fmt.Sprintf("%s: input %d to output %d", s.Name, stepInput, out)
		if err := report.SaveStepPlot(plotPath, res.Times, y, title); err != nil {
			return err
		}
		fmt.Printf("plot written to %s\n", plotPath)
	}
	return nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	s, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	sw := &sweepDef
	if sweepFile != "" {
		if sw, err = sweep.LoadSweep(sweepFile); err != nil {
			return fmt.Errorf("failed to load sweep: %w", err)
		}
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	points, err := sweep.Run(ctx, s, sw, pipeline.Options{Logger: slog.Default()})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "%s.%s[%d]\tGAMMA\tPEAK\tABSCISSA\n", sw.System, sw.Field, sw.Index)
	gammas := make([]float64, 0, len(points))
	for _, p := range points {
		if !p.Feasible() {
			fmt.Fprintf(w, "%.5g\tinfeasible\t-\t-\n", p.Value)
			continue
		}
		gammas = append(gammas, p.Gamma)
		fmt.Fprintf(w, "%.5g\t%.5g\t%.5g\t%.3g\n", p.Value, p.Gamma, p.Peak, p.Abscissa)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(gammas) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(gammas,
			asciigraph.Height(height),
			asciigraph.Width(width),
			asciigraph.Caption("gamma across feasible sweep points"),
		))
	}
	return nil
}

func runMonteCarlo(cmd *cobra.Command, args []string) error {
	s, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := pipeline.Options{Logger: slog.Default()}
	nominal, err := pipeline.Run(ctx, s, opts)
	if err != nil {
		return err
	}
	trials, err := sweep.RunMonteCarlo(ctx, nominal, &monteCarlo, opts)
	if err != nil {
		return err
	}
	st := sweep.Summarize(trials)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "nominal gamma\t%.5g\n", nominal.Result.Gamma)
	fmt.Fprintf(w, "nominal peak\t%.5g\n", nominal.Peak.Value)
	fmt.Fprintf(w, "trials\t%d\n", len(trials))
	fmt.Fprintf(w, "stable\t%d (%.1f%%)\n", st.Stable, 100*float64(st.Stable)/float64(len(trials)))
	fmt.Fprintf(w, "unstable\t%d\n", st.Unstable)
	if st.Stable > 0 {
		fmt.Fprintf(w, "worst stable peak\t%.5g\n", st.WorstPeak)
	}
	return w.Flush()
}

func runDK(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && configFile == "" {
		args = []string{"robust_performance"}
	}
	s, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	r, err := pipeline.RunDK(ctx, s, pipeline.Options{Logger: slog.Default()})
	if err != nil {
		return err
	}
	if browse {
		return tui.Run(s.Name, r.History, r.Best.Index)
	}

	fmt.Println(report.DKSummary(r))
	fmt.Println()
	fmt.Println(report.MuPlot(r.Best.Bounds, width, height))
	return nil
}

func runBode(cmd *cobra.Command, args []string) error {
	s, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	plant, err := pipeline.BuildPlant(s)
	if err != nil {
		return err
	}
	resp, err := freq.Evaluate(plant, pipeline.Grid(s))
	if err != nil {
		return err
	}
	peak, err := freq.PeakNorm(resp)
	if err != nil {
		return err
	}

	fmt.Printf("generalized plant: %d states, %d inputs, %d outputs\n", plant.States(), plant.Inputs(), plant.Outputs())
	fmt.Printf("poles: %s\n\n", formatPoles(lti.Poles(plant)))
	fmt.Println(report.SigmaPlot(resp, width, height))
	fmt.Printf("\npeak %.6g at %.4g rad/s\n", peak.Value, peak.Omega)
	return nil
}

func runLQR(cmd *cobra.Command, args []string) error {
	s, err := loadScenario(cmd, args)
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	plant, err := pipeline.BuildPlant(s)
	if err != nil {
		return err
	}
	k, err := synth.StateFeedback(plant, s.Measurements, s.Controls)
	if err != nil {
		return err
	}

	n, nu := plant.States(), s.Controls
	if n == 0 {
		return fmt.Errorf("generalized plant has no states")
	}
	b2 := linalg.Slice(plant.B(), 0, n, plant.Inputs()-nu, plant.Inputs())
	acl := linalg.Sub(plant.A(), linalg.Mul(b2, k, n, n), n, n)
	var eig mat.Eigen
	if !eig.Factorize(acl, mat.EigenNone) {
		return fmt.Errorf("closed-loop eigenvalues did not converge")
	}

	fmt.Printf("K = %v\n", mat.Formatted(k, mat.Prefix("    "), mat.Squeeze()))
	fmt.Printf("closed-loop poles: %s\n", formatPoles(eig.Values(nil)))
	return nil
}

func formatPoles(poles []complex128) string {
	if len(poles) == 0 {
		return "none"
	}
	out := ""
	for i, p := range poles {
		if i > 0 {
			out += ", "
		}
		if imag(p) == 0 {
			out += fmt.Sprintf("%.4g", real(p))
		} else {
			out += fmt.Sprintf("%.4g%+.4gi", real(p), imag(p))
		}
	}
	return out
}

func listRecords(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	recs, err := st.List()
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		fmt.Println("no saved results")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSCENARIO\tTIME\tGAMMA\tPEAK\tK STATES")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%.5g\t%.5g\t%d\n",
			rec.Name,
			rec.Scenario,
			rec.Timestamp.Format("2006-01-02 15:04:05"),
			rec.Gamma,
			rec.Peak,
			len(rec.Controller.A),
		)
	}
	return w.Flush()
}

func showRecord(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	rec, err := st.Load(args[0])
	if err != nil {
		return err
	}
	if asJSON {
		return storage.WriteJSON(os.Stdout, rec)
	}
	resp, err := st.LoadResponse(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s), saved %s\n", rec.Name, rec.Scenario, rec.Timestamp.Format("2006-01-02 15:04:05"))
	fmt.Printf("Final Gamma = %.6g, Max Singular Value = %.6g at %.4g rad/s\n\n", rec.Gamma, rec.Peak, rec.PeakOmega)
	fmt.Println(report.SigmaPlot(resp, width, height))

	gammas := make([]float64, len(rec.Steps))
	for i, step := range rec.Steps {
		gammas[i] = step.Gamma
	}
	if len(gammas) > 1 {
		fmt.Println()
		fmt.Println(asciigraph.Plot(gammas,
			asciigraph.Height(8),
			asciigraph.Width(min(width, 4*len(gammas))),
			asciigraph.Caption("gamma tested per bisection step"),
		))
	}
	return nil
}

func exportCSV(cmd *cobra.Command, args []string) error {
	st := storage.New(dataDir)
	resp, err := st.LoadResponse(args[0])
	if err != nil {
		return err
	}
	return report.WriteCSV(os.Stdout, resp)
}
