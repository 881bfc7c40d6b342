package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/jvillar/structlab/internal/arrstore"
	"github.com/jvillar/structlab/internal/config"
	"github.com/jvillar/structlab/internal/modal"
	"github.com/jvillar/structlab/internal/pipeline"
	"github.com/jvillar/structlab/internal/report"
	"github.com/jvillar/structlab/internal/response"
	"github.com/jvillar/structlab/internal/synth"
)

var (
	configFile string

	// generate flags
	genSize    int
	genSmall   bool
	genOutput  string
	genSeed    int64
	genWorkers int

	// analyze flags
	inFile    string
	runModal  bool
	noPlots   bool
	maxSize   int
	quick     bool
	modeCount int
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "structlab",
		Short: "structural matrix synthesis and analysis lab",
	}

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "synthesize banded structural matrices into a chunked store",
		RunE:  runGenerate,
	}
	generateCmd.Flags().IntVar(&genSize, "size", config.DefaultSize, "matrix size (DOF count)")
	generateCmd.Flags().BoolVar(&genSmall, "small", false, "small dense test case")
	generateCmd.Flags().StringVar(&genOutput, "output", config.DefaultOutput, "output store path")
	generateCmd.Flags().Int64Var(&genSeed, "seed", 42, "random seed")
	generateCmd.Flags().IntVar(&genWorkers, "workers", 1, "parallel block workers")
	generateCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")

	analyzeCmd := newAnalyzeCmd()

	inspectCmd := &cobra.Command{
		Use:   "inspect",
		Short: "list datasets and attributes of a store",
		RunE:  runInspect,
	}
	inspectCmd.Flags().StringVarP(&inFile, "file", "f", config.DefaultOutput, "store to inspect")

	rootCmd.AddCommand(generateCmd, analyzeCmd, inspectCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runGenerate(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("size") {
		cfg.Generate.Size = genSize
	}
	if cmd.Flags().Changed("small") {
		cfg.Generate.Small = genSmall
	}
	if cmd.Flags().Changed("output") {
		cfg.Generate.Output = genOutput
	}
	if cmd.Flags().Changed("seed") {
		cfg.Generate.Seed = genSeed
	}
	if cmd.Flags().Changed("workers") {
		cfg.Generate.Workers = genWorkers
	}
	if cfg.Generate.Small && !cmd.Flags().Changed("size") {
		cfg.Generate.Size = config.DefaultSmallSize
	}

	params := synth.Params{
		Size:          cfg.Generate.Size,
		BlockEdge:     cfg.Generate.BlockEdge,
		Bandwidth:     cfg.Generate.Bandwidth,
		BaseStiffness: cfg.Generate.BaseStiffness,
		Amplitude:     cfg.Generate.Amplitude,
		Period:        cfg.Generate.Period,
		Decay:         cfg.Generate.Decay,
		OffDiagScale:  cfg.Generate.OffDiagScale,
		MassPerDOF:    cfg.Generate.MassPerDOF,
		ForceSigma:    cfg.Generate.ForceSigma,
		DispSigma:     cfg.Generate.DispSigma,
		Seed:          cfg.Generate.Seed,
		Workers:       cfg.Generate.Workers,
	}

	store, err := arrstore.Create(cfg.Generate.Output)
	if err != nil {
		return err
	}

	mode := "banded"
	if cfg.Generate.Small {
		mode = "small dense"
	}
	fmt.Printf("generating %s %dx%d test case...\n", mode, params.Size, params.Size)
	start := time.Now()

	s := synth.New(store, params)
	if cfg.Generate.Small {
		err = s.RunSmall(context.Background())
	} else {
		err = s.Run(context.Background())
	}
	if err != nil {
		// A half-written store has no manifest and is unreadable by design.
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}

	fmt.Printf("completed in %v\n", time.Since(start))
	fmt.Printf("store: %s\n", cfg.Generate.Output)
	printInfo(store.Info())
	return nil
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "analyze a stored matrix set",
		RunE:  runAnalyze,
	}
	cmd.Flags().StringVarP(&inFile, "file", "f", config.DefaultOutput, "store to analyze")
	cmd.Flags().BoolVarP(&runModal, "modal", "m", false, "perform modal analysis")
	cmd.Flags().BoolVar(&noPlots, "no-plots", false, "skip terminal plots")
	cmd.Flags().IntVar(&maxSize, "max-size", config.DefaultMaxSize, "max loaded matrix size before subsampling")
	cmd.Flags().BoolVar(&quick, "quick", false, "quick mode: aggressive subsampling")
	cmd.Flags().IntVar(&modeCount, "modes", config.DefaultModeCount, "number of modes to extract")
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	return cmd
}

// analyzeSettings resolves the analyze parameters: config file over
// defaults, explicitly set flags over both.
func analyzeSettings(cmd *cobra.Command) (config.AnalyzeConfig, error) {
	acfg := config.DefaultConfig().Analyze
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return acfg, fmt.Errorf("failed to load config: %w", err)
		}
		acfg = loaded.Analyze
	}
	if cmd.Flags().Changed("max-size") {
		acfg.MaxSize = maxSize
	}
	if cmd.Flags().Changed("quick") {
		acfg.Quick = quick
	}
	if cmd.Flags().Changed("modal") {
		acfg.Modal = runModal
	}
	if cmd.Flags().Changed("modes") {
		acfg.ModeCount = modeCount
	}
	if cmd.Flags().Changed("no-plots") {
		acfg.NoPlots = noPlots
	}
	return acfg, nil
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	acfg, err := analyzeSettings(cmd)
	if err != nil {
		return err
	}
	budget := acfg.EffectiveMaxSize()
	if acfg.Quick {
		fmt.Println("quick mode: aggressive subsampling")
	}

	data, err := pipeline.Load(inFile, budget)
	if err != nil {
		if errors.Is(err, arrstore.ErrNotFound) {
			fmt.Printf("input store not found: %s\n", inFile)
			fmt.Println("run: structlab generate")
			return nil
		}
		return err
	}

	fmt.Printf("loaded store: %s\n", inFile)
	for _, notice := range data.Notices {
		fmt.Printf("  note: %s\n", notice)
	}
	fmt.Println()

	var sum *response.Summary
	if data.Force != nil && data.Displacement != nil {
		sum, err = response.Reduce(data.Force, data.Displacement, data.Stiffness)
		if err != nil {
			fmt.Printf("response reduction skipped: %v\n", err)
		}
	}

	report.Write(os.Stdout, data.Stiffness, data.Mass, sum)
	fmt.Println()

	if !acfg.NoPlots {
		if sum != nil {
			report.PlotResponse(os.Stdout, sum)
		}
		if data.Stiffness != nil {
			report.SparsityMap(os.Stdout, data.Stiffness, "stiffness structure")
		}
		if data.Mass != nil {
			report.SparsityMap(os.Stdout, data.Mass, "mass structure")
		}
	}

	if acfg.Modal {
		runModalAnalysis(data, acfg)
	}
	return nil
}

func runModalAnalysis(data *pipeline.Data, acfg config.AnalyzeConfig) {
	if data.Stiffness == nil || data.Mass == nil {
		fmt.Println("modal analysis skipped: stiffness and mass matrices required")
		return
	}

	solver := modal.NewSolver()
	res, err := solver.Solve(data.Stiffness, data.Mass, acfg.ModeCount)
	if err != nil {
		fmt.Printf("modal analysis skipped: %v\n", err)
		return
	}

	for _, notice := range res.Notices {
		fmt.Printf("  note: %s\n", notice)
	}
	for _, warning := range res.Warnings {
		fmt.Printf("  warning: %s\n", warning)
	}

	fmt.Println("natural frequencies:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MODE\tFREQ (HZ)\tEIGENVALUE\tRESIDUAL")
	for i, m := range res.Modes {
		fmt.Fprintf(w, "%d\t%.2f\t%.4e\t%.2e\n", i+1, m.Frequency, m.Eigenvalue, m.Residual)
	}
	w.Flush()
	fmt.Println()

	if !acfg.NoPlots {
		report.PlotModes(os.Stdout, res)
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	store, err := arrstore.Open(inFile)
	if err != nil {
		if errors.Is(err, arrstore.ErrNotFound) {
			fmt.Printf("input store not found: %s\n", inFile)
			return nil
		}
		return err
	}
	defer store.Close()

	fmt.Printf("store: %s\n\ndatasets:\n", inFile)
	printInfo(store.Info())

	fmt.Println("\nattributes:")
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	for name, v := range store.Attrs() {
		fmt.Fprintf(w, "  %s\t%v\n", name, v)
	}
	return w.Flush()
}

func printInfo(infos []arrstore.DatasetInfo) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tNAME\tSHAPE\tCHUNKS\tCOMPRESSION\tSIZE")
	for _, info := range infos {
		fmt.Fprintf(w, "%s\t%s\t%v\t%v\t%s\t%s\n",
			info.Group, info.Name, info.Shape, info.Chunks, info.Compression, humanSize(info.FileSize))
	}
	w.Flush()
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<30:
		return fmt.Sprintf("%.1f GiB", float64(n)/(1<<30))
	case n >= 1<<20:
		return fmt.Sprintf("%.1f MiB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1f KiB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%d B", n)
	}
}
