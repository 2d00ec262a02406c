package simulate

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/fragring/internal/conf"
	"github.com/tphakala/fragring/internal/observability"
	"github.com/tphakala/fragring/internal/simulate"
)

// Command creates the simulate command.
func Command(settings *conf.Settings) *cobra.Command {
	var clipPath string

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run jitter buffers between drifting virtual clocks",
		Long: "Simulate producer and consumer stages whose clocks run off nominal rate. " +
			"The threshold adjuster trims the consumer clock, and with peer correction " +
			"the producer follows the drift published by the settlement controller.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), settings, clipPath)
		},
	}

	// Set up flags specific to the 'simulate' command
	if err := setupFlags(cmd, &clipPath); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags binds each flag to its configuration key, so a flag overrides
// the config file and environment only when given.
func setupFlags(cmd *cobra.Command, clipPath *string) error {
	defaults := conf.Defaults()

	flags := cmd.Flags()
	flags.Duration("duration", defaults.Simulation.Duration, "Virtual time to simulate")
	flags.Float64("producer-ppm", defaults.Simulation.ProducerPPM, "Producer clock skew in ppm")
	flags.Float64("consumer-ppm", defaults.Simulation.ConsumerPPM, "Consumer clock skew in ppm")
	flags.Int("pipelines", defaults.Simulation.Pipelines, "Independent pipelines to run in parallel")
	flags.Bool("peer-correction", defaults.Simulation.PeerCorrection, "Let the producer follow published drift")
	flags.Duration("allowance", defaults.Jitter.Allowance, "Jitter allowance of each buffer")
	flags.String("side", defaults.Jitter.Side, "Clock driven by the threshold adjuster (consumer or producer)")
	flags.Bool("metrics", defaults.Metrics.Enabled, "Serve Prometheus metrics while simulating")
	flags.String("listen", defaults.Metrics.Listen, "Listen address of the metrics endpoint")
	flags.StringVar(clipPath, "clip", "", "Save the first pipeline's output history as WAV to this path")

	keys := map[string]string{
		"duration":        "simulation.duration",
		"producer-ppm":    "simulation.producer_ppm",
		"consumer-ppm":    "simulation.consumer_ppm",
		"pipelines":       "simulation.pipelines",
		"peer-correction": "simulation.peer_correction",
		"allowance":       "jitter.allowance",
		"side":            "jitter.side",
		"metrics":         "metrics.enabled",
		"listen":          "metrics.listen",
	}
	for name, key := range keys {
		if err := viper.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}

	return nil
}

func run(ctx context.Context, out io.Writer, settings *conf.Settings, clipPath string) error {
	cfg, err := simulate.ConfigFromSettings(settings)
	if err != nil {
		return err
	}
	cfg.ClipPath = clipPath

	if !settings.Metrics.Enabled {
		sum, err := simulate.Run(ctx, cfg)
		if err != nil {
			return err
		}
		return printSummary(out, sum)
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return err
	}
	cfg.RingRecorder = m.RingBuffer
	cfg.DriftRecorder = m.Drift
	endpoint, err := observability.NewEndpoint(settings.Metrics.Listen, m)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, stopServing := context.WithCancel(gctx)
	defer stopServing()

	g.Go(func() error {
		return endpoint.Run(serveCtx)
	})

	var sum *simulate.Summary
	g.Go(func() error {
		defer stopServing()
		var err error
		sum, err = simulate.Run(gctx, cfg)
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	return printSummary(out, sum)
}

func printSummary(out io.Writer, sum *simulate.Summary) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "pipeline\tframes\toverruns\tunderruns\tadjust\tnet us\tdrift us\tfill min\tfill max\ttrim ppm\t")
	for _, p := range sum.Pipelines {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%d\t%.1f\t\n",
			p.Name, p.FramesOut, p.Overruns, p.Underruns, p.Adjustments,
			p.NetAdjustUS, p.DriftUS, p.MinFill, p.MaxFill, p.ProducerTrimPPM)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(out, "\n%d frames over %s: %d overruns, %d underruns, %d adjustments, %d us drift published\n",
		sum.Frames, sum.Elapsed, sum.Overruns, sum.Underruns, sum.Adjustments, sum.DriftUS); err != nil {
		return err
	}
	printResources(out)
	return nil
}
