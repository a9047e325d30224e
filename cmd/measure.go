package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/trena/core/command"
	"github.com/kilianp07/trena/core/sensor"
	"github.com/kilianp07/trena/infra/logger"

	// sensor drivers
	_ "github.com/kilianp07/trena/infra/sensors"
)

var (
	measureCount    int
	measureInterval time.Duration
)

var measureCmd = &cobra.Command{
	Use:   "measure",
	Short: "Take readings from the local sensor without the broker",
	RunE:  runMeasure,
}

func init() {
	measureCmd.Flags().IntVarP(&measureCount, "count", "n", 1, "number of readings")
	measureCmd.Flags().DurationVar(&measureInterval, "interval", 200*time.Millisecond, "delay between readings")
	rootCmd.AddCommand(measureCmd)
}

// Summary describes a series of readings. Statistics cover in-range
// readings only.
type Summary struct {
	Count   int
	InRange int
	Mean    float64
	StdDev  float64
	Min     float64
	Max     float64
}

func summarize(readings []sensor.Reading) Summary {
	s := Summary{Count: len(readings)}
	var mm []float64
	for _, r := range readings {
		if r.InRange() {
			mm = append(mm, float64(r.RangeMilliMeter))
		}
	}
	s.InRange = len(mm)
	if len(mm) == 0 {
		return s
	}
	s.Mean = stat.Mean(mm, nil)
	if len(mm) > 1 {
		s.StdDev = stat.StdDev(mm, nil)
	}
	s.Min = floats.Min(mm)
	s.Max = floats.Max(mm)
	return s
}

func runMeasure(cmd *cobra.Command, args []string) error {
	if measureCount < 1 {
		return fmt.Errorf("count must be at least 1")
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.Logging); err != nil {
		return err
	}
	defer logger.Close()

	r, err := sensor.New(cfg.Sensor)
	if err != nil {
		return err
	}
	defer r.Close()

	readings, err := measureSeries(ctx, r, measureCount, measureInterval, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	if len(readings) > 1 {
		printSummary(cmd.OutOrStdout(), summarize(readings))
	}
	return nil
}

func measureSeries(ctx context.Context, r sensor.Ranger, n int, interval time.Duration, out io.Writer) ([]sensor.Reading, error) {
	readings := make([]sensor.Reading, 0, n)
	for i := 0; i < n; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				return readings, ctx.Err()
			case <-time.After(interval):
			}
		}
		rd, err := r.Measure(ctx)
		if err != nil {
			return readings, fmt.Errorf("reading %d: %w", i+1, err)
		}
		readings = append(readings, rd)
		fmt.Fprintf(out, "%d\t%s\t%s\n", i+1, command.Result(rd), rd.Status)
	}
	return readings, nil
}

func printSummary(out io.Writer, s Summary) {
	fmt.Fprintf(out, "readings: %d, in range: %d\n", s.Count, s.InRange)
	if s.InRange == 0 {
		return
	}
	fmt.Fprintf(out, "mean: %.1f mm, stddev: %.1f mm, min: %.0f mm, max: %.0f mm\n", s.Mean, s.StdDev, s.Min, s.Max)
}
