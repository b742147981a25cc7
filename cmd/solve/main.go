// Command solve reads a problem definition and prints the solution as JSON.
//
//	solve -in problem.json -iterations 1000 -seed 7
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
	"time"

	"github.com/rs/zerolog/log"

	"fleetopt/internal/logging"
	"fleetopt/internal/model"
	"fleetopt/internal/schema"
	"fleetopt/internal/solver"
)

func main() {
	in := flag.String("in", "-", "problem definition file, - for stdin")
	iterations := flag.Int("iterations", 0, "search iterations (0 = default)")
	seed := flag.Int64("seed", 0, "random seed (0 = 1)")
	budget := flag.Duration("time-budget", 0, "stop searching after this long (0 = iterations only)")
	costModel := flag.String("cost-model", "euclidean", "euclidean or haversine")
	speed := flag.Float64("speed-kph", 50, "travel speed for the haversine model")
	showMetrics := flag.Bool("metrics", false, "print search metrics to stderr")
	logLevel := flag.String("log-level", "warn", "log level")
	flag.Parse()

	if err := logging.Setup(*logLevel, "console"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	os.Exit(run(*in, *iterations, *seed, *budget, *costModel, *speed, *showMetrics))
}

func run(in string, iterations int, seed int64, budget time.Duration, costModel string, speed float64, showMetrics bool) int {
	data, err := readInput(in)
	if err != nil {
		log.Error().Err(err).Msg("cannot read problem")
		return 2
	}
	cfg := solver.DefaultConfig()
	cfg.CostModel = costModel
	cfg.SpeedKph = speed
	sv, err := solver.New(cfg)
	if err != nil {
		log.Error().Err(err).Msg("cannot create solver")
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	req := model.SolveRequest{Problem: data, Options: &model.SolveOptions{
		MaxIterations: iterations,
		Seed:          seed,
		TimeBudgetMs:  int(budget.Milliseconds()),
	}}
	res, err := sv.Run(ctx, "cli", req, nil)
	if err != nil {
		var verr *schema.ValidationError
		if errors.As(err, &verr) {
			enc := json.NewEncoder(os.Stderr)
			enc.SetIndent("", "  ")
			_ = enc.Encode(verr)
			return 1
		}
		log.Error().Err(err).Msg("solve failed")
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res.Response); err != nil {
		log.Error().Err(err).Msg("cannot write solution")
		return 1
	}
	if showMetrics {
		enc = json.NewEncoder(os.Stderr)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res.Metrics)
	}
	return 0
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
