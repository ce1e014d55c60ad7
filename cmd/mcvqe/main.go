// Command mcvqe runs one MC-VQE calculation from a chromophore data file and
// prints the energy spectrum followed by the run metadata as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/aristath/mcvqe/internal/modules/chromophore"
	"github.com/aristath/mcvqe/internal/modules/mcvqe"
	"github.com/aristath/mcvqe/internal/modules/optimizer"
	"github.com/aristath/mcvqe/internal/modules/runs"
	"github.com/aristath/mcvqe/pkg/logger"
)

type cliOptions struct {
	dataPath     string
	n            int
	cyclic       bool
	states       int
	interference bool
	optimizer    string
	maxIter      int
	gradient     string
	shots        int
	seed         int64
	workers      int
	params       string
	verbosity    int
}

func parseFlags(args []string, stderr io.Writer) (cliOptions, error) {
	var o cliOptions
	fs := flag.NewFlagSet("mcvqe", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.dataPath, "data", "", "chromophore data file (text layout, or .json)")
	fs.IntVar(&o.n, "n", 0, "number of chromophores")
	fs.BoolVar(&o.cyclic, "cyclic", false, "couple the last chromophore to the first")
	fs.IntVar(&o.states, "states", 0, "number of reference states (0 = n+1)")
	fs.BoolVar(&o.interference, "interference", true, "run the interference stage")
	fs.StringVar(&o.optimizer, "optimizer", optimizer.MethodNelderMead, "nelder-mead, bfgs, lbfgs, gradient-descent or grid")
	fs.IntVar(&o.maxIter, "max-iter", 200, "optimizer iteration budget (0 = optimizer default)")
	fs.StringVar(&o.gradient, "gradient", "", "parameter-shift, central or forward")
	fs.IntVar(&o.shots, "shots", 0, "measurement shots per term (0 = exact)")
	fs.Int64Var(&o.seed, "seed", 0, "sampling seed")
	fs.IntVar(&o.workers, "workers", 0, "parallel state evaluations (0 = one per state)")
	fs.StringVar(&o.params, "params", "", "comma-separated entangler parameters; evaluates without optimizing")
	fs.IntVar(&o.verbosity, "v", 1, "log verbosity 0-4")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	return o, nil
}

func parseParams(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields := strings.Split(s, ",")
	x := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("parameter %d: %w", i, err)
		}
		x[i] = v
	}
	return x, nil
}

func run(ctx context.Context, o cliOptions, stdout io.Writer, log zerolog.Logger) error {
	sites, err := chromophore.LoadFile(o.dataPath, o.n)
	if err != nil {
		return err
	}
	x, err := parseParams(o.params)
	if err != nil {
		return fmt.Errorf("%w: %w", mcvqe.ErrInvalidOptions, err)
	}

	opts := mcvqe.DefaultOptions()
	opts.NChromophores = o.n
	opts.Sites = sites
	opts.Cyclic = o.cyclic
	opts.NStates = o.states
	opts.Interference = o.interference
	opts.Verbosity = o.verbosity
	opts.Workers = o.workers

	deps, err := runs.BuildDependencies(runs.Settings{
		Optimizer:     o.optimizer,
		MaxIterations: o.maxIter,
		Gradient:      o.gradient,
		Shots:         o.shots,
		Seed:          o.seed,
	}, nil)
	if err != nil {
		return err
	}

	solver, err := mcvqe.New(opts, deps, log)
	if err != nil {
		return err
	}

	var result *mcvqe.Result
	if x != nil {
		result, err = solver.Evaluate(ctx, x)
	} else {
		result, err = solver.Run(ctx)
	}
	if err != nil {
		return err
	}

	if len(result.Spectrum) > 0 {
		fmt.Fprintln(stdout, result.SpectrumText())
	}
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(result.Metadata())
}

func main() {
	o, err := parseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		os.Exit(2)
	}

	log := logger.New(logger.Config{
		Level:  "trace",
		Pretty: true,
		Output: os.Stderr,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, os.Stdout, log); err != nil {
		log.Error().Err(err).Msg("MC-VQE failed")
		os.Exit(1)
	}
}
