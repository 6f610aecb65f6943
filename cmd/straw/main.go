/*
   Copyright Mycophonic.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Command straw converts between WAVE files and straw streams.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/mycophonic/saprobe-straw"
	"github.com/mycophonic/saprobe-straw/internal/wav"
)

//nolint:gochecknoglobals
var version = "dev"

const envPrefix = "STRAW_"

var errUsage = errors.New("usage")

// inputList collects repeated -i flags.
type inputList []string

func (l *inputList) String() string { return strings.Join(*l, ",") }

func (l *inputList) Set(value string) error {
	*l = append(*l, value)

	return nil
}

type cliConfig struct {
	inputs      inputList
	output      string
	decode      bool
	verbose     bool
	version     bool
	envFile     string
	metricsFile string
	workers     int

	encoder     straw.EncoderConfig
	fixedBlocks bool
	staticRice  bool
	noMidSide   bool
	corrections string
}

func newFlagSet(cfg *cliConfig, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet("straw", flag.ContinueOnError)
	fs.SetOutput(stderr)

	enc := &cfg.encoder

	fs.Var(&cfg.inputs, "i", "Input file; repeat to merge several WAVE files into one multi-channel stream")
	fs.StringVar(&cfg.output, "o", "", "Output file (defaults to the input name with .straw or .wav)")
	fs.BoolVar(&cfg.decode, "d", false, "Decode a straw stream to WAVE")
	fs.BoolVar(&cfg.verbose, "v", false, "Verbose logging and statistics")
	fs.BoolVar(&cfg.version, "version", false, "Display version information")
	fs.StringVar(&cfg.envFile, "env-file", "", "Read STRAW_* defaults from a dotenv file")
	fs.StringVar(&cfg.metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")
	fs.IntVar(&cfg.workers, "workers", 0, "Frames processed concurrently (0 selects GOMAXPROCS)")

	fs.IntVar(&enc.Order, "order", enc.Order, "LPC order (1-32)")
	fs.IntVar(&enc.Precision, "precision", enc.Precision, "Quantized coefficient precision in bits (2-16)")
	fs.BoolVar(&enc.CommonLPC, "common-lpc", enc.CommonLPC, "Share one coefficient set across the channels of a frame")
	fs.BoolVar(&enc.CheckStability, "check-stability", enc.CheckStability, "Store unstable predictors verbatim")
	fs.BoolVar(&cfg.noMidSide, "no-mid-side", false, "Disable mid-side coding of channel pairs")
	fs.BoolVar(&cfg.fixedBlocks, "fixed-blocks", false, "Use fixed size blocks instead of energy segmentation")
	fs.IntVar(&enc.BlockSize, "block-size", enc.BlockSize, "Block size with -fixed-blocks")
	fs.IntVar(&enc.Blocking.MinBlock, "min-block", enc.Blocking.MinBlock, "Smallest dynamic block")
	fs.IntVar(&enc.Blocking.MaxBlock, "max-block", enc.Blocking.MaxBlock, "Largest dynamic block")
	fs.Float64Var(&enc.Blocking.Threshold, "threshold", enc.Blocking.Threshold, "Energy change that starts a new block")
	fs.IntVar(&enc.Blocking.Resolution, "resolution", enc.Blocking.Resolution, "log2 of the energy analysis window")
	fs.IntVar(&enc.Responsiveness, "responsiveness", enc.Responsiveness, "Rice parameter adaptation period")
	fs.BoolVar(&cfg.staticRice, "static-rice", false, "Keep the Rice parameter fixed per subframe")
	fs.StringVar(&cfg.corrections, "corrections", "none", "Channel corrections: none, all, or a list of shift,bias,gain")
	fs.IntVar(&enc.MaxLag, "max-lag", enc.MaxLag, "Largest inter-channel shift searched")

	return fs
}

// applyEnv fills flags left unset on the command line from STRAW_* variables.
// The process environment wins over the dotenv file.
func applyEnv(fs *flag.FlagSet, envFile string) error {
	fileEnv := map[string]string{}

	if envFile != "" {
		var err error
		if fileEnv, err = godotenv.Read(envFile); err != nil {
			return fmt.Errorf("reading %s: %w", envFile, err)
		}
	}

	explicit := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	var errs []error

	fs.VisitAll(func(f *flag.Flag) {
		if explicit[f.Name] || f.Name == "i" || f.Name == "env-file" {
			return
		}

		key := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))

		value, ok := os.LookupEnv(key)
		if !ok {
			value, ok = fileEnv[key]
		}

		if ok {
			if err := fs.Set(f.Name, value); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
			}
		}
	})

	return errors.Join(errs...)
}

func parseArgs(args []string, stderr io.Writer) (*cliConfig, error) {
	cfg := &cliConfig{encoder: straw.DefaultEncoderConfig()}

	fs := newFlagSet(cfg, stderr)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := applyEnv(fs, cfg.envFile); err != nil {
		return nil, err
	}

	if cfg.version {
		return cfg, nil
	}

	cfg.inputs = append(cfg.inputs, fs.Args()...)

	if len(cfg.inputs) == 0 {
		fs.Usage()

		return nil, fmt.Errorf("%w: at least one input is required", errUsage)
	}

	if cfg.decode && len(cfg.inputs) > 1 {
		return nil, fmt.Errorf("%w: decoding takes a single input", errUsage)
	}

	corrections, err := straw.ParseCorrections(cfg.corrections)
	if err != nil {
		return nil, err
	}

	cfg.encoder.Corrections = corrections
	cfg.encoder.DynamicBlocks = !cfg.fixedBlocks
	cfg.encoder.MidSide = !cfg.noMidSide

	if cfg.staticRice {
		cfg.encoder.Responsiveness = 0
	}

	if cfg.output == "" {
		ext := ".straw"
		if cfg.decode {
			ext = ".wav"
		}

		in := cfg.inputs[0]
		cfg.output = strings.TrimSuffix(in, filepath.Ext(in)) + ext
	}

	return cfg, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)

	stop()

	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		return err
	}

	if cfg.version {
		_, err := fmt.Fprintf(stdout, "straw version %s\n", version)

		return err
	}

	logger := logrus.New()
	logger.SetOutput(stderr)

	if cfg.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	entry := logger.WithField("run", uuid.NewString())

	registry := prometheus.NewRegistry()

	metrics, err := straw.NewMetrics(registry)
	if err != nil {
		return err
	}

	opts := []straw.Option{
		straw.WithLogger(entry),
		straw.WithMetrics(metrics),
		straw.WithWorkers(cfg.workers),
	}

	var stats straw.Stats

	if cfg.decode {
		stats, err = decodeFile(ctx, cfg, opts)
	} else {
		stats, err = encodeFiles(ctx, cfg, opts)
	}

	if err != nil {
		return err
	}

	if cfg.verbose {
		if err := stats.Print(stdout); err != nil {
			return err
		}
	}

	if cfg.metricsFile != "" {
		if err := prometheus.WriteToTextfile(cfg.metricsFile, registry); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	return nil
}

// readInputs loads every input and stacks their channels in order.
func readInputs(paths []string) (*straw.Buffer, error) {
	var merged *straw.Buffer

	for _, path := range paths {
		buf, err := readWAVE(path)
		if err != nil {
			return nil, err
		}

		if merged == nil {
			merged = buf

			continue
		}

		switch {
		case buf.Format.SampleRate != merged.Format.SampleRate || buf.Format.BitDepth != merged.Format.BitDepth:
			return nil, fmt.Errorf("%s: %d Hz %d-bit does not match %d Hz %d-bit", path,
				buf.Format.SampleRate, buf.Format.BitDepth, merged.Format.SampleRate, merged.Format.BitDepth)
		case buf.Samples() != merged.Samples():
			return nil, fmt.Errorf("%s: %d samples per channel, expected %d", path, buf.Samples(), merged.Samples())
		}

		merged.Channels = append(merged.Channels, buf.Channels...)
		merged.Format.Channels += buf.Format.Channels
	}

	return merged, nil
}

func readWAVE(path string) (*straw.Buffer, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	pcm, format, err := wav.Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	buf, err := straw.NewBufferFromPCM(pcm, straw.PCMFormat{
		SampleRate: format.SampleRate,
		BitDepth:   straw.BitDepth(format.BitsPerSample),
		Channels:   uint(format.Channels),
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return buf, nil
}

// createOutput opens path for writing and returns a commit function that
// flushes and closes it. The file is removed when commit is never reached.
func createOutput(path string) (*bufio.Writer, func(error) error, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}

	writer := bufio.NewWriter(file)

	finish := func(err error) error {
		if err == nil {
			err = writer.Flush()
		}

		if closeErr := file.Close(); err == nil {
			err = closeErr
		}

		if err != nil {
			_ = os.Remove(path)
		}

		return err
	}

	return writer, finish, nil
}

func encodeFiles(ctx context.Context, cfg *cliConfig, opts []straw.Option) (straw.Stats, error) {
	buf, err := readInputs(cfg.inputs)
	if err != nil {
		return straw.Stats{}, err
	}

	encoder, err := straw.NewEncoder(cfg.encoder, opts...)
	if err != nil {
		return straw.Stats{}, err
	}

	writer, finish, err := createOutput(cfg.output)
	if err != nil {
		return straw.Stats{}, err
	}

	stats, err := encoder.Encode(ctx, buf, writer)

	return stats, finish(err)
}

func decodeFile(ctx context.Context, cfg *cliConfig, opts []straw.Option) (straw.Stats, error) {
	file, err := os.Open(cfg.inputs[0])
	if err != nil {
		return straw.Stats{}, err
	}
	defer file.Close()

	buf, stats, err := straw.NewDecoder(opts...).Decode(ctx, bufio.NewReader(file))
	if err != nil {
		return stats, fmt.Errorf("%s: %w", cfg.inputs[0], err)
	}

	writer, finish, err := createOutput(cfg.output)
	if err != nil {
		return stats, err
	}

	err = wav.Write(writer, buf.PCM(), wav.Format{
		SampleRate:    buf.Format.SampleRate,
		BitsPerSample: int(buf.Format.BitDepth),
		Channels:      int(buf.Format.Channels),
	})

	return stats, finish(err)
}
