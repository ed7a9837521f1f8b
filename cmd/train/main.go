// signbridge-train imports landmark datasets and builds classifier artifacts
// for the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/hearme/signbridge/internal/dataset"
	"github.com/hearme/signbridge/internal/gesture"
	"github.com/hearme/signbridge/internal/predict"
)

var logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
	With().
	Timestamp().
	Logger()

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx := context.Background()
	args := os.Args[2:]

	var err error
	switch os.Args[1] {
	case "import-csv":
		err = importCSV(ctx, args)
	case "import-npy":
		err = importNPY(ctx, args)
	case "import-jsonl":
		err = importJSONL(ctx, args)
	case "build":
		err = build(ctx, args)
	case "counts":
		err = counts(ctx, args)
	case "help", "-h", "--help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}
	if err != nil {
		logger.Fatal().Err(err).Str("command", os.Args[1]).Msg("failed")
	}
}

func usage() {
	fmt.Println(`signbridge-train - build sign classifiers from landmark datasets

Usage:
  signbridge-train import-csv   [-db samples.db] <asl_landmarks.csv>
  signbridge-train import-npy   [-db samples.db] [-labels labels.txt] <X_dynamic.npy> <y_dynamic.npy>
  signbridge-train import-jsonl [-db samples.db] <words.jsonl>
  signbridge-train build        [-db samples.db] -mode alphabet|word -out models/x.json [-test 0.2] [-seed 42]
  signbridge-train counts       [-db samples.db] -mode alphabet|word`)
}

// subcommand parses the shared -db flag plus any extra flags.
func subcommand(name string, args []string, minArgs int, extra func(fs *flag.FlagSet)) (*flag.FlagSet, *dataset.Store, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	dbPath := fs.String("db", "samples.db", "sample database")
	if extra != nil {
		extra(fs)
	}
	fs.Parse(args)
	if fs.NArg() < minArgs {
		usage()
		os.Exit(1)
	}

	db, err := dataset.Open(*dbPath)
	if err != nil {
		return nil, nil, err
	}
	return fs, db, nil
}

func importCSV(ctx context.Context, args []string) error {
	fs, db, err := subcommand("import-csv", args, 1, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	f, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer f.Close()

	samples, err := dataset.ReadCSV(f)
	if err != nil {
		return err
	}
	return store(ctx, db, gesture.KindStatic, fs.Arg(0), samples)
}

func importNPY(ctx context.Context, args []string) error {
	var labelsPath *string
	fs, db, err := subcommand("import-npy", args, 2, func(fs *flag.FlagSet) {
		labelsPath = fs.String("labels", "", "labels.txt naming the class indices in y")
	})
	if err != nil {
		return err
	}
	defer db.Close()

	var labels []string
	if *labelsPath != "" {
		if labels, err = gesture.LoadLabels(*labelsPath); err != nil {
			return err
		}
	}

	xf, err := os.Open(fs.Arg(0))
	if err != nil {
		return err
	}
	defer xf.Close()
	yf, err := os.Open(fs.Arg(1))
	if err != nil {
		return err
	}
	defer yf.Close()

	samples, err := dataset.ReadSequencesNPY(xf, yf, labels)
	if err != nil {
		return err
	}
	return store(ctx, db, gesture.KindSequence, fs.Arg(0), samples)
}

func importJSONL(ctx context.Context, args []string) error {
	fs, db, err := subcommand("import-jsonl", args, 1, nil)
	if err != nil {
		return err
	}
	defer db.Close()

	var r io.Reader = os.Stdin
	if fs.Arg(0) != "-" {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	samples, err := dataset.ReadJSONL(r)
	if err != nil {
		return err
	}
	return store(ctx, db, gesture.KindSequence, fs.Arg(0), samples)
}

func store(ctx context.Context, db *dataset.Store, kind gesture.Kind, source string, samples []gesture.Sample) error {
	n, err := db.Add(ctx, kind, filepath.Base(source), samples)
	if err != nil {
		return err
	}
	logger.Info().Str("kind", string(kind)).Str("source", source).Int("samples", n).Msg("imported")
	return nil
}

func kindFor(mode string) (gesture.Kind, error) {
	switch predict.Mode(mode) {
	case predict.ModeAlphabet:
		return gesture.KindStatic, nil
	case predict.ModeWord:
		return gesture.KindSequence, nil
	}
	return "", fmt.Errorf("mode must be alphabet or word, got %q", mode)
}

func build(ctx context.Context, args []string) error {
	var mode, out *string
	var testFraction *float64
	var seed *int64
	_, db, err := subcommand("build", args, 0, func(fs *flag.FlagSet) {
		mode = fs.String("mode", "", "alphabet or word")
		out = fs.String("out", "", "artifact path")
		testFraction = fs.Float64("test", 0.2, "holdout fraction")
		seed = fs.Int64("seed", 42, "split seed")
	})
	if err != nil {
		return err
	}
	defer db.Close()

	kind, err := kindFor(*mode)
	if err != nil {
		return err
	}
	if *out == "" {
		return fmt.Errorf("-out is required")
	}

	samples, err := db.Samples(ctx, kind)
	if err != nil {
		return err
	}
	train, test := gesture.Split(samples, *testFraction, *seed)
	logger.Info().Int("train", len(train)).Int("test", len(test)).Str("mode", *mode).Msg("split samples")

	art, err := gesture.NewTrainer().Train(kind, train)
	if err != nil {
		return err
	}

	if len(test) > 0 {
		c, err := art.Classifier()
		if err != nil {
			return err
		}
		if art.Accuracy, err = gesture.Evaluate(c, art.Labels(), test); err != nil {
			return err
		}
		logger.Info().Float64("accuracy", art.Accuracy).Msg("holdout evaluation")
	}

	if err := art.Save(*out); err != nil {
		return err
	}
	logger.Info().Str("id", art.ID).Str("path", *out).Int("classes", len(art.Classes)).Msg("artifact written")

	if kind == gesture.KindSequence {
		labelsPath := filepath.Join(filepath.Dir(*out), "labels.txt")
		if err := gesture.WriteLabels(labelsPath, art.Labels()); err != nil {
			return err
		}
		logger.Info().Str("path", labelsPath).Msg("labels written")
	}
	return nil
}

func counts(ctx context.Context, args []string) error {
	var mode *string
	_, db, err := subcommand("counts", args, 0, func(fs *flag.FlagSet) {
		mode = fs.String("mode", "alphabet", "alphabet or word")
	})
	if err != nil {
		return err
	}
	defer db.Close()

	kind, err := kindFor(*mode)
	if err != nil {
		return err
	}
	byLabel, err := db.Counts(ctx, kind)
	if err != nil {
		return err
	}

	labels := make([]string, 0, len(byLabel))
	for l := range byLabel {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	for _, l := range labels {
		fmt.Printf("  %-20s %d\n", l, byLabel[l])
	}
	return nil
}
