package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"atlastransform/internal/apperr"
	"atlastransform/internal/buildinfo"
	"atlastransform/pkg/atlas"
	"atlastransform/pkg/config"
	"atlastransform/pkg/logging"
	"atlastransform/pkg/storage"
	"atlastransform/pkg/table"
	"atlastransform/pkg/transform"
)

// Exit statuses
const (
	exitFailure = 1
	exitConfig  = 2
)

func main() {
	// Parse command line arguments
	configPath := flag.String("config", "atlastransform.yaml", "Configuration file (.yaml or .toml); defaults are used if it does not exist")
	atlasName := flag.String("atlas", "", "Atlas to project onto: shen, craddock or power")
	resolution := flag.Int("resolution", 1, "Shen atlas resolution in mm (1 or 2)")
	clusters := flag.Int("clusters", 200, "Craddock atlas granularity")
	similarity := flag.String("similarity", string(atlas.Temporal), "Craddock similarity measure: t, s or random")
	algorithm := flag.String("algorithm", string(atlas.TwoLevel), "Craddock clustering algorithm: 2level, mean or none")
	outDir := flag.String("out", "", "Output directory (overrides output.dir)")
	strategy := flag.String("strategy", "", "Region reduction: mean or errprop (overrides processing.strategy)")
	workers := flag.Int("workers", 0, "Number of images processed at once (overrides processing.numWorkers)")
	dataDir := flag.String("data-dir", "", "Atlas data directory or gs:// prefix (overrides atlas.dataDir)")
	seriesSuffix := flag.String("series-suffix", "", "Series marker for 4D input: ts or _ts (overrides output.seriesSuffix)")
	writeResampled := flag.Bool("write-resampled", false, "Also write the atlas resampled to each image grid")
	verbose := flag.Bool("v", false, "Verbose logging")
	showVersion := flag.Bool("version", false, "Print version information and exit")
	writeConfig := flag.String("write-config", "", "Write a default configuration file to this path and exit")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s -atlas NAME [flags] IMAGE [IMAGE...]\n\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if *showVersion {
		fmt.Println(buildinfo.Get())
		return
	}

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write configuration: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	images := flag.Args()
	if *atlasName == "" || len(images) == 0 {
		flag.Usage()
		os.Exit(exitConfig)
	}

	spec, cfg, err := setup(*configPath, *atlasName, *resolution, *clusters, *similarity, *algorithm)
	if err != nil {
		fatal(err)
	}

	// Flags given explicitly win over the configuration file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "out":
			cfg.Output.Dir = *outDir
		case "strategy":
			cfg.Processing.Strategy = *strategy
		case "workers":
			cfg.Processing.NumWorkers = *workers
		case "data-dir":
			cfg.Atlas.DataDir = *dataDir
		case "series-suffix":
			cfg.Output.SeriesSuffix = *seriesSuffix
		case "write-resampled":
			cfg.Output.WriteResampled = *writeResampled
		case "v":
			cfg.Output.Verbose = *verbose
		}
	})
	if err := cfg.Validate(); err != nil {
		fatal(err)
	}

	logger := logging.New(cfg.Log, logging.ModeFor(cfg.Output.Verbose), os.Stderr)
	defer logger.Shutdown()

	store := &storage.Store{}
	defer store.Close()

	logger.Infof("Projecting %d image(s) onto %v using %d worker(s)", len(images), spec, cfg.Processing.NumWorkers)
	startTime := time.Now()

	failed := run(context.Background(), cfg, spec, images, store, logger)

	logger.Infof("Processed %d image(s) in %.2f seconds, %d failed", len(images), time.Since(startTime).Seconds(), failed)
	if failed > 0 {
		logger.Shutdown()
		store.Close()
		os.Exit(exitFailure)
	}
}

// setup validates the atlas selection and then loads the configuration file,
// so atlas mistakes are reported before any file is read
func setup(configPath, name string, resolution, clusters int, similarity, algorithm string) (atlas.Spec, *config.Config, error) {
	spec, err := buildSpec(name, resolution, clusters, similarity, algorithm)
	if err != nil {
		return atlas.Spec{}, nil, err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return atlas.Spec{}, nil, err
	}
	return spec, cfg, nil
}

// buildSpec turns the atlas flags into a spec, keeping only the parameters
// of the selected family
func buildSpec(name string, resolution, clusters int, similarity, algorithm string) (atlas.Spec, error) {
	n, err := atlas.ParseName(name)
	if err != nil {
		return atlas.Spec{}, err
	}

	var spec atlas.Spec
	switch n {
	case atlas.Shen:
		spec = atlas.ShenSpec(resolution)
	case atlas.Craddock:
		spec = atlas.CraddockSpec(clusters, atlas.Similarity(similarity), atlas.Algorithm(algorithm))
	default:
		spec = atlas.PowerSpec()
	}
	return spec, spec.Validate()
}

// run processes every image on a bounded worker pool. Images are independent:
// a failure is logged and counted without stopping the others.
func run(ctx context.Context, cfg *config.Config, spec atlas.Spec, images []string, store storage.Opener, logger logging.Logger) int {
	atlases := atlas.NewCache(atlas.NewRepository(cfg.Atlas.DataDir, store))

	results := make([]error, len(images))
	var g errgroup.Group
	g.SetLimit(cfg.Processing.NumWorkers)

	for i, image := range images {
		g.Go(func() error {
			res, err := transform.Process(ctx, transform.Params{
				ImagePath:         image,
				Atlas:             spec,
				OutputDir:         cfg.Output.Dir,
				Strategy:          cfg.Processing.Strategy,
				IncludeBackground: cfg.Processing.IncludeBackground,
				SphereRadius:      cfg.Atlas.SphereRadius,
				SmoothingFWHM:     cfg.Atlas.SmoothingFWHM,
				SeriesStyle:       table.SeriesStyle(cfg.Output.SeriesSuffix),
				WriteResampled:    cfg.Output.WriteResampled,
				Atlases:           atlases,
				Store:             store,
				Logger:            logger,
			})
			if err != nil {
				logger.Errorf("%s: %v", image, err)
				results[i] = err
				return nil
			}
			fmt.Println(res.OutputPath)
			return nil
		})
	}
	g.Wait()

	failed := 0
	for _, err := range results {
		if err != nil {
			failed++
		}
	}
	return failed
}

func fatal(err error) {
	code := exitFailure
	if apperr.IsKind(err, apperr.Config) {
		code = exitConfig
	}
	log.Printf("atlastransform: %v", err)
	os.Exit(code)
}
