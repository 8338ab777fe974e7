package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

// Version is set at build time via -ldflags
var Version = "dev"

// AppOptions holds the parsed command line options.
type AppOptions struct {
	ConfigFile     string
	ReferenceFile  string
	SubjectFile    string
	OutputFile     string
	GeoJSONOutput  string
	CacheFile      string
	MinScore       float64
	Workers        int
	NoDisambiguate bool
	MatchOnce      bool
	ValidateOnly   bool
	MqttMode       bool
	HttpMode       bool
	HttpPort       int
}

// Runner is the set of modes the CLI dispatches to.
type Runner interface {
	ApplyOptions(opts AppOptions)
	RunValidate() error
	RunMatch() error
	RunService() error
}

func run(args []string, out io.Writer, app Runner) error {
	fs := flag.NewFlagSet("tudoconflate", flag.ContinueOnError)
	fs.SetOutput(out)

	var opts AppOptions
	fs.StringVar(&opts.ConfigFile, "config", "config.yaml", "Path to configuration file")
	fs.StringVar(&opts.ReferenceFile, "reference", "", "Reference GeoJSON file (overrides config)")
	fs.StringVar(&opts.SubjectFile, "subject", "", "Subject GeoJSON file (overrides config)")
	fs.StringVar(&opts.OutputFile, "output", "", "Write the run as JSON to this file (default stdout); with --validate, write the resolved configuration")
	fs.StringVar(&opts.GeoJSONOutput, "geojson", "", "Write matched pairs as GeoJSON link lines to this file")
	fs.StringVar(&opts.CacheFile, "cache-file", "", "Latest run cache file (overrides config)")
	fs.Float64Var(&opts.MinScore, "min-score", -1, "Drop pairs whose score is below this value (overrides config)")
	fs.IntVar(&opts.Workers, "workers", 0, "Parallel per-target scoring workers (overrides config)")
	fs.BoolVar(&opts.NoDisambiguate, "no-disambiguate", false, "Keep every scored candidate instead of a one-to-one assignment")
	fs.BoolVar(&opts.MatchOnce, "match", false, "Match the reference and subject datasets once and exit")
	fs.BoolVar(&opts.ValidateOnly, "validate", false, "Validate the configuration and exit")
	fs.BoolVar(&opts.MqttMode, "mqtt", false, "Run MQTT service mode (dataset ingest and match publication)")
	fs.BoolVar(&opts.HttpMode, "http", false, "Enable HTTP server")
	fs.IntVar(&opts.HttpPort, "http-port", 8080, "HTTP server port")

	if err := fs.Parse(args); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(out, "tudoconflate version: %s\n", Version)
	app.ApplyOptions(opts)

	switch {
	case opts.ValidateOnly:
		return app.RunValidate()
	case opts.MatchOnce:
		return app.RunMatch()
	case opts.MqttMode || opts.HttpMode:
		return app.RunService()
	}

	_, _ = fmt.Fprintln(out, "Use --match to match the reference and subject datasets once")
	_, _ = fmt.Fprintln(out, "Use --validate to check the configuration")
	_, _ = fmt.Fprintln(out, "Use --mqtt to ingest datasets and publish matches over MQTT")
	_, _ = fmt.Fprintln(out, "Use --http to serve /health, /matches, /match and /metrics")
	_, _ = fmt.Fprintln(out, "Use --mqtt --http to run both together")
	return nil
}

func main() {
	if err := run(os.Args[1:], os.Stdout, NewApp()); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		log.Fatal(err)
	}
}
