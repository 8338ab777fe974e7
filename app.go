package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/kwv/tudoconflate/conflate"
)

// App encapsulates the application state and dependencies
type App struct {
	Config     *conflate.Config
	Store      *conflate.SessionStore
	MQTTClient *conflate.MQTTClient
	Publisher  *conflate.Publisher

	// CLI Flags (effectively dependencies)
	ConfigFile     string
	ReferenceFile  string
	SubjectFile    string
	OutputFile     string
	GeoJSONOutput  string
	CacheFile      string
	MinScore       float64
	Workers        int
	NoDisambiguate bool
	MqttMode       bool
	HttpMode       bool
	HttpPort       int

	Stdout io.Writer

	runMu sync.Mutex // serializes matching runs
}

// NewApp creates a new App instance
func NewApp() *App {
	return &App{
		Store:    conflate.NewSessionStore(),
		MinScore: -1,
		Stdout:   os.Stdout,
	}
}

// ApplyOptions applies CLI options to the App instance
func (a *App) ApplyOptions(opts AppOptions) {
	a.ConfigFile = opts.ConfigFile
	a.ReferenceFile = opts.ReferenceFile
	a.SubjectFile = opts.SubjectFile
	a.OutputFile = opts.OutputFile
	a.GeoJSONOutput = opts.GeoJSONOutput
	a.CacheFile = opts.CacheFile
	a.MinScore = opts.MinScore
	a.Workers = opts.Workers
	a.NoDisambiguate = opts.NoDisambiguate
	a.MqttMode = opts.MqttMode
	a.HttpMode = opts.HttpMode
	a.HttpPort = opts.HttpPort
}

// loadConfig reads the config file and applies CLI overrides. A missing file
// at the default path falls back to the default matching pipeline.
func (a *App) loadConfig() (*conflate.Config, error) {
	var config *conflate.Config
	if _, err := os.Stat(a.ConfigFile); err == nil || a.ConfigFile != "config.yaml" {
		config, err = conflate.LoadConfig(a.ConfigFile)
		if err != nil {
			return nil, err
		}
		log.Printf("Loaded config from %s", a.ConfigFile)
	} else {
		config = &conflate.Config{Matching: conflate.DefaultMatchingConfig()}
		log.Printf("No %s found, using default matching pipeline", a.ConfigFile)
	}

	if a.ReferenceFile != "" {
		config.Reference.Path = a.ReferenceFile
		config.Reference.URL = ""
	}
	if a.SubjectFile != "" {
		config.Subject.Path = a.SubjectFile
		config.Subject.URL = ""
	}
	if a.CacheFile != "" {
		config.CacheFile = a.CacheFile
	}
	if a.MinScore >= 0 {
		config.Matching.MinScore = a.MinScore
	}
	if a.Workers > 0 {
		config.Matching.Workers = a.Workers
	}
	if a.NoDisambiguate {
		off := false
		config.Matching.Disambiguate = &off
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	a.Config = config
	return config, nil
}

// RunValidate loads the configuration and prints the matching pipeline. With
// an output file it also writes the resolved configuration, defaults and
// flag overrides included.
func (a *App) RunValidate() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	if _, err := conflate.BuildFinder(config.Matching); err != nil {
		return err
	}

	m := config.Matching
	_, _ = fmt.Fprintf(a.Stdout, "Configuration OK\n")
	_, _ = fmt.Fprintf(a.Stdout, "  buffer=%.2f workers=%d disambiguate=%v minScore=%.2f\n",
		m.Buffer, m.Workers, m.ShouldDisambiguate(), m.MinScore)
	for _, mc := range m.Matchers {
		_, _ = fmt.Fprintf(a.Stdout, "  - %s weight=%.2f", mc.Type, mc.Weight)
		if mc.MaxDistance > 0 {
			_, _ = fmt.Fprintf(a.Stdout, " maxDistance=%.2f", mc.MaxDistance)
		}
		if mc.Attribute != "" {
			_, _ = fmt.Fprintf(a.Stdout, " attribute=%s", mc.Attribute)
		}
		if mc.Align {
			_, _ = fmt.Fprintf(a.Stdout, " aligned")
		}
		_, _ = fmt.Fprintln(a.Stdout)
	}

	if a.OutputFile != "" {
		if err := conflate.SaveConfig(a.OutputFile, config); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Stdout, "Resolved configuration written to %s\n", a.OutputFile)
	}
	return nil
}

// RunMatch loads both datasets, runs matching once and writes the result.
// Ctrl+C cancels the run.
func (a *App) RunMatch() error {
	config, err := a.loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reference, _, err := conflate.LoadDataset(ctx, conflate.RoleReference, config.Reference)
	if err != nil {
		return err
	}
	subject, _, err := conflate.LoadDataset(ctx, conflate.RoleSubject, config.Subject)
	if err != nil {
		return err
	}
	log.Printf("[MATCH] %d reference and %d subject features", reference.Len(), subject.Len())

	run, err := conflate.GenerateMatches(ctx, reference, subject, config.Matching, conflate.NewLogMonitor("[MATCH]"))
	if err != nil {
		return err
	}
	if run.Cancelled {
		return fmt.Errorf("run %s cancelled", run.ID)
	}

	if err := a.writeRun(run); err != nil {
		return err
	}
	if a.GeoJSONOutput != "" {
		data, err := json.MarshalIndent(conflate.PairsToGeoJSON(run.Pairs), "", "  ")
		if err != nil {
			return fmt.Errorf("marshaling pairs GeoJSON: %w", err)
		}
		if err := os.WriteFile(a.GeoJSONOutput, data, 0644); err != nil {
			return fmt.Errorf("writing %s: %w", a.GeoJSONOutput, err)
		}
		log.Printf("Wrote %d pairs to %s", len(run.Pairs), a.GeoJSONOutput)
	}
	return nil
}

func (a *App) writeRun(run *conflate.Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling run: %w", err)
	}
	if a.OutputFile == "" {
		_, err = fmt.Fprintln(a.Stdout, string(data))
		return err
	}
	if err := os.WriteFile(a.OutputFile, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", a.OutputFile, err)
	}
	log.Printf("Wrote run %s to %s", run.ID, a.OutputFile)
	return nil
}

// rematch runs matching on the stored datasets, records the run and
// publishes it when MQTT is enabled. It is a no-op until both datasets are
// present.
func (a *App) rematch(ctx context.Context) (*conflate.Run, error) {
	reference, subject, ok := a.Store.Datasets()
	if !ok {
		return nil, nil
	}

	a.runMu.Lock()
	defer a.runMu.Unlock()

	a.publishStatus(conflate.StatusRunning, "", "")
	run, err := conflate.GenerateMatches(ctx, reference, subject, a.Config.Matching, conflate.NewLogMonitor("[MATCH]"))
	if err != nil {
		a.publishStatus(conflate.StatusFailed, "", err.Error())
		return nil, err
	}
	if run.Cancelled {
		a.publishStatus(conflate.StatusCancelled, run.ID, "")
		return run, nil
	}

	if err := a.Store.SetRun(run); err != nil {
		log.Printf("[STORE] Error saving run %s: %v", run.ID, err)
	}
	if a.Publisher != nil {
		if err := a.Publisher.PublishRun(run); err != nil {
			log.Printf("[MQTT] Error publishing run %s: %v", run.ID, err)
		}
	}
	a.publishStatus(conflate.StatusDone, run.ID, "")
	return run, nil
}

func (a *App) publishStatus(state, runID, message string) {
	if a.Publisher == nil {
		return
	}
	if err := a.Publisher.PublishStatus(state, runID, message); err != nil {
		log.Printf("[MQTT] Error publishing status: %v", err)
	}
}

// handleDataset is the MQTT dataset callback: store the dataset and rerun
// matching once both sides are known.
func (a *App) handleDataset(ctx context.Context) conflate.DatasetHandler {
	return func(role string, fc *conflate.FeatureCollection, convErrs []conflate.ConversionError, err error) {
		if err != nil {
			log.Printf("[MQTT] Ignoring %s dataset: %v", role, err)
			a.publishStatus(conflate.StatusFailed, "", fmt.Sprintf("%s dataset: %v", role, err))
			return
		}
		for _, ce := range convErrs {
			log.Printf("[MQTT] Skipping %s %v", role, ce)
		}
		a.Store.SetDataset(role, fc)
		log.Printf("[MQTT] Stored %s dataset (%d features)", role, fc.Len())

		if _, _, ok := a.Store.Datasets(); !ok {
			a.publishStatus(conflate.StatusWaiting, "", "waiting for both datasets")
			return
		}
		if _, err := a.rematch(ctx); err != nil {
			log.Printf("[MATCH] Run failed: %v", err)
		}
	}
}

// RunService loads any statically configured datasets, then serves HTTP
// and/or MQTT until interrupted.
func (a *App) RunService() error {
	fmt.Println("Starting tudoconflate service...")

	config, err := a.loadConfig()
	if err != nil {
		return err
	}
	if config.CacheFile != "" {
		a.Store = conflate.NewSessionStoreWithCache(config.CacheFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.loadInitialDatasets(ctx, config)

	if a.MqttMode {
		mqttClient, err := conflate.NewMQTTClient(config, a.handleDataset(ctx))
		if err != nil {
			return fmt.Errorf("initializing MQTT: %w", err)
		}
		if mqttClient == nil {
			return fmt.Errorf("MQTT broker not configured")
		}
		a.MQTTClient = mqttClient
		a.Publisher = conflate.NewPublisher(mqttClient.Client(), mqttClient.PublishPrefix())
		mqttClient.Start(ctx.Done())
		fmt.Println("MQTT dataset ingest and publisher initialized")
	}

	if _, err := a.rematch(ctx); err != nil {
		log.Printf("[MATCH] Initial run failed: %v", err)
	}

	var srv *http.Server
	if a.HttpMode {
		srv = &http.Server{
			Addr:              fmt.Sprintf("0.0.0.0:%d", a.HttpPort),
			Handler:           newHTTPServer(a.Store, config.Matching),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Printf("[HTTP] Starting server on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("[HTTP] Server error: %v", err)
			}
		}()
	}

	fmt.Println("\nService Running")
	fmt.Println("===============")
	if a.MqttMode {
		fmt.Println("\nMQTT:")
		fmt.Println("  Subscribed topics:")
		if config.Reference.Topic != "" {
			fmt.Printf("    - %s (reference)\n", config.Reference.Topic)
		}
		if config.Subject.Topic != "" {
			fmt.Printf("    - %s (subject)\n", config.Subject.Topic)
		}
		fmt.Printf("  Publishing to: %s (retained), %s\n", a.Publisher.MatchesTopic(), a.Publisher.StatusTopic())
	}
	if a.HttpMode {
		fmt.Printf("\nHTTP endpoints (port %d):\n", a.HttpPort)
		fmt.Println("  GET  /health   - Health check")
		fmt.Println("  GET  /matches  - Latest run")
		fmt.Println("  POST /match    - Match a posted reference/subject pair")
		fmt.Println("  GET  /metrics  - Prometheus metrics")
	}
	fmt.Println("\nPress Ctrl+C to stop")

	<-ctx.Done()

	fmt.Println("\nShutting down service...")
	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[HTTP] Shutdown error: %v", err)
		}
	}
	if a.MQTTClient != nil {
		a.MQTTClient.Disconnect()
	}
	fmt.Println("Service stopped")
	return nil
}

// loadInitialDatasets reads datasets configured with a path or URL. Failures
// are logged; MQTT may still deliver the dataset later.
func (a *App) loadInitialDatasets(ctx context.Context, config *conflate.Config) {
	for _, ds := range []struct {
		role string
		cfg  conflate.DatasetConfig
	}{
		{conflate.RoleReference, config.Reference},
		{conflate.RoleSubject, config.Subject},
	} {
		if ds.cfg.Path == "" && ds.cfg.URL == "" {
			continue
		}
		fc, _, err := conflate.LoadDataset(ctx, ds.role, ds.cfg)
		if err != nil {
			log.Printf("Warning: %v", err)
			continue
		}
		a.Store.SetDataset(ds.role, fc)
		log.Printf("Loaded %s dataset (%d features)", ds.role, fc.Len())
	}
}
