package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math/rand/v2"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/nerrad567/sleepgrind/internal/actions"
	"github.com/nerrad567/sleepgrind/internal/api"
	"github.com/nerrad567/sleepgrind/internal/display"
	"github.com/nerrad567/sleepgrind/internal/display/browser"
	"github.com/nerrad567/sleepgrind/internal/display/replay"
	"github.com/nerrad567/sleepgrind/internal/engine"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/config"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/database"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/influxdb"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/logging"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/mqtt"
	"github.com/nerrad567/sleepgrind/internal/infrastructure/redislock"
	"github.com/nerrad567/sleepgrind/internal/motion"
	"github.com/nerrad567/sleepgrind/internal/script"
	"github.com/nerrad567/sleepgrind/internal/telemetry"
	"github.com/nerrad567/sleepgrind/internal/vision"
)

// errRemoteStop is the cancellation cause when a stop command arrives over MQTT.
var errRemoteStop = errors.New("stop requested over mqtt")

// errLeaseLost is the cancellation cause when the display lock is lost mid-run.
var errLeaseLost = errors.New("display lock lost")

// influxFlushTimeout bounds the wait for buffered points after a run.
const influxFlushTimeout = 10 * time.Second

// pressRecorder is implemented by the recording pointers used for dry runs.
type pressRecorder interface {
	Presses() []image.Point
}

type runOptions struct {
	file   string
	name   string
	seed   uint64
	dryRun bool
}

func newRunCmd(flags *globalFlags) *cobra.Command {
	opts := runOptions{}

	cmd := &cobra.Command{
		Use:   "run [file]",
		Short: "Execute a script",
		Long: "Executes a script file, or a catalog script with --name, against the configured display. " +
			"The process exits non-zero when the run aborts.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.file = args[0]
			}
			if (opts.file == "") == (opts.name == "") {
				return errors.New("give either a script file or --name")
			}
			cfg, log, err := flags.setup()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("seed") {
				cfg.Engine.Seed = opts.seed
			}
			return runScript(cmd.Context(), cfg, log, opts, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "run a script from the catalog")
	cmd.Flags().Uint64Var(&opts.seed, "seed", 0, "seed for motion randomness (overrides engine.seed)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "capture and match for real but record pointer input instead of sending it")
	return cmd
}

// runScript wires every component for one run and executes it.
//
// Optional components (MQTT, InfluxDB, the status API, the display lock)
// are started only when enabled in cfg. Deferred closes run in reverse
// order of startup.
func runScript(ctx context.Context, cfg *config.Config, log *logging.Logger, opts runOptions, out io.Writer) error {
	runCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	// Script catalog: needed to resolve --name and to serve /api/v1/scripts.
	var repo script.Repository
	if opts.name != "" || cfg.API.Enabled {
		db, sqliteRepo, err := openCatalog(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer closeDatabase(db, log)
		repo = sqliteRepo
	}

	doc, err := loadDocument(ctx, repo, opts)
	if err != nil {
		return err
	}
	log = log.With("script", doc.Name)
	for _, issue := range script.Lint(doc.Graph) {
		log.Warn("script lint", "node", issue.NodeID, "issue", issue.Message)
	}

	templates := vision.OpenTemplateStore(cfg.Engine.AssetsDir, cfg.Engine.AssetExt)
	if err := templates.Preflight(doc.Graph); err != nil {
		return err
	}

	// Display lock is held for the whole run, including display startup.
	if cfg.Lock.Enabled {
		lease, release, err := acquireDisplay(ctx, cfg.Lock, log)
		if err != nil {
			return err
		}
		defer release()
		go func() {
			select {
			case <-lease.Lost():
				log.Error("display lock lost, stopping run")
				cancel(errLeaseLost)
			case <-runCtx.Done():
			}
		}()
	}

	screen, pointer, closeDisplay, err := openDisplay(ctx, cfg, log, opts.dryRun)
	if err != nil {
		return err
	}
	defer closeDisplay()

	seed := cfg.Engine.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	log.Info("motion seeded", "seed", seed)
	synth := motion.NewSynthesizer(cfg.Motion, rand.New(rand.NewPCG(seed, seed>>1|1)))

	registry := actions.NewRegistry()
	if err := actions.RegisterBuiltins(registry, actions.Gestures{
		Screen:  screen,
		Pointer: pointer,
		Motion:  synth,
		Scroll:  motion.ParamsFrom(cfg.Motion.Scroll),
	}); err != nil {
		return fmt.Errorf("registering actions: %w", err)
	}

	tracker := engine.NewTracker()
	observers := []engine.Observer{tracker}
	checks := map[string]api.HealthCheck{}

	// Prometheus metrics, exposed by the status API.
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(promRegistry)
	observers = append(observers, metrics)

	// MQTT: run events out, configured actions, and the remote stop command in.
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT connection lost", "error", err)
			metrics.ConnectionLost("mqtt")
		})
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)

		topics := mqttClient.Topics()
		observers = append(observers, telemetry.NewEventPublisher(mqttClient, topics, log))
		checks["mqtt"] = mqttClient.HealthCheck

		stopTopic := topics.CommandStop()
		stopSub, err := mqttClient.Subscribe(stopTopic, mqttClient.QoS(), func(string, []byte) error {
			log.Warn("stop command received", "topic", stopTopic)
			cancel(errRemoteStop)
			return nil
		})
		if err != nil {
			return fmt.Errorf("subscribing to %s: %w", stopTopic, err)
		}
		// Runs before the client closes: a stop sent after the run has
		// nothing to stop.
		defer func() {
			if err := stopSub.Cancel(); err != nil {
				log.Warn("error unsubscribing from stop topic", "error", err)
			}
		}()
	}

	var pub actions.Publisher
	var qos byte
	if mqttClient != nil {
		pub, qos = mqttClient, mqttClient.QoS()
	}
	if err := actions.RegisterConfigured(registry, cfg.Actions, pub, qos); err != nil {
		return fmt.Errorf("registering actions: %w", err)
	}

	// InfluxDB: one point per step and per run.
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		observers = append(observers, telemetry.NewPointRecorder(influxClient))
		checks["influxdb"] = influxClient.HealthCheck
	}

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Runs:     tracker,
			Scripts:  repo,
			Gatherer: promRegistry,
			Checks:   checks,
			Version:  version,
		})
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := srv.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		observers = append(observers, srv.Hub())
		log.Info("status API listening", "address", srv.Addr())
	}

	finder := vision.NewFinder(templates, cfg.Engine.Confidence, cfg.Engine.MatchWorkers)
	finder.SetLogger(log)

	eng := engine.New(engine.Deps{
		Screen:    screen,
		Pointer:   pointer,
		Finder:    finder,
		Actions:   registry,
		Motion:    synth,
		Logger:    log,
		Observers: observers,
	}, engine.Options{
		LoopLimit:         cfg.Engine.LoopLimit,
		DeterministicTies: cfg.Engine.DeterministicTies,
		ClickParams:       motion.ParamsFrom(cfg.Motion.Click),
	})

	state, runErr := eng.Run(runCtx, doc.Name, doc.Graph)
	if cause := context.Cause(runCtx); runErr != nil && cause != nil && !errors.Is(cause, context.Canceled) {
		runErr = fmt.Errorf("%w (%w)", runErr, cause)
	}

	// The run point goes out before the summary so a dashboard shows it
	// by the time the operator reads the result.
	if influxClient != nil {
		flushCtx, flushCancel := context.WithTimeout(context.WithoutCancel(ctx), influxFlushTimeout)
		if err := influxClient.Flush(flushCtx); err != nil {
			log.Warn("InfluxDB flush timed out", "error", err)
		}
		flushCancel()
		stats := influxClient.Stats()
		log.Info("InfluxDB points written", "queued", stats.Queued, "failed", stats.Failed)
	}
	printSummary(out, state, runErr)

	if rec, ok := pointer.(pressRecorder); ok && opts.dryRun {
		for i, p := range rec.Presses() {
			fmt.Fprintf(out, "  press %d at (%d,%d)\n", i+1, p.X, p.Y)
		}
	}
	return runErr
}

// loadDocument resolves the script from a file or from the catalog.
func loadDocument(ctx context.Context, repo script.Repository, opts runOptions) (*script.Document, error) {
	if opts.file != "" {
		return loadFile(opts.file)
	}
	return script.LoadNamed(ctx, repo, opts.name)
}

// acquireDisplay takes the Redis display lock. The returned func releases
// the lease and closes the Redis client.
func acquireDisplay(ctx context.Context, cfg config.LockConfig, log *logging.Logger) (*redislock.Lease, func(), error) {
	locker, err := redislock.Connect(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	locker.SetLogger(log)

	token := ulid.Make().String()
	log.Info("waiting for display lock", "key", locker.Key(), "token", token)
	lease, err := locker.Acquire(ctx, token)
	if err != nil {
		locker.Close()
		return nil, nil, fmt.Errorf("acquiring display lock: %w", err)
	}
	log.Info("display lock acquired", "key", locker.Key())

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(releaseCtx); err != nil {
			log.Error("error releasing display lock", "error", err)
		}
		if err := locker.Close(); err != nil {
			log.Error("error closing redis", "error", err)
		}
	}
	return lease, release, nil
}

// openDisplay starts the configured backend. With dryRun the pointer is a
// recorder and no input reaches the display.
func openDisplay(ctx context.Context, cfg *config.Config, log *logging.Logger, dryRun bool) (display.Screen, display.Pointer, func(), error) {
	var d display.Display
	switch cfg.Display.Backend {
	case config.BackendReplay:
		r, err := replay.Open(cfg.Display.Replay, log)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening replay display: %w", err)
		}
		log.Info("replay display ready", "frames", len(r.Frames()))
		d = r
	default:
		b, err := browser.Open(ctx, cfg.Display.Browser)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("opening browser: %w", err)
		}
		log.Info("browser display ready", "url", cfg.Display.Browser.URL)
		d = b
	}

	closeFn := func() {
		if err := d.Close(); err != nil {
			log.Error("error closing display", "error", err)
		}
	}

	var pointer display.Pointer = d
	if dryRun {
		log.Info("dry run: pointer input is recorded, not sent")
		// A replay display already only records, and its releases
		// advance the frames.
		if _, ok := d.(*replay.Replay); !ok {
			pointer = replay.NewRecorder(log)
		}
	}
	return d, pointer, closeFn, nil
}

func closeDatabase(db *database.DB, log *logging.Logger) {
	if err := db.Close(); err != nil {
		log.Error("error closing database", "error", err)
	}
}

func printSummary(out io.Writer, state engine.State, err error) {
	took := state.FinishedAt.Sub(state.StartedAt).Round(time.Millisecond)
	switch state.Status {
	case engine.StatusCompleted:
		fmt.Fprintf(out, "%s: completed in %d steps (%v)\n", state.Script, state.Steps, took)
	case engine.StatusAborted:
		fmt.Fprintf(out, "%s: aborted at node %d after %d steps: %s\n", state.Script, state.CurrentID, state.Steps, state.Reason)
	default:
		if err != nil {
			fmt.Fprintf(out, "%s: not started: %v\n", state.Script, err)
		}
	}
}
