package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/pprof"
	"os"
	"reflect"
	"syscall"
	"time"

	"github.com/aukilabs/go-tooling/pkg/cli"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/aukilabs/go-tooling/pkg/logs"
	"github.com/aukilabs/go-tooling/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/encoding/json"
	"golang.org/x/net/websocket"

	"github.com/runesim/kaun/contactlog"
	"github.com/runesim/kaun/disease"
	"github.com/runesim/kaun/featureflag"
	kaunhttp "github.com/runesim/kaun/http"
	"github.com/runesim/kaun/render"
	"github.com/runesim/kaun/scenario"
	"github.com/runesim/kaun/sim"
	"github.com/runesim/kaun/smoketest"
	"github.com/runesim/kaun/trace"
	kwebsocket "github.com/runesim/kaun/websocket"
)

var (
	// The Kaun version number. Set at build.
	version = "v0.1.0"

	infoGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name:        "kaun_info",
		Help:        "Kaun information.",
		ConstLabels: prometheus.Labels{"version": version},
	})
)

// This will effectively disable obfuscation of the config struct. Without it, the keys would get obfuscated causing the cli package to generate garbled command-line options.
// https://github.com/burrowers/garble/issues/403
var _ = reflect.TypeOf(config{})

type config struct {
	Addr               string        `cli:""        env:"KAUN_ADDR"                 help:"Listening address for API and stream connections."`
	AdminAddr          string        `cli:""        env:"KAUN_ADMIN_ADDR"           help:"Admin listening address."`
	LogLevel           string        `cli:""        env:"KAUN_LOG_LEVEL"            help:"Log level (debug|info|warning|error)."`
	LogIndent          bool          `cli:""        env:"KAUN_LOG_INDENT"           help:"Indent logs."`
	Scenario           string        `cli:""        env:"KAUN_SCENARIO"             help:"Path to a scenario file. Empty generates a town."`
	Ticks              uint64        `cli:""        env:"KAUN_TICKS"                help:"Number of ticks to run. Zero runs until interrupted."`
	TickInterval       time.Duration `cli:""        env:"KAUN_TICK_INTERVAL"        help:"Wall clock pause between ticks. Zero runs flat out."`
	Seed               int64         `cli:""        env:"KAUN_SEED"                 help:"Seed for the generated town and the run."`
	Render             bool          `cli:""        env:"KAUN_RENDER"               help:"Draw each tick on the terminal."`
	ContactLogPath     string        `cli:""        env:"KAUN_CONTACT_LOG_PATH"     help:"SQLite file for the contact log. Empty keeps it off."`
	HistorySize        int           `cli:",hidden" env:"KAUN_HISTORY_SIZE"         help:"Retained per-tick contact edge sets."`
	StreamQueueSize    int           `cli:",hidden" env:"KAUN_STREAM_QUEUE_SIZE"    help:"Frame queue size per stream subscriber."`
	ClientIdleTimeout  time.Duration `cli:",hidden" env:"KAUN_CLIENT_IDLE_TIMEOUT"  help:"Time until an idle subscriber is disconnected."`
	LogSummaryInterval time.Duration `cli:",hidden" env:"KAUN_LOG_SUMMARY_INTERVAL" help:"The duration between each log summary by connection."`
	World              worldConfig   `cli:",hidden" env:"-"                         help:"World configuration."`
	Disease            diseaseConfig `cli:",hidden" env:"-"                         help:"Disease model configuration."`
	FeatureFlags       []string      `cli:",hidden" env:"KAUN_FEATURE_FLAGS"        help:"Comma separated feature flags"`
	Version            bool          `cli:""        env:"-"                         help:"Show version."`
	Help               bool          `cli:""        env:"-"                         help:"Show help."`
}

type worldConfig struct {
	Width         float64 `cli:",hidden" env:"KAUN_WORLD_WIDTH"    help:"World width."`
	Height        float64 `cli:",hidden" env:"KAUN_WORLD_HEIGHT"   help:"World height."`
	Agents        int     `cli:",hidden" env:"KAUN_AGENTS"         help:"Number of generated agents."`
	Homes         int     `cli:",hidden" env:"KAUN_HOMES"          help:"Number of generated homes."`
	Works         int     `cli:",hidden" env:"KAUN_WORKS"          help:"Number of generated workplaces."`
	Schools       int     `cli:",hidden" env:"KAUN_SCHOOLS"        help:"Number of generated schools."`
	Clustered     bool    `cli:",hidden" env:"KAUN_CLUSTERED"      help:"Cluster generated positions into neighborhoods."`
	ContactRadius float64 `cli:",hidden" env:"KAUN_CONTACT_RADIUS" help:"Contact distance between two agents."`
	LeafCapacity  int     `cli:",hidden" env:"KAUN_LEAF_CAPACITY"  help:"Spatial index leaf capacity."`
	MaxDepth      int     `cli:",hidden" env:"KAUN_MAX_DEPTH"      help:"Spatial index maximum depth."`
	Workers       int     `cli:",hidden" env:"KAUN_WORKERS"        help:"Workers for the movement and contact passes."`
}

type diseaseConfig struct {
	IncubationTicks uint64  `cli:",hidden" env:"KAUN_INCUBATION_TICKS" help:"Ticks from exposure to infectiousness."`
	InfectiousTicks uint64  `cli:",hidden" env:"KAUN_INFECTIOUS_TICKS" help:"Ticks from infectiousness to recovery."`
	Transmission    float64 `cli:",hidden" env:"KAUN_TRANSMISSION"     help:"Per contact per tick exposure probability."`
	Fatality        float64 `cli:",hidden" env:"KAUN_FATALITY"         help:"Mortality curve scale. Zero disables death."`
	IndexCases      int     `cli:",hidden" env:"KAUN_INDEX_CASES"      help:"Agents exposed when the run starts."`
}

func main() {
	conf := config{
		Addr:               ":4000",
		AdminAddr:          ":18190",
		LogLevel:           logs.InfoLevel.String(),
		TickInterval:       time.Millisecond * 15,
		Seed:               1,
		HistorySize:        256,
		StreamQueueSize:    kwebsocket.DefaultSubscriberQueueSize,
		ClientIdleTimeout:  time.Minute * 5,
		LogSummaryInterval: time.Minute,
		World: worldConfig{
			Width:         100,
			Height:        100,
			Agents:        200,
			Homes:         40,
			Works:         10,
			Schools:       2,
			ContactRadius: 2,
			Workers:       4,
		},
		Disease: diseaseConfig{
			IncubationTicks: disease.DefaultIncubationTicks,
			InfectiousTicks: disease.DefaultInfectiousTicks,
			Transmission:    disease.DefaultTransmission,
			IndexCases:      disease.DefaultIndexCases,
		},
	}

	// set the information gauge to 1, useful for SUM query
	infoGauge.Set(1)

	ctx, cancel := cli.ContextWithSignals(context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer cancel()

	cli.Register().
		Help("Starts the Kaun epidemic simulation server.").
		Options(&conf)
	cli.Load()

	if conf.Version {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := validateConfig(conf); err != nil {
		logs.Fatal(err)
	}

	logs.SetLevel(logs.ParseLevel(conf.LogLevel))
	logs.Encoder = json.Marshal
	if conf.LogIndent {
		logs.Encoder = func(v any) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		}
	}

	errors.Encoder = json.Marshal

	flags := featureflag.New(conf.FeatureFlags)

	scn, err := loadScenario(conf)
	if err != nil {
		logs.Fatal(errors.New("loading scenario failed").Wrap(err))
	}

	places, agents, err := scn.Build()
	if err != nil {
		logs.Fatal(errors.New("building scenario failed").Wrap(err))
	}

	workers := conf.World.Workers
	flags.IfSet(featureflag.FlagDisableParallelTick, func() {
		workers = 1
	})

	historySize := conf.HistorySize
	flags.IfSet(featureflag.FlagDisableContactHistory, func() {
		historySize = 0
	})

	worldCfg := sim.Config{
		Bounds:        scn.Bounds(),
		ContactRadius: contactRadius(conf, scn),
		LeafCapacity:  conf.World.LeafCapacity,
		MaxDepth:      conf.World.MaxDepth,
		Movement:      sim.DefaultMovementPolicy(),
		Workers:       workers,
		Seed:          conf.Seed,
		RunTicks:      conf.Ticks,
		HistorySize:   historySize,
	}

	flags.IfNotSet(featureflag.FlagDisableInfection, func() {
		model, merr := disease.New(disease.Config{
			IncubationTicks: conf.Disease.IncubationTicks,
			InfectiousTicks: conf.Disease.InfectiousTicks,
			Transmission:    conf.Disease.Transmission,
			Fatality:        conf.Disease.Fatality,
			IndexCases:      conf.Disease.IndexCases,
			Seed:            conf.Seed,
		})
		if merr != nil {
			logs.Fatal(errors.New("assembling disease model failed").Wrap(merr))
		}
		worldCfg.Infection = model
	})

	world, err := sim.New(worldCfg)
	if err != nil {
		logs.Fatal(errors.New("assembling world failed").Wrap(err))
	}
	if err := world.Initialize(places, agents); err != nil {
		logs.Fatal(errors.New("populating world failed").Wrap(err))
	}
	defer world.Stop()

	var lineage *trace.Graph
	flags.IfNotSet(featureflag.FlagDisableContactTracing, func() {
		lineage = trace.NewGraph()
	})

	var contactDB *contactlog.Log
	var contactWriter *contactlog.Writer
	if conf.ContactLogPath != "" {
		flags.IfNotSet(featureflag.FlagDisableContactLog, func() {
			db, oerr := contactlog.Open(conf.ContactLogPath)
			if oerr != nil {
				logs.Fatal(errors.New("opening contact log failed").Wrap(oerr))
			}
			contactDB = db
			contactWriter = contactlog.NewWriter(db, contactlog.DefaultQueueSize)
			contactWriter.HandleWrites(ctx)
		})
	}
	defer func() {
		if contactDB == nil {
			return
		}
		if err := contactDB.Close(); err != nil {
			logs.Warn(errors.New("closing contact log failed").Wrap(err))
		}
	}()

	var streamHub *kwebsocket.Hub
	flags.IfNotSet(featureflag.FlagDisableLiveStream, func() {
		streamHub = &kwebsocket.Hub{QueueSize: conf.StreamQueueSize}
	})
	defer func() {
		if streamHub != nil {
			streamHub.Close()
		}
	}()

	var renderer *render.Renderer
	if conf.Render {
		renderer = &render.Renderer{
			Bounds:      world.Bounds(),
			Color:       true,
			ClearScreen: true,
		}
	}

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		runWorld(ctx, world, conf.TickInterval, conf.Ticks, tickSinks{
			hub:      streamHub,
			lineage:  lineage,
			contacts: contactWriter,
			renderer: renderer,
		})
	}()

	readinessCheck := func() bool {
		state := world.State()
		return state == sim.StateReady || state == sim.StateStepping
	}

	var service http.ServeMux
	service.Handle("/health", kaunhttp.HandleWithCORS(http.HandlerFunc(kaunhttp.HandleHealthCheck)))
	service.Handle("/version", kaunhttp.HandleWithCORS(kaunhttp.HandleVersion(version)))
	service.Handle("/ready", kaunhttp.HandleWithCORS(kaunhttp.HandleReadyCheck(readinessCheck)))
	service.Handle("/state", kaunhttp.HandleWithCORS(kaunhttp.HandleState(world)))
	service.Handle("/contacts", kaunhttp.HandleWithCORS(kaunhttp.HandleContacts(world)))
	if lineage != nil {
		service.Handle("/graph.dot", kaunhttp.HandleWithCORS(kaunhttp.HandleGraphDOT(lineage)))
	}

	if streamHub != nil {
		service.Handle("/", kaunhttp.HandleWithCORS(websocket.Server{
			Handler: func(conn *websocket.Conn) {
				defer conn.Close()

				var h kwebsocket.Handler = &kwebsocket.StreamHandler{
					World:             world,
					Hub:               streamHub,
					ClientIdleTimeout: conf.ClientIdleTimeout,
				}
				h = kwebsocket.HandlerWithLogs(h, conf.LogSummaryInterval)
				h = kwebsocket.HandlerWithMetrics(h)
				defer h.Close()

				kwebsocket.Handle(ctx, conn, h)
			},
		}))
	}

	service.Handle("/ping", websocket.Server{
		Handler: func(ws *websocket.Conn) {
			defer ws.Close()
			io.Copy(ws, ws)
		},
	})

	var admin http.ServeMux
	admin.Handle("/metrics", promhttp.Handler())
	admin.HandleFunc("/health", kaunhttp.HandleHealthCheck)
	admin.HandleFunc("/debug/pprof/", pprof.Index)
	admin.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	admin.HandleFunc("/debug/pprof/profile", pprof.Profile)
	admin.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	admin.HandleFunc("/debug/pprof/trace", pprof.Trace)
	admin.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	admin.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	admin.Handle("/debug/pprof/threadcreate", pprof.Handler("threadcreate"))
	admin.Handle("/debug/pprof/block", pprof.Handler("block"))
	admin.HandleFunc("/ready", kaunhttp.HandleReadyCheck(readinessCheck))
	admin.HandleFunc("/index", kaunhttp.HandleIndexInfo(world))
	admin.HandleFunc("/smoke-test", smoketest.HandleSmokeTest(ctx, smoketest.Options{
		Seed: conf.Seed,
		SendResult: func(_ context.Context, res smoketest.Results) error {
			logs.WithTag("results", res).Info("smoke test finished")
			return nil
		},
	}))

	logs.WithTag("version", version).
		WithTag("log_level", conf.LogLevel).
		WithTag("run_id", world.RunID).
		WithTag("seed", conf.Seed).
		WithTag("places", len(places)).
		WithTag("agents", len(agents)).
		Info("starting kaun server")

	kaunhttp.ListenAndServe(ctx,
		&http.Server{Addr: conf.Addr, Handler: metrics.HTTPHandler(&service,
			kaunhttp.MetricsPathFormatter)},
		&http.Server{Addr: conf.AdminAddr, Handler: &admin},
	)

	<-runDone
}

// tickSinks are the optional consumers of each completed tick.
type tickSinks struct {
	hub      *kwebsocket.Hub
	lineage  *trace.Graph
	contacts *contactlog.Writer
	renderer *render.Renderer
}

// runWorld steps the world until the context ends or the configured tick
// count is reached, fanning each result out to the configured sinks.
func runWorld(ctx context.Context, world *sim.World, interval time.Duration, ticks uint64, sinks tickSinks) {
	var pacer *time.Ticker
	if interval > 0 {
		pacer = time.NewTicker(interval)
		defer pacer.Stop()
	}

	for ctx.Err() == nil {
		res, err := world.Step(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logs.Error(errors.New("tick failed").Wrap(err))
			return
		}

		if sinks.lineage != nil {
			sinks.lineage.RecordUpdates(res.Tick, res.Updates)
		}
		if sinks.contacts != nil {
			sinks.contacts.Enqueue(res.Tick, res.Edges)
		}
		if sinks.hub != nil {
			sinks.hub.Publish(kwebsocket.NewTickFrame(world.RunID, res))
		}
		if sinks.renderer != nil {
			fmt.Print(sinks.renderer.Frame(res.Tick, res.Agents))
		}

		if ticks != 0 && res.Tick >= ticks {
			logs.WithTag("ticks", res.Tick).Info("run complete")
			return
		}

		if pacer != nil {
			select {
			case <-pacer.C:
			case <-ctx.Done():
				return
			}
		}
	}
}

func loadScenario(conf config) (*scenario.Scenario, error) {
	if conf.Scenario != "" {
		return scenario.Load(conf.Scenario)
	}

	cfg := scenario.DefaultGenConfig()
	cfg.Width = conf.World.Width
	cfg.Height = conf.World.Height
	cfg.Agents = conf.World.Agents
	cfg.Homes = conf.World.Homes
	cfg.Works = conf.World.Works
	cfg.Schools = conf.World.Schools
	cfg.Clustered = conf.World.Clustered
	cfg.Seed = conf.Seed
	return scenario.Generate(cfg)
}

// contactRadius prefers the radius a scenario file carries over the
// configured one.
func contactRadius(conf config, scn *scenario.Scenario) float64 {
	if scn.World.ContactRadius > 0 {
		return scn.World.ContactRadius
	}
	return conf.World.ContactRadius
}

func validateConfig(conf config) error {
	if conf.World.Width <= 0 || conf.World.Height <= 0 {
		return errors.New("world sides must be positive").
			WithTag("width", conf.World.Width).
			WithTag("height", conf.World.Height)
	}

	if conf.World.ContactRadius <= 0 {
		return errors.New("contact radius must be positive").
			WithTag("contact_radius", conf.World.ContactRadius)
	}

	if conf.TickInterval < 0 {
		return errors.New("tick interval cannot be negative").
			WithTag("tick_interval", conf.TickInterval)
	}

	return nil
}
