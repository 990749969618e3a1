package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/roverscan/rovermap/internal/config"
	"github.com/roverscan/rovermap/internal/dispatcher"
	"github.com/roverscan/rovermap/internal/engine"
	"github.com/roverscan/rovermap/internal/influx"
	"github.com/roverscan/rovermap/internal/logging"
	"github.com/roverscan/rovermap/internal/server"
	"github.com/roverscan/rovermap/internal/session"
	"github.com/roverscan/rovermap/internal/storage"
	"github.com/roverscan/rovermap/internal/transport/console"
	"github.com/roverscan/rovermap/internal/transport/grpcapi"
	"github.com/roverscan/rovermap/internal/transport/mqttapi"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	AppName string = "rovermap"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	SessionStartTime time.Time = time.Now()
)

type options struct {
	configDir string
	newMap    bool
	loadLast  bool
	mapName   string
	headless  bool
}

func newFlagSet() (*pflag.FlagSet, *options) {
	opts := &options{}
	fs := pflag.NewFlagSet(AppName, pflag.ContinueOnError)
	fs.StringVar(&opts.configDir, "config-dir", ".", "directory containing "+config.FileName+".json")
	fs.BoolVar(&opts.newMap, "new-map", false, "start a blank map")
	fs.BoolVar(&opts.loadLast, "load-last", false, "resume the last saved map")
	fs.StringVar(&opts.mapName, "map", "", "load the named map, or create it on first save")
	fs.BoolVar(&opts.headless, "headless", false, "do not read commands from stdin")

	fs.String("log-level", "", "log level: debug, info, warn or error")
	fs.String("storage", "", "map storage backend: file, sqlite or postgres")
	fs.String("maps-dir", "", "directory of the file map store")
	fs.String("http-addr", "", "map server listen address")
	fs.String("grpc-addr", "", "command RPC listen address")
	fs.String("mqtt-broker", "", "MQTT broker URL; enables the MQTT bridge")
	return fs, opts
}

// flagKeys maps flags onto the config keys they override.
var flagKeys = map[string]string{
	"log-level":   "logLevel",
	"storage":     "storage.type",
	"maps-dir":    "storage.file.dir",
	"http-addr":   "server.address",
	"grpc-addr":   "grpc.address",
	"mqtt-broker": "mqtt.broker",
}

func bindFlags(fs *pflag.FlagSet) error {
	for flag, key := range flagKeys {
		if err := viper.BindPFlag(key, fs.Lookup(flag)); err != nil {
			return fmt.Errorf("bind flag %s: %w", flag, err)
		}
	}
	if fs.Changed("mqtt-broker") {
		viper.Set("mqtt.enabled", true)
	}
	return nil
}

// openMode resolves the map selection flags. They are mutually exclusive;
// with none set a blank map is started.
func (o *options) openMode() (engine.OpenMode, string, error) {
	set := 0
	for _, b := range []bool{o.newMap, o.loadLast, o.mapName != ""} {
		if b {
			set++
		}
	}
	if set > 1 {
		return 0, "", errors.New("--new-map, --load-last and --map are mutually exclusive")
	}
	switch {
	case o.loadLast:
		return engine.OpenLastUsed, "", nil
	case o.mapName != "":
		return engine.OpenNamed, o.mapName, nil
	}
	return engine.OpenNew, "", nil
}

// sessionTag remembers the active session for log records. It is fed by
// published snapshots so logging never takes the engine lock.
type sessionTag struct {
	v atomic.Value
}

type tagValue struct {
	id, name string
}

func (t *sessionTag) set(id, name string) {
	t.v.Store(tagValue{id: id, name: name})
}

func (t *sessionTag) current() (string, string) {
	v, _ := t.v.Load().(tagValue)
	return v.id, v.name
}

// Record implements engine.Recorder.
func (t *sessionTag) Record(s session.Snapshot) error {
	if id, name := t.current(); id != s.SessionID || name != s.MapName {
		t.set(s.SessionID, s.MapName)
	}
	return nil
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs, opts := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode, mapName, err := opts.openMode()
	if err != nil {
		return err
	}

	// bootstrap logging to the console until the config is read
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil, nil)
	Logger = SlogManager.Logger()

	if err := config.Load(opts.configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	} else {
		Logger.Info("Loaded config", "file", viper.ConfigFileUsed())
	}
	if err := bindFlags(fs); err != nil {
		return err
	}

	logLevel := viper.GetString("logLevel")
	var logOut io.Writer
	logFile, logPath, err := logging.OpenLogFile(viper.GetString("logsDir"), AppName, SessionStartTime)
	if err != nil {
		Logger.Error("Failed to create/open log file!", "error", err)
	} else {
		defer logFile.Close()
		logOut = logFile
	}

	var graylog *gelf.Writer
	if graylogCfg := config.GetGraylogConfig(); graylogCfg.Enabled {
		graylog, err = logging.DialGraylog(graylogCfg.Address, AppName)
		if err != nil {
			Logger.Warn("Graylog disabled", "address", graylogCfg.Address, "error", err)
			graylog = nil
		}
	}

	tag := &sessionTag{}
	SlogManager.Setup(logOut, logLevel, graylog, logging.SessionContext(tag.current))
	defer SlogManager.Close()
	Logger = SlogManager.Logger()
	Logger.Info("Starting up...", "version", CurrentVersion, "buildDate", BuildDate, "logFile", logPath)

	zlog := logging.NewZerolog(logLevel, logOut, "storage")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storageCfg := config.GetStorageConfig()
	store, err := createStorageBackend(storageCfg, zlog)
	if err != nil {
		return err
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			Logger.Warn("Failed to close storage backend", "error", err)
		}
	}()

	sess, err := engine.OpenSession(ctx, store, config.GetSessionConfig(), mode, mapName, Logger)
	if err != nil {
		return fmt.Errorf("failed to open map: %w", err)
	}
	tag.set(sess.ID(), sess.Name())

	disp, err := dispatcher.New(logging.NewDispatcherLogger(zlog.With().Str("component", "dispatcher").Logger()))
	if err != nil {
		return fmt.Errorf("failed to create dispatcher: %w", err)
	}

	engineCfg := config.GetEngineConfig()
	eng := engine.New(sess, store, disp, Logger, engine.Options{
		TickRate:         engineCfg.TickRate,
		QueueSize:        engineCfg.QueueSize,
		AutosaveInterval: engineCfg.AutosaveInterval,
	})
	eng.AddRecorder(tag)

	if influxCfg := config.GetInfluxConfig(); influxCfg.Enabled {
		telemetry := influx.NewManager(zlog.With().Str("component", "influx").Logger(), influxCfg)
		if err := telemetry.Connect(ctx); err != nil {
			Logger.Warn("InfluxDB telemetry disabled", "error", err)
		} else {
			eng.AddRecorder(telemetry)
			defer telemetry.Close()
		}
	}

	return serve(ctx, stop, eng, store, opts.headless)
}

// serve runs the engine and every enabled transport until ctx is done or
// the console quits. The engine stops last so queued commands are answered.
func serve(ctx context.Context, stop context.CancelFunc, eng *engine.Engine, store storage.Backend, headless bool) error {
	var wg sync.WaitGroup
	start := func(name string, fn func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(ctx); err != nil {
				Logger.Error("Component failed", "component", name, "error", err)
				stop()
			}
		}()
	}

	engineCtx, stopEngine := context.WithCancel(context.Background())
	engineDone := make(chan error, 1)
	go func() { engineDone <- eng.Run(engineCtx) }()

	if cfg := config.GetServerConfig(); cfg.Enabled {
		srv := server.New(eng, store, config.GetGeoConfig(), Logger)
		start("http", func(ctx context.Context) error { return srv.ListenAndServe(ctx, cfg.Address) })
	}

	if cfg := config.GetGRPCConfig(); cfg.Enabled {
		srv := grpcapi.NewServer(eng, Logger)
		start("grpc", func(ctx context.Context) error { return srv.ListenAndServe(ctx, cfg.Address) })
	}

	if cfg := config.GetMQTTConfig(); cfg.Enabled {
		client, err := mqttapi.Connect(cfg, Logger)
		if err != nil {
			Logger.Error("MQTT bridge disabled", "error", err)
		} else {
			defer client.Disconnect(250)
			bridge := mqttapi.New(client, eng, cfg, Logger)
			start("mqtt", bridge.Run)
		}
	}

	if !headless {
		c := console.New(eng, os.Stdin, os.Stdout, Logger)
		start("console", func(ctx context.Context) error {
			defer stop()
			return c.Run(ctx)
		})
	}

	<-ctx.Done()
	Logger.Info("Shutting down...")
	wg.Wait()

	stopEngine()
	return <-engineDone
}
