// Package engine is the top-level facade that wires the accumulator,
// detectors, pipeline, playback controller, recorder, publisher, data
// sources, the upstream feed adapter, configuration, and the telemetry
// stack into one running process, the way the teacher's engine/engine.go
// wires its own worker pool, output sinks, and telemetry together behind a
// single Engine type.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/heytcass/f12mqtt/accumulator"
	"github.com/heytcass/f12mqtt/archiveapi"
	"github.com/heytcass/f12mqtt/config"
	"github.com/heytcass/f12mqtt/datasource"
	"github.com/heytcass/f12mqtt/feed"
	"github.com/heytcass/f12mqtt/model"
	"github.com/heytcass/f12mqtt/pipeline"
	"github.com/heytcass/f12mqtt/playback"
	"github.com/heytcass/f12mqtt/publisher"
	"github.com/heytcass/f12mqtt/recorder"
	"github.com/heytcass/f12mqtt/telemetry/events"
	"github.com/heytcass/f12mqtt/telemetry/logging"
	"github.com/heytcass/f12mqtt/telemetry/metrics"
	"github.com/heytcass/f12mqtt/timeline"
	"github.com/heytcass/f12mqtt/webtransport"
)

// Mode selects which DataSource drives the Pipeline.
type Mode string

const (
	// ModeLive ingests the live upstream feed and records the session as it
	// goes, per spec.md §4.2/§7.
	ModeLive Mode = "live"
	// ModeReplay drives the Playback Controller from a recorded directory.
	ModeReplay Mode = "replay"
	// ModeArchive drives the Playback Controller from the historical API.
	ModeArchive Mode = "archive"
)

// Engine owns every long-lived component for one run of the process.
type Engine struct {
	cfg     *config.Manager
	log     logging.Logger
	metrics metrics.Provider
	diag    events.Bus

	acc  *accumulator.Accumulator
	pipe *pipeline.Pipeline

	controller *playback.Controller
	dataSource datasource.DataSource

	adapter   *feed.Adapter
	recorder  *recorder.Recorder
	publisher *publisher.Publisher
	webServer *webtransport.Server

	mqttClient mqtt.Client
	httpServer *http.Server
}

// Options configures New.
type Options struct {
	ConfigPath string
	Mode       Mode

	// RecordingDir is the recorded-session directory, used when Mode is
	// ModeReplay.
	RecordingDir string

	// HTTPAddr is the address webtransport's HTTP+WebSocket server binds.
	HTTPAddr string
}

// New constructs an Engine from opts, wiring the telemetry stack, the
// accumulator/pipeline pair, the publisher, and whichever DataSource or live
// feed opts.Mode selects. It starts the config file watcher and, in live
// mode, the recorder; the bus connection, the feed adapter and the HTTP
// server start in Run.
func New(ctx context.Context, opts Options) (*Engine, error) {
	cfgMgr, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := cfgMgr.Current()

	base := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	log := logging.New(base)

	provider, err := newMetricsProvider(cfg)
	if err != nil {
		return nil, fmt.Errorf("build metrics provider: %w", err)
	}
	diag := events.NewBus(provider)

	acc := accumulator.New(log, provider)
	pipe := pipeline.New(acc, provider)

	e := &Engine{cfg: cfgMgr, log: log, metrics: provider, diag: diag, acc: acc, pipe: pipe}

	pub, err := e.newPublisher(cfg)
	if err != nil {
		return nil, fmt.Errorf("build publisher: %w", err)
	}
	e.publisher = pub
	pipe.Subscribe(pipelineToPublisherObserver{pub: pub})

	e.webServer = webtransport.NewServer(nil)
	pipe.Subscribe(pipelineToWebObserver{srv: e.webServer})

	switch opts.Mode {
	case ModeLive:
		if err := e.wireLive(ctx, cfg); err != nil {
			return nil, err
		}
	case ModeReplay, ModeArchive:
		ds, err := e.wireDataSource(ctx, opts, cfg)
		if err != nil {
			return nil, err
		}
		e.dataSource = ds
		pbObs := &pipelineToPlaybackWebObserver{pub: pub}
		e.controller = playback.New(pipe, pbObs, provider)
		e.webServer = webtransport.NewServer(e.controller)
		pbObs.srv = e.webServer
	default:
		return nil, fmt.Errorf("unknown engine mode %q", opts.Mode)
	}

	if opts.HTTPAddr != "" {
		e.httpServer = &http.Server{Addr: opts.HTTPAddr, Handler: e.webServer.Router()}
	}

	// Hot-reload the favourite-driver list and notifier flag into the
	// publisher, per SPEC_FULL.md §0.5. TopicPrefix and FeedURL are
	// excluded from reload by config.Manager.reload itself.
	if err := cfgMgr.Watch(func(next config.Config) {
		pub.UpdateConfig(next.FavouriteDrivers, next.NotifierEnabled)
	}); err != nil {
		return nil, fmt.Errorf("watch config: %w", err)
	}

	return e, nil
}

func newMetricsProvider(cfg config.Config) (metrics.Provider, error) {
	switch cfg.MetricsBackend {
	case "", "prom":
		return metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{}), nil
	case "otel":
		return metrics.NewOTelProvider(metrics.OTelProviderOptions{ServiceName: "f12mqtt"}), nil
	case "noop":
		return metrics.NewNoopProvider(), nil
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", cfg.MetricsBackend)
	}
}

func (e *Engine) newPublisher(cfg config.Config) (*publisher.Publisher, error) {
	opts := publisher.NewMQTTClientOptions(cfg.BusBrokerURL, cfg.TopicPrefix, "f12mqtt-"+strconv.FormatInt(time.Now().Unix(), 10))
	client := mqtt.NewClient(opts)
	e.mqttClient = client

	pubCfg := publisher.Config{
		TopicPrefix:      cfg.TopicPrefix,
		FavouriteDrivers: cfg.FavouriteDrivers,
		NotifierEnabled:  cfg.NotifierEnabled,
	}
	return publisher.New(publisher.Client{Inner: client}, pubCfg, e.log, e.metrics), nil
}

// wireLive connects the upstream feed adapter, drives a fresh recorder, and
// starts publishing live Pipeline output, per spec.md §4.2/§7.
func (e *Engine) wireLive(ctx context.Context, cfg config.Config) error {
	if cfg.FeedURL == "" {
		return fmt.Errorf("live mode requires config.FeedURL")
	}

	meta := recorder.Metadata{
		SessionKey: strconv.FormatInt(time.Now().Unix(), 10),
		Year:       time.Now().Year(),
		StartTime:  time.Now().UTC(),
	}
	rec, err := recorder.Start(cfg.RecordingsDir, meta, model.New(), e.log, e.metrics)
	if err != nil {
		return fmt.Errorf("start recorder: %w", err)
	}
	e.recorder = rec
	e.pipe.Subscribe(pipelineToRecorderObserver{rec: rec})

	e.adapter = feed.New(cfg.FeedURL, adapterObserver{pipe: e.pipe, diag: e.diag}, e.log)
	return nil
}

// wireDataSource opens the recorded directory or the archive API, per
// opts.Mode, and returns it so the caller can build a Timeline from it.
func (e *Engine) wireDataSource(ctx context.Context, opts Options, cfg config.Config) (datasource.DataSource, error) {
	switch opts.Mode {
	case ModeReplay:
		dir := opts.RecordingDir
		if dir == "" {
			return nil, fmt.Errorf("replay mode requires RecordingDir")
		}
		return datasource.OpenRecorded(filepath.Clean(dir))
	case ModeArchive:
		return archiveapi.New(cfg.ArchiveBaseURL, nil), nil
	default:
		return nil, fmt.Errorf("wireDataSource: unsupported mode %q", opts.Mode)
	}
}

// LoadReplay builds a Timeline from the Engine's DataSource and loads it into
// the Playback Controller, per spec.md §4.5/§4.6.
func (e *Engine) LoadReplay(ctx context.Context, speedMultiplier float64) error {
	if e.dataSource == nil || e.controller == nil {
		return fmt.Errorf("engine not configured for replay")
	}
	initial, err := e.dataSource.InitialState(ctx)
	if err != nil {
		return fmt.Errorf("read initial state: %w", err)
	}
	tr, err := e.dataSource.TimeRange(ctx)
	var from time.Time
	if err == nil && tr != nil {
		from = tr.Start
	}
	entries, err := e.dataSource.Stream(ctx, from, speedMultiplier)
	if err != nil {
		return fmt.Errorf("stream entries: %w", err)
	}
	e.controller.Load(timeline.New(entries), initial)
	return nil
}

// Controller exposes the Playback Controller, if the Engine was built in a
// replay/archive mode.
func (e *Engine) Controller() *playback.Controller { return e.controller }

// Run starts all background components (MQTT connect, live feed reconnect
// loop, HTTP server) and blocks until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	if e.mqttClient != nil {
		if token := e.mqttClient.Connect(); token.Wait() && token.Error() != nil {
			return fmt.Errorf("connect to bus: %w", token.Error())
		}
		e.publisher.SetStatus(true)
		e.publisher.RegisterPersistentEntities()
		defer e.publisher.SetStatus(false)
	}

	if e.adapter != nil {
		e.publisher.RegisterSessionEntities()
		go e.adapter.Run(ctx)
		defer e.publisher.DeregisterSessionEntities()
	}

	if e.httpServer != nil {
		go func() {
			_ = e.httpServer.ListenAndServe()
		}()
		defer e.httpServer.Close()
	}

	<-ctx.Done()
	return e.Shutdown()
}

// Shutdown releases every resource the Engine opened. Idempotent with
// respect to the components that are themselves idempotent to close.
func (e *Engine) Shutdown() error {
	if e.adapter != nil {
		_ = e.adapter.Close()
	}
	if e.recorder != nil {
		_ = e.recorder.Stop(time.Now().UTC())
	}
	if e.dataSource != nil {
		_ = e.dataSource.Close()
	}
	if e.mqttClient != nil && e.mqttClient.IsConnected() {
		e.mqttClient.Disconnect(250)
	}
	return e.cfg.Close()
}

// pipelineToRecorderObserver adapts the recorder to pipeline.Observer.
type pipelineToRecorderObserver struct{ rec *recorder.Recorder }

func (o pipelineToRecorderObserver) OnEvent(model.Event) {}
func (o pipelineToRecorderObserver) OnUpdate(u pipeline.Update) {
	o.rec.Write(u.Raw)
}

// pipelineToPublisherObserver adapts the publisher to pipeline.Observer.
type pipelineToPublisherObserver struct{ pub *publisher.Publisher }

func (o pipelineToPublisherObserver) OnEvent(model.Event)   {}
func (o pipelineToPublisherObserver) OnUpdate(u pipeline.Update) {
	o.pub.PublishState(u.Snapshot)
	o.pub.PublishEvents(u.Events)
}

// pipelineToWebObserver fans live Pipeline updates to connected browser
// clients, mirroring the shape playback.Event uses so the same frontend
// handles both live and replay traffic.
type pipelineToWebObserver struct{ srv *webtransport.Server }

func (o pipelineToWebObserver) OnEvent(model.Event) {}
func (o pipelineToWebObserver) OnUpdate(u pipeline.Update) {
	o.srv.Broadcast(playback.Event{Kind: "update", Snapshot: u.Snapshot, Events: u.Events, Entry: u.Raw})
}

// pipelineToPlaybackWebObserver fans Playback Controller events out to both
// the publisher (so replay drives the same MQTT projection live traffic
// does) and the WebSocket server.
type pipelineToPlaybackWebObserver struct {
	srv *webtransport.Server
	pub *publisher.Publisher
}

func (o pipelineToPlaybackWebObserver) OnPlaybackEvent(ev playback.Event) {
	o.srv.Broadcast(ev)
	switch ev.Kind {
	case "loaded", "seek", "update":
		o.pub.PublishState(ev.Snapshot)
		o.pub.PublishEvents(ev.Events)
	}
	o.pub.PublishPlaybackState(string(ev.Status))
}

// adapterObserver adapts the feed.Adapter to feed.Observer, driving the
// Pipeline with each live message and reporting adapter lifecycle to the
// diagnostic event bus, per spec.md §7.
type adapterObserver struct {
	pipe *pipeline.Pipeline
	diag events.Bus
}

func (o adapterObserver) OnMessage(e model.Entry) { o.pipe.Process(e) }
func (o adapterObserver) OnConnected() {
	o.diag.Publish(events.Event{Category: events.CategoryIngest, Type: "connected"})
}
func (o adapterObserver) OnDisconnected() {
	o.diag.Publish(events.Event{Category: events.CategoryIngest, Type: "disconnected"})
}
func (o adapterObserver) OnError(err error) {
	o.diag.Publish(events.Event{Category: events.CategoryError, Type: "feed_error", Fields: map[string]any{"error": err.Error()}})
}
