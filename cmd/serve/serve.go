// Package serve implements the serve command: the long running acquisition
// service with the control API, metrics endpoint, journal and MQTT publisher.
package serve

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/biosignal-go/internal/acquisition"
	"github.com/tphakala/biosignal-go/internal/api"
	v1 "github.com/tphakala/biosignal-go/internal/api/v1"
	acqboards "github.com/tphakala/biosignal-go/internal/boards"
	"github.com/tphakala/biosignal-go/internal/buildinfo"
	"github.com/tphakala/biosignal-go/internal/conf"
	"github.com/tphakala/biosignal-go/internal/events"
	"github.com/tphakala/biosignal-go/internal/journal"
	"github.com/tphakala/biosignal-go/internal/logger"
	"github.com/tphakala/biosignal-go/internal/mqtt"
	"github.com/tphakala/biosignal-go/internal/observability"
)

const shutdownTimeout = 10 * time.Second

// GetLogger returns the serve command logger
func GetLogger() logger.Logger {
	return logger.Global().Module("serve")
}

// Command creates the serve command.
func Command(settings *conf.Settings, build *buildinfo.Context) *cobra.Command {
	var autostart bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the acquisition service",
		Long:  "Serve the control API and metrics endpoint until interrupted, journaling and publishing session lifecycle events.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newService(settings, build)
			if err != nil {
				return err
			}
			return svc.run(cmd.Context(), autostart)
		},
	}

	if err := setupFlags(cmd, &autostart); err != nil {
		panic(err)
	}
	return cmd
}

// setupFlags configures flags specific to the serve command.
func setupFlags(cmd *cobra.Command, autostart *bool) error {
	cmd.Flags().BoolVar(autostart, "autostart", false, "Acquire and start the configured device at startup")
	cmd.Flags().String("listen", "", "Listen address of the control API")
	cmd.Flags().String("metrics-listen", "", "Listen address of the Prometheus endpoint")
	cmd.Flags().String("journal", "", "Path of the sqlite session journal")

	bindings := map[string]string{
		"listen":         "api.listen",
		"metrics-listen": "telemetry.listen",
		"journal":        "journal.path",
	}
	for flag, key := range bindings {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("error binding flag %s: %w", flag, err)
		}
	}
	return nil
}

// service owns every long lived component of the serve command.
type service struct {
	settings *conf.Settings
	build    *buildinfo.Context

	metrics  *observability.Metrics
	bus      *events.Bus
	registry *acquisition.Registry
	journal  *journal.Journal
	mqtt     mqtt.Client
	api      *api.Server
	endpoint *observability.Endpoint
}

func newService(settings *conf.Settings, build *buildinfo.Context) (*service, error) {
	s := &service{settings: settings, build: build}

	m, err := observability.NewMetrics(nil)
	if err != nil {
		return nil, err
	}
	s.metrics = m

	s.bus = events.NewBus(events.DefaultConfig())
	s.registry = acquisition.NewRegistry(
		acquisition.WithObserver(m.Acquisition),
		acquisition.WithObserver(events.NewObserver(s.bus)),
	)
	m.Acquisition.SetSource(s.registry)
	m.EventBus.Observe(s.bus)

	policy, err := acquisition.ParseOverflowPolicy(settings.Acquisition.Overflow)
	if err != nil {
		return nil, err
	}
	apiOpts := []v1.Option{
		v1.WithDefaults(v1.SessionDefaults{Capacity: settings.Acquisition.Capacity, Overflow: policy}),
		v1.WithMetricsHandler(m.Handler()),
		v1.WithRecordingsDir(settings.Acquisition.Playback.Dir),
	}

	if settings.Journal.Enabled {
		j, err := journal.Open(settings.Journal.Path)
		if err != nil {
			return nil, err
		}
		if err := s.bus.RegisterConsumer(j); err != nil {
			_ = j.Close()
			return nil, err
		}
		s.journal = j
		apiOpts = append(apiOpts, v1.WithHistory(j))
	}

	if settings.MQTT.Enabled {
		cfg := mqtt.ConfigFromSettings(&settings.MQTT)
		client, err := mqtt.NewClient(cfg)
		if err != nil {
			s.closeJournal()
			return nil, err
		}
		publisher := mqtt.NewPublisher(client, cfg.Topic, cfg.PublishTimeout).WithRecorder(m.MQTT)
		if err := s.bus.RegisterConsumer(publisher); err != nil {
			s.closeJournal()
			return nil, err
		}
		s.mqtt = client
	}

	if settings.API.Enabled {
		s.api = api.NewServer(settings.API.Listen, s.registry, apiOpts...)
	}
	if settings.Telemetry.Enabled {
		endpoint, err := observability.NewEndpoint(&settings.Telemetry, m)
		if err != nil {
			s.closeJournal()
			return nil, err
		}
		s.endpoint = endpoint
	}
	return s, nil
}

// run serves until ctx is cancelled or a server fails, then releases every
// session and drains the event bus.
func (s *service) run(ctx context.Context, autostart bool) error {
	log := GetLogger()
	s.bus.Start()

	g, gctx := errgroup.WithContext(ctx)
	if s.api != nil {
		g.Go(func() error { return s.api.Run(gctx) })
	}
	if s.endpoint != nil {
		g.Go(func() error { return s.endpoint.Run(gctx) })
	}
	if s.mqtt != nil {
		g.Go(func() error {
			if err := s.mqtt.Connect(gctx); err != nil {
				log.Warn("mqtt connect failed, lifecycle events will not be published", logger.Error(err))
			}
			return nil
		})
	}
	if autostart {
		if err := s.startDefault(gctx); err != nil {
			log.Error("autostart failed", logger.Error(err))
		}
	}

	log.Info("service running",
		logger.String("version", s.build.GetVersion()),
		logger.Bool("api", s.api != nil),
		logger.Bool("telemetry", s.endpoint != nil),
		logger.Bool("journal", s.journal != nil),
		logger.Bool("mqtt", s.mqtt != nil))

	<-gctx.Done()
	runErr := g.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.registry.Shutdown(shutdownCtx); err != nil {
		log.Warn("registry shutdown incomplete", logger.Error(err))
	}
	if err := s.bus.Stop(shutdownCtx); err != nil {
		log.Warn("event bus shutdown incomplete", logger.Error(err))
	}
	if s.mqtt != nil {
		s.mqtt.Disconnect()
	}
	s.closeJournal()

	log.Info("service stopped")
	return runErr
}

// startDefault acquires the configured device and starts streaming.
func (s *service) startDefault(ctx context.Context) error {
	cfg, err := acqboards.SessionConfigFromSettings(&s.settings.Acquisition)
	if err != nil {
		return err
	}
	session, err := s.registry.Acquire(s.settings.Acquisition.DeviceID, cfg)
	if err != nil {
		return err
	}
	if err := session.Prepare(ctx); err != nil {
		return err
	}
	return session.Start(ctx)
}

func (s *service) closeJournal() {
	if s.journal == nil {
		return
	}
	if err := s.journal.Close(); err != nil {
		GetLogger().Warn("journal close failed", logger.Error(err))
	}
	s.journal = nil
}
