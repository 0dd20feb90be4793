// Command readerd is a reader node: it maintains a local replica of the
// access model by polling the durable event log and the temporal event
// cache, and serves queries against that replica. Composition mirrors
// accessd's cobra/viper/echo bootstrap, trading the writer's mutation
// surface and flush pipeline for reader.RefreshLoop's periodic catch-up.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/evalgo/accessctl/config"
	"github.com/evalgo/accessctl/eventcache"
	"github.com/evalgo/accessctl/internal/obslog"
	"github.com/evalgo/accessctl/persist/bolt"
	"github.com/evalgo/accessctl/persist/postgres"
	"github.com/evalgo/accessctl/reader"
	"github.com/evalgo/accessctl/replay"
	"github.com/evalgo/accessctl/status"
	"github.com/evalgo/accessctl/telemetry"
	"github.com/evalgo/accessctl/tripswitch"
	"github.com/evalgo/accessctl/wire"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "readerd",
	Short: "reader node maintaining a polled replica of the access model",
	RunE:  runReader,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./readerd.yaml)")
	rootCmd.PersistentFlags().String("port", "", "HTTP listen port")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "PostgreSQL connection string to poll")
	rootCmd.PersistentFlags().String("bolt-path", "", "bbolt database file path to poll")
	rootCmd.PersistentFlags().String("jwt-secret", "", "JWT signing secret for the protected API group")

	viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("storage.postgres_dsn", rootCmd.PersistentFlags().Lookup("postgres-dsn"))
	viper.BindPFlag("storage.bolt_path", rootCmd.PersistentFlags().Lookup("bolt-path"))
	viper.BindPFlag("server.jwt_secret", rootCmd.PersistentFlags().Lookup("jwt-secret"))
}

func initConfig() {
	config.Defaults(viper.GetViper())
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("readerd")
	}
	viper.SetEnvPrefix("READERD")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("using config file:", viper.ConfigFileUsed())
	}
}

func runReader(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("readerd: load config: %w", err)
	}

	logger := obslog.New(obslog.Config{Level: logrus.InfoLevel, Format: obslog.FormatText, Service: "readerd"})
	log := obslog.Component(logger, "main")

	prov := telemetry.Init(telemetry.Config{
		ServiceName: "readerd",
		Enabled:     cfg.Telemetry.Enabled,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	defer prov.Shutdown(context.Background())
	metrics := telemetry.NewMetrics("accessctl_readerd")

	var src storageSource
	if cfg.Storage.PostgresDSN != "" {
		src.pg, err = postgres.Open(context.Background(), cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("readerd: open postgres: %w", err)
		}
		defer src.pg.Close()
	} else {
		src.bolt, err = bolt.Open(cfg.Storage.BoltPath)
		if err != nil {
			return fmt.Errorf("readerd: open bolt store: %w", err)
		}
		defer src.bolt.Close()
	}

	cache := eventcache.New(cfg.EventCaching.CachedEventCount)
	var cacheWatermark int64

	refresh := reader.New(cache, newFullReloader(src), replay.Apply, cfg.FlushInterval(), obslog.Component(logger, "reader"))

	trip := tripswitch.New(tripswitch.Config{
		Mode:           tripswitch.ModeFailFast,
		WhenTrippedErr: fmt.Errorf("readerd: node quarantined after an unrecoverable failure"),
		OnTrip:         func() { metrics.ObserveTripSwitch(true) },
	}, obslog.Component(logger, "tripswitch"))

	converter := status.New(status.Config{
		IncludeInnerExceptions:             cfg.ErrorHandling.IncludeInnerExceptions,
		OverrideInternalServerErrors:       cfg.ErrorHandling.OverrideInternalServerErrors,
		InternalServerErrorMessageOverride: cfg.ErrorHandling.InternalServerErrorMessageOverride,
	})

	bootstrapCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	refresh.Tick(bootstrapCtx)
	cancel()
	if err := refresh.NotifyQueryMethodCalled(); err != nil {
		return fmt.Errorf("readerd: initial replica load failed: %w", err)
	}
	log.Info("initial replica loaded")

	server := wire.New(
		wire.Config{
			JWTSecret:      cfg.Server.JWTSecret,
			MetricsEnabled: cfg.Server.MetricsEnabled,
			TripOn:         func(err error) bool { return errors.Is(err, errRefreshInterrupted) },
		},
		readOnlyEvents{},
		nil,
		readerQuerySource{rl: refresh},
		trip,
		converter,
		obslog.Component(logger, "wire"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		refresh.Run(gctx)
		return nil
	})
	g.Go(func() error {
		ticker := time.NewTicker(cfg.FlushInterval())
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := pollStorage(src, cache, &cacheWatermark); err != nil {
					log.WithError(err).Error("poll of durable log failed")
				}
			}
		}
	})
	g.Go(func() error {
		if err := server.Start(":" + cfg.Server.Port); err != nil {
			trip.Trip()
			return err
		}
		return nil
	})

	<-gctx.Done()
	log.Info("shutting down readerd")

	if err := server.Shutdown(cfg.ShutdownDelay()); err != nil {
		log.WithError(err).Error("server shutdown did not complete cleanly")
	}

	return g.Wait()
}

// errRefreshInterrupted tags a stashed refresh failure re-raised to a query,
// distinguishing the reader's trip path from ordinary per-request errors
// (unknown user, unknown entity type) that must never actuate the switch.
var errRefreshInterrupted = errors.New("readerd: replica refresh failed")

// readerQuerySource adapts reader.RefreshLoop to wire.QuerySource. Queries
// are served through the RefreshLoop itself, whose read methods hold the
// replica lock, rather than a bare *model.AccessModel snapshot.
type readerQuerySource struct {
	rl *reader.RefreshLoop
}

func (r readerQuerySource) NotifyQueryMethodCalled() error {
	if err := r.rl.NotifyQueryMethodCalled(); err != nil {
		return fmt.Errorf("%w: %v", errRefreshInterrupted, err)
	}
	return nil
}

func (r readerQuerySource) Model() wire.QueryModel { return r.rl }
