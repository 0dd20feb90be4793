// Command accessd is the writer node: it owns the live access model, accepts
// mutations over HTTP, validates and durably records them, and serves
// queries against its own up-to-the-request state. It uses cobra for the
// command surface, viper for layered configuration, echo for the HTTP
// server, and signal-driven graceful shutdown.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/evalgo/accessctl/cache/redis"
	"github.com/evalgo/accessctl/config"
	"github.com/evalgo/accessctl/distribute"
	"github.com/evalgo/accessctl/event"
	"github.com/evalgo/accessctl/eventbuf"
	"github.com/evalgo/accessctl/eventcache"
	"github.com/evalgo/accessctl/flush"
	"github.com/evalgo/accessctl/internal/obslog"
	"github.com/evalgo/accessctl/model"
	"github.com/evalgo/accessctl/persist/bolt"
	"github.com/evalgo/accessctl/persist/neo4j"
	"github.com/evalgo/accessctl/persist/postgres"
	"github.com/evalgo/accessctl/replay"
	"github.com/evalgo/accessctl/status"
	"github.com/evalgo/accessctl/telemetry"
	"github.com/evalgo/accessctl/tripswitch"
	"github.com/evalgo/accessctl/validate"
	"github.com/evalgo/accessctl/wire"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "accessd",
	Short: "writer node for the access-control event pipeline",
	RunE:  runWriter,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./accessd.yaml)")
	rootCmd.PersistentFlags().String("port", "", "HTTP listen port")
	rootCmd.PersistentFlags().String("postgres-dsn", "", "PostgreSQL connection string")
	rootCmd.PersistentFlags().String("bolt-path", "", "bbolt database file path")
	rootCmd.PersistentFlags().String("jwt-secret", "", "JWT signing secret for the protected API group")
	rootCmd.PersistentFlags().Bool("dependency-free", false, "synthesize missing prerequisites instead of rejecting mutations")

	viper.BindPFlag("server.port", rootCmd.PersistentFlags().Lookup("port"))
	viper.BindPFlag("storage.postgres_dsn", rootCmd.PersistentFlags().Lookup("postgres-dsn"))
	viper.BindPFlag("storage.bolt_path", rootCmd.PersistentFlags().Lookup("bolt-path"))
	viper.BindPFlag("server.jwt_secret", rootCmd.PersistentFlags().Lookup("jwt-secret"))
	viper.BindPFlag("dependency_free", rootCmd.PersistentFlags().Lookup("dependency-free"))
}

func initConfig() {
	config.Defaults(viper.GetViper())
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName("accessd")
	}
	viper.SetEnvPrefix("ACCESSD")
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("using config file:", viper.ConfigFileUsed())
	}
}

func runWriter(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return fmt.Errorf("accessd: load config: %w", err)
	}

	logger := obslog.New(obslog.Config{Level: logrus.InfoLevel, Format: obslog.FormatText, Service: "accessd"})
	log := obslog.Component(logger, "main")

	prov := telemetry.Init(telemetry.Config{
		ServiceName: "accessd",
		Enabled:     cfg.Telemetry.Enabled,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	defer prov.Shutdown(context.Background())
	metrics := telemetry.NewMetrics("accessctl_accessd")

	am := model.New()

	boltDB, err := bolt.Open(cfg.Storage.BoltPath)
	if err != nil {
		return fmt.Errorf("accessd: open bolt store: %w", err)
	}
	defer boltDB.Close()

	var pgDB *postgres.DB
	if cfg.Storage.PostgresDSN != "" {
		pgDB, err = postgres.Open(context.Background(), cfg.Storage.PostgresDSN)
		if err != nil {
			return fmt.Errorf("accessd: open postgres: %w", err)
		}
		defer pgDB.Close()
	}

	var neoMirror *neo4j.Mirror
	if cfg.Storage.Neo4jURI != "" {
		neoMirror, err = neo4j.Open(context.Background(), cfg.Storage.Neo4jURI, cfg.Storage.Neo4jUser, cfg.Storage.Neo4jPass, "")
		if err != nil {
			return fmt.Errorf("accessd: open neo4j mirror: %w", err)
		}
		defer neoMirror.Close(context.Background())
	}

	var redisCache *redis.Cache
	if cfg.Storage.RedisAddr != "" {
		redisCache, err = redis.Open(cfg.Storage.RedisAddr, int64(cfg.EventCaching.CachedEventCount))
		if err != nil {
			return fmt.Errorf("accessd: open redis cache: %w", err)
		}
		defer redisCache.Close()
	}

	lastSeq, err := bootstrapModel(context.Background(), am, pgDB, boltDB)
	if err != nil {
		return fmt.Errorf("accessd: replay persisted events: %w", err)
	}
	log.WithField("last_seq", lastSeq).Info("replayed durable event log")

	strat := newCompositeStrategy(cfg.FlushStrategy.SizeLimit, cfg.FlushInterval())
	defer strat.Close()

	buf := eventbuf.New(strat, obslog.Component(logger, "eventbuf"))
	buf.Bootstrap(lastSeq)

	validator := validate.New(am, cfg.DependencyFree, obslog.Component(logger, "validate"))

	cache := eventcache.New(cfg.EventCaching.CachedEventCount)

	persisters := []distribute.Persister{boltDB, cache}
	if pgDB != nil {
		persisters = append(persisters, pgDB)
	}
	if neoMirror != nil {
		persisters = append(persisters, neoMirror)
	}
	if redisCache != nil {
		persisters = append(persisters, redisCache)
	}
	dist := distribute.New(obslog.Component(logger, "distribute"), persisters...)

	trip := tripswitch.New(tripswitch.Config{
		Mode:           tripswitch.ModeFailFast,
		WhenTrippedErr: fmt.Errorf("accessd: node quarantined after an unrecoverable failure"),
		OnTrip:         func() { metrics.ObserveTripSwitch(true) },
	}, obslog.Component(logger, "tripswitch"))

	flusher := flush.New(buf, strat, dist, trip, metrics, obslog.Component(logger, "flush"))

	converter := status.New(status.Config{
		IncludeInnerExceptions:             cfg.ErrorHandling.IncludeInnerExceptions,
		OverrideInternalServerErrors:       cfg.ErrorHandling.OverrideInternalServerErrors,
		InternalServerErrorMessageOverride: cfg.ErrorHandling.InternalServerErrorMessageOverride,
	})

	api := newWriterAPI(validator, buf)
	server := wire.New(
		wire.Config{JWTSecret: cfg.Server.JWTSecret, MetricsEnabled: cfg.Server.MetricsEnabled},
		api,
		nil,
		writerQuerySource{api: api, m: am},
		trip,
		converter,
		obslog.Component(logger, "wire"),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		flusher.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := server.Start(":" + cfg.Server.Port); err != nil {
			trip.Trip()
			return err
		}
		return nil
	})

	<-gctx.Done()
	log.Info("shutting down accessd")

	if err := server.Shutdown(cfg.ShutdownDelay()); err != nil {
		log.WithError(err).Error("server shutdown did not complete cleanly")
	}

	if err := flusher.Flush(context.Background()); err != nil {
		log.WithError(err).Error("final drain flush failed")
	}

	return g.Wait()
}

// bootstrapModel replays the durable event log into a fresh model, preferring
// postgres when configured since it is the operator's system of record; bolt
// is always read as the local fallback otherwise. Both logs are written on
// every flush (see the persisters slice above), so either alone is a
// complete replay source.
func bootstrapModel(ctx context.Context, am *model.AccessModel, pgDB *postgres.DB, boltDB *bolt.DB) (int64, error) {
	apply := func(ev event.Event) error { return replay.Apply(am, ev) }
	if pgDB != nil {
		return postgres.Load(ctx, pgDB, apply)
	}
	return bolt.Load(boltDB, apply)
}
