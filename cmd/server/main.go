// main wires the service together: configuration, infrastructure clients,
// domain services, the HTTP API and the extraction worker. Business logic
// lives in the internal packages; main only decides what talks to what.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"dinemate/internal/extraction"
	grouphandler "dinemate/internal/group/handler"
	groupservice "dinemate/internal/group/service"
	groupstore "dinemate/internal/group/store"
	"dinemate/internal/jwttoken"
	"dinemate/internal/platform/config"
	"dinemate/internal/platform/httpserver"
	"dinemate/internal/platform/kafka"
	"dinemate/internal/platform/kafka/consumer"
	"dinemate/internal/platform/logger"
	"dinemate/internal/platform/metrics"
	"dinemate/internal/platform/postgres"
	"dinemate/internal/platform/redis"
	"dinemate/internal/preference/aggregator"
	preferencehandler "dinemate/internal/preference/handler"
	preferencemetrics "dinemate/internal/preference/metrics"
	"dinemate/internal/preference/publisher"
	"dinemate/internal/preference/resolver"
	preferenceservice "dinemate/internal/preference/service"
	preferencestore "dinemate/internal/preference/store"
	restaurantclient "dinemate/internal/restaurant/client"
	restauranthandler "dinemate/internal/restaurant/handler"
	restaurantmetrics "dinemate/internal/restaurant/metrics"
	restaurantservice "dinemate/internal/restaurant/service"
	httptransport "dinemate/internal/transport/http"
	userhandler "dinemate/internal/user/handler"
	userservice "dinemate/internal/user/service"
	userstore "dinemate/internal/user/store"
	id "dinemate/pkg/domain"
)

const shutdownTimeout = 10 * time.Second

// membershipHolder breaks the construction cycle between the group and
// preference services: the preference service needs a membership provider
// before the group service exists.
type membershipHolder struct {
	svc *groupservice.Service
}

func (h *membershipHolder) CurrentMembers(ctx context.Context, groupID id.GroupID) ([]id.UserID, error) {
	return h.svc.CurrentMembers(ctx, groupID)
}

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	db, err := postgres.Open(cfg.Postgres)
	if err != nil {
		log.Error("postgres unavailable", "error", err)
		os.Exit(1)
	}
	if db != nil {
		defer db.Close()
	} else {
		log.Warn("no POSTGRES_DSN configured, running on in-memory stores")
	}

	redisClient, err := redis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	events, err := kafka.NewPublisher(cfg.Kafka, log)
	if err != nil {
		log.Error("kafka unavailable", "error", err)
		os.Exit(1)
	}
	defer events.Close()

	platformMetrics := metrics.New()
	prefMetrics := preferencemetrics.New()
	restMetrics := restaurantmetrics.New()

	jwtService := jwttoken.NewJWTService(cfg.Server.JWTSigningKey, cfg.Server.JWTIssuer, cfg.Server.JWTAudience)

	var (
		users    userstore.UserStore
		groups   groupstore.GroupStore
		messages groupstore.MessageStore
		signals  preferencestore.SignalStore
	)
	if db != nil {
		users = userstore.NewPostgresUserStore(db)
		groups = groupstore.NewPostgresGroupStore(db)
		messages = groupstore.NewPostgresMessageStore(db)
		signals = preferencestore.NewPostgresSignalStore(db)
	} else {
		users = userstore.NewInMemoryUserStore()
		groups = groupstore.NewInMemoryGroupStore()
		messages = groupstore.NewInMemoryMessageStore()
		signals = preferencestore.NewInMemorySignalStore()
	}

	userService, err := userservice.New(users, jwtService, cfg.Server.TokenTTL,
		userservice.WithLogger(log))
	if err != nil {
		log.Error("build user service", "error", err)
		os.Exit(1)
	}

	res, err := resolver.New(resolver.Policy{
		DecayHalfLife:   cfg.Engine.DecayHalfLife,
		ConfidenceFloor: cfg.Engine.ConfidenceFloor,
		FlipMargin:      cfg.Engine.FlipMargin,
	})
	if err != nil {
		log.Error("build resolver", "error", err)
		os.Exit(1)
	}

	membership := &membershipHolder{}
	preferenceService, err := preferenceservice.New(signals, membership, res, aggregator.New(),
		preferenceservice.WithLogger(log),
		preferenceservice.WithMetrics(prefMetrics))
	if err != nil {
		log.Error("build preference service", "error", err)
		os.Exit(1)
	}

	seeder := preferenceservice.NewSeeder(userService, preferenceService, log)

	groupService, err := groupservice.New(groups, messages,
		groupservice.WithLogger(log),
		groupservice.WithProfileInvalidator(preferenceService),
		groupservice.WithPreferenceSeeder(seeder),
		groupservice.WithEventSink(events, cfg.Kafka.TopicMessages))
	if err != nil {
		log.Error("build group service", "error", err)
		os.Exit(1)
	}
	membership.svc = groupService

	publisherOpts := []publisher.Option{
		publisher.WithLogger(log),
		publisher.WithMetrics(prefMetrics),
		publisher.WithEventSink(events, cfg.Kafka.TopicProfiles),
	}
	if redisClient != nil {
		publisherOpts = append(publisherOpts,
			publisher.WithSharedCache(publisher.NewRedisProfileCache(redisClient, cfg.Publisher.CacheTTL)))
	}
	profiles, err := publisher.New(preferenceService, cfg.Publisher, publisherOpts...)
	if err != nil {
		log.Error("build profile publisher", "error", err)
		os.Exit(1)
	}
	preferenceService.OnStale(profiles.Invalidate)

	restaurantOpts := []restaurantservice.Option{
		restaurantservice.WithLogger(log),
		restaurantservice.WithMetrics(restMetrics),
	}
	if foursquare := restaurantclient.NewFoursquare(cfg.Search, log); foursquare != nil {
		restaurantOpts = append(restaurantOpts, restaurantservice.WithSearcher(foursquare))
	} else {
		log.Warn("no FOURSQUARE_API_KEY configured, recommendations serve profiles only")
	}
	restaurantService, err := restaurantservice.New(profiles, membership, restaurantOpts...)
	if err != nil {
		log.Error("build restaurant service", "error", err)
		os.Exit(1)
	}

	keyword := extraction.NewKeywordAnalyzer()
	var analyzer extraction.Analyzer = keyword
	if llm := extraction.NewLLMAnalyzer(cfg.Extraction, log); llm != nil {
		analyzer = extraction.NewFallbackAnalyzer(llm, keyword, log)
	}
	worker := extraction.NewWorker(analyzer, preferenceService, log)
	messageConsumer, err := consumer.New(cfg.Kafka, []string{cfg.Kafka.TopicMessages}, worker, log)
	if err != nil {
		log.Error("build extraction consumer", "error", err)
		os.Exit(1)
	}

	router := httptransport.NewRouter(httptransport.RouterConfig{
		Logger:      log,
		Metrics:     platformMetrics,
		JWT:         jwttoken.NewJWTServiceAdapter(jwtService),
		Users:       userhandler.New(userService, log),
		Groups:      grouphandler.New(groupService, log),
		Preferences: preferencehandler.New(preferenceService, profiles, membership, log),
		Restaurants: restauranthandler.New(restaurantService, log),
	})

	srv := httpserver.New(cfg.Server.Addr, router)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting dinemate", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		err := messageConsumer.Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
