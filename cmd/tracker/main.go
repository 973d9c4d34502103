package main

import (
	"context"
	"flag"
	"time"

	"github.com/lintang-b-s/transitx/pkg/concurrent"
	"github.com/lintang-b-s/transitx/pkg/datastructure"
	"github.com/lintang-b-s/transitx/pkg/http"
	"github.com/lintang-b-s/transitx/pkg/http/usecases"
	"github.com/lintang-b-s/transitx/pkg/logger"
	"github.com/lintang-b-s/transitx/pkg/matcher"
	"github.com/lintang-b-s/transitx/pkg/metrics"
	"github.com/lintang-b-s/transitx/pkg/publisher"
	"github.com/lintang-b-s/transitx/pkg/routemodel"
	"github.com/lintang-b-s/transitx/pkg/spatialindex"
	"github.com/lintang-b-s/transitx/pkg/tracker"
	"github.com/lintang-b-s/transitx/pkg/util"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	modelPath             = flag.String("model", "./data/routemodel.json.bz2", "route-model snapshot file")
	leafBoundingBoxRadius = flag.Float64("leaf_bounding_box_radius", 0.05, "leaf node (r-tree) bounding box radius in km")
	numWorkers            = flag.Int("workers", 8, "avl processing workers")
	useRateLimit          = flag.Bool("rate_limit", true, "rate limit the read API")
)

func main() {
	flag.Parse()
	log, err := logger.New()
	if err != nil {
		panic(err)
	}
	if err := util.ReadConfig(); err != nil {
		log.Warn("no config file found, running on defaults", zap.Error(err))
	}

	matcherCfg := matcher.NewConfig()
	trackerCfg := tracker.NewConfig()
	natsCfg := publisher.NewConfig()

	model, err := routemodel.Load(*modelPath, log)
	if err != nil {
		panic(err)
	}

	index := spatialindex.NewIndex()
	index.Build(model, *leafBoundingBoxRadius, log)

	travelTimes := matcher.NewTravelTimes(log, matcherCfg)
	registry := tracker.NewRegistry(trackerCfg)
	cache := tracker.NewSnapshotCache(trackerCfg.EventHistoryMaxSize)
	mets := metrics.New()

	pub, err := publisher.New(log, natsCfg)
	if err != nil {
		panic(err)
	}

	processor := tracker.NewAvlProcessor(log, trackerCfg, matcherCfg, model,
		index, registry, cache, travelTimes, tracker.SystemClock(), pub, mets)
	sweeper := tracker.NewTimeoutSweeper(log, trackerCfg, registry, cache,
		tracker.SystemClock(), pub, mets)

	ctx, cancel := context.WithCancel(context.Background())
	g, ctx := errgroup.WithContext(ctx)

	dispatcher := concurrent.NewKeyedDispatcher[datastructure.AvlReport](*numWorkers, 64)
	dispatcher.Start(ctx, func(report datastructure.AvlReport) {
		start := time.Now()
		if err := processor.ProcessReport(report); err != nil {
			log.Warn("dropping avl report",
				zap.String("vehicleId", report.VehicleID), zap.Error(err))
		}
		mets.ObserveProcessing(time.Since(start))
		mets.SetPredictableVehicles(cache.PredictableCount())
	})

	sub, err := pub.SubscribeAvl(func(report datastructure.AvlReport) {
		dispatcher.Dispatch(report.VehicleID, report)
	})
	if err != nil {
		panic(err)
	}

	g.Go(func() error {
		return sweeper.Run(ctx)
	})

	api := http.NewServer(log)
	trackerService := usecases.NewTrackerService(log, cache, registry, processor)
	if _, err := api.Use(ctx, g, log, *useRateLimit, trackerService, mets.Handler()); err != nil {
		panic(err)
	}

	sig := http.GracefulShutdown()
	log.Info("Transitx tracker stopped", zap.String("signal", sig.String()))

	cancel()
	_ = sub.Unsubscribe()
	dispatcher.Close()
	pub.Close()
	_ = g.Wait()
}
