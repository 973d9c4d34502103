package http

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	http_router "github.com/lintang-b-s/transitx/pkg/http/router"
	"github.com/lintang-b-s/transitx/pkg/http/router/controllers"
	http_server "github.com/lintang-b-s/transitx/pkg/http/server"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type Server struct {
	Log *zap.Logger
}

func NewServer(log *zap.Logger) *Server {
	return &Server{Log: log}
}

// Use starts the read API (REST + websocket + proxy) in the errgroup.
func (s *Server) Use(
	ctx context.Context,
	g *errgroup.Group,
	log *zap.Logger,

	useRateLimit bool,
	trackerService controllers.TrackerService,
	metricsHandler http.Handler,

) (*Server, error) {
	viper.SetDefault("API_PORT", 6060)
	viper.SetDefault("WEBSOCKET_PORT", 6666)
	viper.SetDefault("PROXY_PORT", 6767)
	viper.SetDefault("API_TIMEOUT", "1000s")

	config := http_server.Config{
		Port:          viper.GetInt("API_PORT"),
		WebsocketPort: viper.GetInt("WEBSOCKET_PORT"),
		ProxyPort:     viper.GetInt("PROXY_PORT"),
		Timeout:       viper.GetDuration("API_TIMEOUT"),
	}

	server := http_router.NewAPI(log)

	g.Go(func() error {
		return server.Run(
			ctx, config, log,
			useRateLimit, trackerService, metricsHandler,
		)
	})

	return s, nil
}

// GracefulShutdown blocks until an interrupt or terminate signal arrives.
func GracefulShutdown() os.Signal {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	return <-quit
}
