package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port          int
	WebsocketPort int
	ProxyPort     int
	Timeout       time.Duration
}

// New builds the http.Server with the shared timeout settings. isWebsocket
// selects the websocket listen port.
func New(ctx context.Context, handler http.Handler, config Config, isWebsocket bool) *http.Server {
	viper.SetDefault("HTTP_SERVER_READ_TIMEOUT", 10*time.Second)
	viper.SetDefault("HTTP_SERVER_WRITE_TIMEOUT", 10*time.Second)
	viper.SetDefault("HTTP_SERVER_IDLE_TIMEOUT", time.Minute)
	viper.SetDefault("HTTP_SERVER_READ_HEADER_TIMEOUT", 5*time.Second)

	port := config.Port
	if isWebsocket {
		port = config.WebsocketPort
	}

	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: handler,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
		ReadTimeout:       viper.GetDuration("HTTP_SERVER_READ_TIMEOUT"),
		WriteTimeout:      config.Timeout + viper.GetDuration("HTTP_SERVER_WRITE_TIMEOUT"),
		IdleTimeout:       viper.GetDuration("HTTP_SERVER_IDLE_TIMEOUT"),
		ReadHeaderTimeout: viper.GetDuration("HTTP_SERVER_READ_HEADER_TIMEOUT"),
	}
}
