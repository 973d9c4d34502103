package router

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/justinas/alice"
	"github.com/lintang-b-s/transitx/pkg/concurrent"
	"github.com/lintang-b-s/transitx/pkg/http/router/controllers"
	http_server "github.com/lintang-b-s/transitx/pkg/http/server"
	"github.com/mailru/easygo/netpoll"
	"github.com/rs/cors"
	"go.uber.org/zap"
)

// handleWebsocket serves the live-vehicles stream. Connections are
// registered with epoll via easygo/netpoll so thousands of mostly idle
// subscribers do not each hold a read goroutine, and reads are handled by
// a bounded goroutine pool.
// ref: https://sergey.kamardin.org/articles/million-websocket-and-go/
func (api *API) handleWebsocket(ctx context.Context, config http_server.Config,
	trackerService controllers.TrackerService,
	useRateLimit bool, errChan chan error,
) {
	var err error

	wsRouter := http.NewServeMux()

	corsHandler := cors.New(cors.Options{ //nolint:gocritic // ignore
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, //nolint:mnd // ignore

	})

	var mwChain []alice.Constructor
	if useRateLimit {
		mwChain = append(mwChain, corsHandler.Handler, api.recoverPanic,
			RealIP, Heartbeat("healthz"), Logger(api.log), Labels, Limit)
	} else {
		mwChain = append(mwChain, corsHandler.Handler, api.recoverPanic,
			RealIP, Heartbeat("healthz"), Logger(api.log), Labels)
	}
	mainMwChain := alice.New(mwChain...).Then(wsRouter)
	srv := http_server.New(ctx, mainMwChain, config, true)
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		errChan <- err
		return
	}
	api.log.Info(fmt.Sprintf("live vehicles websocket API run on port %d", config.WebsocketPort))

	acceptDesc := netpoll.Must(netpoll.HandleListener(
		ln, netpoll.EventRead|netpoll.EventOneShot,
	))

	api.poller, err = netpoll.New(nil)
	if err != nil {
		errChan <- err
		return
	}

	api.pool = concurrent.NewPool(128, 1)

	api.hub = controllers.NewHub(api.pool, trackerService)

	api.pool.Spawn(10)

	// accept is a channel to signal about next incoming connection Accept()
	// results.
	accept := make(chan error, 1)

	api.poller.Start(acceptDesc, func(conn netpoll.Event) {
		// The listener fd sits in the epoll interest list; on readiness a
		// pooled goroutine runs Accept so the poll loop never blocks.
		defer api.poller.Resume(acceptDesc)
		err := api.pool.ScheduleTimeout(1000*time.Millisecond, func() {
			conn, err := ln.Accept()
			if err != nil {
				accept <- err
				return
			}

			accept <- nil
			api.handle(conn)
		})
		if err == nil {
			err = <-accept
		}
		if err != nil {
			// pool saturated or transient accept error, cool down briefly
			if err != concurrent.ErrScheduleTimeout {
				delay := 5 * time.Millisecond
				api.log.Sugar().Infof("accept error: %v; retrying in %s", err, delay)
				time.Sleep(delay)
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				delay := 5 * time.Millisecond
				api.log.Sugar().Infof("accept error: %v; retrying in %s", err, delay)
				time.Sleep(delay)
			} else {
				api.log.Sugar().Fatalf("accept error: %v", err)
			}
		}

	})

	<-ctx.Done()

	ln.Close()

	api.hub.RemoveAllUser()
	api.poller.Stop(acceptDesc)

	api.pool.Close()

	api.log.Info("websocket server stopped")
}

func (api *API) handle(conn net.Conn) {

	br := bufio.NewReader(conn)

	rw := struct {
		io.Reader
		io.Writer
	}{br, conn}

	hs, err := ws.Upgrade(rw)
	if err != nil {
		api.log.Info("upgrade error", zap.Error(err), zap.String("connection", nameConn(conn)))
		conn.Close()
		return
	}

	api.log.Info("established websocket connection", zap.String("connection", nameConn(conn)),
		zap.String("protocol", hs.Protocol))

	user := api.hub.Register(conn)

	desc := netpoll.Must(netpoll.HandleRead(conn))

	api.poller.Start(desc, func(ev netpoll.Event) {
		if ev&(netpoll.EventReadHup|netpoll.EventHup) != 0 {
			// peer closed its end of the socket
			api.log.Info("user disconnected from websocket server")

			api.poller.Stop(desc)
			api.hub.Remove(user)
			return
		}

		// handle the poll request on a pooled goroutine
		api.pool.Schedule(func() {
			err := user.LiveVehicles()
			if err != nil {
				api.log.Error("error serving live vehicles", zap.Error(err))
				api.poller.Stop(desc)
				api.hub.Remove(user)
			}
		})

	})
}

func nameConn(conn net.Conn) string {
	return conn.LocalAddr().String() + " > " + conn.RemoteAddr().String()
}
