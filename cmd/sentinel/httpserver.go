package main

import (
	"context"
	"errors"
	"log"
	"net/http"
)

// gracefulServer wraps net/http.Server with a start/stop pair matching
// the other services' Start(ctx)/Stop() lifecycle so main can shut every
// component down the same way.
type gracefulServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server
}

func (g *gracefulServer) start() {
	g.srv = &http.Server{Addr: g.addr, Handler: g.handler}
	go func() {
		log.Printf("health HTTP server listening on %s", g.addr)
		if err := g.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("health HTTP server error: %v", err)
		}
	}()
}

func (g *gracefulServer) stop(ctx context.Context) {
	if err := g.srv.Shutdown(ctx); err != nil {
		log.Printf("health HTTP server shutdown error: %v", err)
	}
}
