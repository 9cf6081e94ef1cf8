package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"smart-tracker/internal/infrastructure/logger"
)

type HTTPOptions struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type HTTPServer struct {
	handler http.Handler
	opts    HTTPOptions
	logger  logger.Logger
	srv     *http.Server
}

var _ Server = (*HTTPServer)(nil)

func NewHTTPServer(handler http.Handler, opts HTTPOptions, logger logger.Logger) *HTTPServer {
	return &HTTPServer{
		handler: handler,
		opts:    opts,
		logger:  logger.WithField("component", "http"),
		srv: &http.Server{
			Addr:         opts.Addr,
			Handler:      handler,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
			IdleTimeout:  opts.IdleTimeout,
		},
	}
}

func (h *HTTPServer) Start(ctx context.Context) error {
	var eg errgroup.Group
	eg.Go(func() error {
		h.logger.Infof("listening on %s", h.opts.Addr)
		err := h.srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}

		return nil
	})

	return eg.Wait()
}

func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("shutting down")
	return h.srv.Shutdown(ctx)
}
