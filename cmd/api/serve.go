package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"time"
)

// serve runs srv on ln until ctx is done, then drains in-flight requests for up to
// timeout. Request contexts derive from ctx, so a handler waiting on a synthesis
// sees the shutdown at once and answers instead of holding Shutdown open.
// A drain that overruns timeout is logged and the remaining connections are closed.
func serve(ctx context.Context, srv *http.Server, ln net.Listener, timeout time.Duration) error {
	srv.BaseContext = func(net.Listener) context.Context { return ctx }

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown did not complete within %v: %v", timeout, err)
		_ = srv.Close()
	}
	<-errCh
	return nil
}
