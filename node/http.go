package node

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/NethermindEth/katana-go/jsonrpc"
	"github.com/NethermindEth/katana-go/service"
	"github.com/NethermindEth/katana-go/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/sourcegraph/conc"
)

type httpService struct {
	srv      *http.Server
	listener net.Listener
}

var _ service.Service = (*httpService)(nil)

func (h *httpService) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	var wg conc.WaitGroup
	defer wg.Wait()
	wg.Go(func() {
		if err := h.srv.Serve(h.listener); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	})

	select {
	case <-ctx.Done():
		return h.srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}

func newHTTPService(listener net.Listener, handler http.Handler) *httpService {
	return &httpService{
		srv: &http.Server{
			Addr:    listener.Addr().String(),
			Handler: handler,
			// ReadTimeout also sets ReadHeaderTimeout and IdleTimeout.
			ReadTimeout: 30 * time.Second,
		},
		listener: listener,
	}
}

// makeRPCOverHTTP serves the JSON-RPC API on / and /rpc/v0_6 to browsers of any origin.
func makeRPCOverHTTP(listener net.Listener, jsonrpcServer *jsonrpc.Server, log utils.SimpleLogger,
	withMetrics bool,
) *httpService {
	httpHandler := jsonrpc.NewHTTP(jsonrpcServer, log)
	if withMetrics {
		httpHandler = httpHandler.WithListener(makeHTTPMetrics())
	}
	mux := http.NewServeMux()
	mux.Handle("/", httpHandler)
	mux.Handle("/rpc/v0_6", httpHandler)
	return newHTTPService(listener, cors.AllowAll().Handler(mux))
}

func makeRPCOverWebsocket(listener net.Listener, jsonrpcServer *jsonrpc.Server, log utils.SimpleLogger,
	withMetrics bool,
) *httpService {
	wsHandler := jsonrpc.NewWebsocket(jsonrpcServer, log)
	if withMetrics {
		wsHandler = wsHandler.WithListener(makeWSMetrics())
	}
	mux := http.NewServeMux()
	mux.Handle("/", wsHandler)
	mux.Handle("/ws/v0_6", wsHandler)
	return newHTTPService(listener, mux)
}

func makeMetrics(listener net.Listener) *httpService {
	return newHTTPService(listener,
		promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{Registry: prometheus.DefaultRegisterer}))
}

func makePPROF(listener net.Listener) *httpService {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return newHTTPService(listener, mux)
}
