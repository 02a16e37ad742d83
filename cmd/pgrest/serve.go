package pgrest

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/edgeflare/pgrest/pkg/client"
	"github.com/edgeflare/pgrest/pkg/httputil"
	"github.com/edgeflare/pgrest/pkg/metrics"
)

var (
	serveListenAddr   string
	prometheusEnabled bool
	prometheusAddr    string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve resources over HTTP",
	Long:  `Starts an HTTP server that proxies resource reads through the client, so callers get caching, retries and rate limiting without linking the library`,
	Run:   runServe,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveListenAddr, "listen", "l", ":8080", "HTTP listen address")
	f.BoolVar(&prometheusEnabled, "metrics", true, "Enable Prometheus metrics server")
	f.StringVar(&prometheusAddr, "metrics-addr", ":9100", "Prometheus metrics server address")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) {
	c, err := buildClient()
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	if prometheusEnabled {
		metrics.StartPrometheusServer(ctx, &wg, &metrics.PromServerOpts{Addr: prometheusAddr})
	}

	mux := http.NewServeMux()
	mux.Handle("GET /{resource}", httputil.ResultHandler(func(r *http.Request) *client.QueryBuilder {
		return queryFromRequest(c, r)
	}))
	mux.Handle("GET /{resource}/{id}", httputil.ResultHandler(func(r *http.Request) *client.QueryBuilder {
		return c.From(r.PathValue("resource")).Eq("id", r.PathValue("id")).Single()
	}))

	server := &http.Server{
		Addr:              serveListenAddr,
		Handler:           httputil.RequestID(mux),
		ReadHeaderTimeout: 3 * time.Second,
	}

	go func() {
		log.Printf("Serving on %s", serveListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}
	wg.Wait()
	log.Println("Server gracefully stopped")
}

// queryFromRequest builds a query from PostgREST-style request parameters.
// Anything that is not select/order/limit/offset is treated as a
// column=op.value filter; malformed values surface as 400 through the
// builder's own validation.
func queryFromRequest(c *client.Client, r *http.Request) *client.QueryBuilder {
	b := c.From(r.PathValue("resource"))
	q := r.URL.Query()

	if sel := q.Get("select"); sel != "" {
		b.Select(strings.Split(sel, ",")...)
	}
	for column, values := range q {
		switch column {
		case "select", "order", "limit", "offset":
			continue
		}
		for _, v := range values {
			op, value, found := strings.Cut(v, ".")
			if !found {
				op, value = "eq", v
			}
			b.Filter(column, op, value)
		}
	}
	if order := q.Get("order"); order != "" {
		for _, spec := range strings.Split(order, ",") {
			column, opts := parseOrderSpec(spec)
			b.Order(column, &opts)
		}
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			n = -1
		}
		b.Limit(n)
	}
	if offset := q.Get("offset"); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			n = -1
		}
		b.Offset(n)
	}
	return b
}
