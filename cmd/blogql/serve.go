package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"

	auth "github.com/hanpama/blogql/internal/auth"
	blog "github.com/hanpama/blogql/internal/blog"
	blogrt "github.com/hanpama/blogql/internal/blogrt"
	config "github.com/hanpama/blogql/internal/config"
	eventbus "github.com/hanpama/blogql/internal/eventbus"
	executor "github.com/hanpama/blogql/internal/executor"
	introspection "github.com/hanpama/blogql/internal/introspection"
	logging "github.com/hanpama/blogql/internal/logging"
	metrics "github.com/hanpama/blogql/internal/metrics"
	otel "github.com/hanpama/blogql/internal/otel"
	server "github.com/hanpama/blogql/internal/server"
	store "github.com/hanpama/blogql/internal/store"
)

const healthInterval = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP GraphQL server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	if err := cfg.RequireSecrets(); err != nil {
		return err
	}

	eventbus.Use(eventbus.New())
	defer logging.Subscribe(a.logger)()
	m := metrics.New()
	defer m.Subscribe()()
	shutdownTracing, err := otel.Setup(cfg.OTel.Endpoint, cfg.OTel.Service)
	if err != nil {
		return fmt.Errorf("otel setup: %w", err)
	}
	defer func() { _ = shutdownTracing(context.Background()) }()

	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer st.Close()
	issuer, err := auth.NewIssuer(cfg.Auth)
	if err != nil {
		return err
	}
	svc := blog.NewService(st, issuer, blog.WithFilterMaxDepth(cfg.Filter.MaxDepth))

	health := server.NewHealth(st.Ping)
	mux, err := newMux(cfg, svc, a.logger, m, health)
	if err != nil {
		return err
	}
	srv := &http.Server{Addr: cfg.Server.Addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	var grpcLis net.Listener
	if cfg.GRPC.Addr != "" {
		if grpcLis, err = net.Listen("tcp", cfg.GRPC.Addr); err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		health.Run(ctx, healthInterval)
		return nil
	})
	g.Go(func() error {
		a.logger.Info("GraphQL server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	if grpcLis != nil {
		gs := grpc.NewServer()
		health.Register(gs)
		g.Go(func() error {
			a.logger.Info("gRPC health service listening", zap.String("addr", cfg.GRPC.Addr))
			return gs.Serve(grpcLis)
		})
		g.Go(func() error {
			<-ctx.Done()
			gs.GracefulStop()
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout+5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// newMux wires the GraphQL handler, the metrics endpoint and /healthz.
func newMux(cfg *config.Config, svc *blog.Service, logger *zap.Logger, m *metrics.Metrics, health *server.Health) (*http.ServeMux, error) {
	sch, err := blogrt.Schema()
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	var rt executor.Runtime = blogrt.NewRuntime(blogrt.NewBlogRegistry(svc),
		blogrt.WithLogger(logger),
		blogrt.WithConcurrency(cfg.Runtime.Concurrency),
	)
	if cfg.Server.Introspection {
		if rt, sch, err = introspection.Wrap(rt, sch); err != nil {
			return nil, fmt.Errorf("introspection: %w", err)
		}
	}

	st, issuer := svc.Store(), svc.Issuer()
	opts := []server.Option{
		server.WithTimeout(cfg.Server.Timeout),
		server.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		server.WithGraphiQL(cfg.Server.GraphiQL),
		server.WithRequestContext(func(ctx context.Context, r *http.Request) context.Context {
			return blogrt.RequestContext(ctx, st, issuer, cfg.Loader, r.Header.Get("Authorization"))
		}),
	}
	if cfg.Server.Pretty {
		opts = append(opts, server.WithPretty())
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		opts = append(opts, server.WithCORS(cfg.Server.CORSOrigins...))
	}
	h, err := server.New(rt, sch, opts...)
	if err != nil {
		return nil, fmt.Errorf("server init: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/graphql", h)
	mux.Handle("/healthz", health)
	if cfg.Metrics.Path != "" {
		mux.Handle(cfg.Metrics.Path, m.Handler())
	}
	return mux, nil
}
