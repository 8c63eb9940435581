// Command proxy runs the temporal-payload-proxy: it terminates client
// gRPC connections, rewrites payload fields of intercepted calls per the
// configured codec strategy, and forwards everything else untouched to a
// Temporal-compatible backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/codec"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/codec/batching"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/codec/inline"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/config"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/descriptor"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/grpcproxy"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/logging"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/payloadindex"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/pipeline"
	"github.com/anthonyhawkins-labs/temporal-payload-proxy/internal/wire"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to yaml config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "temporal-payload-proxy: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "temporal-payload-proxy: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store := descriptor.New()
	ctx := context.Background()
	switch {
	case cfg.Descriptor.FilePath != "":
		err = store.LoadFile(cfg.Descriptor.FilePath)
	case cfg.Descriptor.ReflectAddress != "":
		err = store.LoadFromReflection(ctx, cfg.Descriptor.ReflectAddress)
	default:
		err = fmt.Errorf("no descriptor source configured")
	}
	if err != nil {
		logger.Fatal("failed to load descriptors", zap.Error(err))
	}

	idx := payloadindex.Build(store.Files(), payloadindex.Options{
		ScanPackagePrefix:       cfg.Index.ScanPackagePrefix,
		ExcludeSearchAttributes: cfg.Index.ExcludeSearchAttributes,
	})

	factory, err := buildCodecFactory(cfg)
	if err != nil {
		logger.Fatal("failed to build codec", zap.Error(err))
	}

	p := &pipeline.Pipeline{
		Methods:  store,
		Index:    idx,
		Rewriter: &wire.Rewriter{Index: idx, Messages: store},
		Codecs:   factory,
	}

	proxy := grpcproxy.New(p, cfg.Server.BackendAddress, logger)

	logger.Info("temporal-payload-proxy listening",
		zap.String("listen_address", cfg.Server.ListenAddress),
		zap.String("backend_address", cfg.Server.BackendAddress),
		zap.String("codec_strategy", cfg.Codec.Strategy),
	)

	server := &http.Server{
		Addr:    cfg.Server.ListenAddress,
		Handler: h2c.NewHandler(proxy, &http2.Server{}),
	}
	if err := server.ListenAndServe(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildCodecFactory(cfg *config.Schema) (codec.Factory, error) {
	switch cfg.Codec.Strategy {
	case "batched-external-store":
		client := redis.NewClient(&redis.Options{Addr: cfg.Redis.Address})
		store := batching.NewRedisStore(client, "temporal-payload-proxy:")
		return batching.NewFactory(store), nil
	case "default-inline-transform", "":
		return inline.NewFactory(func(_ context.Context, _ codec.Context, _ codec.Direction, body []byte) ([]byte, error) {
			return body, nil
		}), nil
	default:
		return nil, fmt.Errorf("unknown codec strategy %q", cfg.Codec.Strategy)
	}
}

