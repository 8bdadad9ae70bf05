package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"pdfrag/internal/answer"
	"pdfrag/internal/api"
	"pdfrag/internal/chunker"
	"pdfrag/internal/config"
	"pdfrag/internal/domain"
	"pdfrag/internal/embedding"
	"pdfrag/internal/embedding/cache"
	"pdfrag/internal/embedding/openai"
	"pdfrag/internal/embedding/python"
	"pdfrag/internal/extractor"
	"pdfrag/internal/index"
	"pdfrag/internal/llm"
	"pdfrag/internal/logging"
	"pdfrag/internal/metrics"
	"pdfrag/internal/service"
	"pdfrag/internal/summarizer"
	"pdfrag/internal/vectorstore"
	"pdfrag/internal/vectorstore/memory"
	"pdfrag/internal/vectorstore/qdrant"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ./config.yaml or ~/.config/pdfrag/config.yaml if not provided)")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, cfgPath, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server stopped", zap.String("config", cfgPath), zap.Error(err))
	}
}

func run(cfg *config.AppConfig, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(prometheus.DefaultRegisterer)

	ext := extractor.NewClient(extractor.Config{
		BaseURL: cfg.Extractor.URL,
		Timeout: seconds(cfg.Extractor.TimeoutSecs),
	}, logger)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := ext.Ping(pingCtx); err != nil {
		logger.Warn("extractor not reachable yet", zap.String("url", cfg.Extractor.URL), zap.Error(err))
	}
	cancel()

	emb, closeEmb, err := buildEmbedder(cfg, m, logger)
	if err != nil {
		return err
	}
	defer closeEmb()

	store, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	gen, err := llm.NewChatClient(llm.Config{
		APIKey:  cfg.OpenAI.APIKey,
		BaseURL: cfg.OpenAI.BaseURL,
		Model:   cfg.LLM.Model,
		Timeout: seconds(cfg.LLM.TimeoutSecs),
	})
	if err != nil {
		return fmt.Errorf("chat model: %w", err)
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		sum = summarizer.NewFrequency()
	case "none":
	default:
		return fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	idx := index.New(store, emb, cfg.VectorStore.Collection, m, logger)
	svc := service.NewRAGService(
		ext,
		chunker.NewSemanticChunker(cfg.Chunker.MaxChunkSize, cfg.Chunker.ChunkOverlap, logger),
		idx,
		answer.NewAssembler(gen, cfg.LLM.Temperature, m, logger),
		sum,
		service.Options{TopK: cfg.Retrieval.TopK, SummaryMaxSentences: cfg.Summarizer.MaxSentences},
		m,
		logger,
	)

	handler := api.NewServer(svc, ext, api.Options{
		Index:          idx,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
		MetricsHandler: api.MetricsHandler(),
	}, m, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("embedder", emb.Name()),
			zap.Int("dimension", emb.Dimension()),
			zap.String("vector_store", cfg.VectorStore.Type),
			zap.String("collection", cfg.VectorStore.Collection),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), seconds(cfg.Server.ShutdownTimeoutSecs))
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildEmbedder(cfg *config.AppConfig, m *metrics.Metrics, logger *zap.Logger) (domain.Embedder, func(), error) {
	var emb domain.Embedder
	switch cfg.Embedder.Type {
	case "python":
		emb = python.NewClient(python.Config{
			BaseURL:   cfg.Extractor.URL,
			Dimension: cfg.Embedder.Dimension,
			Timeout:   seconds(cfg.Embedder.TimeoutSecs),
		})
	case "openai":
		client, err := openai.NewClient(openai.Config{
			APIKey:    cfg.OpenAI.APIKey,
			BaseURL:   cfg.OpenAI.BaseURL,
			Model:     cfg.Embedder.Model,
			Dimension: cfg.Embedder.Dimension,
			Timeout:   seconds(cfg.Embedder.TimeoutSecs),
		})
		if err != nil {
			return nil, nil, fmt.Errorf("openai embedder: %w", err)
		}
		emb = client
	default:
		return nil, nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	closer := func() {}
	if url := cfg.Embedder.Cache.RedisURL; url != "" {
		rdb, err := cache.NewRedisClient(url)
		if err != nil {
			return nil, nil, err
		}
		emb = cache.New(emb, rdb, cache.Config{
			Model:     cfg.Embedder.Model,
			TTL:       seconds(cfg.Embedder.Cache.TTLSecs),
			KeyPrefix: cfg.Embedder.Cache.KeyPrefix,
		}, m, logger)
		closer = func() { _ = rdb.Close() }
	}
	return embedding.NewInstrumented(emb, m, logger), closer, nil
}

func buildStore(cfg *config.AppConfig) (vectorstore.Storage, error) {
	switch cfg.VectorStore.Type {
	case "memory":
		return memory.NewStorage(), nil
	case "qdrant":
		q := cfg.VectorStore.Qdrant
		st, err := qdrant.NewStorage(qdrant.Config{Host: q.Host, Port: q.Port, APIKey: q.APIKey, UseTLS: q.UseTLS})
		if err != nil {
			return nil, err
		}
		return st, nil
	}
	return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }
