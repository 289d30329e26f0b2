package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/steamcompare/internal/config"
	"github.com/hitoshi/steamcompare/internal/handler"
	"github.com/hitoshi/steamcompare/internal/library"
	"github.com/hitoshi/steamcompare/internal/logger"
	"github.com/hitoshi/steamcompare/internal/metrics"
	"github.com/hitoshi/steamcompare/internal/middleware"
	"github.com/hitoshi/steamcompare/internal/security"
	"github.com/hitoshi/steamcompare/internal/steam"
)

// shutdownTimeout はグレースフルシャットダウンの待機上限。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// .envファイルと環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. .envファイルがあれば読み込む。既存の環境変数は上書きしない
	_ = godotenv.Load()

	// 3. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 4. 設定されたログレベルでロガーを再構成する
	log := logger.SetupDefault(w, cfg.LogLevel)

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。ctxのキャンセルでサーバーを停止する。
// serveのログはstdoutに、CLIサブコマンドのログはstderrに出力する。
func Run(ctx context.Context, stdout, stderr io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(ctx, healthcheckURL(port))
	}

	logWriter := stdout
	if cmd != CommandServe {
		logWriter = stderr
	}

	cfg, log, err := Init(logWriter)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	switch cmd {
	case CommandLibrary:
		input, err := parseLibraryArgs(args)
		if err != nil {
			return err
		}
		svc, err := newService(cfg, log, nil)
		if err != nil {
			return err
		}
		return runLibrary(ctx, svc, stdout, input)
	case CommandCompare:
		cargs, err := parseCompareArgs(args)
		if err != nil {
			return err
		}
		svc, err := newService(cfg, log, nil)
		if err != nil {
			return err
		}
		return runCompare(ctx, svc, stdout, cargs)
	default:
		log.Info("starting application",
			slog.String("command", string(cmd)),
			slog.String("port", cfg.ServerPort),
			slog.String("steam_api_base_url", cfg.SteamAPIBaseURL),
		)
		return runServe(ctx, cfg, log)
	}
}

// newHTTPClient はSteam API呼び出し用のHTTPクライアントを生成する。
// OutboundGuardが有効な場合はベースURLを検証し、その通信先に固定したクライアントを返す。
func newHTTPClient(cfg *config.Config) (*http.Client, error) {
	if !cfg.OutboundGuard {
		return &http.Client{Timeout: cfg.SteamRequestTimeout}, nil
	}

	guard, err := security.NewOutboundGuard(cfg.SteamAPIBaseURL)
	if err != nil {
		return nil, fmt.Errorf("steam api base url rejected: %w", err)
	}
	return guard.Client(cfg.SteamRequestTimeout), nil
}

// newService はSteamクライアントとライブラリサービスを構築する。
// collectorがnilの場合はメトリクスを記録しない。
func newService(cfg *config.Config, log *slog.Logger, collector metrics.MetricsCollector) (*library.Service, error) {
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return nil, err
	}

	steamClient := steam.NewClient(httpClient, cfg.SteamAPIKey, log, collector, steam.ClientConfig{
		BaseURL:               cfg.SteamAPIBaseURL,
		RequestTimeout:        cfg.SteamRequestTimeout,
		AchievementBatchSize:  cfg.AchievementBatchSize,
		AchievementBatchPause: cfg.AchievementBatchPause,
		Language:              cfg.AchievementLanguage,
	})

	return library.NewService(steamClient, log, collector), nil
}

// runServe はAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	// 1. メトリクスレジストリの初期化
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. ドメインサービスの初期化
	svc, err := newService(cfg, log, collector)
	if err != nil {
		return err
	}

	// 3. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitCompare),
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Service:           svc,
		MetricsGatherer:   reg,
	})

	// 4. HTTPサーバーの起動
	server := newHTTPServer(cfg, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// newHTTPServer はAPIサーバー用のhttp.Serverを生成する。
// WriteTimeoutはSERVER_WRITE_TIMEOUTに従い、0の場合は無制限。
func newHTTPServer(cfg *config.Config, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

// healthcheckURL はローカルで稼働するサーバーの/healthのURLを返す。
func healthcheckURL(port string) string {
	return fmt.Sprintf("http://localhost:%s/health", port)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(ctx context.Context, url string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
