package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/schoolsite/internal/auth"
	"github.com/hitoshi/schoolsite/internal/config"
	"github.com/hitoshi/schoolsite/internal/database"
	"github.com/hitoshi/schoolsite/internal/handler"
	"github.com/hitoshi/schoolsite/internal/logger"
	"github.com/hitoshi/schoolsite/internal/metrics"
	"github.com/hitoshi/schoolsite/internal/middleware"
	"github.com/hitoshi/schoolsite/internal/repository"
	"github.com/hitoshi/schoolsite/internal/security"
	"github.com/hitoshi/schoolsite/internal/user"
	"github.com/hitoshi/schoolsite/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, logger.ParseLevel(os.Getenv("LOG_LEVEL")))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
		slog.String("session_store", cfg.SessionStore),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(cfg)
	case CommandDeactivate:
		return runSetActive(cfg, commandArg(args), false)
	case CommandActivate:
		return runSetActive(cfg, commandArg(args), true)
	default:
		return runServe(cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")
	return db, nil
}

// openSessionStore はSESSION_STOREに応じたセッションリポジトリを返す。
// 戻り値のclose関数は呼び出し側で必ず呼ぶこと。
func openSessionStore(cfg *config.Config, db *sql.DB) (repository.SessionRepository, func() error, error) {
	if cfg.SessionStore != config.SessionStoreRedis {
		return repository.NewPostgresSessionRepo(db), func() error { return nil }, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	slog.Info("redis session store connected", slog.String("addr", opts.Addr))
	return repository.NewRedisSessionRepo(client), client.Close, nil
}

// newMetricsRegistry はアプリケーションとランタイムのメトリクスを登録したレジストリを返す。
func newMetricsRegistry() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続とセッションストア
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sessionRepo, closeSessions, err := openSessionStore(cfg, db)
	if err != nil {
		return err
	}
	defer closeSessions()

	// 2. リポジトリとメトリクス
	userRepo := repository.NewPostgresUserRepo(db)
	reg, collector := newMetricsRegistry()

	// 3. 認証サービス
	authService := auth.NewService(
		userRepo, sessionRepo,
		security.NewBcryptHasher(cfg.BcryptCost),
		collector,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)

	// 4. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.RateLimiterConfigPerMinute(cfg.RateLimitGeneral, cfg.RateLimitLogin),
		collector,
	)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		AdminResolver: authService,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),
		Metrics:           collector,

		HealthChecker:  db,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserFinder: userRepo,
	})

	// 5. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serveErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除ジョブをSESSION_CLEANUP_INTERVAL間隔で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.SessionStore == config.SessionStoreRedis {
		slog.Info("redis sessions expire by TTL; cleaning up only the postgres session table")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	// メインgoroutineで実行（ブロッキング）
	cleanup.NewSessionCleanupJob(db, slog.Default()).Start(ctx, cfg.SessionCleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runSeed はADMIN_EMAIL/ADMIN_PASSWORD/ADMIN_NAMEから管理者アカウントを登録する。
func runSeed(cfg *config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return errors.New("ADMIN_EMAIL and ADMIN_PASSWORD are required for seed")
	}

	svc, closeFn, err := newUserService(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	_, err = svc.SeedAdmin(context.Background(), user.SeedInput{
		Email:    cfg.AdminEmail,
		Password: cfg.AdminPassword,
		Name:     cfg.AdminName,
	})
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}
	return nil
}

// runSetActive は指定メールアドレスのアカウントの有効・無効を切り替える。
// 無効化時はそのユーザーの全セッションも破棄する。
func runSetActive(cfg *config.Config, email string, active bool) error {
	if email == "" {
		return errors.New("email argument is required")
	}

	svc, closeFn, err := newUserService(cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	if active {
		err = svc.Activate(context.Background(), email)
	} else {
		err = svc.Deactivate(context.Background(), email)
	}
	if err != nil {
		return fmt.Errorf("failed to update account: %w", err)
	}
	return nil
}

// newUserService はアカウント管理サービスを組み立てる。
func newUserService(cfg *config.Config) (*user.Service, func(), error) {
	db, err := openDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}

	sessionRepo, closeSessions, err := openSessionStore(cfg, db)
	if err != nil {
		db.Close()
		return nil, nil, err
	}

	svc := user.NewService(
		repository.NewPostgresUserRepo(db),
		sessionRepo,
		security.NewBcryptHasher(cfg.BcryptCost),
		security.NewNameSanitizer(),
	)
	return svc, func() {
		closeSessions()
		db.Close()
	}, nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLのパスワードをマスクする。
func maskDatabaseURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "***"
	}
	return u.Redacted()
}
