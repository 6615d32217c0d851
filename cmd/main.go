package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"warpcorp.dev/timetable"
	"warpcorp.dev/timetable/config"
	"warpcorp.dev/timetable/directory"
	"warpcorp.dev/timetable/downloader"
	"warpcorp.dev/timetable/storage"
)

var rootCmd = &cobra.Command{
	Use:               "warp",
	Short:             "WARP timetable tool",
	Long:              "Browses line timetables and searches itineraries",
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

var (
	configPath string
	feedURL    string
	headers    []string

	cfg *config.Config
	log *zap.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVarP(&feedURL, "feed-url", "", "", "Reference feed URL (overrides config)")
	rootCmd.PersistentFlags().StringSliceVarP(
		&headers,
		"header",
		"",
		[]string{},
		"Reference feed HTTP header",
	)
}

func main() {
	defer func() {
		if log != nil {
			_ = log.Sync()
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	_ = godotenv.Load(".env")

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = setupLogger(cfg.Log.Level)

	if feedURL != "" {
		cfg.Feed.URL = feedURL
	}
	if len(headers) > 0 {
		parsed, err := parseHeaders(headers)
		if err != nil {
			return fmt.Errorf("invalid header: %w", err)
		}
		if cfg.Feed.Headers == nil {
			cfg.Feed.Headers = map[string]string{}
		}
		for k, v := range parsed {
			cfg.Feed.Headers[k] = v
		}
	}

	return nil
}

func setupLogger(level string) *zap.Logger {
	zapLevel := parseLogLevel(level)
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}

	return log
}

func parseLogLevel(level string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func parseHeaders(headers []string) (map[string]string, error) {
	parsed := map[string]string{}
	for _, header := range headers {
		parts := strings.SplitN(header, ":", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("'%s' is not on form <key>:<value>", header)
		}
		parsed[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	return parsed, nil
}

func buildStorage() (storage.Storage, error) {
	switch cfg.Storage.Backend {
	case "memory":
		return storage.NewMemoryStorage(), nil
	case "sqlite", "":
		if cfg.Storage.SQLiteDirectory == "" {
			return storage.NewSQLiteStorage()
		}
		return storage.NewSQLiteStorage(storage.SQLiteConfig{OnDisk: true, Directory: cfg.Storage.SQLiteDirectory})
	case "postgres":
		return storage.NewPSQLStorage(cfg.Storage.PostgresConn, false)
	}
	return nil, fmt.Errorf("unknown storage backend '%s'", cfg.Storage.Backend)
}

// The download cache for the route search client. Redis when
// configured, process memory otherwise.
func buildCache() (downloader.Downloader, func()) {
	if cfg.Redis.Addr == "" {
		return downloader.NewMemoryDownloader(), func() {}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	return downloader.NewRedis(log, client), func() {
		if err := client.Close(); err != nil {
			log.Warn("failed to close redis client", zap.Error(err))
		}
	}
}

func buildManager() (*timetable.Manager, error) {
	s, err := buildStorage()
	if err != nil {
		return nil, fmt.Errorf("creating storage: %w", err)
	}

	manager := timetable.NewManager(log, s)
	manager.RefreshInterval = cfg.Feed.RefreshInterval
	if cfg.Feed.Timeout > 0 {
		manager.Timeout = cfg.Feed.Timeout
	}
	if cfg.Feed.MaxSize > 0 {
		manager.MaxSize = cfg.Feed.MaxSize
	}

	return manager, nil
}

func LoadSchedule(ctx context.Context) (*timetable.Schedule, error) {
	if cfg.Feed.URL == "" {
		return nil, fmt.Errorf("feed URL is required")
	}

	manager, err := buildManager()
	if err != nil {
		return nil, err
	}

	return manager.LoadSchedule(ctx, cfg.Feed.URL, cfg.Feed.Headers)
}

func buildDirectory(cache downloader.Downloader) *directory.Client {
	return directory.NewClient(log, cfg.Search.BaseURL, cache, directory.Options{
		Timeout:      cfg.Search.Timeout,
		DistrictsTTL: cfg.Search.DistrictsTTL,
	})
}
