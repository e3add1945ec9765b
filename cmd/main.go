package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pot-code/roadmap-progress/internal/catalog"
	infra "github.com/pot-code/roadmap-progress/internal/infrastructure"
	"github.com/pot-code/roadmap-progress/internal/infrastructure/driver"
	"github.com/pot-code/roadmap-progress/internal/infrastructure/logging"
	"github.com/pot-code/roadmap-progress/internal/interfaces/rest"
	"github.com/pot-code/roadmap-progress/internal/progress"
	"go.uber.org/zap"
)

func main() {
	log.SetFlags(log.Lshortfile | log.Ldate | log.Ltime)
	option, err := infra.InitConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.NewLogger(&logging.Config{
		FilePath: option.Logging.FilePath,
		Level:    option.Logging.Level,
		AppID:    option.AppID,
		Env:      option.Env,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %s\n", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	kv, closeKV, err := openKeyValue(ctx, option, logger)
	if err != nil {
		logger.Fatal("Failed to open progress storage", zap.String("storage.driver", option.Storage.Driver), zap.Error(err))
	}
	defer closeKV()

	roadmap, err := catalog.Load(option.Catalog.FilePath)
	if err != nil {
		logger.Fatal("Failed to load roadmap catalog", zap.String("catalog.file_path", option.Catalog.FilePath), zap.Error(err))
	}

	ProgressStore := progress.NewStore(kv, logger.Named("store"), progress.WithKey(option.Storage.Key))
	ProgressCache := progress.NewCache(ProgressStore, logger.Named("cache"))
	defer ProgressCache.Close()
	ProgressCache.Warm(ctx)

	ProgressUseCase := progress.NewProgressUseCase(ProgressCache, roadmap)

	app, err := rest.NewServer(option, kv, ProgressUseCase, ProgressCache, logger)
	if err != nil {
		logger.Fatal("Failed to create http server", zap.Error(err))
	}
	if err := rest.Serve(ctx, app, option, logger); err != nil {
		logger.Error("Server stopped", zap.Error(err))
	}
	logger.Info("Flushing progress", zap.Int("progress.pending", ProgressCache.Pending()))
}

// openKeyValue build the KeyValueDB selected by storage.driver
func openKeyValue(ctx context.Context, option *infra.AppConfig, logger *zap.Logger) (driver.KeyValueDB, func(), error) {
	switch option.Storage.Driver {
	case "memory":
		logger.Warn("Using in-memory progress storage, progress is lost on restart")
		return driver.NewMemoryKV(), func() {}, nil
	case "redis":
		rdb := driver.NewRedisClient(option.KVStore.Host, option.KVStore.Port, option.KVStore.Password, option.KVStore.DB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx); err != nil {
			rdb.Close()
			return nil, nil, err
		}
		logger.Debug("Create redis connection instance", zap.String("kv.host", option.KVStore.Host), zap.Int("kv.db", option.KVStore.DB))
		return rdb, func() { rdb.Close() }, nil
	case driver.DriverMySQL, driver.DriverPostgres, driver.DriverSQLite:
		conn, err := driver.GetDBConnection(&driver.DBConfig{
			User:     option.Database.User,
			Password: option.Database.Password,
			MaxConn:  option.Database.MaxConn,
			Protocol: option.Database.Protocol,
			Driver:   option.Storage.Driver,
			Host:     option.Database.Host,
			Port:     option.Database.Port,
			Query:    option.Database.Query,
			Schema:   option.Database.Schema,
		})
		if err != nil {
			return nil, nil, err
		}
		logger.Debug("Create db connection instance", zap.String("db.driver", option.Storage.Driver),
			zap.String("db.schema", option.Database.Schema),
			zap.String("db.host", option.Database.Host),
		)

		kv := driver.NewSQLKeyValue(conn, option.Storage.Table)
		initCtx, cancel := context.WithTimeout(logging.SetLoggerInContext(ctx, logger), 10*time.Second)
		defer cancel()
		if err := kv.EnsureSchema(initCtx); err != nil {
			conn.Close(context.Background())
			return nil, nil, err
		}
		return kv, func() { conn.Close(context.Background()) }, nil
	}
	return nil, nil, fmt.Errorf("unsupported storage driver: %s", option.Storage.Driver)
}
