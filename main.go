package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"flux/internal/auth"
	"flux/internal/backend"
	"flux/internal/backend/memory"
	"flux/internal/backend/sqlstore"
	"flux/internal/config"
	"flux/internal/database"
	"flux/internal/fileHandlers"
	"flux/internal/handlers"
	"flux/internal/hub"
	"flux/internal/jwt"
	"flux/internal/keyValue"
	"flux/internal/pubsub"
	"flux/internal/rabbitmq"
	"flux/internal/snowflake"
)

func setupLogger(cfg config.Config) (*zap.SugaredLogger, error) {
	zapConfig := zap.NewProductionConfig()
	zapConfig.OutputPaths = []string{"stdout"}
	if cfg.LogToFile {
		zapConfig.OutputPaths = append(zapConfig.OutputPaths, "app.log")
	}

	level, err := zap.ParseAtomicLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	zapConfig.Level = level

	logger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func setupRedis(cfg config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	err := rdb.Ping(context.Background()).Err()
	if err != nil {
		return nil, err
	}
	return rdb, nil
}

func setupFiles(cfg config.Config, sugar *zap.SugaredLogger) (backend.Files, error) {
	if !cfg.UsesS3() {
		sugar.Infof("Uploads are stored in %s", cfg.UploadDir)
		return fileHandlers.NewLocal(cfg.UploadDir, "/cdn"), nil
	}

	s3, err := fileHandlers.NewS3(fileHandlers.S3Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		UseSSL:    cfg.S3UseSSL,
		Bucket:    cfg.S3Bucket,
		PublicURL: cfg.S3PublicURL,
	})
	if err != nil {
		return nil, err
	}

	err = s3.EnsureBucket(context.Background())
	if err != nil {
		return nil, err
	}
	sugar.Infof("Uploads are stored in bucket %s", cfg.S3Bucket)
	return s3, nil
}

func serve(cfg config.Config) error {
	sugar, err := setupLogger(cfg)
	if err != nil {
		return err
	}
	defer sugar.Sync()

	ids, err := snowflake.New(cfg.SnowflakeWorkerID)
	if err != nil {
		return err
	}

	var (
		bus   pubsub.Bus
		cache *keyValue.Cache
	)

	if cfg.SelfContained {
		sugar.Info("Running self-contained")
		bus = pubsub.NewLocal()
		cache = keyValue.NewLocal(sugar)
	} else {
		sugar.Info("Connecting to redis...")
		redisClient, err := setupRedis(cfg)
		if err != nil {
			return err
		}
		defer redisClient.Close()
		bus = pubsub.NewRedis(redisClient, sugar)
		cache = keyValue.NewRedis(sugar, redisClient)
	}
	defer bus.Close()
	defer cache.Close()

	var (
		store backend.Store
		users auth.Users
	)

	if cfg.SelfContained && cfg.DbPath == "" {
		sugar.Warn("DbPath is empty, nothing will be persisted")
		store = memory.NewStore(ids, sugar)
		users = memory.NewUsers()
	} else {
		db, err := database.Setup(cfg, sugar)
		if err != nil {
			return err
		}
		defer db.Close()
		store = sqlstore.NewStore(db, bus, ids, sugar)
		users = sqlstore.NewUsers(db)
	}

	files, err := setupFiles(cfg, sugar)
	if err != nil {
		return err
	}

	publisher := rabbitmq.NewPublisher(cfg.AmqpURL, cfg.AmqpExchange, sugar)
	defer publisher.Close()
	sugar.Infof("Audit events: %s", rabbitmq.PublisherMode(publisher))
	audit := rabbitmq.NewAudit(publisher, sugar)

	tokens := jwt.NewIssuer(cfg.JwtSecret, cfg.IsHttps())
	authService := auth.NewService(users, tokens, cache, ids, sugar)

	client := backend.Client{Store: store, Files: files, Auth: authService}
	h := handlers.New(cfg, authService, tokens, hub.New(client, audit, sugar), audit, sugar)

	sugar.Infof("Server is running on %s", cfg.FullAddress())
	return handlers.Serve(cfg, h.Router())
}

func main() {
	var configPath string

	root := &cobra.Command{
		Use:           "flux",
		Short:         "Flux chat server",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the web server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "config.json", "path to the json config file")
	root.AddCommand(serveCmd)

	err := root.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
