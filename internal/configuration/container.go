package configuration

import (
	"context"
	"fmt"
	"os"
	"time"

	"Forumus/internal/db"
	"Forumus/internal/directory"
	"Forumus/internal/handler"
	"Forumus/internal/media"
	"Forumus/internal/repo"
	"Forumus/internal/service"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

type Container struct {
	ChatHandler   handler.ChatHandler
	StreamHandler *handler.StreamHandler
	Config        Config
	Logger        *zap.Logger

	// private - for cleanup
	mongoClient *mongo.Database
}

func BuildContainer() (*Container, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.json"
	}
	config, err := LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	con, err := db.OpenConnection(config.ChatDatabase.Uri, config.ChatDatabase.Database)
	if err != nil {
		return nil, err
	}

	store := db.NewMongo(con, logger)

	threadRepo := repo.NewThreadRepository(store, logger)
	messageRepo := repo.NewMessageRepository(store, logger)

	dir := directory.NewStoreDirectory(store, logger)
	enricher := service.NewProfileEnricher(dir,
		time.Duration(config.Sync.LookupTimeoutMs)*time.Millisecond, logger)

	uploader, err := media.NewCloudinaryUploader(config.Media.CloudinaryURL, config.Media.Folder, logger)
	if err != nil {
		return nil, err
	}

	chatList := service.NewChatListSync(store, threadRepo, enricher, logger)
	messageTail := service.NewMessageTailSync(store, messageRepo, logger)
	cursor := service.NewPaginationCursor(messageRepo)
	pipeline := service.NewSendPipeline(threadRepo, messageRepo, uploader, config.Sync.AttachmentCap, logger)

	chatHandler := handler.NewChatHandler(threadRepo, messageRepo, pipeline, cursor, config.Sync.PageSize, logger)
	streamHandler := handler.NewStreamHandler(chatList, messageTail, config.Sync.TailSize, logger)

	return &Container{
		ChatHandler:   chatHandler,
		StreamHandler: streamHandler,
		Config:        *config,
		Logger:        logger,
		mongoClient:   con,
	}, nil
}

// Close gracefully shuts down all connections
func (c *Container) Close() error {
	if c.Logger != nil {
		_ = c.Logger.Sync()
	}

	if c.mongoClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.mongoClient.Client().Disconnect(ctx); err != nil {
			return fmt.Errorf("failed to close MongoDB connection: %w", err)
		}
	}

	return nil
}
