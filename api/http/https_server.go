package http

import (
	"context"
	"fmt"
	"strings"
	"time"

	"EchoDesk/internal/config"
	"EchoDesk/internal/initial"
	jwtMiddleware "EchoDesk/internal/middleware/jwt"
	kbService "EchoDesk/internal/modules/knowledge/application/service"
	"EchoDesk/internal/modules/knowledge/domain/file"
	"EchoDesk/internal/modules/knowledge/domain/repository"
	"EchoDesk/internal/modules/knowledge/infrastructure/chunking"
	"EchoDesk/internal/modules/knowledge/infrastructure/embedding"
	"EchoDesk/internal/modules/knowledge/infrastructure/extract"
	"EchoDesk/internal/modules/knowledge/infrastructure/llm"
	"EchoDesk/internal/modules/knowledge/infrastructure/mq/kafka"
	kbPersistence "EchoDesk/internal/modules/knowledge/infrastructure/persistence"
	"EchoDesk/internal/modules/knowledge/infrastructure/queue"
	"EchoDesk/internal/modules/knowledge/infrastructure/vectordb"
	kbHandler "EchoDesk/internal/modules/knowledge/interface/http"
	userService "EchoDesk/internal/modules/user/application/service"
	userPersistence "EchoDesk/internal/modules/user/infrastructure/persistence"
	userHandler "EchoDesk/internal/modules/user/interface/http"
	"EchoDesk/pkg/ssl"
	"EchoDesk/pkg/ws"
	"EchoDesk/pkg/zlog"

	cors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var (
	GE *gin.Engine

	// 后台运行件，由 main 启动
	Relay    *queue.OutboxRelay
	Worker   *queue.TaskWorker
	Sweeper  *kbService.SweepService
	Notifier *kbService.NotificationService
)

func init() {
	conf := config.GetConfig()

	GE = gin.Default()
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"*"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	GE.Use(cors.New(corsConfig))
	GE.Use(ssl.TlsHandler(conf.MainConfig.Host, conf.MainConfig.Port))

	ctx := context.Background()
	wsHub := ws.NewHub()

	accountRepo := userPersistence.NewAccountRepository(initial.GormDB)
	kbRepo := kbPersistence.NewKnowledgeBaseRepository(initial.GormDB)
	botRepo := kbPersistence.NewChatbotRepository(initial.GormDB)
	convRepo := kbPersistence.NewConversationRepository(initial.GormDB)
	taskRepo := kbPersistence.NewIngestTaskRepository(initial.GormDB)
	blobStore := kbPersistence.NewBlobStore(initial.GormDB)
	tombRepo := kbPersistence.NewTombstoneRepository(initial.GormDB)
	notifRepo := kbPersistence.NewNotificationRepository(initial.GormDB)
	usageRepo := kbPersistence.NewUsageRepository(initial.GormDB)

	embedder, embMeta, err := embedding.NewEmbedderFromConfig(ctx, conf)
	if err != nil {
		zlog.Fatal(fmt.Sprintf("embedder init failed: %v", err))
	}
	zlog.Info("embedder ready",
		zap.String("provider", embMeta.Provider), zap.String("model", embMeta.Model), zap.Int("dim", embMeta.Dim))

	var store repository.NamespaceStore
	if initial.MilvusClient != nil {
		collection := strings.TrimSpace(conf.MilvusConfig.CollectionName)
		if collection == "" {
			collection = "kb_entries"
		}
		milvusStore, err := vectordb.NewMilvusNamespaceStore(initial.MilvusClient, embedder, collection, embMeta.Dim)
		if err != nil {
			zlog.Fatal(fmt.Sprintf("milvus store init failed: %v", err))
		}
		store = milvusStore
	} else {
		zlog.Warn("milvus not configured, using in-memory namespace store")
		store = vectordb.NewMemoryNamespaceStore(embedder)
	}

	chatModel, chatMeta, err := llm.NewChatModelFromConfig(ctx, conf)
	if err != nil {
		zlog.Warn("chat model unavailable, extraction falls back to local parsing", zap.Error(err))
		chatModel = nil
	} else {
		zlog.Info("chat model ready",
			zap.String("provider", chatMeta.Provider), zap.String("model", chatMeta.Model))
	}

	var parser *extract.ParserClient
	if strings.TrimSpace(conf.ParserConfig.APIKey) != "" {
		parser = extract.NewParserClient(
			conf.ParserConfig.BaseURL,
			conf.ParserConfig.APIKey,
			time.Duration(conf.ParserConfig.PollIntervalSeconds)*time.Second,
			conf.ParserConfig.MaxPollAttempts,
		)
	}
	extractor := extract.NewExtractor(chatModel, parser, usageRepo, chatMeta.Provider, chatMeta.Model, conf.ParserConfig.MaxFallbackBytes)

	var chunker chunking.Chunker
	switch strings.ToLower(strings.TrimSpace(conf.IngestConfig.Strategy)) {
	case "semantic":
		sc := chunking.NewSemanticChunker(embedder)
		if conf.IngestConfig.BreakpointPct > 0 {
			sc.BreakpointPercentile = float64(conf.IngestConfig.BreakpointPct)
		}
		if conf.IngestConfig.MaxSemanticChunk > 0 {
			sc.MaxChunkSize = conf.IngestConfig.MaxSemanticChunk
		}
		chunker = sc
	case "recursive":
		chunker = chunking.NewRecursiveChunker(conf.IngestConfig.ChunkSize, conf.IngestConfig.ChunkOverlap)
	default:
		chunker = chunking.NewFixedChunker(conf.IngestConfig.ChunkSize, conf.IngestConfig.ChunkOverlap)
	}

	changes := kbService.NewChangeNotifier(wsHub)

	kbSvc := kbService.NewKnowledgeBaseService(kbRepo, botRepo, convRepo, taskRepo)
	fileSvc := kbService.NewFileService(kbRepo, blobStore, store, taskRepo, tombRepo, notifRepo, changes,
		conf.IngestConfig.ListMinScan, conf.IngestConfig.ListMaxScan)
	retrieveSvc := kbService.NewRetrieveService(kbRepo, botRepo, convRepo, tombRepo, store,
		conf.RetrievalConfig.StrictThreshold, conf.RetrievalConfig.LenientThreshold,
		conf.RetrievalConfig.SearchLimit, conf.RetrievalConfig.MinKeywordLength)
	usageSvc := kbService.NewUsageService(usageRepo)

	ingestSvc := kbService.NewIngestService(blobStore, store, notifRepo, usageRepo, extractor, chunker, changes, embMeta.Dim)
	Sweeper = kbService.NewSweepService(store, tombRepo, blobStore, notifRepo, changes,
		conf.IngestConfig.SweepBatchSize, conf.IngestConfig.SweepMaxPasses)
	Notifier = kbService.NewNotificationService(notifRepo, wsHub)

	topic := strings.TrimSpace(conf.KafkaConfig.IngestTopic)
	if topic == "" {
		topic = "kb-ingest-tasks"
	}
	if len(conf.KafkaConfig.Brokers) > 0 {
		partitions := conf.KafkaConfig.Partitions
		if partitions <= 0 {
			partitions = 3
		}
		replication := conf.KafkaConfig.Replication
		if replication <= 0 {
			replication = 1
		}
		if err := kafka.EnsureTopic(kafka.TopicAdminConfig{
			Brokers:  conf.KafkaConfig.Brokers,
			ClientID: conf.KafkaConfig.ClientID,
		}, topic, partitions, replication); err != nil {
			zlog.Fatal(fmt.Sprintf("kafka topic init failed: %v", err))
		}

		pub, err := kafka.NewSaramaPublisher(kafka.PublisherConfig{
			Brokers:  conf.KafkaConfig.Brokers,
			ClientID: conf.KafkaConfig.ClientID,
		})
		if err != nil {
			zlog.Fatal(fmt.Sprintf("kafka publisher init failed: %v", err))
		}
		Relay = queue.NewOutboxRelay(taskRepo, pub, topic, 0, 0)

		groupID := strings.TrimSpace(conf.KafkaConfig.ConsumerGroupID)
		if groupID == "" {
			groupID = "echodesk-ingest-workers"
		}
		consumer, err := kafka.NewConsumer(kafka.ConsumerConfig{
			Brokers:  conf.KafkaConfig.Brokers,
			GroupID:  groupID,
			Topics:   []string{topic},
			ClientID: conf.KafkaConfig.ClientID,
		})
		if err != nil {
			zlog.Fatal(fmt.Sprintf("kafka consumer init failed: %v", err))
		}
		Worker = queue.NewTaskWorker(consumer, taskRepo)
		Worker.RegisterProcessor(file.TaskTypeProcessFile, ingestSvc)
		Worker.RegisterProcessor(file.TaskTypeDeleteSweep, Sweeper)
		Worker.RegisterProcessor(file.TaskTypeFinalizeNotify, Notifier)
	} else {
		zlog.Warn("kafka not configured, ingest tasks stay pending")
	}

	accountSvc := userService.NewAccountService(accountRepo)

	accountH := userHandler.NewAccountHandler(accountSvc)
	kbH := kbHandler.NewKnowledgeBaseHandler(kbSvc)
	fileH := kbHandler.NewFileHandler(fileSvc)
	queryH := kbHandler.NewQueryHandler(retrieveSvc)
	notifH := kbHandler.NewNotificationHandler(Notifier, usageSvc)
	wsH := kbHandler.NewWsHandler(wsHub)

	GE.POST("/login", accountH.Login)
	GE.POST("/register", accountH.Register)

	authed := GE.Group("/")
	authed.Use(jwtMiddleware.Auth())
	authed.POST("/logout", accountH.Logout)
	authed.GET("/auth/ping", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"uuid":     c.GetString("uuid"),
			"username": c.GetString("username"),
			"orgId":    c.GetString("orgId"),
		})
	})

	authed.GET("/kb/ws", wsH.Connect)

	authed.POST("/kb/create", kbH.Create)
	authed.GET("/kb/list", kbH.List)
	authed.POST("/kb/rename", kbH.Rename)
	authed.POST("/kb/delete", kbH.Delete)
	authed.POST("/kb/chatbot/create", kbH.CreateChatbot)
	authed.GET("/kb/chatbot/list", kbH.ListChatbots)
	authed.POST("/kb/conversation/create", kbH.CreateConversation)

	authed.POST("/kb/file/upload", fileH.Upload)
	authed.POST("/kb/file/list", fileH.List)
	authed.POST("/kb/file/delete", fileH.Delete)
	authed.POST("/kb/file/retry", fileH.Retry)

	authed.POST("/kb/query", queryH.Query)

	authed.GET("/kb/notification/list", notifH.List)
	authed.POST("/kb/notification/read", notifH.MarkRead)
	authed.GET("/kb/usage", notifH.Usage)
}
