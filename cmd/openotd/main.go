package main

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/Shaharyar-developer/open-ot/config"
	"github.com/Shaharyar-developer/open-ot/internal/collab"
	"github.com/Shaharyar-developer/open-ot/internal/httpapi/handlers"
	"github.com/Shaharyar-developer/open-ot/internal/ot/text"
	"github.com/Shaharyar-developer/open-ot/internal/server"
	"github.com/Shaharyar-developer/open-ot/internal/store"
	"github.com/Shaharyar-developer/open-ot/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}

	var (
		backend store.Adapter
		pubsub  store.PubSub
	)
	switch cfg.Backend.Kind {
	case "", "memory":
		mem := store.NewMemory()
		backend, pubsub = mem, mem
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("redis ping failed: %v", err)
		}
		defer rdb.Close()
		r := store.NewRedis(rdb)
		backend, pubsub = r, r
	case "mysql":
		m, err := store.OpenMySQL(cfg.Mysql.DSN)
		if err != nil {
			log.Fatalf("mysql open failed: %v", err)
		}
		backend = m
	default:
		log.Fatalf("unknown backend kind %q", cfg.Backend.Kind)
	}

	srv := server.New(backend)
	if err := srv.RegisterType(text.Type()); err != nil {
		log.Fatalf("register type failed: %v", err)
	}

	var dispatcher *collab.Dispatcher
	if cfg.Kafka.Enabled {
		kafkaCfg := sarama.NewConfig()
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("kafka producer failed: %v", err)
		}
		defer producer.Close()
		dispatcher = collab.NewDispatcher(producer, cfg.Kafka.Topic, collab.DispatcherOptions{
			QueueSize:   10_000,
			Workers:     4,
			MaxRetry:    3,
			BaseBackoff: 50 * time.Millisecond,
			MaxBackoff:  time.Second,
		})
	}

	svc := collab.NewService(srv, dispatcher, pubsub)
	hub := ws.NewHub()
	manager := ws.NewManager(hub, svc)
	docs := handlers.NewDocuments(svc)

	if cfg.Kafka.Enabled {
		go func() {
			err := collab.RunConsumer(context.Background(),
				cfg.Kafka.Brokers, cfg.Kafka.Group, cfg.Kafka.Topic,
				svc.InstanceID(), hub.DeliverRemote)
			if err != nil {
				log.Printf("kafka consumer stopped: %v", err)
			}
		}()
	}

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	v1 := r.Group("/v1")
	v1.POST("/docs", docs.Create)
	v1.GET("/docs/:docId", docs.Get)
	r.GET("/ws", manager.Handle)

	log.Printf("openotd listening on :%d (backend=%s)", cfg.Running.Port, cfg.Backend.Kind)
	if err := r.Run(":" + strconv.Itoa(cfg.Running.Port)); err != nil {
		log.Fatalf("server exited: %v", err)
	}
}
