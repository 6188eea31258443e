package main

import (
	"context"
	"fmt"

	"MedLink/data/database/mgo/mongoutil"
	"MedLink/global/config"
	"MedLink/logger"
	"MedLink/module/messaging"
	"MedLink/service/appointment"
	"MedLink/service/gateway"
	"MedLink/service/kafka"
	"MedLink/service/storage"
	"MedLink/tools/ids"
	"MedLink/tools/safe"

	"github.com/gin-gonic/gin"
)

func main() {
	config.Load()
	conf := config.Global
	ids.SetNodeID(conf.NodeID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := storage.InitRedis(storage.Config{
		Addr:     conf.RedisAddr,
		Password: conf.RedisPassword,
		DB:       conf.RedisDB,
	}); err != nil {
		logger.Errorf("[boot] redis unavailable, presence mirror disabled: %v", err)
	}

	mgoCli, err := mongoutil.NewMongoDB(ctx, &mongoutil.Config{
		Uri:         conf.MongoURI,
		Database:    conf.MongoDatabase,
		MaxPoolSize: 20,
		MaxRetry:    3,
	})
	if err != nil {
		logger.Errorf("[boot] mongo connect failed: %v", err)
		return
	}
	store := messaging.NewStore(mgoCli.GetDB())

	appts, err := appointment.NewRepo(ctx, conf.PostgresDSN)
	if err != nil {
		logger.Errorf("[boot] postgres connect failed: %v", err)
		return
	}
	defer appts.Close()

	registry := gateway.NewRegistry(gateway.RegistryConf{
		NodeID:         fmt.Sprintf("gateway_%d", conf.NodeID),
		PresenceTTL:    conf.PresenceTTL,
		MirrorPresence: true,
	}, store, store)

	router := gateway.NewMessageRouter(store, store, registry)
	calls := gateway.NewCoordinator(gateway.CoordinatorConf{
		RingingTimeout: conf.RingingTimeout,
	}, registry, appts)
	fanout := gateway.NewNotificationFanout(registry)

	gw := gateway.New(
		gateway.NewAuthenticator(conf.JwtSecret),
		registry, router, calls, fanout,
	)

	if conf.KafkaEnabled {
		kafka.RegisterHandler(conf.NotifyTopic, fanout.IntakeHandler())
		safe.Go(func() {
			if err := kafka.StartConsumerGroup(ctx, conf.KafkaBrokers, conf.KafkaGroupID, []string{conf.NotifyTopic}); err != nil {
				logger.Errorf("[boot] notification intake stopped: %v", err)
			}
		})
	}

	r := gin.Default()
	gw.Routes(r)

	logger.Infof("[boot] gateway listening on %s", conf.HTTPAddr)
	if err := r.Run(conf.HTTPAddr); err != nil {
		logger.Errorf("[boot] http server exited: %v", err)
	}
}
