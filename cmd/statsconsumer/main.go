package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ds124wfegd/imgsqueeze/config"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/kafka"
	"github.com/sirupsen/logrus"
)

func main() {
	viperInstance, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Cannot load config. Error: {%s}", err.Error())
	}
	cfg, err := config.ParseConfig(viperInstance)
	if err != nil {
		log.Fatalf("Cannot parse config. Error: {%s}", err.Error())
	}

	logrus.SetFormatter(&logrus.JSONFormatter{})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := kafka.StartStatsConsumer(ctx, cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID); err != nil {
		logrus.Fatalf("stats consumer stopped: %s", err.Error())
	}
}
