// launching the server, codec, planner, kafka
package appServer

import (
	"context"
	"crypto/tls"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ds124wfegd/imgsqueeze/config"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/kafka"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/planner"
	"github.com/ds124wfegd/imgsqueeze/internal/pkg/processor"
	"github.com/ds124wfegd/imgsqueeze/internal/service"
	"github.com/ds124wfegd/imgsqueeze/internal/transport"
	"github.com/gin-gonic/gin"

	"github.com/sirupsen/logrus"
)

type Server struct {
	httpServer *http.Server
}

func (s *Server) Run(cfg *config.Config, handler http.Handler) error {
	s.httpServer = &http.Server{
		Addr:              cfg.Server.Host + ":" + cfg.Server.Port,
		Handler:           handler,
		MaxHeaderBytes:    1 << 20,
		ReadTimeout:       cfg.Server.Timeout,
		WriteTimeout:      cfg.Server.Timeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 3 * time.Second,
		TLSConfig:         &tls.Config{MinVersion: tls.VersionTLS12},           // ban on outdate TLS certificate
		ErrorLog:          log.New(os.Stderr, "SERVER ERROR: ", log.LstdFlags), // os.Stderr can be replaced with ElsasticSearch in the feature
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// NewHandler wires planner, codec, stats producer and service into the gin
// router. The caller owns the returned producer.
func NewHandler(cfg *config.Config) (http.Handler, kafka.Producer, error) {
	tunables, err := cfg.Tunables()
	if err != nil {
		return nil, nil, err
	}

	imgProcessor := processor.NewImageProcessor(processor.Options{
		CwebpPath: cfg.Processor.CwebpPath,
		CjpegPath: cfg.Processor.CjpegPath,
		MaxPixels: cfg.Processor.MaxPixels,
	})

	var producer kafka.Producer
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		producer = kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	} else {
		logrus.Info("kafka disabled, compression stats are only logged")
		producer = kafka.NewMockProducer()
	}

	compressService := service.NewCompressService(planner.New(tunables), imgProcessor, producer, service.Options{
		Workers:              cfg.Limits.Workers,
		BatchTimeout:         cfg.Limits.BatchTimeout,
		KeepOriginalIfLarger: cfg.Processor.KeepOriginalIfLarger,
	})
	compressHandler := transport.NewCompressHandler(compressService, transport.Limits{
		MaxFileSize:     cfg.Limits.MaxFileSize,
		MaxFiles:        cfg.Limits.MaxFiles,
		DefaultQuality:  cfg.Planner.DefaultQuality,
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
	})

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	return transport.InitRoutes(compressHandler, cfg.Server.Timeout, cfg.Server.AppVersion), producer, nil
}

func NewServer(cfg *config.Config) {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Server.Env == "development" {
		logrus.SetLevel(logrus.DebugLevel)
	}

	handler, producer, err := NewHandler(cfg)
	if err != nil {
		logrus.Fatalf("invalid configuration: %s", err.Error())
	}
	defer producer.Close()

	srv := new(Server)
	go func() {
		if err := srv.Run(cfg, handler); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("error occured while running http server: %s", err.Error())
		}
	}()

	logrus.WithField("port", cfg.Server.Port).Print("App Started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit

	logrus.Print("App Shutting Down")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.Timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logrus.Errorf("error occured on server shutting down: %s", err.Error())
	}
}
