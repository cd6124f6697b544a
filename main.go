package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ig-gateway/internal/api"
	"ig-gateway/internal/events"
	"ig-gateway/internal/gateway"
	"ig-gateway/internal/monitor"
	"ig-gateway/pkg/config"
	"ig-gateway/pkg/db"
)

var buildVersion = "dev"

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	bus := events.NewBus()
	metrics := monitor.NewMetrics()
	gw := gateway.New(cfg, database, nil, bus)
	gw.SetRestLatencyObserver(func(d time.Duration) {
		metrics.RestLatency.Record(float64(d) / float64(time.Millisecond))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	(&monitor.Monitor{
		Bus:     bus,
		Sink:    monitor.LogSink{},
		Metrics: metrics,
	}).Start(ctx)

	if err := gw.Connect(ctx); err != nil {
		log.Fatalf("broker link: %v", err)
	}
	log.Printf("broker link up (demo=%v account=%s)", cfg.Demo, cfg.AccountID)

	server := api.NewServer(gw, database, metrics, api.SystemMeta{
		Demo:      cfg.Demo,
		AccountID: cfg.AccountID,
		Version:   buildVersion,
	}, cfg.JWTSecret, cfg.OpsPasswordHash)
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("ops api: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	gw.Disconnect()
}
