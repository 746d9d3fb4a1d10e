// Package main implements the hardware gateway controller entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hw-control/hgc/internal/api"
	"github.com/hw-control/hgc/internal/audit"
	"github.com/hw-control/hgc/internal/auth"
	"github.com/hw-control/hgc/internal/command"
	"github.com/hw-control/hgc/internal/config"
	"github.com/hw-control/hgc/internal/driver/adc"
	candrv "github.com/hw-control/hgc/internal/driver/can"
	"github.com/hw-control/hgc/internal/driver/lin"
	"github.com/hw-control/hgc/internal/driver/pwm"
	"github.com/hw-control/hgc/internal/metrics"
	"github.com/hw-control/hgc/internal/publish"
	"github.com/hw-control/hgc/internal/sched"
	"github.com/hw-control/hgc/internal/state"
)

const Version = "1.0.0"

func main() {
	log.Printf("Starting hardware gateway controller v%s", Version)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	log.Println("Configuration loaded successfully")

	store := state.NewStore()
	registry := metrics.New()

	auditLogger, err := audit.NewLogger(cfg.Audit.Dir)
	if err != nil {
		log.Fatalf("Failed to initialize audit logger: %v", err)
	}
	log.Println("Audit logger initialized")

	// Transports. A hardware bus that is configured but absent is a
	// deployment fault, not a runtime condition: fail fast.
	adcConn, adcClose, err := adc.OpenSPI(cfg.ADC.Bus, cfg.ADC.SpeedHz)
	if err != nil {
		log.Fatalf("Failed to open SPI bus %s: %v", cfg.ADC.Bus, err)
	}
	defer adcClose()
	log.Printf("SPI bus %s open", cfg.ADC.Bus)

	linPort, err := lin.OpenPort(cfg.LIN.Port, cfg.LIN.BaudRate)
	if err != nil {
		log.Fatalf("Failed to open LIN port %s: %v", cfg.LIN.Port, err)
	}
	defer linPort.Close()
	log.Printf("LIN port %s open at %d baud", cfg.LIN.Port, cfg.LIN.BaudRate)

	canBus, err := candrv.Open(cfg.CAN.Interface)
	if err != nil {
		log.Fatalf("Failed to open CAN interface %s: %v", cfg.CAN.Interface, err)
	}
	defer canBus.Close()
	log.Printf("CAN interface %s open", cfg.CAN.Interface)

	// Drivers and the daemon client.
	adcDriver := adc.New(adcConn, cfg.ADC, cfg.Timing, store)
	linDriver := lin.New(linPort, cfg.LIN, cfg.Timing, store)
	canDriver := candrv.New(canBus, cfg.CAN, cfg.Timing, store)
	pwmClient := pwm.New(cfg.PWM, store)

	orchestrator := command.NewOrchestrator(pwmClient, cfg.Timing)
	orchestrator.SetAuditLogger(auditLogger)
	orchestrator.SetMetrics(registry)

	// Polling schedule. Task wrappers feed the run counters.
	scheduler := sched.New(cfg.Timing.BackoffFactor, cfg.Timing.BackoffMax)
	register := func(name string, interval time.Duration, run func(ctx context.Context) error) {
		task := sched.Task{
			Name:     name,
			Interval: interval,
			Timeout:  interval * 4,
			Run: func(ctx context.Context) error {
				err := run(ctx)
				registry.ObserveTaskRun(name, err)
				return err
			},
		}
		if err := scheduler.Register(task); err != nil {
			log.Fatalf("Failed to register task %s: %v", name, err)
		}
	}
	register("adc-poll", cfg.Timing.ADCInterval, adcDriver.Poll)
	register("lin-poll", cfg.Timing.LINInterval, linDriver.Poll)
	register("can-poll", cfg.Timing.CANInterval, canDriver.Poll)
	register("pwm-status", cfg.Timing.PWMStatusInterval, pwmClient.PollStatus)

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	if err := scheduler.Start(rootCtx); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	log.Println("Scheduler started")

	// Telemetry publisher. The broker may be down; the publisher keeps
	// reconnecting and the rest of the gateway does not care.
	publisher, mqttClient, err := publish.Connect(*cfg, store)
	if err != nil {
		log.Fatalf("Failed to configure MQTT publisher: %v", err)
	}
	publisher.SetMetrics(registry)
	go publisher.Run(rootCtx)
	log.Printf("MQTT publisher targeting %s", cfg.MQTT.BrokerURL)

	// Metrics gauges follow the store.
	go watchMetrics(rootCtx, store, registry)

	authMiddleware := auth.NewMiddleware(cfg.Auth.TokenSecret)
	if authMiddleware.Enabled() {
		log.Println("API authentication enabled")
	} else {
		log.Println("API authentication disabled (no token secret)")
	}

	server := api.NewServer(store, orchestrator, scheduler, authMiddleware, cfg.HTTP)
	server.SetMetricsHandler(registry.Handler())

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.HTTP.Addr); err != nil {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()
	log.Printf("HTTP server listening on %s", cfg.HTTP.Addr)

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
	case err := <-serverErr:
		log.Printf("Server error: %v", err)
	}

	// Shutdown order: stop polling, drain publisher, close the API last so
	// in-flight commands can finish.
	scheduler.Stop(cfg.Timing.ShutdownGrace)
	log.Println("Scheduler stopped")

	rootCancel()
	mqttClient.Disconnect(uint(cfg.Timing.ShutdownGrace / time.Millisecond))
	log.Println("MQTT publisher stopped")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timing.ShutdownGrace)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		log.Printf("Error stopping HTTP server: %v", err)
	} else {
		log.Println("HTTP server stopped gracefully")
	}

	if err := auditLogger.Close(); err != nil {
		log.Printf("Error closing audit logger: %v", err)
	}
	log.Println("Gateway shutdown complete")
}

// watchMetrics mirrors store snapshots into the Prometheus gauges.
func watchMetrics(ctx context.Context, store *state.Store, registry *metrics.Registry) {
	snaps, cancel := store.Subscribe()
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-snaps:
			if !ok {
				return
			}
			registry.UpdateSnapshot(snap)
		}
	}
}
