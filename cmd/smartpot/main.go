// Smartpot Core - plant monitoring backend
//
// This is the main entry point for the Smartpot Core service. It ingests
// smart pot telemetry over MQTT and HTTP, keeps flower/pot bindings
// consistent, pushes live measurements and alerts to connected clients and
// fans alerts out to email and a chat webhook.
//
// Usage:
//
//	smartpot                          run the service
//	smartpot token <user-id>          print a bearer token for a user
//	smartpot migrate <status|down>    show migrations or roll back the latest
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/nerrad567/smartpot-core/migrations"

	"github.com/nerrad567/smartpot-core/internal/api"
	"github.com/nerrad567/smartpot-core/internal/audit"
	"github.com/nerrad567/smartpot-core/internal/auth"
	"github.com/nerrad567/smartpot-core/internal/binding"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/config"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/database"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/logging"
	"github.com/nerrad567/smartpot-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/smartpot-core/internal/live"
	"github.com/nerrad567/smartpot-core/internal/notify"
	"github.com/nerrad567/smartpot-core/internal/plant"
	"github.com/nerrad567/smartpot-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// dispatcherDrainTimeout bounds how long shutdown waits for in-flight
// email and webhook sends.
const dispatcherDrainTimeout = 10 * time.Second

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	var err error
	switch {
	case len(os.Args) > 1 && os.Args[1] == "token":
		err = issueToken(os.Args[2:], os.Stdout)
	case len(os.Args) > 1 && os.Args[1] == "migrate":
		err = runMigrate(ctx, os.Args[2:], os.Stdout)
	default:
		err = run(ctx)
	}
	cancel()

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// issueToken prints a bearer token for args[0], signed with the configured
// secret and lifetime.
func issueToken(args []string, out io.Writer) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: smartpot token <user-id>")
	}
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	token, err := auth.GenerateAccessToken(args[0], cfg.Security.JWT.Secret, cfg.GetAccessTokenTTL())
	if err != nil {
		return fmt.Errorf("generating token: %w", err)
	}
	fmt.Fprintln(out, token)
	return nil
}

// runMigrate prints the migration status, after rolling back the most
// recent migration when args[0] is "down".
func runMigrate(ctx context.Context, args []string, out io.Writer) error {
	if len(args) != 1 || (args[0] != "status" && args[0] != "down") {
		return errors.New("usage: smartpot migrate <status|down>")
	}
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close() //nolint:errcheck // read-mostly operator command

	if args[0] == "down" {
		if err := db.MigrateDown(ctx); err != nil {
			return fmt.Errorf("rolling back migration: %w", err)
		}
		fmt.Fprintln(out, "rolled back latest migration")
	}

	applied, pending, err := db.GetMigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("reading migration status: %w", err)
	}
	for _, r := range applied {
		fmt.Fprintf(out, "applied  %s  %s\n", r.Version, r.AppliedAt.Format(time.RFC3339))
	}
	for _, m := range pending {
		fmt.Fprintf(out, "pending  %s  %s\n", m.Version, m.Name)
	}
	return nil
}

// run is the actual application logic, separated from main for testability.
// Deferred cleanups run in reverse order: API server, live connections,
// notification dispatcher, MQTT, InfluxDB, database.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Smartpot Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded",
		"path", configPath,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	plants := plant.NewSQLiteRepository(db.DB)
	measurements := telemetry.NewSQLiteStore(db.DB)
	auditRepo := audit.NewSQLiteRepository(db.DB)

	checks := map[string]api.HealthChecker{"database": db}

	// InfluxDB mirror (optional)
	influxClient, err := connectInfluxDB(cfg, log)
	if err != nil {
		return err
	}
	if influxClient != nil {
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		checks["influxdb"] = influxClient
	}

	// Live registry and notification fanout
	registry := live.NewRegistry(cfg.WebSocket.CloseSuperseded)
	registry.SetLogger(log.Component("live"))

	dispatcher := notify.NewDispatcher(cfg.Notifications.Workers, cfg.Notifications.QueueSize, cfg.GetNotifyTimeout())
	dispatcher.SetLogger(log.Component("notify"))
	fanout := notify.NewFanout(registry, dispatcher)
	if err := configureFanout(fanout, cfg); err != nil {
		return err
	}

	// Telemetry pipeline
	pipeline := telemetry.NewPipeline(plants, measurements, registry, fanout)
	pipeline.SetLogger(log.Component("telemetry"))
	if influxClient != nil {
		pipeline.SetMirror(influxClient)
	}

	// MQTT ingest (optional)
	mqttClient, err := connectMQTT(cfg, pipeline, log)
	if err != nil {
		return err
	}
	if mqttClient != nil {
		defer func() {
			log.Info("disconnecting from MQTT")
			if unsubErr := mqttClient.Unsubscribe(mqtt.Topics{}.AllTelemetry()); unsubErr != nil {
				log.Warn("error unsubscribing from telemetry", "error", unsubErr)
			}
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		checks["mqtt"] = mqttClient
		//nolint:gosec // G115: QoS validated to 0-2 by config
		fanout.SetPublisher(mqttClient, mqtt.Topics{}.Alert, byte(cfg.MQTT.QoS))
	}

	// Drained before MQTT closes so queued broker alerts still go out.
	defer func() {
		drainCtx, cancel := context.WithTimeout(context.Background(), dispatcherDrainTimeout)
		defer cancel()
		log.Info("draining notification dispatcher")
		if closeErr := dispatcher.Close(drainCtx); closeErr != nil {
			log.Warn("notification dispatcher did not drain", "error", closeErr)
		}
	}()

	// Binding manager and repair sweep
	manager := binding.NewManager(plants)
	manager.SetLogger(log.Component("binding"))
	manager.SetAuditRecorder(auditRepo)
	if interval := cfg.GetReconcileInterval(); interval > 0 {
		go manager.RunReconcileLoop(ctx, interval)
		log.Info("binding reconcile scheduled", "interval", interval.String())
	}

	defer func() {
		log.Info("closing live connections", "count", registry.Count())
		registry.CloseAll()
	}()

	srv, err := api.New(api.Deps{
		Config:       cfg.API,
		WS:           cfg.WebSocket,
		Security:     cfg.Security,
		Logger:       log.Component("api"),
		Binder:       manager,
		Ingester:     pipeline,
		Measurements: measurements,
		Flowers:      plants,
		Audit:        auditRepo,
		Live:         registry,
		Checks:       checks,
		Version:      version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := srv.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()
	log.Info("shutdown signal received, cleaning up")

	log.Info("Smartpot Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses SMARTPOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("SMARTPOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// connectInfluxDB returns nil when the mirror is disabled.
func connectInfluxDB(cfg *config.Config, log *logging.Logger) (*influxdb.Client, error) {
	client, err := influxdb.Connect(cfg.InfluxDB)
	if errors.Is(err, influxdb.ErrDisabled) {
		log.Info("InfluxDB disabled")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("connecting to InfluxDB: %w", err)
	}
	client.SetOnError(func(err error) {
		log.Error("InfluxDB write error", "error", err)
	})
	log.Info("InfluxDB connected",
		"url", cfg.InfluxDB.URL,
		"org", cfg.InfluxDB.Org,
		"bucket", cfg.InfluxDB.Bucket,
	)
	return client, nil
}

// connectMQTT connects to the broker and routes device telemetry into the
// pipeline. Returns nil when MQTT is disabled.
func connectMQTT(cfg *config.Config, pipeline *telemetry.Pipeline, log *logging.Logger) (*mqtt.Client, error) {
	if !cfg.MQTT.Enabled {
		log.Info("MQTT disabled, devices report over HTTP only")
		return nil, nil
	}

	client, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return nil, fmt.Errorf("connecting to MQTT: %w", err)
	}
	client.SetLogger(log.Component("mqtt"))
	client.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	client.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	//nolint:gosec // G115: QoS validated to 0-2 by config
	if err := client.Subscribe(mqtt.Topics{}.AllTelemetry(), byte(cfg.MQTT.QoS), pipeline.HandleMQTT); err != nil {
		client.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("subscribing to telemetry: %w", err)
	}
	log.Info("subscribed to device telemetry", "topic", mqtt.Topics{}.AllTelemetry())
	return client, nil
}

// configureFanout enables the off-band channels turned on in config.
func configureFanout(fanout *notify.Fanout, cfg *config.Config) error {
	if cfg.Notifications.Email.Enabled {
		sender, err := notify.NewSMTPSender(cfg.Notifications.Email)
		if err != nil {
			return fmt.Errorf("configuring email notifications: %w", err)
		}
		fanout.SetEmail(sender, cfg.Notifications.Email.Subject)
	}
	if cfg.Notifications.Webhook.Enabled {
		poster, err := notify.NewWebhookPoster(cfg.Notifications.Webhook)
		if err != nil {
			return fmt.Errorf("configuring webhook notifications: %w", err)
		}
		fanout.SetWebhook(poster, cfg.Notifications.Webhook.Title)
	}
	return nil
}

// healthCheck verifies every registered component answers.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, check := range checks {
		if err := check.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
