// Gray Logic Mesh - Bluetooth Mesh commissioning service
//
// This is the main entry point for the mesh commissioner. It discovers
// unprovisioned devices reported by the mesh stack host, provisions them,
// distributes the application key and configures their models, driven by an
// installer through the HTTP API.
//
// Usage:
//
//	graylogic-mesh                                 run the service
//	graylogic-mesh --issue-token alice --role installer --ttl 8h
//	graylogic-mesh --version
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

	"github.com/spf13/pflag"

	"github.com/nerrad567/gray-logic-mesh/internal/api"
	"github.com/nerrad567/gray-logic-mesh/internal/audit"
	"github.com/nerrad567/gray-logic-mesh/internal/auth"
	"github.com/nerrad567/gray-logic-mesh/internal/bridges/btmesh"
	"github.com/nerrad567/gray-logic-mesh/internal/commissioning"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/influxdb"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-mesh/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/composition"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/registry"
	"github.com/nerrad567/gray-logic-mesh/internal/mesh/sequencer"
	"github.com/nerrad567/gray-logic-mesh/internal/stackhost"
	"github.com/nerrad567/gray-logic-mesh/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// options are the command-line flags.
type options struct {
	configPath  string
	issueToken  string
	role        string
	ttl         time.Duration
	showVersion bool
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	switch {
	case opts.showVersion:
		fmt.Printf("graylogic-mesh %s (commit %s, built %s)\n", version, commit, date)
		return
	case opts.issueToken != "":
		if err := issueToken(opts, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, getConfigPath(opts.configPath)); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// parseFlags parses the command line. pflag.ErrHelp is returned after the
// usage text has been printed.
func parseFlags(args []string) (options, error) {
	var opts options

	flagSet := pflag.NewFlagSet("graylogic-mesh", pflag.ContinueOnError)
	flagSet.StringVarP(&opts.configPath, "config", "c", "", "config file (default $GRAYLOGIC_CONFIG or "+defaultConfigPath+")")
	flagSet.StringVar(&opts.issueToken, "issue-token", "", "print an installer token for this subject and exit")
	flagSet.StringVar(&opts.role, "role", string(auth.RoleInstaller), "role of the issued token: viewer, installer or admin")
	flagSet.DurationVar(&opts.ttl, "ttl", 0, "lifetime of the issued token (default security.jwt.access_token_ttl)")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := flagSet.Parse(args); err != nil {
		return options{}, err
	}
	if flagSet.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", flagSet.Args())
	}
	return opts, nil
}

// issueToken signs an installer token with the configured secret and
// writes it to w.
func issueToken(opts options, w io.Writer) error {
	cfg, err := config.Load(getConfigPath(opts.configPath))
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	role, err := auth.ParseRole(opts.role)
	if err != nil {
		return fmt.Errorf("%w: %q", err, opts.role)
	}
	ttl := opts.ttl
	if ttl <= 0 {
		ttl = cfg.GetAccessTokenTTL()
	}

	token, err := auth.GenerateAccessToken(opts.issueToken, role, cfg.Security.JWT.Secret, ttl)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, token)
	return err
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - configPath: YAML configuration file
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Gray Logic Mesh",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", configPath, "level", cfg.Logging.Level)

	ctrlOpts, err := controllerOptions(cfg.Mesh)
	if err != nil {
		return fmt.Errorf("mesh configuration: %w", err)
	}

	// Database and journal
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
	if err := db.Migrate(ctx, migrations.FS); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database ready", "path", db.Path())

	journal := commissioning.NewSQLiteJournal(db.DB)
	if retention := cfg.Mesh.GetJournalRetention(); retention > 0 {
		pruned, pruneErr := journal.Prune(ctx, retention)
		if pruneErr != nil {
			log.Warn("journal prune failed", "error", pruneErr)
		} else if pruned > 0 {
			log.Info("journal pruned", "entries", pruned, "retention_days", cfg.Mesh.JournalRetentionDays)
		}
	}

	// InfluxDB is optional: the service commissions without metrics.
	influxClient, err := influxdb.Connect(cfg.InfluxDB)
	switch {
	case errors.Is(err, influxdb.ErrDisabled):
		log.Info("InfluxDB disabled")
	case err != nil:
		log.Warn("InfluxDB unavailable, continuing without metrics", "error", err)
	default:
		influxClient.SetOnError(func(writeErr error) {
			log.Warn("InfluxDB write failed", "error", writeErr)
		})
		defer func() {
			log.Info("closing InfluxDB")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	}

	// MQTT
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	mqttClient.SetLogger(log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetOnDisconnect(func(disconnectErr error) {
		log.Warn("MQTT disconnected", "error", disconnectErr)
	})
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Stack bridge, event hub and controller. The bridge is the
	// controller's Stack, so its pending counter reads ctrl once assigned.
	var ctrl *commissioning.Controller
	bridge, err := btmesh.NewBridge(btmesh.BridgeOptions{
		MQTTClient:     &mqttBridgeAdapter{client: mqttClient},
		BridgeID:       cfg.MQTT.Broker.ClientID,
		Stack:          cfg.Mesh.StackTopicPrefix,
		Version:        version,
		HealthInterval: cfg.Mesh.GetHealthInterval(),
		Pending: func() int {
			if ctrl == nil {
				return 0
			}
			return ctrl.Snapshot().Registry.Live
		},
		Logger: log.Component("btmesh"),
	})
	if err != nil {
		return fmt.Errorf("creating mesh bridge: %w", err)
	}
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	ctrlOpts.Stack = bridge
	ctrlOpts.Journal = journal
	ctrlOpts.Events = commissioning.Publishers{hub, bridge}
	if influxClient != nil {
		ctrlOpts.Metrics = influxClient
	}
	ctrlOpts.Logger = log.Component("commissioning")

	ctrl, err = commissioning.New(ctrlOpts)
	if err != nil {
		return fmt.Errorf("creating commissioning controller: %w", err)
	}
	bridge.SetHandler(ctrl)

	checks := healthCheckers(db, mqttClient, influxClient)
	var host *stackhost.Supervisor
	if cfg.Mesh.StackHost.Enabled {
		host, err = newStackHost(cfg.Mesh.StackHost, ctrl, log.Component("stackhost"))
		if err != nil {
			return fmt.Errorf("creating stack host supervisor: %w", err)
		}
		checks["stack_host"] = host
	}

	apiServer, err := api.New(api.Deps{
		Config:         cfg.API,
		WS:             cfg.WebSocket,
		Security:       cfg.Security,
		Logger:         log.Component("api"),
		Controller:     ctrl,
		Journal:        journal,
		Audit:          audit.NewSQLiteRepository(db.DB),
		SecondaryGroup: ctrlOpts.Sequencer.SecondaryGroup,
		Checks:         checks,
		Hub:            hub,
		Version:        version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if err := bridge.Start(ctx); err != nil {
		return fmt.Errorf("starting mesh bridge: %w", err)
	}
	defer func() {
		log.Info("stopping mesh bridge")
		bridge.Stop()
	}()

	if host != nil {
		if err := host.Start(ctx); err != nil {
			return fmt.Errorf("starting stack host: %w", err)
		}
		defer func() {
			log.Info("stopping stack host")
			if stopErr := host.Stop(); stopErr != nil {
				log.Error("error stopping stack host", "error", stopErr)
			}
		}()
	}

	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	primary, _, _ := cfg.Mesh.Groups() //nolint:errcheck // Validated by config.Load
	log.Info("initialisation complete, waiting for devices",
		"stack", cfg.Mesh.StackTopicPrefix,
		"uuid_prefix", cfg.Mesh.UUIDPrefix,
		"primary_group", primary,
		"api", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	ctrl.Reset()
	return nil
}

// getConfigPath returns the configuration file path: the --config flag,
// then GRAYLOGIC_CONFIG, then the default.
func getConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if path := os.Getenv("GRAYLOGIC_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// controllerOptions converts the mesh config section. Stack and sinks are
// filled in by the caller.
func controllerOptions(m config.MeshConfig) (commissioning.Options, error) {
	prefix, err := m.Prefix()
	if err != nil {
		return commissioning.Options{}, err
	}
	primary, secondary, err := m.Groups()
	if err != nil {
		return commissioning.Options{}, err
	}

	params := sequencer.DefaultParams()
	params.NetKeyIndex = m.NetKeyIndex
	params.AppKeyIndex = m.AppKeyIndex
	params.SecondaryGroup = secondary
	params.RetryBudget = m.RetryBudget
	params.BufferSize = m.CompositionBufferSize
	params.Limits = composition.Limits{
		MaxSIGModels:    m.MaxSIGModels,
		MaxVendorModels: m.MaxVendorModels,
		MaxElements:     m.MaxElements,
	}
	params.Publication = sequencer.PublicationParams{
		TTL:                  m.Publication.TTL,
		Period:               m.Publication.Period,
		RetransmitCount:      m.Publication.RetransmitCount,
		RetransmitIntervalMS: m.Publication.RetransmitIntervalMS,
	}
	params.Heartbeat = sequencer.HeartbeatParams{
		Count:     m.Heartbeat.Count,
		PeriodLog: m.Heartbeat.PeriodLog,
		TTL:       m.Heartbeat.TTL,
		Features:  m.Heartbeat.Features,
	}

	return commissioning.Options{
		Registry: registry.Options{
			Capacity:     m.RegistryCapacity,
			FamilyPrefix: prefix,
		},
		Sequencer:    params,
		PrimaryGroup: primary,
		StepTimeout:  m.GetStepTimeout(),
	}, nil
}

// healthCheckers lists the components reported by GET /health. A nil
// InfluxDB client is left out rather than stored as a typed nil.
func healthCheckers(db *database.DB, mqttClient *mqtt.Client, influxClient *influxdb.Client) map[string]api.HealthChecker {
	checks := map[string]api.HealthChecker{
		"database": db,
		"mqtt":     mqttClient,
	}
	if influxClient != nil {
		checks["influxdb"] = influxClient
	}
	return checks
}

// newStackHost builds the stack host supervisor. A restarted host has
// dropped its provisioning sessions, so the controller is reset.
func newStackHost(c config.StackHostConfig, ctrl *commissioning.Controller, log *logging.Logger) (*stackhost.Supervisor, error) {
	return stackhost.New(stackhost.Options{
		Name:            "btmesh-host",
		Binary:          c.Binary,
		Args:            c.Args,
		Env:             c.Env,
		WorkDir:         c.WorkDir,
		RestartDelay:    c.GetRestartDelay(),
		MaxRestarts:     c.MaxRestarts,
		GracefulTimeout: c.GetGracefulTimeout(),
		OnRestart: func(attempt int) {
			log.Warn("stack host restarted, resetting commissioning", "attempt", attempt)
			ctrl.Reset()
		},
		Logger: log,
	})
}

// healthCheck verifies the required infrastructure before the API opens.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

// mqttBridgeAdapter adapts the infrastructure MQTT client to the mesh
// bridge's MQTTClient interface. The bridge's handlers do not return errors.
type mqttBridgeAdapter struct {
	client *mqtt.Client
}

// Publish implements btmesh.MQTTClient.
func (a *mqttBridgeAdapter) Publish(topic string, payload []byte, qos byte, retained bool) error {
	return a.client.Publish(topic, payload, qos, retained)
}

// Subscribe implements btmesh.MQTTClient.
func (a *mqttBridgeAdapter) Subscribe(topic string, qos byte, handler func(topic string, payload []byte)) error {
	return a.client.Subscribe(topic, qos, func(t string, p []byte) error {
		handler(t, p)
		return nil
	})
}

// IsConnected implements btmesh.MQTTClient.
func (a *mqttBridgeAdapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Disconnect implements btmesh.MQTTClient. The client's lifecycle belongs
// to run's defer chain, so this is a no-op.
func (a *mqttBridgeAdapter) Disconnect(_ uint) {}
