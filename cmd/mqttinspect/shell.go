package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/spf13/cobra"

	_ "github.com/nerrad567/mqtt-inspect/migrations"

	"github.com/nerrad567/mqtt-inspect/internal/api"
	"github.com/nerrad567/mqtt-inspect/internal/audit"
	"github.com/nerrad567/mqtt-inspect/internal/demo"
	"github.com/nerrad567/mqtt-inspect/internal/history"
	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/config"
	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/database"
	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/influxdb"
	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/logging"
	"github.com/nerrad567/mqtt-inspect/internal/infrastructure/mqtt"
	"github.com/nerrad567/mqtt-inspect/internal/message"
	"github.com/nerrad567/mqtt-inspect/internal/rule"
	"github.com/nerrad567/mqtt-inspect/internal/shell"
)

// shellFlags are the flags of the shell command.
type shellFlags struct {
	*globalFlags
	demo bool
	rule string
	noDB bool
	api  bool
	sys  bool
}

func newShellCmd(global *globalFlags) *cobra.Command {
	flags := &shellFlags{globalFlags: global}

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Start the interactive shell (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runShell(cmd.Context(), flags, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().BoolVar(&flags.demo, "demo", false, "generate simulated traffic instead of connecting to a broker")
	cmd.Flags().StringVar(&flags.rule, "rule", "", "filter rule to apply at startup (overrides shell.default_rule)")
	cmd.Flags().BoolVar(&flags.noDB, "no-db", false, "run without the saved-rules database")
	cmd.Flags().BoolVar(&flags.api, "api", false, "serve the HTTP API (overrides api.enabled)")
	cmd.Flags().BoolVar(&flags.sys, "sys", false, "also subscribe to broker statistics ($SYS/#)")
	return cmd
}

// loadConfig resolves the config path from the flag, then the environment,
// then the default location. Only the default location may be missing.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = os.Getenv(configEnv)
	}
	if path == "" {
		return config.LoadOptional(defaultConfigPath)
	}
	return config.Load(path)
}

// openDatabase opens the saved-rules database and applies migrations.
func openDatabase(ctx context.Context, cfg config.DatabaseConfig, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(ctx, database.FromConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	applied, err := db.Migrate(ctx)
	if err != nil {
		db.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Debug("database ready", "path", db.Path(), "migrations_applied", applied)
	return db, nil
}

// runShell wires the collaborators together and runs the REPL until the
// user quits, input ends, or ctx is cancelled.
func runShell(ctx context.Context, flags *shellFlags, in io.Reader, out io.Writer) error {
	cfg, err := loadConfig(flags.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("starting mqttinspect", "version", version, "commit", commit, "demo", flags.demo)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// History
	store := history.NewStore(history.NewBuffer(cfg.History.Capacity, nil))
	storeCtx, stopStore := context.WithCancel(context.Background())
	go store.Run(storeCtx) //nolint:errcheck // returns context.Canceled on shutdown
	defer func() {
		stopStore()
		<-store.Done()
	}()

	// Rule engine
	engine := rule.NewEngine(nil, log)
	initial := cfg.Shell.DefaultRule
	if flags.rule != "" {
		initial = flags.rule
	}
	if initial != "" {
		if _, err := engine.Apply(initial); err != nil {
			return fmt.Errorf("applying startup rule: %w", err)
		}
	}

	opts := shell.OptionsFromConfig(cfg.Shell)
	opts.Logger = log

	// Saved rules and activity log
	var db *database.DB
	if !flags.noDB {
		db, err = openDatabase(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := db.Close(); closeErr != nil {
				log.Error("error closing database", "error", closeErr)
			}
		}()
		opts.Rules = rule.NewSQLiteRepository(db.DB)
		opts.Journal = audit.NewSQLiteRepository(db.DB)
	}

	// Traffic metrics
	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			log.Warn("InfluxDB unavailable, traffic metrics disabled", "error", err)
		} else {
			influxClient.SetOnError(func(err error) {
				log.Warn("InfluxDB write failed", "error", err)
			})
			defer influxClient.Close() //nolint:errcheck // Close flushes and never fails
			opts.Recorder = influxClient
		}
	}

	var sh *shell.Shell
	ingest := func(msg message.Message) {
		if err := sh.Ingest(ctx, msg); err != nil {
			log.Debug("message dropped", "topic", msg.Topic(), "error", err)
		}
	}

	// Traffic source. Nothing is delivered until the shell exists.
	var (
		source        string
		brokerAddress string
		gen           *demo.Generator
		sub           *brokerSubscriber
		broker        api.BrokerStatus
	)
	if flags.demo {
		gen = demo.FromConfig(cfg.Demo)
		opts.Publisher = loopback{ingest: ingest}
		source = fmt.Sprintf("demo traffic every %v", gen.Interval())
	} else {
		client, err := mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		client.SetLogger(log)
		defer func() {
			if closeErr := client.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()

		address := fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port)
		brokerAddress = address
		sub = &brokerSubscriber{
			client: client,
			qos:    byte(cfg.MQTT.QoS), // #nosec G115 -- validated 0-2
			handler: func(d mqtt.Delivery) error {
				ingest(message.FromMQTT(message.TypeReceived, address, d.Topic, d.Payload, d.QoS, d.Retained))
				return nil
			},
		}
		opts.Publisher = client
		opts.Subscriber = sub
		broker = client
		log.Info("MQTT connected", "broker", address, "client_id", client.ClientID())
		source = fmt.Sprintf("connected to %s as %s", address, client.ClientID())
	}

	// HTTP API
	if flags.api {
		cfg.API.Enabled = true
	}
	if cfg.API.Enabled {
		deps := api.Deps{
			Config:    cfg.API,
			Logger:    log,
			Store:     store,
			Engine:    engine,
			Publisher: opts.Publisher,
			Broker:    broker,
			Version:   version,
		}
		if db != nil {
			deps.Rules = opts.Rules
			deps.Journal = opts.Journal
			deps.DB = db.DB
		}
		apiServer, err := api.New(deps)
		if err != nil {
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := apiServer.Start(ctx); err != nil {
			return fmt.Errorf("starting API server: %w", err)
		}
		defer func() {
			if closeErr := apiServer.Close(); closeErr != nil {
				log.Error("error closing API server", "error", closeErr)
			}
		}()
		opts.Observer = apiServer
		source += ", API on http://" + apiServer.Addr()
	}

	sh = shell.New(store, engine, out, opts)

	if gen != nil {
		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			gen.Run(ctx, func(topic string, payload []byte) {
				ingest(message.FromMQTT(message.TypeSimulated, "demo", topic, payload, 0, false))
			})
		}()
		defer func() {
			cancel()
			wg.Wait()
		}()
	}
	if sub != nil {
		reportConnection(sub.client, sh, brokerAddress)
		for _, filter := range subscriptions(cfg.MQTT.Subscriptions, flags.sys) {
			if err := sub.Subscribe(filter); err != nil {
				return fmt.Errorf("subscribing to %q: %w", filter, err)
			}
		}
	}

	sh.Printf("mqttinspect %s: %s (type 'help' for commands)\n", version, source)
	if def := engine.Current(); def != nil {
		sh.Printf("filter: %s\n", def)
	}

	if err := sh.Run(ctx, in); err != nil {
		return fmt.Errorf("shell: %w", err)
	}
	log.Info("mqttinspect stopped")
	return nil
}

// subscriptions returns the startup filters: the configured ones, or all
// ordinary traffic when none are set, plus $SYS/# when sys is true.
func subscriptions(configured []string, sys bool) []string {
	var topics mqtt.Topics
	filters := append([]string(nil), configured...)
	if len(filters) == 0 {
		filters = append(filters, topics.AllTopics())
	}
	if sys {
		filters = append(filters, topics.AllSys())
	}
	return filters
}

// brokerSubscriber adapts the MQTT client to shell.Subscriber, routing
// every subscription to the same handler.
type brokerSubscriber struct {
	client  *mqtt.Client
	qos     byte
	handler mqtt.MessageHandler
}

func (b *brokerSubscriber) Subscribe(filter string) error {
	return b.client.Subscribe(filter, b.qos, b.handler)
}

func (b *brokerSubscriber) Unsubscribe(filter string) error {
	if !b.client.HasSubscription(filter) {
		return fmt.Errorf("%w: %s", shell.ErrNotSubscribed, filter)
	}
	return b.client.Unsubscribe(filter)
}

func (b *brokerSubscriber) Subscriptions() []string {
	return b.client.Subscriptions()
}

// connectionEvents is the part of mqtt.Client that reports link changes.
type connectionEvents interface {
	SetOnConnect(func())
	SetOnDisconnect(func(error))
}

// reportConnection prints broker connection loss and recovery in the
// shell. paho reconnects on its own; the client restores subscriptions.
func reportConnection(c connectionEvents, sh *shell.Shell, address string) {
	c.SetOnDisconnect(func(err error) {
		sh.Printf("connection to %s lost: %v (reconnecting)\n", address, err)
	})
	c.SetOnConnect(func() {
		sh.Printf("reconnected to %s\n", address)
	})
}

// loopback is the demo-mode publisher: published messages are ingested
// directly, as a broker echoing them back would.
type loopback struct {
	ingest func(message.Message)
}

func (l loopback) Publish(topic string, payload []byte, qos byte, retained bool) error {
	l.ingest(message.FromMQTT(message.TypePublished, "shell", topic, payload, qos, retained))
	return nil
}

// ClearRetained loops back the empty retained message a broker would
// receive.
func (l loopback) ClearRetained(topic string) error {
	return l.Publish(topic, nil, 0, true)
}
