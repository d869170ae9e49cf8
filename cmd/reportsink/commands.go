package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/xl-idp/reportsink/broker"
	"github.com/xl-idp/reportsink/config"
	"github.com/xl-idp/reportsink/deadletter"
	"github.com/xl-idp/reportsink/metrics"
	"github.com/xl-idp/reportsink/notify"
	"github.com/xl-idp/reportsink/ops"
	"github.com/xl-idp/reportsink/scheduler"
	"github.com/xl-idp/reportsink/stats"
	"github.com/xl-idp/reportsink/store"
	"github.com/xl-idp/reportsink/worker"
)

// storeConfig are the column-store connection options.
type storeConfig struct {
	Host     string `long:"store.host" env:"HOST" required:"true" description:"Column store host:port"`
	Database string `long:"store.database" env:"DATABASE" default:"DataCore" description:"Default database"`
	User     string `long:"store.user" env:"USERNAME_DB" required:"true" description:"Store user"`
	Password string `long:"store.password" env:"PASSWORD" description:"Store password"`
}

// brokerConfig are the AMQP connection options.
type brokerConfig struct {
	Host     string `long:"broker.host" env:"RABBITMQ_HOST" required:"true" description:"Broker host"`
	Port     string `long:"broker.port" env:"RABBITMQ_PORT" default:"5672" description:"Broker port"`
	User     string `long:"broker.user" env:"RABBITMQ_USER" required:"true" description:"Broker user"`
	Password string `long:"broker.password" env:"RABBITMQ_PASSWORD" description:"Broker password"`
	Exchange string `long:"broker.exchange" env:"EXCHANGE_NAME" required:"true" description:"Direct exchange name"`
}

// pathConfig are the filesystem roots of config and persisted state.
type pathConfig struct {
	ConfigRoot string `long:"path.config" env:"XL_IDP_ROOT_RABBITMQ" required:"true" description:"Root of config/ and logging/ state"`
	DataRoot   string `long:"path.data" env:"XL_IDP_PATH_RABBITMQ" required:"true" description:"Root of errors/ and json/ dumps"`
}

// notifyConfig are the alert delivery options. Mail is enabled only
// when a mail user is configured.
type notifyConfig struct {
	Token     string `long:"notify.token" env:"TOKEN_TELEGRAM" description:"Telegram bot token"`
	ChatID    string `long:"notify.chat" env:"CHAT_ID" description:"Telegram chat id"`
	Topic     string `long:"notify.topic" env:"TOPIC" description:"Telegram chat topic"`
	MessageID string `long:"notify.reply-to" env:"MESSAGE_ID" description:"Telegram message id replied to"`

	MailUser      string `long:"notify.mail-user" env:"EMAIL_USER" description:"SMTP user and sender address"`
	MailPassword  string `long:"notify.mail-password" env:"EMAIL_PASSWORD" description:"SMTP password"`
	MailRecipient string `long:"notify.mail-recipient" env:"RECIPIENT_EMAIL" description:"Alert mail recipient"`
	MailHost      string `long:"notify.mail-host" env:"HOST_HOSTNAME" description:"SMTP host"`
}

// logConfig are the process logging options.
type logConfig struct {
	Level  string `long:"log.level" env:"LOG_LEVEL" default:"info" choice:"trace" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"Logging level"`
	Format string `long:"log.format" env:"LOG_FORMAT" default:"text" choice:"text" choice:"json" description:"Logging format"`
}

// senders builds the fanout of configured alert channels.
func (c notifyConfig) senders() notify.Sender {
	var out notify.Fanout
	if c.Token != "" {
		out = append(out, &notify.Telegram{
			Token:     c.Token,
			ChatID:    c.ChatID,
			Topic:     c.Topic,
			MessageID: c.MessageID,
		})
	}
	if c.MailUser != "" {
		out = append(out, &notify.Mail{
			Host:      c.MailHost,
			User:      c.MailUser,
			Password:  c.MailPassword,
			Recipient: c.MailRecipient,
			Subject:   "reportsink alert",
		})
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

type cmdRunConsumer struct {
	Store  storeConfig  `group:"Store" namespace:"" env-namespace:""`
	Broker brokerConfig `group:"Broker" namespace:"" env-namespace:""`
	Paths  pathConfig   `group:"Paths" namespace:"" env-namespace:""`
	Notify notifyConfig `group:"Notify" namespace:"" env-namespace:""`
	Log    logConfig    `group:"Logging" namespace:"" env-namespace:""`

	Parallelism int64  `long:"parallelism" default:"10" description:"Concurrent queue drains"`
	BatchSize   int    `long:"batch-size" default:"5000" description:"Rows buffered before a flush"`
	SweepDelay  string `long:"sweep-delay" default:"60s" description:"Pause between sweeps"`
	DayBoundary string `long:"day-boundary" default:"19:58" description:"Wall-clock time of the daily rollup"`
	Timezone    string `long:"timezone" default:"Europe/Moscow" description:"Ingestion timezone"`
	DumpJSON    bool   `long:"dump-json" description:"Dump normalized records under json/ for debugging"`
	DebugAddr   string `long:"debug-addr" description:"Optional /metrics listen address"`
}

func (cmd *cmdRunConsumer) Execute(_ []string) error {
	if err := ops.InitLogging(filepath.Join(cmd.Paths.ConfigRoot, "logging"),
		"reportsink", cmd.Log.Level, cmd.Log.Format); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	sweepDelay, err := time.ParseDuration(cmd.SweepDelay)
	if err != nil {
		return fmt.Errorf("parsing sweep delay: %w", err)
	}

	registry, err := config.Load(cmd.Paths.ConfigRoot, cmd.DayBoundary, cmd.Timezone)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gateway, err := store.Dial(ctx, store.Options{
		Addr:     cmd.Store.Host,
		Database: cmd.Store.Database,
		Username: cmd.Store.User,
		Password: cmd.Store.Password,
	})
	if err != nil {
		return err
	}
	defer gateway.Close()

	conn, err := broker.Dial(broker.Options{
		Host:     cmd.Broker.Host,
		Port:     cmd.Broker.Port,
		User:     cmd.Broker.User,
		Password: cmd.Broker.Password,
		Exchange: cmd.Broker.Exchange,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	statsStore, err := stats.Open(filepath.Join(cmd.Paths.ConfigRoot, "logging", "processed_messages.db"))
	if err != nil {
		return err
	}
	defer statsStore.Close()

	sink, err := deadletter.New(filepath.Join(cmd.Paths.DataRoot, "errors"))
	if err != nil {
		return err
	}

	var dump worker.Sink
	if cmd.DumpJSON {
		d, err := deadletter.New(filepath.Join(cmd.Paths.DataRoot, "json"))
		if err != nil {
			return err
		}
		dump = d
	}

	if cmd.DebugAddr != "" {
		go metrics.ServeDebug(cmd.DebugAddr)
	}

	var sched = &scheduler.Scheduler{
		Registry:    registry,
		Conn:        scheduler.Broker(conn),
		Store:       gateway,
		Stats:       statsStore,
		Sink:        sink,
		Dump:        dump,
		Notifier:    cmd.Notify.senders(),
		BatchSize:   cmd.BatchSize,
		Parallelism: cmd.Parallelism,
		SweepDelay:  sweepDelay,
	}

	log.WithFields(log.Fields{
		"queues":      len(registry.Queues),
		"parallelism": cmd.Parallelism,
	}).Info("starting consumer")
	return sched.Run(ctx)
}

type cmdRollupStats struct {
	Paths  pathConfig   `group:"Paths" namespace:"" env-namespace:""`
	Notify notifyConfig `group:"Notify" namespace:"" env-namespace:""`
	Log    logConfig    `group:"Logging" namespace:"" env-namespace:""`
}

func (cmd *cmdRollupStats) Execute(_ []string) error {
	if err := ops.InitLogging(filepath.Join(cmd.Paths.ConfigRoot, "logging"),
		"rollup", cmd.Log.Level, cmd.Log.Format); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}

	statsStore, err := stats.Open(filepath.Join(cmd.Paths.ConfigRoot, "logging", "processed_messages.db"))
	if err != nil {
		return err
	}
	defer statsStore.Close()

	records, err := statsStore.LoadAll()
	if err != nil {
		return err
	}

	var sender = cmd.Notify.senders()
	if sender == nil {
		return fmt.Errorf("no alert channel configured")
	}
	if err = sender.Send(context.Background(), stats.FormatSummary(records)); err != nil {
		return err
	}

	log.WithField("queues", len(records)).Info("rollup sent")
	return statsStore.Clear()
}
