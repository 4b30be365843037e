package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/vladimiradmaev/glucose-alerts/internal/bot"
	"github.com/vladimiradmaev/glucose-alerts/internal/bot/handlers"
	"github.com/vladimiradmaev/glucose-alerts/internal/config"
	"github.com/vladimiradmaev/glucose-alerts/internal/database"
	"github.com/vladimiradmaev/glucose-alerts/internal/dispatch"
	"github.com/vladimiradmaev/glucose-alerts/internal/engine"
	apperrors "github.com/vladimiradmaev/glucose-alerts/internal/errors"
	"github.com/vladimiradmaev/glucose-alerts/internal/ledger"
	"github.com/vladimiradmaev/glucose-alerts/internal/lock"
	"github.com/vladimiradmaev/glucose-alerts/internal/logger"
	"github.com/vladimiradmaev/glucose-alerts/internal/metrics"
	"github.com/vladimiradmaev/glucose-alerts/internal/repository"
	"github.com/vladimiradmaev/glucose-alerts/internal/rules"
	"github.com/vladimiradmaev/glucose-alerts/internal/services"
	"github.com/vladimiradmaev/glucose-alerts/internal/window"
)

const (
	metricsJob   = "glucose_alerts"
	redisLockTTL = 30 * time.Second
)

type options struct {
	dryRun         bool
	snooze         string
	snoozeDuration int
	snoozeStatus   bool
	unsnooze       bool
	rule           string
	trigger        string
	status         bool
	listen         bool
}

func parseFlags() options {
	var o options
	flag.BoolVar(&o.dryRun, "dry-run", false, "Evaluate rules without sending or recording alerts")
	flag.StringVar(&o.snooze, "snooze", "", "Snooze RULE, or ALL")
	flag.IntVar(&o.snoozeDuration, "snooze-duration", 120, "Snooze duration in minutes")
	flag.BoolVar(&o.snoozeStatus, "snooze-status", false, "List active snoozes")
	flag.BoolVar(&o.unsnooze, "unsnooze", false, "Clear every snooze, or only -rule")
	flag.StringVar(&o.rule, "rule", "", "Rule for -unsnooze")
	flag.StringVar(&o.trigger, "trigger", "", "Evaluate one rule now, manual-only rules included")
	flag.BoolVar(&o.status, "status", false, "Show current glucose, a dry run of every rule and recent alerts")
	flag.BoolVar(&o.listen, "listen", false, "Run the Telegram bot for snooze commands")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	if err := godotenv.Load(); err != nil {
		fmt.Fprintln(os.Stderr, "Warning: .env file not found")
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.InitWithConfig(logger.Config{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()
	for _, w := range cfg.Warnings {
		logger.Warn("Configuration warning", "warning", w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	handler := apperrors.NewHandler(logger.GetLogger())
	if err := run(ctx, cfg, opts); err != nil {
		handler.Handle(ctx, err)
		stop()
		logger.Close()
		os.Exit(1)
	}
}

type app struct {
	cfg      *config.Config
	loc      *time.Location
	db       *gorm.DB
	api      *tgbotapi.BotAPI
	registry *rules.Registry
	ledger   ledger.Ledger
	monitor  *services.MonitorService
	snoozes  *services.SnoozeService
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logger.Warn("Failed to close resource", "error", err)
		}
	}
}

// newApp wires the engine. Only live runs connect to the dispatch channel; the
// Telegram client is also created for the bot.
func newApp(cfg *config.Config, live, needBot bool) (*app, error) {
	a := &app{cfg: cfg}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	a.loc = loc

	a.registry, err = rules.NewRegistry(cfg.Rules, loc)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}

	a.db, err = database.NewDB(cfg.DB)
	if err != nil {
		return nil, apperrors.NewDatabaseError(err)
	}
	a.closers = append(a.closers, func() error { return database.Close(a.db) })

	policy := ledger.CooldownDelivered
	if !cfg.Engine.RetryFailedSends {
		policy = ledger.CooldownAll
	}
	a.ledger = ledger.NewGormLedger(a.db, policy)

	locker := lock.Chain{lock.NewLocalLocker()}
	if cfg.Redis.Enabled() {
		rl, err := lock.NewRedisLocker(cfg.Redis.Host, cfg.Redis.Port, redisLockTTL)
		if err != nil {
			return nil, apperrors.NewLedgerError(err, "connect lock backend")
		}
		a.closers = append(a.closers, rl.Close)
		locker = append(locker, rl)
	}

	channel := cfg.Dispatch.Channel
	if !live {
		channel = config.ChannelLog
	} else if err := cfg.ValidateDispatch(); err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	if needBot || channel == config.ChannelTelegram {
		if cfg.TelegramToken == "" {
			return nil, apperrors.NewValidationError("TELEGRAM_BOT_TOKEN is required")
		}
		a.api, err = bot.NewAPI(cfg.TelegramToken)
		if err != nil {
			return nil, apperrors.NewExternalAPIError(err, "telegram")
		}
	}

	dispatcher, destination, err := a.dispatcher(channel)
	if err != nil {
		return nil, err
	}
	adapter := dispatch.NewAdapter(dispatcher, channel, destination, cfg.Dispatch.Timeout, logger.GetLogger())

	readings := repository.NewReadingRepository(a.db)
	reader := window.NewReader(readings, repository.NewEventRepository(a.db), cfg.Engine.ReadTimeout)
	eng := engine.New(a.registry, reader, a.ledger, locker, adapter, logger.GetLogger())

	a.monitor = services.NewMonitorService(eng, a.ledger, readings, loc, logger.GetLogger())
	a.snoozes = services.NewSnoozeService(a.ledger, a.registry)

	logger.Info("Alert engine initialized",
		"channel", channel,
		"policy", policy.String(),
		"redis_lock", cfg.Redis.Enabled(),
		"rules", a.registry.Names())
	ok = true
	return a, nil
}

func (a *app) dispatcher(channel string) (dispatch.Dispatcher, string, error) {
	switch channel {
	case config.ChannelTelegram:
		return dispatch.NewTelegramDispatcher(a.api), a.cfg.AlertChatID, nil
	case config.ChannelNATS:
		d, err := dispatch.NewNATSDispatcher(a.cfg.Dispatch.NATSURL)
		if err != nil {
			return nil, "", apperrors.NewExternalAPIError(err, "nats")
		}
		a.closers = append(a.closers, d.Close)
		return d, a.cfg.Dispatch.NATSSubject, nil
	default:
		return dispatch.NewLogDispatcher(logger.WithComponent("alerts")), "", nil
	}
}

func run(ctx context.Context, cfg *config.Config, opts options) error {
	live := !opts.dryRun && !opts.snoozeStatus && !opts.status && !opts.unsnooze && opts.snooze == ""
	a, err := newApp(cfg, live, opts.listen)
	if err != nil {
		return err
	}
	defer a.Close()

	switch {
	case opts.snoozeStatus:
		snoozes, err := a.snoozes.Active(ctx)
		if err != nil {
			return err
		}
		fmt.Println(services.FormatSnoozes(snoozes, time.Now(), a.loc))
		return nil

	case opts.snooze != "":
		s, err := a.snoozes.Snooze(ctx, opts.snooze, time.Duration(opts.snoozeDuration)*time.Minute, "cli")
		if err != nil {
			return err
		}
		fmt.Printf("Snoozed %s until %s\n", s.RuleName, s.Until.In(a.loc).Format("2006-01-02 15:04"))
		return nil

	case opts.unsnooze:
		n, err := a.snoozes.Unsnooze(ctx, opts.rule)
		if err != nil {
			return err
		}
		fmt.Printf("Cleared %d snooze(s)\n", n)
		return nil

	case opts.status:
		st, err := a.monitor.Status(ctx)
		if err != nil {
			return err
		}
		fmt.Println(a.monitor.Format(st))
		return nil

	case opts.listen:
		return a.listen(ctx)

	case opts.trigger != "":
		report, err := a.monitor.Trigger(ctx, opts.trigger, opts.dryRun)
		return a.finish(ctx, report, err)

	default:
		report, err := a.monitor.Tick(ctx, opts.dryRun)
		return a.finish(ctx, report, err)
	}
}

// finish prints the report and pushes tick metrics; err is the tick's own error
func (a *app) finish(ctx context.Context, report *engine.Report, err error) error {
	if report != nil {
		fmt.Println(report.String())
	}
	if url := a.cfg.Metrics.PushgatewayURL; url != "" && report != nil {
		pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := metrics.Push(pushCtx, url, metricsJob); err != nil {
			logger.Warn("Failed to push metrics", "url", url, "error", err)
		}
	}
	return err
}

func (a *app) listen(ctx context.Context) error {
	chatID, err := strconv.ParseInt(a.cfg.AlertChatID, 10, 64)
	if err != nil {
		return apperrors.NewValidationError(fmt.Sprintf("ALERT_CHAT_ID must be a numeric chat id, got %q", a.cfg.AlertChatID))
	}

	deps := handlers.Dependencies{
		SnoozeSvc:  a.snoozes,
		MonitorSvc: a.monitor,
		Location:   a.loc,
	}
	telegramBot := bot.NewBot(a.api, chatID, deps, logger.GetLogger())
	logger.Info("Bot is running. Press Ctrl+C to stop.")
	if err := telegramBot.Start(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("bot stopped: %w", err)
	}
	return nil
}
