package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"

	"github.com/mkaryagin/scrim-system/brackets"
	"github.com/mkaryagin/scrim-system/config"
	"github.com/mkaryagin/scrim-system/db"
	"github.com/mkaryagin/scrim-system/discord"
	"github.com/mkaryagin/scrim-system/handlers"
	"github.com/mkaryagin/scrim-system/queue"
	"github.com/mkaryagin/scrim-system/repositories"
	api "github.com/mkaryagin/scrim-system/routes"
	"github.com/mkaryagin/scrim-system/services"
	"github.com/mkaryagin/scrim-system/storage"
)

const (
	queueDispatchInterval = 5 * time.Second
	reminderInterval      = 30 * time.Second
	progressionInterval   = 15 * time.Second
	botRequestInterval    = 2 * time.Second
	janitorInterval       = time.Hour

	matchWinnerDelay    = 15 * time.Second
	queueRetention      = 24 * time.Hour
	stuckWindow         = time.Hour
	botRequestRetention = time.Hour
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("configuration loaded", slog.Int("port", cfg.ServerPort))

	dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := dbConn.Close(); err != nil {
			logger.Error("failed to close database connection", slog.Any("error", err))
		}
	}()
	logger.Info("database connection established")

	if err := db.Migrate(dbConn); err != nil {
		logger.Error("failed to apply migrations", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("migrations applied")

	objectStore, err := storage.NewCloudflareR2Store(storage.CloudflareR2Config{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	})
	if err != nil {
		logger.Error("failed to initialize object store", slog.Any("error", err))
		os.Exit(1)
	}

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()

	// Repositories.
	txRunner := repositories.NewTxRunner(dbConn)
	matchRepo := repositories.NewPostgresMatchRepository(dbConn)
	tournamentRepo := repositories.NewPostgresTournamentRepository(dbConn)
	teamRepo := repositories.NewPostgresTeamRepository(dbConn)
	edgeRepo := repositories.NewPostgresEdgeRepository(dbConn)
	gameRepo := repositories.NewPostgresGameRepository(dbConn)
	voiceRepo := repositories.NewPostgresVoiceRepository(dbConn)
	msgRefRepo := repositories.NewPostgresMessageRefRepository(dbConn)
	signupRepo := repositories.NewPostgresSignupRepository(dbConn)
	botRequestRepo := repositories.NewPostgresBotRequestRepository(dbConn)

	// One store per queue kind.
	announcementQ := queue.NewStore[queue.AnnouncementPayload](dbConn)
	deletionQ := queue.NewStore[queue.DeletionPayload](dbConn)
	statusQ := queue.NewStore[queue.StatusUpdatePayload](dbConn)
	reminderQ := queue.NewStore[queue.ReminderPayload](dbConn)
	timedReminderQ := queue.NewStore[queue.TimedReminderPayload](dbConn)
	scoreQ := queue.NewStore[queue.ScoreNotificationPayload](dbConn)
	voiceQ := queue.NewStore[queue.VoiceAnnouncementPayload](dbConn)
	mapCodeQ := queue.NewStore[queue.MapCodePayload](dbConn)
	winnerQ := queue.NewStore[queue.MatchWinnerPayload](dbConn)

	// Discord gateway session.
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		logger.Error("failed to create discord session", slog.Any("error", err))
		os.Exit(1)
	}
	session.Identify.Intents = discordgo.IntentGuilds | discordgo.IntentGuildMessages | discordgo.IntentGuildVoiceStates
	if err := session.Open(); err != nil {
		logger.Error("failed to open discord gateway", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Error("failed to close discord session", slog.Any("error", err))
		}
	}()
	logger.Info("discord gateway connected")

	executor, err := discord.NewExecutor(session, discord.Config{
		GuildID:            cfg.DiscordGuildID,
		AnnounceChannelIDs: cfg.DiscordAnnounceChannelIDs,
		VoiceCategoryID:    cfg.DiscordVoiceCategoryID,
	}, objectStore, logger)
	if err != nil {
		logger.Error("failed to initialize discord executor", slog.Any("error", err))
		os.Exit(1)
	}

	// Services.
	forms := services.NewSignupFormLoader(cfg.SignupFormsDir)
	scoring := services.NewScoringService(matchRepo, scoreQ, logger)
	generator := brackets.NewGenerator(txRunner, matchRepo, edgeRepo, teamRepo, tournamentRepo, gameRepo, scoring, logger)
	broker := services.NewBotRequestBroker(botRequestRepo, executor, logger)

	lifecycle := services.NewLifecycleService(services.LifecycleDeps{
		DB:          dbConn,
		Tx:          txRunner,
		Matches:     matchRepo,
		Tournaments: tournamentRepo,
		Teams:       teamRepo,
		Games:       gameRepo,
		Signups:     signupRepo,
		MessageRefs: msgRefRepo,
		Voice:       voiceRepo,

		AnnouncementQueue:  announcementQ,
		DeletionQueue:      deletionQ,
		StatusQueue:        statusQ,
		VoiceQueue:         voiceQ,
		MapCodeQueue:       mapCodeQ,
		WinnerQueue:        winnerQ,
		ReminderQueue:      reminderQ,
		TimedReminderQueue: timedReminderQ,

		Scoring:     scoring,
		Provisioner: broker,
		Generator:   generator,
		Hub:         wsHub,
		Logger:      logger,
	})

	progression := services.NewProgressionService(tournamentRepo, matchRepo, generator, lifecycle, wsHub, logger)
	sideEffects := services.NewSideEffectService(executor, matchRepo, voiceRepo, msgRefRepo, forms, logger)
	requeue := services.NewRequeueService(map[queue.Kind]services.Requeuer{
		queue.KindAnnouncement:      announcementQ,
		queue.KindDeletion:          deletionQ,
		queue.KindStatusUpdate:      statusQ,
		queue.KindReminder:          reminderQ,
		queue.KindTimedReminder:     timedReminderQ,
		queue.KindScoreNotification: scoreQ,
		queue.KindVoiceAnnouncement: voiceQ,
		queue.KindMapCode:           mapCodeQ,
		queue.KindMatchWinner:       winnerQ,
	})
	logger.Info("services initialized")

	// Dispatchers. Match-scoped queues skip items whose match is gone
	// or cancelled; deletion and status updates must still run for
	// cancelled entities, so they carry no orphan check.
	matchGone := func(ctx context.Context, matchID int) (bool, error) {
		exists, err := matchRepo.Exists(ctx, matchID)
		return !exists, err
	}

	announcementD := queue.NewDispatcher("announcement", announcementQ, sideEffects.ExecAnnouncement, logger)
	deletionD := queue.NewDispatcher("deletion", deletionQ, sideEffects.ExecDeletion, logger)
	statusD := queue.NewDispatcher("status_update", statusQ, sideEffects.ExecStatusUpdate, logger)

	reminderD := queue.NewDispatcher("reminder", reminderQ, sideEffects.ExecReminder, logger)
	reminderD.Ready = services.ReminderReady
	reminderD.SkipOrphaned = matchGone

	timedReminderD := queue.NewDispatcher("timed_reminder", timedReminderQ, sideEffects.ExecTimedReminder, logger)
	timedReminderD.Ready = services.TimedReminderReady
	timedReminderD.SkipOrphaned = matchGone

	scoreD := queue.NewDispatcher("score_notification", scoreQ, sideEffects.ExecScoreNotification, logger)
	scoreD.SkipOrphaned = matchGone

	voiceD := queue.NewDispatcher("voice_announcement", voiceQ, sideEffects.ExecVoiceAnnouncement, logger)
	voiceD.SkipOrphaned = matchGone

	mapCodeD := queue.NewDispatcher("map_code", mapCodeQ, sideEffects.ExecMapCode, logger)
	mapCodeD.SkipOrphaned = matchGone

	winnerD := queue.NewDispatcher("match_winner", winnerQ, sideEffects.ExecMatchWinner, logger)
	winnerD.ExecDelay = matchWinnerDelay

	scheduler := queue.NewScheduler(logger)
	scheduler.AddGroup("queue-dispatch", queueDispatchInterval,
		announcementD.RunCycle,
		deletionD.RunCycle,
		statusD.RunCycle,
		scoreD.RunCycle,
		voiceD.RunCycle,
		mapCodeD.RunCycle,
		winnerD.RunCycle,
	)
	scheduler.AddGroup("reminders", reminderInterval,
		reminderD.RunCycle,
		timedReminderD.RunCycle,
	)
	scheduler.Add("bracket-progression", progressionInterval, progression.RunCycle)
	scheduler.Add("bot-requests", botRequestInterval, broker.FulfillPending)
	scheduler.Add("janitor", janitorInterval, func(ctx context.Context) {
		sweeps := []func(ctx context.Context){
			sweepQueue(announcementQ, "announcement", logger),
			sweepQueue(deletionQ, "deletion", logger),
			sweepQueue(statusQ, "status_update", logger),
			sweepQueue(reminderQ, "reminder", logger),
			sweepQueue(timedReminderQ, "timed_reminder", logger),
			sweepQueue(scoreQ, "score_notification", logger),
			sweepQueue(voiceQ, "voice_announcement", logger),
			sweepQueue(mapCodeQ, "map_code", logger),
			sweepQueue(winnerQ, "match_winner", logger),
		}
		for _, sweep := range sweeps {
			sweep(ctx)
		}
		if n, err := botRequestRepo.PurgeOlderThan(ctx, botRequestRetention); err != nil {
			logger.Error("bot request purge failed", slog.Any("error", err))
		} else if n > 0 {
			logger.Info("purged bot requests", slog.Int64("rows", n))
		}
	})

	schedulerCtx, stopScheduler := context.WithCancel(context.Background())
	defer stopScheduler()
	scheduler.Start(schedulerCtx)
	logger.Info("scheduler started")

	// HTTP surface.
	lifecycleHandler := handlers.NewLifecycleHandler(lifecycle, matchRepo, tournamentRepo)
	scoreHandler := handlers.NewScoreHandler(scoring, lifecycle)
	queueHandler := handlers.NewQueueHandler(requeue)
	signupHandler := handlers.NewSignupHandler(forms, signupRepo)
	webSocketHandler := handlers.NewWebSocketHandler(wsHub, logger)

	router := chi.NewRouter()
	api.SetupRoutes(router, lifecycleHandler, scoreHandler, queueHandler, signupHandler, webSocketHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancelShutdown()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", slog.Any("error", err))
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
		}

		stopScheduler()
		scheduler.Wait()
		logger.Info("scheduler stopped")
	}
}

// sweepQueue returns the janitor job for one queue store: terminal rows
// past retention are purged, abandoned processing rows force-failed.
func sweepQueue[P queue.Payload](store *queue.Store[P], name string, logger *slog.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		if n, err := store.PurgeOlderThan(ctx, queueRetention); err != nil {
			logger.Error("queue purge failed", slog.String("queue", name), slog.Any("error", err))
		} else if n > 0 {
			logger.Info("purged queue rows", slog.String("queue", name), slog.Int64("rows", n))
		}
		if n, err := store.FailStuckProcessing(ctx, stuckWindow); err != nil {
			logger.Error("stuck row sweep failed", slog.String("queue", name), slog.Any("error", err))
		} else if n > 0 {
			logger.Warn("failed stuck processing rows", slog.String("queue", name), slog.Int64("rows", n))
		}
	}
}
