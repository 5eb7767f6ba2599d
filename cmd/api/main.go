package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"teamflow/api/internal/account"
	"teamflow/api/internal/activity"
	"teamflow/api/internal/app"
	"teamflow/api/internal/assign"
	"teamflow/api/internal/chat"
	"teamflow/api/internal/comment"
	"teamflow/api/internal/config"
	"teamflow/api/internal/email"
	"teamflow/api/internal/files"
	"teamflow/api/internal/github"
	"teamflow/api/internal/jobs"
	"teamflow/api/internal/member"
	"teamflow/api/internal/notify"
	"teamflow/api/internal/project"
	"teamflow/api/internal/realtime"
	"teamflow/api/internal/report"
	"teamflow/api/internal/search"
	"teamflow/api/internal/session"
	"teamflow/api/internal/store"
	"teamflow/api/internal/task"
)

func main() {
	cfg := config.Load()
	ctx := context.Background()

	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer db.Close()

	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations failed: %v", err)
	}

	dataStore := store.NewPostgresStore(db)

	redisStore, err := session.NewRedisStore(cfg.RedisURL)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}
	defer redisStore.Close()
	sessions := app.NewSessionManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL, redisStore)

	pgfts := search.NewPgFTS(db)
	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey)
		defer meiliClient.Close()
	}
	searchService := search.NewService(meiliClient, pgfts)
	go searchService.ReindexAllFromPG(ctx)

	registry := realtime.NewRegistry()
	resolver := realtime.NewResolver(dataStore, registry)

	notifications := notify.NewService(dataStore, dataStore, registry)
	activityLog := activity.NewService(dataStore, dataStore, resolver)
	assignments := assign.NewService(dataStore, dataStore, notifications, resolver)
	members := member.NewService(dataStore, dataStore, notifications, resolver)
	projects := project.NewService(dataStore, dataStore, members, notifications)
	tasks := task.NewService(dataStore, dataStore, assignments, activityLog, resolver)

	fileService, err := files.NewService(files.Config{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
		BaseURL:   cfg.MinioBaseURL,
	}, dataStore)
	if err != nil {
		log.Fatalf("object storage connection failed: %v", err)
	}
	if err := fileService.EnsureBucket(ctx); err != nil {
		log.Printf("WARNING: bucket check failed (uploads may not work): %v", err)
	}

	chatService := chat.NewService(dataStore, dataStore, notifications, resolver, fileService)
	comments := comment.NewService(dataStore, dataStore, notifications, activityLog, resolver)

	webhook := github.NewWebhookService(cfg.WebhookSecret, cfg.MainBranch, dataStore, activityLog, resolver)
	links := github.NewLinkService(dataStore, dataStore)

	reports := report.NewService(projects)
	accounts := account.NewService(dataStore)

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		members.EnableInviteMail(mailer, dataStore, cfg.PublicBaseURL)
	} else {
		log.Printf("SMTP not configured, invite emails disabled")
	}

	sweeper := jobs.NewDeadlineSweeper(dataStore, dataStore, notifications, 24*time.Hour)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	httpServer := app.NewHTTPServer(app.Services{
		Store:         dataStore,
		Sessions:      sessions,
		Accounts:      accounts,
		Projects:      projects,
		Tasks:         tasks,
		Members:       members,
		Chat:          chatService,
		Comments:      comments,
		Notifications: notifications,
		Activity:      activityLog,
		Assignments:   assignments,
		Webhook:       webhook,
		Links:         links,
		Search:        searchService,
		Reports:       reports,
		Registry:      registry,
	}, cfg.CORSOrigin)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpServer.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No write deadline: the event stream holds connections open.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("TeamFlow API listening on %s", cfg.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}
