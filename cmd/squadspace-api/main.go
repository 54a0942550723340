package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/squadspace/backend/internal/auth"
	"github.com/squadspace/backend/internal/boards"
	"github.com/squadspace/backend/internal/chat"
	"github.com/squadspace/backend/internal/config"
	"github.com/squadspace/backend/internal/database"
	"github.com/squadspace/backend/internal/events"
	"github.com/squadspace/backend/internal/gaming"
	"github.com/squadspace/backend/internal/identity"
	"github.com/squadspace/backend/internal/livesync"
	"github.com/squadspace/backend/internal/logging"
	"github.com/squadspace/backend/internal/notifications"
	"github.com/squadspace/backend/internal/polls"
	"github.com/squadspace/backend/internal/server"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "squadspace-api",
		Short: "SquadSpace collaboration backend service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("database-path", defaults.GetString("database.path"), "SQLite database path")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("auth.token_ttl_minutes"), "Session token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Session signing secret (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "database.path", "database-path")
	bindFlag(cmd, "auth.token_ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	db, err := database.OpenSQLite(appConfig.DatabasePath, logger,
		&identity.Profile{},
		&chat.Channel{},
		&chat.Message{},
		&chat.Reaction{},
		&notifications.Notification{},
		&boards.Board{},
		&boards.BoardColumn{},
		&boards.Task{},
		&events.Event{},
		&events.EventParticipant{},
		&gaming.LFGPost{},
		&gaming.LFGParticipant{},
		&polls.Poll{},
		&polls.PollOption{},
		&polls.PollVote{},
	)
	if err != nil {
		return err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	defer sqlDB.Close()

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.AuthSigningKey),
		Issuer:        "squadspace-auth",
		Audience:      "squadspace-api",
		TokenTTL:      time.Duration(appConfig.TokenTTLMinutes) * time.Minute,
	})

	feed := livesync.NewFeedWithBuffer(appConfig.FeedBufferLen)
	defer feed.Close()
	ids := livesync.NewUUIDProvider()

	identityService, err := identity.NewService(identity.ServiceConfig{Database: db})
	if err != nil {
		return err
	}
	chatService, err := chat.NewService(chat.ServiceConfig{
		Database:   db,
		Feed:       feed,
		Profiles:   identityService,
		IDProvider: ids,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	notificationService, err := notifications.NewService(notifications.ServiceConfig{
		Database:   db,
		Feed:       feed,
		IDProvider: ids,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	boardService, err := boards.NewService(boards.ServiceConfig{
		Database:   db,
		Feed:       feed,
		IDProvider: ids,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	eventService, err := events.NewService(events.ServiceConfig{
		Database:   db,
		Feed:       feed,
		IDProvider: ids,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	gamingService, err := gaming.NewService(gaming.ServiceConfig{
		Database:   db,
		IDProvider: ids,
		Logger:     logger,
	})
	if err != nil {
		return err
	}
	pollService, err := polls.NewService(polls.ServiceConfig{
		Database:   db,
		Feed:       feed,
		IDProvider: ids,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:  tokenManager,
		Identity:      identityService,
		Chat:          chatService,
		Notifications: notificationService,
		Boards:        boardService,
		Events:        eventService,
		Gaming:        gamingService,
		Polls:         pollService,
		Feed:          feed,
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
