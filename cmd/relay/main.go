package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/fearlessjoy/fridaynz/accounts"
	"github.com/fearlessjoy/fridaynz/auth"
	"github.com/fearlessjoy/fridaynz/config"
	"github.com/fearlessjoy/fridaynz/docstore"
	"github.com/fearlessjoy/fridaynz/logging"
	"github.com/fearlessjoy/fridaynz/relay"

	"github.com/redis/rueidis"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:           "fridaynz-relay",
	Short:         "Privileged account-deletion and email relay",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.InitLogger("fridaynz-relay", "")
		logging.Logger.Info("Event ID: SERVICE_START, Description: Starting relay service...")

		cfg, err := config.Load()
		if err != nil {
			logging.Logger.Fatalf("Event ID: CONFIG_ERROR, Description: %v", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		mongoStore, err := docstore.NewMongoStore(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			logging.Logger.Fatalf("Event ID: DB_CONNECTION_FAILED, Description: %v", err)
		}
		defer mongoStore.Close(context.Background())
		logging.Logger.Infof("Event ID: DB_CONNECTED, Description: Successfully connected to MongoDB at %s.", cfg.MongoURI)

		store := docstore.NewBreakerStore(mongoStore)

		var blacklist auth.Blacklist
		if cfg.RedisAddr != "" {
			redisClient, err := rueidis.NewClient(rueidis.ClientOption{InitAddress: []string{cfg.RedisAddr}})
			if err != nil {
				logging.Logger.Fatalf("Event ID: REDIS_CONNECTION_FAILED, Description: %v", err)
			}
			defer redisClient.Close()
			blacklist = auth.NewRedisBlacklist(redisClient)
		}

		jwtService := auth.NewJWTService(cfg.JWTSecret, 2*time.Hour)
		authService := auth.NewService(store, jwtService, blacklist)
		accountService := accounts.NewService(authService, store)

		sender := &relay.SMTPSender{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			From:     cfg.EmailFrom,
			Password: cfg.EmailAppPass,
		}

		handler := relay.NewHandler(authService, accountService, sender)

		address := fmt.Sprintf(":%s", cfg.RelayPort)
		logging.Logger.Infof("Event ID: SERVER_START_INFO, Description: Relay running on http://localhost%s", address)

		if err := http.ListenAndServe(address, relay.EnableCORS(handler.Router())); err != nil {
			logging.Logger.Fatalf("Event ID: SERVER_FATAL_ERROR, Description: Server failed to start: %v", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
