package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v7"
	"github.com/labstack/echo/v4"
	"github.com/spf13/cobra"

	"github.com/signato/signato-auth/api"
	"github.com/signato/signato-auth/logging"
	"github.com/signato/signato-auth/pkg"
	"github.com/signato/signato-auth/pkg/relay"
	"github.com/signato/signato-auth/pkg/storage"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:              "serve",
	Short:            "Start the authentication and relay server",
	PersistentPreRun: initConfig,
	Run: func(cmd *cobra.Command, args []string) {
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

		store, err := newStore()
		if err != nil {
			logging.Log().WithError(err).Fatal("Could not initialize storage")
		}

		auth := pkg.NewAuth(pkg.AuthConfig{
			AssertionSecret:  []byte(appConfig.AssertionSecret),
			OtpExpiryMinutes: appConfig.OtpExpiryMinutes,
			MessageTemplate:  appConfig.MessageTemplate,
			Identity:         appConfig.IdentityConfig(),
		}, store, nil, nil)

		hub := relay.NewHub(relay.Config{
			SendBuffer:    appConfig.Relay.SendBuffer,
			RoomTTL:       time.Duration(appConfig.Relay.RoomTTLMinutes) * time.Minute,
			SweepInterval: time.Minute,
		})

		router := echo.New()
		router.HideBanner = true
		api.RegisterRoutes(router, &api.Wrapper{
			Auth:       auth,
			PublicHost: appConfig.PublicURL,
			URIScheme:  appConfig.URIScheme,
		},
			relay.NewWebSocketTransport(hub),
			relay.NewLongPollTransport(hub, time.Duration(appConfig.Relay.LongPollWaitSecs)*time.Second),
		)

		go func() {
			if err := router.Start(appConfig.HTTPAddress); err != nil {
				logging.Log().WithError(err).Info("HTTP server stopped")
			}
		}()
		logging.Log().Infof("Listening on %s", appConfig.HTTPAddress)

		<-stop
		logging.Log().Info("Shutting down")
		hub.Stop()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := router.Shutdown(ctx); err != nil {
			logging.Log().WithError(err).Error("Could not shut down HTTP server cleanly")
		}
	},
}

// newStore picks redis when an address is configured, the in-memory store otherwise.
func newStore() (storage.Store, error) {
	if appConfig.Redis.Address == "" {
		logging.Log().Info("Using in-memory storage")
		return storage.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     appConfig.Redis.Address,
		Password: appConfig.Redis.Password,
		DB:       appConfig.Redis.DB,
	})
	if err := client.Ping().Err(); err != nil {
		return nil, err
	}
	logging.Log().Infof("Using redis storage at %s", appConfig.Redis.Address)
	return storage.NewRedisStore(client), nil
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
