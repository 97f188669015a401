package app

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/joho/godotenv"

	"credgate/internal/app/server"
	"credgate/internal/broker"
	"credgate/internal/database"
	"credgate/internal/jobs/runtime"
	"credgate/internal/netguard"
	"credgate/internal/secrets"
	"credgate/internal/support"
)

const defaultPort = 8181

func Run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn("No .env file found. Falling back to system environment variables.")
	}

	log.SetLevel(log.DebugLevel)

	portFlag := flag.Int("port", defaultPort, "Port for the internal API server")
	flag.Parse()

	port := resolvePort("PORT", *portFlag)

	db, err := database.SetupDB()
	if err != nil {
		return fmt.Errorf("failed to set up database: %w", err)
	}
	store := secrets.NewStore(db)

	classifier := netguard.NewClassifier(nil)

	runtimeCtx := broker.RuntimeContext{
		AdapterHost: support.GetEnv("ADAPTER_HOST", "credgate-adapter"),
		AdapterPort: support.GetEnv("ADAPTER_PORT", "8051"),
	}
	credentialBroker := broker.New(store, runtimeCtx)

	redisClient, err := support.GetRedisClient()
	if err != nil {
		log.Warn("Redis unavailable; allow-list sync and heartbeat disabled", "error", err)
		redisClient = nil
	} else {
		heartbeatCancel := runtime.LaunchInstanceHeartbeat(context.Background(), redisClient)
		defer heartbeatCancel()

		netguard.EnableRedisReload(context.Background(), redisClient, classifier)

		defer func() {
			if err := support.CloseRedisClient(); err != nil {
				log.Warn("error closing redis client", "error", err)
			}
		}()
	}

	handler := server.NewHandler(classifier, credentialBroker, store, redisClient)
	return server.OpenRoutes(port, handler)
}

func resolvePort(envKey string, fallback int) int {
	raw := os.Getenv(envKey)
	if raw == "" {
		return fallback
	}
	port, err := strconv.Atoi(raw)
	if err != nil || port == 0 {
		log.Warn("invalid port override", "env", envKey, "value", raw)
		return fallback
	}
	return port
}
