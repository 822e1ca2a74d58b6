// Command mockserver runs a standalone fake Infinity API for offline
// development. Submitted jobs auto-complete with placeholder artifacts.
package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"github.com/toinfinity/infinity-go/internal/mockapi"
)

func main() {
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("MOCK_ADDR", "127.0.0.1:8085")
	viper.SetDefault("MOCK_TOKEN", "mock-token")
	viper.SetDefault("MOCK_COMPLETE_AFTER", "5s")

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	completeAfter, err := time.ParseDuration(viper.GetString("MOCK_COMPLETE_AFTER"))
	if err != nil {
		log.Fatal().Err(err).Msg("invalid MOCK_COMPLETE_AFTER")
	}

	server := mockapi.New(mockapi.Config{
		Token:             viper.GetString("MOCK_TOKEN"),
		AutoCompleteAfter: completeAfter,
		Log:               log,
	})
	baseURL, err := server.StartOn(viper.GetString("MOCK_ADDR"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start mock server")
	}
	log.Info().Str("url", baseURL).Str("token", viper.GetString("MOCK_TOKEN")).Msg("mock Infinity API listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	if err := server.Shutdown(); err != nil {
		log.Error().Err(err).Msg("shutdown failed")
	}
}
