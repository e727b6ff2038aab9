package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/relaymesh/smsgate/internal/config"
	"github.com/relaymesh/smsgate/internal/notifier"
	"github.com/relaymesh/smsgate/internal/pipeline"
	"github.com/relaymesh/smsgate/internal/server"
	"github.com/relaymesh/smsgate/internal/storage"
	"github.com/relaymesh/smsgate/internal/storage/memory"
	"github.com/relaymesh/smsgate/internal/storage/mongodb"
	"github.com/relaymesh/smsgate/pkg/classify"
	"github.com/relaymesh/smsgate/pkg/message"
	"github.com/relaymesh/smsgate/pkg/replay"
	"github.com/relaymesh/smsgate/pkg/security"
	"github.com/relaymesh/smsgate/pkg/templates"
)

var configPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway HTTP server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default /etc/smsgate/config.yaml)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	path := configPath
	if path == "" {
		path = viper.GetString("config")
	}
	if path == "" {
		path = "/etc/smsgate/config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	aesKey, macKey, err := cfg.Crypto.DecodeKeys()
	if err != nil {
		return fmt.Errorf("loading keys: %w", err)
	}

	gate, err := security.NewGate(aesKey, macKey)
	if err != nil {
		return fmt.Errorf("initializing crypto gate: %w", err)
	}

	guard := replay.NewGuard()
	guard.SetWindow(message.TypeOTP, time.Duration(cfg.Replay.OTPWindow)*time.Second)
	guard.SetGenericWindow(time.Duration(cfg.Replay.DefaultWindow) * time.Second)

	otpTTL, txTTL, billTTL, secTTL := cfg.TTL.TTLDurations()
	ttl := storage.TTLPolicy{
		OTP:           otpTTL,
		Transaction:   txTTL,
		Bill:          billTTL,
		SecurityAlert: secTTL,
	}

	ctx := cmd.Context()

	var store storage.Store
	if cfg.Storage.MongoDB.URI != "" {
		mongoStore, err := mongodb.NewStore(ctx, &mongodb.Config{
			URI:      cfg.Storage.MongoDB.URI,
			Database: cfg.Storage.MongoDB.Database,
		}, ttl)
		if err != nil {
			return fmt.Errorf("connecting to storage: %w", err)
		}
		store = mongoStore
		logger.Info("connected to MongoDB for fingerprint storage")
	} else {
		store = memory.NewStore(ttl)
		logger.Info("using in-memory fingerprint storage (MongoDB not configured)")
	}

	wa := notifier.NewWhatsAppClient(&notifier.Config{
		APIToken:      cfg.WhatsApp.APIToken,
		PhoneNumberID: cfg.WhatsApp.PhoneNumberID,
		Recipient:     cfg.WhatsApp.RecipientNumber,
	}, logger)

	renderer := templates.NewRenderer(templates.Catalog{
		OTP:           cfg.WhatsApp.Templates.OTP,
		Transaction:   cfg.WhatsApp.Templates.Transaction,
		Bill:          cfg.WhatsApp.Templates.Bill,
		SecurityAlert: cfg.WhatsApp.Templates.SecurityAlert,
	})

	pipe := pipeline.New(gate, guard, classify.New(), store, renderer, wa, logger)

	srv := server.New(cfg, pipe, store, wa, renderer, logger)

	logger.Info("gateway starting",
		"rate_limit_per_minute", cfg.Server.RateLimitPerMinute,
		"ttl_otp_seconds", cfg.TTL.OTP,
		"ttl_transaction_seconds", cfg.TTL.Transaction,
		"ttl_bill_seconds", cfg.TTL.Bill,
		"ttl_security_seconds", cfg.TTL.SecurityAlert,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf(":%d", cfg.Server.Port))
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-stop:
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
