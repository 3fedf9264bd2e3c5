// cmd/mail-relay/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"hiring-notifications/internal/common/config"
	"hiring-notifications/internal/common/logger"
	"hiring-notifications/internal/notify/transport"
	"hiring-notifications/internal/relay"
)

func main() {
	cfg, err := config.LoadForRelay()
	if err != nil {
		logger.New("info", "console").Fatal("config load failed", zap.Error(err))
	}

	zapLog := logger.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	defer zapLog.Sync()

	smtp := cfg.Integrations.SMTP
	zapLog.Info("Starting mail relay...",
		zap.String("smtpHost", smtp.Host),
		zap.Int("smtpPort", smtp.Port),
		zap.String("from", smtp.DefaultFrom),
		zap.Bool("passwordLoaded", smtp.Password != ""),
	)

	server := &http.Server{
		Addr: cfg.MailRelay.Address,
		Handler: relay.NewRouter(relay.Options{
			Sender:         transport.NewSMTP(smtp),
			AllowedOrigins: cfg.MailRelay.AllowedOrigins,
			Logger:         logger.NewZapAdapter(zapLog),
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 45 * time.Second,
	}

	go func() {
		zapLog.Info("Mail relay listening", zap.String("address", cfg.MailRelay.Address))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLog.Fatal("mail relay failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		zapLog.Error("Error stopping mail relay", zap.Error(err))
	}
	zapLog.Info("Mail relay stopped")
}
