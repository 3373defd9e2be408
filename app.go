package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.mongodb.org/mongo-driver/mongo"

	"agency-backend/internal/auth"
	"agency-backend/internal/config"
	"agency-backend/internal/database"
	"agency-backend/internal/events"
	"agency-backend/internal/gateway"
	"agency-backend/internal/handlers"
	"agency-backend/internal/metrics"
	"agency-backend/internal/notify"
	"agency-backend/internal/payment"
	"agency-backend/internal/reconcile"
	"agency-backend/internal/store"
)

const (
	shutdownTimeout   = 15 * time.Second
	reconcileAttempts = 5
	sideEffectTimeout = 10 * time.Second
)

// app holds what both subcommands share.
type app struct {
	cfg     config.Config
	client  *mongo.Client
	db      *mongo.Database
	stripe  *gateway.Stripe
	users   *store.UserStore
	intents *store.RegistrationIntentStore
}

func loadApp(cmd *cobra.Command, v *viper.Viper) (*app, error) {
	envFile, _ := cmd.Flags().GetString("env-file")
	cfg, err := config.Load(v, envFile)
	if err != nil {
		return nil, fmt.Errorf("configuration: %w", err)
	}

	client, err := database.Connect(cmd.Context(), cfg.MongoURI)
	if err != nil {
		return nil, err
	}
	db := client.Database(cfg.DBName)
	log.Println("MongoDB connected to:", db.Name())

	if err := database.EnsureIndexes(db); err != nil {
		log.Printf("index warning: %v", err)
	}

	return &app{
		cfg:     cfg,
		client:  client,
		db:      db,
		stripe:  gateway.NewStripe(cfg.Stripe),
		users:   store.NewUserStore(db),
		intents: store.NewRegistrationIntentStore(db),
	}, nil
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.client.Disconnect(ctx); err != nil {
		log.Printf("mongo disconnect: %v", err)
	}
}

func (a *app) registrations() *reconcile.Registrations {
	return reconcile.NewRegistrations(a.intents, a.users, a.stripe, a.cfg.ReconcileGrace, reconcileAttempts)
}

func newSender(cfg config.Config) notify.Sender {
	if cfg.SMTP.Host == "" {
		log.Println("SMTP_HOST not set, emails are only logged")
		return notify.LogOnly{}
	}
	sender, err := notify.NewSMTP(cfg.SMTP)
	if err != nil {
		log.Printf("SMTP client unavailable, emails are only logged: %v", err)
		return notify.LogOnly{}
	}
	return sender
}

func newPublisher(cfg config.Config) events.Publisher {
	if !cfg.KafkaEnabled() {
		return events.Noop{}
	}
	return events.NewKafka(cfg.KafkaBrokers, cfg.PaymentTopic)
}

func serveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			a, err := loadApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			cfg := a.cfg
			currency := strings.ToLower(cfg.Currency)
			publisher := newPublisher(cfg)
			defer publisher.Close()

			notifier := notify.NewNotifier(newSender(cfg), notify.Options{
				Inbox:           cfg.SMTP.From,
				AppURL:          cfg.AppURL,
				FrontendURL:     cfg.FrontendURL,
				Currency:        currency,
				VerificationTTL: cfg.VerificationTokenTTL,
			})
			tokens := auth.NewTokens(auth.TokenConfig{
				Secret:             cfg.JWTSecret,
				VerificationSecret: cfg.VerificationSecret,
				AccessTTL:          cfg.AccessTokenTTL,
				RefreshTTL:         cfg.RefreshTokenTTL,
				VerificationTTL:    cfg.VerificationTokenTTL,
			})

			orders := store.NewOrderStore(a.db)
			authSvc := auth.NewService(a.users, store.NewRefreshTokenStore(a.db), a.intents, a.stripe, notifier, tokens)
			ctrl := payment.NewController(orders, a.users, a.stripe, store.NewWebhookEventStore(a.db), notifier, publisher, payment.Options{
				Currency:          currency,
				FrontendURL:       cfg.FrontendURL,
				SideEffectTimeout: sideEffectTimeout,
			})

			reg := prometheus.NewRegistry()
			reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

			router := handlers.NewRouter(handlers.Deps{
				Auth:       authSvc,
				Users:      a.users,
				Orders:     orders,
				OrderItems: store.NewOrderItemStore(a.db),
				Catalog: handlers.Catalog{
					Services:  store.NewServiceStore(a.db),
					Products:  a.stripe,
					Currency:  currency,
					UploadDir: cfg.UploadDir,
				},
				Checkout:       ctrl,
				Webhooks:       ctrl,
				Contact:        notifier,
				Metrics:        metrics.New(reg),
				Ping:           func(ctx context.Context) error { return database.Ping(ctx, a.db) },
				UploadDir:      cfg.UploadDir,
				GatewayTimeout: cfg.Stripe.Timeout,
			})

			if cfg.ReconcileInterval > 0 {
				go a.registrations().Every(ctx, cfg.ReconcileInterval)
			}

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}
			errCh := make(chan error, 1)
			go func() {
				log.Printf("listening on %s", srv.Addr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			case <-ctx.Done():
			}

			log.Println("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
}

func reconcileCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Finish or undo registrations stuck between user insert and customer creation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp(cmd, v)
			if err != nil {
				return err
			}
			defer a.close()

			report, err := a.registrations().Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d completed=%d compensated=%d retrying=%d failed=%d\n",
				report.Scanned, report.Completed, report.Compensated, report.Retrying, report.Failed)
			return nil
		},
	}
}
