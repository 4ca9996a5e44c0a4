package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shieldpay/shieldpay/internal/auth"
	"github.com/shieldpay/shieldpay/internal/config"
	"github.com/shieldpay/shieldpay/internal/database"
	"github.com/shieldpay/shieldpay/internal/gzip"
	"github.com/shieldpay/shieldpay/internal/handlers"
	"github.com/shieldpay/shieldpay/internal/logging"
	"github.com/shieldpay/shieldpay/internal/service"
	"github.com/shieldpay/shieldpay/internal/zrpc"
)

func main() {
	if err := logging.Initialize(); err != nil {
		logging.Sugar.Fatalw("Internal logging error", err)
	}

	cfg, err := config.NewConfig()
	if err != nil {
		logging.Sugar.Fatalw("Unable to load config", "error", err)
	}

	if cfg.DBPath == "" {
		logging.Sugar.Fatalw("No database address")
	}
	if cfg.JWTSecret != "" {
		auth.SecretKey = cfg.JWTSecret
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := pgxpool.New(ctx, cfg.DBPath)
	if err != nil {
		logging.Sugar.Fatalw("Unable to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err = database.CreateTables(ctx, db); err != nil {
		logging.Sugar.Fatalw("Failed to create tables", "error", err)
		os.Exit(1)
	}

	store := database.NewStore(db)
	node := zrpc.NewClient(cfg.NodeURL, cfg.NodeUser, cfg.NodePassword, 10*time.Second)

	fees := service.FeePolicy{
		Percent: mustDecimal(cfg.FeePercent),
		Min:     mustDecimal(cfg.FeeMin),
		Max:     mustDecimal(cfg.FeeMax),
		Network: mustDecimal(cfg.NetworkFee),
	}

	invoices := service.NewInvoiceService(node, store, cfg.MinConfirmations)
	ledger := service.NewLedgerService(store)
	withdrawals := service.NewWithdrawalService(node, store, fees,
		cfg.PollAttempts, time.Duration(cfg.PollIntervalMs)*time.Millisecond)

	sweepCtx, stopSweep := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stopSweep()

	sweeper := service.NewSweeper(invoices, store,
		time.Duration(cfg.SweepIntervalSec)*time.Second, cfg.SweepWorkers)
	go sweeper.Run(sweepCtx)

	r := chi.NewRouter()
	r.Use(logging.LoggingMiddleware())

	r.Post("/api/user/register", gzip.Middleware(handlers.RegisterUser(store)))
	r.Post("/api/user/login", gzip.Middleware(handlers.LoginUser(store)))
	r.Post("/api/invoices", gzip.Middleware(handlers.CreateInvoice(invoices)))
	r.Post("/api/invoices/{id}/check", gzip.Middleware(handlers.CheckInvoice(invoices)))
	r.Post("/api/invoices/{id}/cancel", gzip.Middleware(handlers.CancelInvoice(invoices)))
	r.Post("/api/user/withdraw", gzip.Middleware(handlers.Withdraw(withdrawals)))
	r.Put("/api/user/profile", gzip.Middleware(handlers.UpdateProfile(store)))
	r.Post("/api/admin/withdrawals/{id}/process", gzip.Middleware(handlers.ProcessWithdrawal(withdrawals, cfg.AdminKey)))
	r.Post("/api/admin/withdrawals/process", gzip.Middleware(handlers.ProcessWithdrawalBatch(withdrawals, cfg.AdminKey)))

	r.Get("/api/invoices", gzip.Middleware(handlers.GetInvoices(invoices)))
	r.Get("/api/user/balance", gzip.Middleware(handlers.GetBalance(ledger)))
	r.Get("/api/user/withdrawals", gzip.Middleware(handlers.GetWithdrawals(withdrawals)))
	r.Get("/api/withdraw/fee", gzip.Middleware(handlers.EstimateFee(withdrawals)))
	r.Get("/health", handlers.Health(store, node))

	logging.Sugar.Infow(
		"Starting server at",
		"addr", cfg.Address,
	)

	if err = http.ListenAndServe(cfg.Address, r); err != nil {
		logging.Sugar.Fatalw(err.Error(), "event", "start server")
	}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		logging.Sugar.Fatalw("Invalid decimal in config", "value", s, "error", err)
	}
	return d
}
