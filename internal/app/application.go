package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/stakewell/engine/internal/app/system"
	gamifysvc "github.com/stakewell/engine/internal/services/gamify"
	"github.com/stakewell/engine/internal/services/ledger"
	"github.com/stakewell/engine/internal/services/payments"
	stakingsvc "github.com/stakewell/engine/internal/services/staking"
	"github.com/stakewell/engine/internal/storage"
	"github.com/stakewell/engine/internal/storage/memory"
	"github.com/stakewell/engine/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Wallets   storage.WalletStore
	Contracts storage.ContractStore
	Platform  storage.PlatformStore
	Badges    storage.BadgeStore
}

// Options carries the tunables the composition root needs beyond stores.
type Options struct {
	SettlementInterval time.Duration
	Catalog            gamifysvc.Catalog

	WebhookSecret string
	GatewayMode   string // "simulated" or "real"
	GatewayURL    string
	GatewayKey    string
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	manager *system.Manager
	log     *logger.Logger

	Ledger   *ledger.Service
	Staking  *stakingsvc.Service
	Gamify   *gamifysvc.Service
	Payments *payments.Ingestor
	Gateway  payments.Gateway
	Platform storage.PlatformStore
}

// New builds a fully initialised application with the provided stores.
func New(stores Stores, opts Options, log *logger.Logger) (*Application, error) {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Wallets == nil {
		stores.Wallets = mem
	}
	if stores.Contracts == nil {
		stores.Contracts = mem
	}
	if stores.Platform == nil {
		stores.Platform = mem
	}
	if stores.Badges == nil {
		stores.Badges = mem
	}

	manager := system.NewManager()

	ledgerService := ledger.New(stores.Wallets, log)
	stakingService := stakingsvc.New(stores.Wallets, stores.Contracts, ledgerService, log)
	gamifyService := gamifysvc.New(stores.Wallets, stores.Badges, opts.Catalog, log)

	var verifier payments.SignatureVerifier
	if opts.WebhookSecret != "" {
		verifier = payments.NewHMACVerifier(opts.WebhookSecret)
	} else {
		log.Warn("PAYMENT_WEBHOOK_SECRET not set; webhook signatures are not verified")
	}
	ingestor := payments.NewIngestor(ledgerService, verifier, log)

	var gateway payments.Gateway
	switch opts.GatewayMode {
	case "real":
		httpClient := &http.Client{Timeout: 10 * time.Second}
		real, err := payments.NewRealGateway(httpClient, opts.GatewayURL, opts.GatewayKey, log)
		if err != nil {
			return nil, fmt.Errorf("configure payment gateway: %w", err)
		}
		gateway = real
	default:
		gateway = payments.NewSimulatedGateway(log)
	}

	for _, name := range []string{"ledger", "staking", "gamify", "payments"} {
		if err := manager.Register(system.NoopService{ServiceName: name}); err != nil {
			return nil, fmt.Errorf("register %s service: %w", name, err)
		}
	}

	scheduler := stakingsvc.NewScheduler(stores.Contracts, stakingService, opts.SettlementInterval, log)
	if err := manager.Register(scheduler); err != nil {
		return nil, fmt.Errorf("register %s: %w", scheduler.Name(), err)
	}

	return &Application{
		manager:  manager,
		log:      log,
		Ledger:   ledgerService,
		Staking:  stakingService,
		Gamify:   gamifyService,
		Payments: ingestor,
		Gateway:  gateway,
		Platform: stores.Platform,
	}, nil
}

// Attach registers an additional lifecycle-managed service. Call before Start.
func (a *Application) Attach(service system.Service) error {
	return a.manager.Register(service)
}

// Start begins all registered services.
func (a *Application) Start(ctx context.Context) error {
	return a.manager.Start(ctx)
}

// Stop stops all services.
func (a *Application) Stop(ctx context.Context) error {
	return a.manager.Stop(ctx)
}
