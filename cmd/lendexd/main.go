package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lendex/config"
	"lendex/market"
	"lendex/marketstore"
	"lendex/observability/logging"
	"lendex/oracle"
	"lendex/peers"
	"lendex/rpc"
	"lendex/storage"
	"lendex/tiers"
)

// slogSink forwards engine events to the structured log.
type slogSink struct {
	log *slog.Logger
}

func (s *slogSink) Emit(ev *market.Event) {
	if s == nil || ev == nil {
		return
	}
	args := make([]any, 0, len(ev.Attributes)*2)
	for key, value := range ev.Attributes {
		args = append(args, key, value)
	}
	s.log.Info(ev.Type, args...)
}

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "config.toml", "path to lendexd config")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("LENDEX_ENV"))
	logger := logging.Setup("lendexd", env, "")

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("load config", "err", err)
		os.Exit(1)
	}
	if cfg.Log.File != "" || cfg.Log.Env != "" {
		if env == "" {
			env = cfg.Log.Env
		}
		logger = logging.Setup("lendexd", env, cfg.Log.File)
	}

	var db storage.Database
	if cfg.Storage.Path == "" {
		db = storage.NewMemDB()
		logger.Info("using in-memory storage")
	} else {
		leveldb, err := storage.NewLevelDB(cfg.Storage.Path)
		if err != nil {
			logger.Error("open database", "path", cfg.Storage.Path, "err", err)
			os.Exit(1)
		}
		db = leveldb
		logger.Info("opened database", "path", cfg.Storage.Path)
	}
	defer db.Close()

	store := marketstore.New(db)

	priceOracle := oracle.NewManual(time.Duration(cfg.Oracle.MaxAgeSeconds) * time.Second)
	for _, price := range cfg.Oracle.Prices {
		if err := priceOracle.SetPrice(price.Asset, price.PriceMicroUSD); err != nil {
			logger.Error("seed oracle price", "asset", price.Asset, "err", err)
			os.Exit(1)
		}
	}

	tierSeed := make(map[string]uint8, len(cfg.Tiers))
	for _, assignment := range cfg.Tiers {
		tierSeed[assignment.Account] = assignment.Tier
	}
	tierTable := tiers.NewStatic(tierSeed)

	registry := peers.NewRegistry()
	for _, peer := range cfg.Peers {
		registry.Register(peer.MarketID, peers.FixedView{
			Shares:   peer.CirculatingShares,
			Deposits: peer.TotalDeposits,
		})
	}

	engine := market.NewEngine(cfg.Market.VaultAccount, cfg.Market.CollateralAccount)
	engine.SetState(store)
	engine.SetOracle(priceOracle)
	engine.SetTierSource(tierTable)
	engine.SetPeerSource(registry)
	engine.SetEventSink(&slogSink{log: logger})

	// The market's own share token may collateralize peer deployments; expose
	// its live exchange-rate view under the base asset identifier.
	registry.Register(cfg.Market.BaseAsset, engine)

	if err := bootstrap(engine, store, cfg, logger); err != nil {
		logger.Error("bootstrap market", "err", err)
		os.Exit(1)
	}

	server := rpc.NewServer(engine, priceOracle, tierTable, logger)
	httpServer := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("lendexd listening", "addr", cfg.Server.Listen)
		serverErr <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown http server", "err", err)
		}
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Error("serve rpc", "err", err)
			os.Exit(1)
		}
	}
}

// bootstrap applies the genesis market definition when the store is empty:
// creates the market, seeds ledger balances, and registers collateral types.
func bootstrap(engine *market.Engine, store *marketstore.Store, cfg config.Config, logger *slog.Logger) error {
	if existing, err := engine.MarketView(); err == nil && existing != nil {
		logger.Info("market already initialised", "baseAsset", existing.BaseAsset)
		return nil
	}

	m := &market.Market{
		BaseAsset:       cfg.Market.BaseAsset,
		BaseDecimals:    cfg.Market.BaseDecimals,
		ShareAsset:      cfg.Market.ShareAsset,
		PremiumAsset:    cfg.Market.PremiumAsset,
		PremiumDecimals: cfg.Market.PremiumDecimals,
		Active:          cfg.Market.Active,
		Rate: market.RateParams{
			BaseBps:    cfg.Market.BaseBps,
			UtilCapBps: cfg.Market.UtilCapBps,
			KinkBps:    cfg.Market.KinkBps,
			Slope1Bps:  cfg.Market.Slope1Bps,
			Slope2Bps:  cfg.Market.Slope2Bps,
			MaxAprBps:  cfg.Market.MaxAprBps,
		},
		Risk: market.RiskParams{
			LTVBps:            cfg.Market.LTVBps,
			LiqThresholdBps:   cfg.Market.LiqThresholdBps,
			LiqBonusBps:       cfg.Market.LiqBonusBps,
			OriginationFeeBps: cfg.Market.OriginationFeeBps,
			ProtocolShareBps:  cfg.Market.ProtocolShareBps,
		},
		ParamAdmin:     cfg.Market.ParamAdmin,
		FeeAdmin:       cfg.Market.FeeAdmin,
		InitAdmin:      cfg.Market.InitAdmin,
		MigrationAdmin: cfg.Market.MigrationAdmin,
	}
	if err := engine.InitMarket(m); err != nil {
		return err
	}
	logger.Info("market initialised", "baseAsset", m.BaseAsset, "shareAsset", m.ShareAsset)

	for _, seed := range cfg.Seeds {
		if err := store.SetBalance(seed.Account, seed.Asset, seed.Amount); err != nil {
			return err
		}
	}

	for _, pledge := range cfg.Pledges {
		ct := market.CollateralType{
			Asset:              pledge.Asset,
			UnderlyingAsset:    pledge.UnderlyingAsset,
			UnderlyingDecimals: pledge.UnderlyingDecimals,
			PeerMarket:         pledge.PeerMarket,
		}
		if err := engine.RegisterCollateral(cfg.Market.InitAdmin, ct); err != nil {
			return err
		}
		logger.Info("collateral registered", "asset", pledge.Asset, "peerMarket", pledge.PeerMarket)
	}
	return nil
}
