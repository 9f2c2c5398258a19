// Package config loads the TOML runtime configuration for the lending
// service.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config captures the full runtime configuration.
type Config struct {
	Server  ServerConfig   `toml:"server"`
	Log     LogConfig      `toml:"log"`
	Storage StorageConfig  `toml:"storage"`
	Market  MarketConfig   `toml:"market"`
	Oracle  OracleConfig   `toml:"oracle"`
	Tiers   []TierConfig   `toml:"tiers"`
	Peers   []PeerConfig   `toml:"peers"`
	Seeds   []SeedBalance  `toml:"seeds"`
	Pledges []PledgeConfig `toml:"collateral"`
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Listen string `toml:"Listen"`
}

// LogConfig controls structured log output.
type LogConfig struct {
	Env  string `toml:"Env"`
	File string `toml:"File"`
}

// StorageConfig selects the KV backend. An empty path runs in memory.
type StorageConfig struct {
	Path string `toml:"Path"`
}

// MarketConfig is the genesis market definition applied when the store holds
// no market yet.
type MarketConfig struct {
	BaseAsset       string `toml:"BaseAsset"`
	BaseDecimals    uint32 `toml:"BaseDecimals"`
	ShareAsset      string `toml:"ShareAsset"`
	PremiumAsset    string `toml:"PremiumAsset"`
	PremiumDecimals uint32 `toml:"PremiumDecimals"`

	VaultAccount      string `toml:"VaultAccount"`
	CollateralAccount string `toml:"CollateralAccount"`

	ParamAdmin     string `toml:"ParamAdmin"`
	FeeAdmin       string `toml:"FeeAdmin"`
	InitAdmin      string `toml:"InitAdmin"`
	MigrationAdmin string `toml:"MigrationAdmin"`

	Active bool `toml:"Active"`

	BaseBps    uint64 `toml:"BaseBps"`
	UtilCapBps uint64 `toml:"UtilCapBps"`
	KinkBps    uint64 `toml:"KinkBps"`
	Slope1Bps  uint64 `toml:"Slope1Bps"`
	Slope2Bps  uint64 `toml:"Slope2Bps"`
	MaxAprBps  uint64 `toml:"MaxAprBps"`

	LTVBps            uint64 `toml:"LTVBps"`
	LiqThresholdBps   uint64 `toml:"LiqThresholdBps"`
	LiqBonusBps       uint64 `toml:"LiqBonusBps"`
	OriginationFeeBps uint64 `toml:"OriginationFeeBps"`
	ProtocolShareBps  uint64 `toml:"ProtocolShareBps"`
}

// OracleConfig seeds the manual price oracle.
type OracleConfig struct {
	MaxAgeSeconds uint64        `toml:"MaxAgeSeconds"`
	Prices        []OraclePrice `toml:"prices"`
}

// OraclePrice is one seeded quote.
type OraclePrice struct {
	Asset         string `toml:"Asset"`
	PriceMicroUSD uint64 `toml:"PriceMicroUSD"`
}

// TierConfig assigns a reputation tier to an account.
type TierConfig struct {
	Account string `toml:"Account"`
	Tier    uint8  `toml:"Tier"`
}

// PeerConfig declares a static peer market exchange-rate view.
type PeerConfig struct {
	MarketID          string `toml:"MarketID"`
	CirculatingShares uint64 `toml:"CirculatingShares"`
	TotalDeposits     uint64 `toml:"TotalDeposits"`
}

// SeedBalance credits a ledger balance at genesis, for bootstrap and test
// deployments.
type SeedBalance struct {
	Account string `toml:"Account"`
	Asset   string `toml:"Asset"`
	Amount  uint64 `toml:"Amount"`
}

// PledgeConfig registers a collateral type at genesis.
type PledgeConfig struct {
	Asset              string `toml:"Asset"`
	UnderlyingAsset    string `toml:"UnderlyingAsset"`
	UnderlyingDecimals uint32 `toml:"UnderlyingDecimals"`
	PeerMarket         string `toml:"PeerMarket"`
}

// Load reads and validates the TOML configuration at path.
func Load(path string) (Config, error) {
	cfg := Config{
		Server: ServerConfig{Listen: ":8545"},
		Market: MarketConfig{Active: true},
	}
	if strings.TrimSpace(path) == "" {
		return cfg, fmt.Errorf("config path required")
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) normalize() {
	cfg.Server.Listen = strings.TrimSpace(cfg.Server.Listen)
	if cfg.Server.Listen == "" {
		cfg.Server.Listen = ":8545"
	}
	cfg.Storage.Path = strings.TrimSpace(cfg.Storage.Path)
	cfg.Market.BaseAsset = strings.TrimSpace(cfg.Market.BaseAsset)
	cfg.Market.ShareAsset = strings.TrimSpace(cfg.Market.ShareAsset)
	cfg.Market.PremiumAsset = strings.TrimSpace(cfg.Market.PremiumAsset)
	// Role checks compare the trimmed caller against these exact strings.
	cfg.Market.ParamAdmin = strings.TrimSpace(cfg.Market.ParamAdmin)
	cfg.Market.FeeAdmin = strings.TrimSpace(cfg.Market.FeeAdmin)
	cfg.Market.InitAdmin = strings.TrimSpace(cfg.Market.InitAdmin)
	cfg.Market.MigrationAdmin = strings.TrimSpace(cfg.Market.MigrationAdmin)
	if cfg.Market.VaultAccount = strings.TrimSpace(cfg.Market.VaultAccount); cfg.Market.VaultAccount == "" {
		cfg.Market.VaultAccount = "lendex-vault"
	}
	if cfg.Market.CollateralAccount = strings.TrimSpace(cfg.Market.CollateralAccount); cfg.Market.CollateralAccount == "" {
		cfg.Market.CollateralAccount = "lendex-collateral"
	}
}

func (cfg *Config) validate() error {
	if cfg.Market.BaseAsset == "" {
		return fmt.Errorf("market: BaseAsset required")
	}
	if cfg.Market.ShareAsset == "" {
		return fmt.Errorf("market: ShareAsset required")
	}
	if cfg.Market.ShareAsset == cfg.Market.BaseAsset {
		return fmt.Errorf("market: ShareAsset must differ from BaseAsset")
	}
	if cfg.Market.BaseDecimals > 18 || cfg.Market.PremiumDecimals > 18 {
		return fmt.Errorf("market: decimals out of range")
	}
	if cfg.Market.UtilCapBps == 0 || cfg.Market.UtilCapBps > 10_000 {
		return fmt.Errorf("market: UtilCapBps must be within (0, 10000]")
	}
	if cfg.Market.LTVBps == 0 || cfg.Market.LTVBps > 10_000 {
		return fmt.Errorf("market: LTVBps must be within (0, 10000]")
	}
	if cfg.Market.LiqThresholdBps == 0 || cfg.Market.LiqThresholdBps >= 10_000 {
		return fmt.Errorf("market: LiqThresholdBps must be within (0, 10000)")
	}
	if cfg.Market.LiqThresholdBps < cfg.Market.LTVBps {
		return fmt.Errorf("market: LiqThresholdBps must not undercut LTVBps")
	}
	for _, price := range cfg.Oracle.Prices {
		if strings.TrimSpace(price.Asset) == "" {
			return fmt.Errorf("oracle: price entry missing asset")
		}
	}
	for _, pledge := range cfg.Pledges {
		if strings.TrimSpace(pledge.Asset) == "" {
			return fmt.Errorf("collateral: entry missing asset")
		}
		if strings.TrimSpace(pledge.PeerMarket) == "" {
			return fmt.Errorf("collateral: %s missing peer market", pledge.Asset)
		}
	}
	return nil
}
