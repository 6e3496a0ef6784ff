package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultNetwork         = "sepolia"
	DefaultNFTMaxFetch     = 50
	DefaultReadConcurrency = 8
	DefaultIPFSGateway     = "https://ipfs.io/ipfs/"
	DefaultGasMultiplier   = 1.2
	DefaultLogLevel        = "warn"
)

type GlobalFlags struct {
	ConfigPath     string
	JSON           bool
	Plain          bool
	Select         string
	ResultsOnly    bool
	EnableCommands string
	ReadOnly       bool
	Yes            bool
	Network        string
	RPCURL         string
	Timeout        string
	Retries        int
	LogLevel       string
}

type Settings struct {
	OutputMode     string
	SelectFields   []string
	ResultsOnly    bool
	EnableCommands []string
	ReadOnly       bool
	AssumeYes      bool

	Network   string
	RPCURL    string
	Contracts map[string]string

	// Timeout bounds read commands only; writes run until the context ends.
	Timeout         time.Duration
	Retries         int
	ReadConcurrency int
	LogLevel        string

	NFTMaxFetch  int
	NFTFromBlock uint64
	IPFSGateway  string

	GasMultiplier      float64
	MaxFeeGwei         string
	MaxPriorityFeeGwei string
	BridgeGasLimit     uint64
	KeySource          string

	LockPath string
}

type fileConfig struct {
	Output          string            `yaml:"output"`
	Network         string            `yaml:"network"`
	RPCURL          string            `yaml:"rpc_url"`
	Contracts       map[string]string `yaml:"contracts"`
	Timeout         string            `yaml:"timeout"`
	Retries         *int              `yaml:"retries"`
	ReadConcurrency *int              `yaml:"read_concurrency"`
	LogLevel        string            `yaml:"log_level"`
	ReadOnly        *bool             `yaml:"read_only"`
	NFT             struct {
		MaxFetch    *int   `yaml:"max_fetch"`
		FromBlock   *int64 `yaml:"from_block"`
		IPFSGateway string `yaml:"ipfs_gateway"`
	} `yaml:"nft"`
	Tx struct {
		GasMultiplier      *float64 `yaml:"gas_multiplier"`
		MaxFeeGwei         string   `yaml:"max_fee_gwei"`
		MaxPriorityFeeGwei string   `yaml:"max_priority_fee_gwei"`
		KeySource          string   `yaml:"key_source"`
	} `yaml:"tx"`
	Bridge struct {
		GasLimit *int64 `yaml:"gas_limit"`
	} `yaml:"bridge"`
	LockPath string `yaml:"lock_path"`
}

func Load(flags GlobalFlags) (Settings, error) {
	settings, err := defaultSettings()
	if err != nil {
		return Settings{}, err
	}

	cfgPath, err := resolveConfigPath(flags.ConfigPath)
	if err != nil {
		return Settings{}, err
	}

	if err := applyFileConfig(cfgPath, &settings); err != nil {
		return Settings{}, err
	}

	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}

	if err := applyFlags(flags, &settings); err != nil {
		return Settings{}, err
	}

	if settings.OutputMode == "" {
		settings.OutputMode = "json"
	}
	if settings.Timeout <= 0 {
		settings.Timeout = 15 * time.Second
	}
	if settings.Retries < 0 {
		settings.Retries = 0
	}
	if settings.ReadConcurrency <= 0 {
		settings.ReadConcurrency = DefaultReadConcurrency
	}
	if settings.NFTMaxFetch <= 0 {
		settings.NFTMaxFetch = DefaultNFTMaxFetch
	}
	if settings.GasMultiplier < 1 {
		return Settings{}, fmt.Errorf("gas multiplier must be at least 1, got %v", settings.GasMultiplier)
	}

	return settings, nil
}

func defaultSettings() (Settings, error) {
	lockPath, err := defaultLockPath()
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		OutputMode:      "json",
		Network:         DefaultNetwork,
		Contracts:       map[string]string{},
		Timeout:         15 * time.Second,
		Retries:         2,
		ReadConcurrency: DefaultReadConcurrency,
		LogLevel:        DefaultLogLevel,
		NFTMaxFetch:     DefaultNFTMaxFetch,
		IPFSGateway:     DefaultIPFSGateway,
		GasMultiplier:   DefaultGasMultiplier,
		KeySource:       "auto",
		LockPath:        lockPath,
	}, nil
}

func resolveConfigPath(input string) (string, error) {
	if strings.TrimSpace(input) != "" {
		return input, nil
	}
	if v := os.Getenv("ZEPHYRA_CONFIG"); v != "" {
		return v, nil
	}
	base := os.Getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "zephyra", "config.yaml"), nil
}

func defaultLockPath() (string, error) {
	base := os.Getenv("XDG_CACHE_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, ".cache")
	}
	return filepath.Join(base, "zephyra", "watch.lock"), nil
}

func applyFileConfig(path string, settings *Settings) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}

	if cfg.Output != "" {
		settings.OutputMode = strings.ToLower(cfg.Output)
	}
	if cfg.Network != "" {
		settings.Network = cfg.Network
	}
	if cfg.RPCURL != "" {
		settings.RPCURL = cfg.RPCURL
	}
	for name, addr := range cfg.Contracts {
		settings.Contracts[strings.ToLower(strings.TrimSpace(name))] = strings.TrimSpace(addr)
	}
	if cfg.Timeout != "" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return fmt.Errorf("config timeout: %w", err)
		}
		settings.Timeout = d
	}
	if cfg.Retries != nil {
		settings.Retries = *cfg.Retries
	}
	if cfg.ReadConcurrency != nil {
		settings.ReadConcurrency = *cfg.ReadConcurrency
	}
	if cfg.LogLevel != "" {
		settings.LogLevel = cfg.LogLevel
	}
	if cfg.ReadOnly != nil {
		settings.ReadOnly = *cfg.ReadOnly
	}
	if cfg.NFT.MaxFetch != nil {
		settings.NFTMaxFetch = *cfg.NFT.MaxFetch
	}
	if cfg.NFT.FromBlock != nil {
		if *cfg.NFT.FromBlock < 0 {
			return fmt.Errorf("config nft.from_block must not be negative")
		}
		settings.NFTFromBlock = uint64(*cfg.NFT.FromBlock)
	}
	if cfg.NFT.IPFSGateway != "" {
		settings.IPFSGateway = cfg.NFT.IPFSGateway
	}
	if cfg.Tx.GasMultiplier != nil {
		settings.GasMultiplier = *cfg.Tx.GasMultiplier
	}
	if cfg.Tx.MaxFeeGwei != "" {
		settings.MaxFeeGwei = cfg.Tx.MaxFeeGwei
	}
	if cfg.Tx.MaxPriorityFeeGwei != "" {
		settings.MaxPriorityFeeGwei = cfg.Tx.MaxPriorityFeeGwei
	}
	if cfg.Tx.KeySource != "" {
		settings.KeySource = cfg.Tx.KeySource
	}
	if cfg.Bridge.GasLimit != nil {
		if *cfg.Bridge.GasLimit <= 0 {
			return fmt.Errorf("config bridge.gas_limit must be positive")
		}
		settings.BridgeGasLimit = uint64(*cfg.Bridge.GasLimit)
	}
	if cfg.LockPath != "" {
		settings.LockPath = cfg.LockPath
	}

	return nil
}

const contractEnvPrefix = "ZEPHYRA_CONTRACT_"

func applyEnv(settings *Settings) error {
	if v := os.Getenv("ZEPHYRA_OUTPUT"); v != "" {
		settings.OutputMode = strings.ToLower(v)
	}
	if v := os.Getenv("ZEPHYRA_NETWORK"); v != "" {
		settings.Network = v
	}
	if v := os.Getenv("ZEPHYRA_RPC_URL"); v != "" {
		settings.RPCURL = v
	}
	if v := os.Getenv("ZEPHYRA_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			settings.Timeout = d
		}
	}
	if v := os.Getenv("ZEPHYRA_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.Retries = n
		}
	}
	if v := os.Getenv("ZEPHYRA_READ_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.ReadConcurrency = n
		}
	}
	if v := os.Getenv("ZEPHYRA_LOG_LEVEL"); v != "" {
		settings.LogLevel = v
	}
	if v := os.Getenv("ZEPHYRA_READ_ONLY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			settings.ReadOnly = b
		}
	}
	if v := os.Getenv("ZEPHYRA_NFT_MAX_FETCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			settings.NFTMaxFetch = n
		}
	}
	if v := os.Getenv("ZEPHYRA_IPFS_GATEWAY"); v != "" {
		settings.IPFSGateway = v
	}
	if v := os.Getenv("ZEPHYRA_GAS_MULTIPLIER"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parse ZEPHYRA_GAS_MULTIPLIER: %w", err)
		}
		settings.GasMultiplier = f
	}
	if v := os.Getenv("ZEPHYRA_KEY_SOURCE"); v != "" {
		settings.KeySource = v
	}
	if v := os.Getenv("ZEPHYRA_LOCK_PATH"); v != "" {
		settings.LockPath = v
	}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, contractEnvPrefix) || value == "" {
			continue
		}
		name := strings.ToLower(strings.TrimPrefix(key, contractEnvPrefix))
		settings.Contracts[name] = strings.TrimSpace(value)
	}
	return nil
}

func applyFlags(flags GlobalFlags, settings *Settings) error {
	if flags.JSON && flags.Plain {
		return fmt.Errorf("cannot use --json and --plain together")
	}
	if flags.JSON {
		settings.OutputMode = "json"
	}
	if flags.Plain {
		settings.OutputMode = "plain"
	}
	if strings.TrimSpace(flags.Select) != "" {
		settings.SelectFields = splitList(flags.Select)
	}
	settings.ResultsOnly = flags.ResultsOnly

	if strings.TrimSpace(flags.EnableCommands) != "" {
		settings.EnableCommands = splitList(flags.EnableCommands)
	}
	if flags.ReadOnly {
		settings.ReadOnly = true
	}
	if flags.Yes {
		settings.AssumeYes = true
	}
	if strings.TrimSpace(flags.Network) != "" {
		settings.Network = flags.Network
	}
	if strings.TrimSpace(flags.RPCURL) != "" {
		settings.RPCURL = flags.RPCURL
	}
	if flags.Timeout != "" {
		d, err := time.ParseDuration(flags.Timeout)
		if err != nil {
			return fmt.Errorf("parse --timeout: %w", err)
		}
		settings.Timeout = d
	}
	if flags.Retries >= 0 {
		settings.Retries = flags.Retries
	}
	if strings.TrimSpace(flags.LogLevel) != "" {
		settings.LogLevel = flags.LogLevel
	}

	if settings.OutputMode != "json" && settings.OutputMode != "plain" {
		return fmt.Errorf("output must be json or plain")
	}

	return nil
}

func splitList(input string) []string {
	parts := strings.Split(input, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			out = append(out, v)
		}
	}
	return out
}
