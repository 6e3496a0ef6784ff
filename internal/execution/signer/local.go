package signer

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

const (
	EnvPrivateKey           = "ZEPHYRA_PRIVATE_KEY"
	EnvPrivateKeyFile       = "ZEPHYRA_PRIVATE_KEY_FILE"
	EnvKeystorePath         = "ZEPHYRA_KEYSTORE_PATH"
	EnvKeystorePassword     = "ZEPHYRA_KEYSTORE_PASSWORD"
	EnvKeystorePasswordFile = "ZEPHYRA_KEYSTORE_PASSWORD_FILE"

	defaultKeyRelativePath = "zephyra/key.hex"
)

// KeySource selects which inputs may provide key material.
type KeySource string

const (
	KeySourceAuto     KeySource = "auto"
	KeySourceEnv      KeySource = "env"
	KeySourceFile     KeySource = "file"
	KeySourceKeystore KeySource = "keystore"
)

func ParseKeySource(v string) (KeySource, error) {
	switch KeySource(strings.ToLower(strings.TrimSpace(v))) {
	case "", KeySourceAuto:
		return KeySourceAuto, nil
	case KeySourceEnv:
		return KeySourceEnv, nil
	case KeySourceFile:
		return KeySourceFile, nil
	case KeySourceKeystore:
		return KeySourceKeystore, nil
	default:
		return "", fmt.Errorf("unsupported key source %q (expected auto|env|file|keystore)", v)
	}
}

// KeyConfig lists every place a key may come from. Precedence is raw hex,
// then key file, then keystore.
type KeyConfig struct {
	PrivateKeyHex        string
	PrivateKeyFile       string
	KeystorePath         string
	KeystorePassword     string
	KeystorePasswordFile string
}

// KeyConfigFromEnv reads the ZEPHYRA_* variables and keeps only the inputs the
// source allows.
func KeyConfigFromEnv(source KeySource) KeyConfig {
	cfg := KeyConfig{
		PrivateKeyHex:        strings.TrimSpace(os.Getenv(EnvPrivateKey)),
		PrivateKeyFile:       strings.TrimSpace(os.Getenv(EnvPrivateKeyFile)),
		KeystorePath:         strings.TrimSpace(os.Getenv(EnvKeystorePath)),
		KeystorePassword:     strings.TrimSpace(os.Getenv(EnvKeystorePassword)),
		KeystorePasswordFile: strings.TrimSpace(os.Getenv(EnvKeystorePasswordFile)),
	}
	if cfg.PrivateKeyFile == "" {
		cfg.PrivateKeyFile = defaultKeyFile()
	}
	switch source {
	case KeySourceEnv:
		return KeyConfig{PrivateKeyHex: cfg.PrivateKeyHex}
	case KeySourceFile:
		return KeyConfig{PrivateKeyFile: cfg.PrivateKeyFile}
	case KeySourceKeystore:
		cfg.PrivateKeyHex = ""
		cfg.PrivateKeyFile = ""
	}
	return cfg
}

func (c KeyConfig) Empty() bool {
	return strings.TrimSpace(c.PrivateKeyHex) == "" &&
		strings.TrimSpace(c.PrivateKeyFile) == "" &&
		strings.TrimSpace(c.KeystorePath) == ""
}

type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func (s *LocalSigner) Address() common.Address {
	return s.address
}

func (s *LocalSigner) SignTx(chainID *big.Int, tx *types.Transaction) (*types.Transaction, error) {
	if s == nil || s.key == nil {
		return nil, errors.New("local signer is not initialized")
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// Load builds a signer from the first populated key input. It returns ErrNoKey
// when nothing is configured.
func Load(cfg KeyConfig) (*LocalSigner, error) {
	if cfg.Empty() {
		return nil, ErrNoKey
	}
	key, err := readKey(cfg)
	if err != nil {
		return nil, err
	}
	return FromKey(key), nil
}

func FromKey(key *ecdsa.PrivateKey) *LocalSigner {
	return &LocalSigner{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}
}

func readKey(cfg KeyConfig) (*ecdsa.PrivateKey, error) {
	switch {
	case strings.TrimSpace(cfg.PrivateKeyHex) != "":
		return parseHexKey(cfg.PrivateKeyHex)
	case strings.TrimSpace(cfg.PrivateKeyFile) != "":
		buf, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		return parseHexKey(string(buf))
	default:
		return readKeystore(cfg)
	}
}

func readKeystore(cfg KeyConfig) (*ecdsa.PrivateKey, error) {
	password := cfg.KeystorePassword
	if strings.TrimSpace(password) == "" && strings.TrimSpace(cfg.KeystorePasswordFile) != "" {
		buf, err := os.ReadFile(cfg.KeystorePasswordFile)
		if err != nil {
			return nil, fmt.Errorf("read keystore password file: %w", err)
		}
		password = strings.TrimSpace(string(buf))
	}
	if strings.TrimSpace(password) == "" {
		return nil, fmt.Errorf("keystore password is required (%s or %s)", EnvKeystorePassword, EnvKeystorePasswordFile)
	}
	buf, err := os.ReadFile(cfg.KeystorePath)
	if err != nil {
		return nil, fmt.Errorf("read keystore file: %w", err)
	}
	key, err := keystore.DecryptKey(buf, password)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore: %w", err)
	}
	return key.PrivateKey, nil
}

func parseHexKey(raw string) (*ecdsa.PrivateKey, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if clean == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := crypto.HexToECDSA(clean)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

func defaultKeyFile() string {
	base := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME"))
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil || strings.TrimSpace(home) == "" {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	path := filepath.Join(base, defaultKeyRelativePath)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	return path
}
