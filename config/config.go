package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. EXCHANGE_LISTEN_ADDR.
const EnvPrefix = "EXCHANGE_"

const (
	defaultListenAddr       = ":8546"
	defaultStreamBufferSize = 64
	defaultPostgresPort     = 5432
	defaultSSLMode          = "disable"
	defaultConnectTimeout   = 30 * time.Second
)

type ServerConfig struct {
	ChainID             uint64          `yaml:"chain_id"`
	ListenAddr          string          `yaml:"listen_addr"`
	CompactionThreshold int             `yaml:"compaction_threshold"`
	StreamBufferSize    int             `yaml:"stream_buffer_size"`
	Postgres            *PostgresConfig `yaml:"postgres"`
	Seed                SeedConfig      `yaml:"seed"`
}

type PostgresConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	DBName         string        `yaml:"dbname"`
	SSLMode        string        `yaml:"sslmode"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// SeedConfig lists tokens and pairs approved on every startup. Entries that are
// already registered are skipped.
type SeedConfig struct {
	Tokens []string   `yaml:"tokens"`
	Pairs  []SeedPair `yaml:"pairs"`
}

type SeedPair struct {
	TokenA string `yaml:"token_a"`
	TokenB string `yaml:"token_b"`
}

// LoadConfig reads a configuration file from the given path and unmarshals it
// into a ServerConfig struct. If envFile is set, it is loaded into the process
// environment first; a missing env file is not an error. EXCHANGE_* variables
// override the file.
func LoadConfig(path, envFile string) (*ServerConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg ServerConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load env file %s: %w", envFile, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type lookupFunc func(key string) (string, bool)

func (c *ServerConfig) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := lookup(EnvPrefix + name); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = n
		}
	}

	if v, ok := lookup(EnvPrefix + "CHAIN_ID"); ok {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%sCHAIN_ID: %w", EnvPrefix, err))
		} else {
			c.ChainID = id
		}
	}
	str("LISTEN_ADDR", &c.ListenAddr)
	integer("COMPACTION_THRESHOLD", &c.CompactionThreshold)
	integer("STREAM_BUFFER_SIZE", &c.StreamBufferSize)

	if _, ok := lookup(EnvPrefix + "POSTGRES_HOST"); ok && c.Postgres == nil {
		c.Postgres = &PostgresConfig{}
	}
	if c.Postgres != nil {
		str("POSTGRES_HOST", &c.Postgres.Host)
		integer("POSTGRES_PORT", &c.Postgres.Port)
		str("POSTGRES_USER", &c.Postgres.User)
		str("POSTGRES_PASSWORD", &c.Postgres.Password)
		str("POSTGRES_DBNAME", &c.Postgres.DBName)
		str("POSTGRES_SSLMODE", &c.Postgres.SSLMode)
	}
	return errors.Join(errs...)
}

func (c *ServerConfig) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}
	if c.StreamBufferSize == 0 {
		c.StreamBufferSize = defaultStreamBufferSize
	}
	if p := c.Postgres; p != nil {
		if p.Port == 0 {
			p.Port = defaultPostgresPort
		}
		if p.SSLMode == "" {
			p.SSLMode = defaultSSLMode
		}
		if p.ConnectTimeout == 0 {
			p.ConnectTimeout = defaultConnectTimeout
		}
	}
}

func (c *ServerConfig) validate() error {
	if c.ChainID == 0 {
		return errors.New("config: chain_id is required")
	}
	if c.CompactionThreshold < 0 {
		return errors.New("config: compaction_threshold cannot be negative")
	}
	if c.StreamBufferSize < 0 {
		return errors.New("config: stream_buffer_size cannot be negative")
	}
	if p := c.Postgres; p != nil {
		if p.Host == "" || p.User == "" || p.DBName == "" {
			return errors.New("config: postgres requires host, user and dbname")
		}
	}
	for _, token := range c.Seed.Tokens {
		if !common.IsHexAddress(token) {
			return fmt.Errorf("config: seed token %q is not an address", token)
		}
	}
	for _, pair := range c.Seed.Pairs {
		if !common.IsHexAddress(pair.TokenA) || !common.IsHexAddress(pair.TokenB) {
			return fmt.Errorf("config: seed pair %q/%q is not a pair of addresses", pair.TokenA, pair.TokenB)
		}
	}
	return nil
}

// SeedTokens returns the seed tokens as addresses.
func (c *ServerConfig) SeedTokens() []common.Address {
	tokens := make([]common.Address, len(c.Seed.Tokens))
	for i, token := range c.Seed.Tokens {
		tokens[i] = common.HexToAddress(token)
	}
	return tokens
}

// SeedPairs returns the seed pairs in the order they are listed.
func (c *ServerConfig) SeedPairs() []exchange.Pair {
	pairs := make([]exchange.Pair, len(c.Seed.Pairs))
	for i, pair := range c.Seed.Pairs {
		pairs[i] = exchange.NewPair(common.HexToAddress(pair.TokenA), common.HexToAddress(pair.TokenB))
	}
	return pairs
}

// DSN renders the lib/pq key/value connection string.
func (p *PostgresConfig) DSN() string {
	parts := []string{
		"host=" + quoteDSN(p.Host),
		"port=" + strconv.Itoa(p.Port),
		"user=" + quoteDSN(p.User),
		"dbname=" + quoteDSN(p.DBName),
		"sslmode=" + quoteDSN(p.SSLMode),
	}
	if p.Password != "" {
		parts = append(parts, "password="+quoteDSN(p.Password))
	}
	if p.ConnectTimeout > 0 {
		parts = append(parts, "connect_timeout="+strconv.Itoa(int(p.ConnectTimeout.Seconds())))
	}
	return strings.Join(parts, " ")
}

func quoteDSN(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	return "'" + strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(v) + "'"
}
