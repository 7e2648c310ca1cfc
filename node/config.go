package node

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/holiman/uint256"
	"gopkg.in/yaml.v3"

	"github.com/rainbow-dao/drn/bridge/dispatcher"
	"github.com/rainbow-dao/drn/bridge/locker"
	"github.com/rainbow-dao/drn/bridge/registry"
	"github.com/rainbow-dao/drn/event"
	"github.com/rainbow-dao/drn/types"
)

const DefaultBlockInterval = 2 * time.Second

type (
	Config struct {
		// DataDir keeps one bolt DB file per component, empty DataDir means
		// state is kept in memory only.
		DataDir       string
		BlockInterval time.Duration
		Locker        locker.Config
		Registry      registry.Config
		Dispatcher    dispatcher.Config
		// Genesis is applied when the ledger is created.
		Genesis *Genesis
		// EventHandler receives events of all the bridge components.
		EventHandler event.Handler
	}

	// Genesis is the initial account allocation of the host ledger, amounts
	// are decimal or 0x prefixed hex strings of wei.
	Genesis struct {
		Height uint64            `yaml:"height"`
		Alloc  map[string]string `yaml:"alloc"`
	}
)

func DefaultConfig() *Config {
	return &Config{
		BlockInterval: DefaultBlockInterval,
		Locker:        locker.DefaultConfig(),
		Registry:      registry.DefaultConfig(),
		Dispatcher:    dispatcher.DefaultConfig(),
	}
}

func (c *Config) IsValid() error {
	var errs []error
	if c.BlockInterval <= 0 {
		errs = append(errs, fmt.Errorf("block interval must be positive, got %s", c.BlockInterval))
	}
	if err := c.Locker.IsValid(); err != nil {
		errs = append(errs, fmt.Errorf("locker: %w", err))
	}
	if err := c.Registry.IsValid(); err != nil {
		errs = append(errs, fmt.Errorf("registry: %w", err))
	}
	if err := c.Dispatcher.IsValid(); err != nil {
		errs = append(errs, fmt.Errorf("dispatcher: %w", err))
	}
	if c.Genesis != nil {
		if _, err := c.Genesis.Allocations(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LoadGenesis reads genesis from yaml file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading genesis file: %w", err)
	}
	g := &Genesis{}
	if err := yaml.Unmarshal(data, g); err != nil {
		return nil, fmt.Errorf("decoding genesis file %s: %w", path, err)
	}
	if _, err := g.Allocations(); err != nil {
		return nil, err
	}
	return g, nil
}

// Allocations returns the parsed account allocations.
func (g *Genesis) Allocations() (map[types.Address]*uint256.Int, error) {
	res := make(map[types.Address]*uint256.Int, len(g.Alloc))
	for addr, amount := range g.Alloc {
		if !types.IsHexAddress(addr) {
			return nil, fmt.Errorf("invalid genesis address %q", addr)
		}
		v, err := types.ParseAmount(amount)
		if err != nil {
			return nil, fmt.Errorf("invalid genesis allocation of %s: %w", addr, err)
		}
		res[types.HexToAddress(addr)] = v
	}
	return res, nil
}
