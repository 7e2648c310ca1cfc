package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ainvaltin/httpsrv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rainbow-dao/drn/node"
	"github.com/rainbow-dao/drn/remote"
	"github.com/rainbow-dao/drn/rpc"
)

const (
	defaultDataDir       = "data"
	defaultServerAddress = "localhost:26866"
	defaultRemoteTimeout = 10 * time.Second
)

type nodeConfiguration struct {
	Base *baseConfiguration

	DataDir       string
	InMemory      bool
	GenesisFile   string
	RemoteURL     string
	RemoteTimeout time.Duration
	BlockInterval time.Duration

	DAOAccount       string
	FactoryAccount   string
	ClaimPeriod      uint64
	ReceiptRetention uint64

	Server *rpc.ServerConfiguration
}

func newNodeCmd(baseConfig *baseConfiguration) *cobra.Command {
	config := &nodeConfiguration{Base: baseConfig, Server: rpc.DefaultServerConfiguration()}
	defaults := node.DefaultConfig()
	var nodeCmd = &cobra.Command{
		Use:   "node",
		Short: "Runs the bridge node",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNode(cmd.Context(), config)
		},
	}
	nodeCmd.Flags().StringVar(&config.DataDir, "data-dir", defaultDataDir, "directory of the node state files, relative to $DRN_HOME unless absolute")
	nodeCmd.Flags().BoolVar(&config.InMemory, "in-memory", false, "keep node state in memory only")
	nodeCmd.Flags().StringVar(&config.GenesisFile, "genesis", "", "genesis yaml file, applied when the node state is created")
	nodeCmd.Flags().StringVar(&config.RemoteURL, "remote", "", "JSON-RPC URL of the remote chain prover and light client. When empty proofs are NOT verified (development only)")
	nodeCmd.Flags().DurationVar(&config.RemoteTimeout, "remote-timeout", defaultRemoteTimeout, "timeout of the remote chain calls")
	nodeCmd.Flags().DurationVar(&config.BlockInterval, "block-interval", defaults.BlockInterval, "interval of the local block height increments")
	nodeCmd.Flags().StringVar(&config.DAOAccount, "dao-account", defaults.Dispatcher.DAOAccount, "remote account of the DAO")
	nodeCmd.Flags().StringVar(&config.FactoryAccount, "factory-account", defaults.Dispatcher.FactoryAccount, "remote account of the token factory")
	nodeCmd.Flags().Uint64Var(&config.ClaimPeriod, "claim-period", defaults.Dispatcher.ClaimPeriod, "number of blocks a proof can be claimed in")
	nodeCmd.Flags().Uint64Var(&config.ReceiptRetention, "receipt-retention", defaults.Dispatcher.ReceiptRetention, "number of blocks consumed receipts are kept for, 0 keeps them forever")
	nodeCmd.Flags().StringVar(&config.Server.Address, "address", defaultServerAddress, "address of the JSON-RPC and REST server, server is disabled when empty")
	nodeCmd.Flags().Int64Var(&config.Server.MaxBodyBytes, "server-max-body", rpc.DefaultMaxBodyBytes, "maximum number of bytes the server reads from the request body")
	return nodeCmd
}

func (c *nodeConfiguration) nodeConfig() (*node.Config, error) {
	cfg := node.DefaultConfig()
	if !c.InMemory {
		cfg.DataDir = c.Base.pathInHome(c.DataDir)
	}
	cfg.BlockInterval = c.BlockInterval
	cfg.Dispatcher.DAOAccount = c.DAOAccount
	cfg.Dispatcher.FactoryAccount = c.FactoryAccount
	cfg.Dispatcher.ClaimPeriod = c.ClaimPeriod
	cfg.Dispatcher.ReceiptRetention = c.ReceiptRetention
	if c.GenesisFile != "" {
		g, err := node.LoadGenesis(c.Base.pathInHome(c.GenesisFile))
		if err != nil {
			return nil, err
		}
		cfg.Genesis = g
	}
	return cfg, nil
}

func runNode(ctx context.Context, config *nodeConfiguration) error {
	log := config.Base.log
	cfg, err := config.nodeConfig()
	if err != nil {
		return err
	}

	var remoteChain node.RemoteChain = remote.Insecure{Log: log}
	if config.RemoteURL != "" {
		client, err := remote.Dial(ctx, config.RemoteURL, config.RemoteTimeout, log)
		if err != nil {
			return fmt.Errorf("connecting to remote chain: %w", err)
		}
		defer client.Close()
		remoteChain = client
	} else {
		log.Warn("remote chain is not configured, proofs and blocks are accepted without verification")
	}

	n, err := node.New(cfg, remoteChain, log)
	if err != nil {
		return fmt.Errorf("creating node: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// Run ends with ctx error when the node is stopped
		if err := n.Run(ctx); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})

	if !config.Server.IsAddressEmpty() {
		config.Server.APIs = []rpc.API{{Namespace: "drn", Service: rpc.NewBridgeAPI(n)}}
		server, err := rpc.NewHTTPServer(config.Server, log, rpc.BridgeEndpoints(n, log))
		if err != nil {
			return errors.Join(fmt.Errorf("creating server: %w", err), n.Close())
		}
		g.Go(func() error {
			log.Info(fmt.Sprintf("starting server on %s", config.Server.Address))
			return httpsrv.Run(ctx, *server, httpsrv.ShutdownTimeout(5*time.Second))
		})
	}

	err = g.Wait()
	return errors.Join(err, n.Close())
}
