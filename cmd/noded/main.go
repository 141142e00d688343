// Command noded runs a single replicated-identity-ledger node: it owns the
// chain, gossips with peers over the p2p protocol, and serves the
// light-client and read-model query APIs. Dependencies (store, transport,
// chain) are constructed once here and threaded through by value, rather
// than reached for through package globals, the "Global singleton
// initialization" redesign spec §4 asks for.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"glowmesh/config"
	"glowmesh/core/chain"
	"glowmesh/core/types"
	"glowmesh/ledger"
	"glowmesh/lightclient"
	"glowmesh/merkle"
	"glowmesh/observability/logging"
	telemetry "glowmesh/observability/otel"
	"glowmesh/p2p"
	"glowmesh/p2p/seeds"
	"glowmesh/storage"
)

func main() {
	configPath := flag.String("config", "./config.toml", "path to the node configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "noded: failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)

	key, err := cfg.PrivateKey()
	if err != nil {
		logger.Error("noded: failed to decode node key", slog.Any("error", err))
		os.Exit(1)
	}
	nodeID := key.Public().NodeID()
	logger.Info("noded: starting", slog.String("nodeId", nodeID), slog.String("nodeType", cfg.NodeType))

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("noded: failed to prepare data directory", slog.Any("error", err))
		os.Exit(1)
	}
	store, err := storage.NewBoltStore(cfg.DataDir + "/chain.db")
	if err != nil {
		logger.Error("noded: failed to open store", slog.Any("error", err))
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if shutdownTelemetry, err := setupTelemetry(ctx, logger); err != nil {
		logger.Warn("noded: telemetry init failed, continuing without it", slog.Any("error", err))
	} else if shutdownTelemetry != nil {
		defer func() { _ = shutdownTelemetry(context.Background()) }()
	}

	c, err := loadOrInitChain(ctx, store, nodeID, cfg, logger)
	if err != nil {
		logger.Error("noded: failed to load chain", slog.Any("error", err))
		os.Exit(1)
	}

	lightClient := lightclient.New(store)
	if err := lightClient.LoadFromStore(ctx); err != nil {
		logger.Error("noded: failed to load light headers", slog.Any("error", err))
		os.Exit(1)
	}
	if err := syncLightClient(lightClient, c); err != nil {
		logger.Error("noded: failed to seed light headers", slog.Any("error", err))
		os.Exit(1)
	}

	adapter := ledger.New(c)
	adapter.NotifyNodeMap()

	nodeType := p2p.NodeTypeFull
	if strings.EqualFold(cfg.NodeType, "LIGHT") {
		nodeType = p2p.NodeTypeLight
	}
	host := p2p.NewHost(c, key, nodeType, logger)
	host.OnNewBlock(func(b types.Block) {
		persistBlock(ctx, store, b, logger)
		if err := syncLightClientHeader(lightClient, b); err != nil {
			logger.Warn("noded: light header append failed", slog.Any("error", err))
		}
		adapter.NotifyNodeMap()
		adapter.NotifySyncProgress(ledger.SyncProgress{
			Status:   ledger.SyncComplete,
			Current:  uint64(c.Len() - 1),
			Total:    uint64(c.Len() - 1),
			Progress: 1,
		})
	})

	reputation := p2p.NewReputationManager(p2p.ReputationConfig{})
	dialer := &wsDialer{host: host, logger: logger}
	connMgr := p2p.NewConnManager(host, dialer, reputation, logger)
	for _, peer := range cfg.BootstrapPeers {
		connMgr.AddCandidate(peer)
	}
	resolveSeedCandidates(ctx, cfg, connMgr, logger)

	presence := p2p.NewPresenceTracker(host)
	parentQueue := p2p.NewParentRequestQueue(host)

	go connMgr.Run(ctx)
	go presence.Run(ctx)
	go parentQueue.Run(ctx)
	go runPruner(ctx, c, store, cfg, logger)

	p2pServer := &http.Server{Addr: cfg.ListenAddress, Handler: p2pInboundHandler(ctx, host, logger)}
	go func() {
		logger.Info("noded: p2p listener starting", slog.String("address", cfg.ListenAddress))
		if err := p2pServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("noded: p2p listener stopped", slog.Any("error", err))
		}
	}()

	readModel := http.NewServeMux()
	readModel.Handle("/light/", http.StripPrefix("/light", lightclient.Router(lightClient)))
	readModel.Handle("/", ledger.Router(adapter, ledger.AuthConfig{
		Enabled:    cfg.AuthEnabled,
		HMACSecret: cfg.AuthHMACSecret,
		Issuer:     cfg.AuthIssuer,
	}, ledger.RateLimit{RatePerSecond: 20, Burst: 40}))
	readModelServer := &http.Server{Addr: cfg.ReadModelAddress, Handler: readModel}
	go func() {
		logger.Info("noded: read-model API starting", slog.String("address", cfg.ReadModelAddress))
		if err := readModelServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("noded: read-model API stopped", slog.Any("error", err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info("noded: shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = p2pServer.Shutdown(shutdownCtx)
	_ = readModelServer.Shutdown(shutdownCtx)
}

// setupTelemetry wires observability/otel against the process-wide
// TracerProvider core/chain.Chain's default tracer reads from, when the
// operator has pointed OTEL_EXPORTER_OTLP_ENDPOINT at a collector. Absent
// that, tracing stays a no-op and nothing here is exercised.
func setupTelemetry(ctx context.Context, logger *slog.Logger) (func(context.Context) error, error) {
	endpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		return nil, nil
	}
	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: "noded",
		Environment: strings.TrimSpace(os.Getenv("GLOWMESH_ENV")),
		Endpoint:    endpoint,
		Insecure:    strings.EqualFold(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE"), "true"),
		Headers:     telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS")),
		Traces:      true,
		Metrics:     true,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("noded: telemetry enabled", slog.String("endpoint", endpoint))
	return shutdown, nil
}

func setupLogging(cfg *config.Config) *slog.Logger {
	env := strings.TrimSpace(os.Getenv("GLOWMESH_ENV"))
	if strings.TrimSpace(cfg.LogFile) == "" {
		return logging.Setup("noded", env)
	}
	rotator := &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    100,
		MaxBackups: 5,
		MaxAge:     28,
		Compress:   true,
	}
	return logging.SetupWriter("noded", env, rotator)
}

// loadOrInitChain replays persisted blocks into a fresh Chain, or mints a
// genesis block and persists it when the store is empty.
func loadOrInitChain(ctx context.Context, store storage.Store, nodeID string, cfg *config.Config, logger *slog.Logger) (*chain.Chain, error) {
	opts := []chain.Option{
		chain.WithLogger(logger),
		chain.WithPruneKeepBlocks(cfg.PruneKeepBlocks),
		chain.WithCheckpointInterval(cfg.CheckpointInterval),
	}

	highest, ok, err := store.HighestBlockIndex(ctx)
	if err != nil {
		return nil, fmt.Errorf("noded: reading highest block index: %w", err)
	}
	if !ok {
		genesis, err := mintGenesis(nodeID)
		if err != nil {
			return nil, fmt.Errorf("noded: minting genesis: %w", err)
		}
		c, err := chain.NewGenesis(genesis, opts...)
		if err != nil {
			return nil, err
		}
		persistBlock(ctx, store, genesis, logger)
		return c, nil
	}

	blocks := make([]types.Block, 0, highest+1)
	for i := uint64(0); i <= highest; i++ {
		raw, err := store.GetBlock(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("noded: reading block %d: %w", i, err)
		}
		var b types.Block
		if err := json.Unmarshal(raw, &b); err != nil {
			return nil, fmt.Errorf("noded: decoding block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}
	return chain.LoadFromBlocks(blocks, opts...)
}

// mintGenesis builds the sole genesis block a brand-new node starts from,
// its uniqueness marker derived from the node's own identity so two
// independently bootstrapped nodes never collide (spec §4.3 tiebreaker).
func mintGenesis(nodeID string) (types.Block, error) {
	payload, err := json.Marshal(types.GenesisPayload{UniqueMarker: nodeID})
	if err != nil {
		return types.Block{}, err
	}
	tx := types.Transaction{
		Type:      types.TxGenesis,
		Timestamp: time.Now().Unix(),
		Sender:    types.SystemSigner,
		Payload:   payload,
	}
	leafBytes, err := tx.SigningBytes()
	if err != nil {
		return types.Block{}, err
	}
	root := merkle.New([]string{merkle.LeafHash(leafBytes)}).Root()
	block := types.Block{
		Header: types.BlockHeader{
			Index:      0,
			Timestamp:  tx.Timestamp,
			MerkleRoot: root,
			Proposer:   types.SystemSigner,
		},
		Transactions: []types.Transaction{tx},
	}
	if err := block.Finalize(); err != nil {
		return types.Block{}, err
	}
	return block, nil
}

func persistBlock(ctx context.Context, store storage.Store, b types.Block, logger *slog.Logger) {
	raw, err := json.Marshal(b)
	if err != nil {
		logger.Error("noded: marshaling block for persistence", slog.Any("error", err))
		return
	}
	if err := store.PutBlock(ctx, b.Header.Index, raw); err != nil {
		logger.Error("noded: persisting block", slog.Int64("index", int64(b.Header.Index)), slog.Any("error", err))
	}
}

// syncLightClient brings a freshly loaded light client's header chain up
// to c's full block sequence, for the case where the store held full
// blocks but no headers yet (e.g. the very first run).
func syncLightClient(lc *lightclient.Client, c *chain.Chain) error {
	tip, ok := lc.Tip()
	start := uint64(0)
	if ok {
		start = tip.Header.Index + 1
	}
	for i := start; i < uint64(c.Len()); i++ {
		b, ok := c.BlockAt(i)
		if !ok {
			break
		}
		if err := syncLightClientHeader(lc, b); err != nil {
			return err
		}
	}
	return nil
}

func syncLightClientHeader(lc *lightclient.Client, b types.Block) error {
	return lc.AppendHeader(context.Background(), types.LightHeader{Header: b.Header, Hash: b.Hash})
}

// runPruner periodically drops the oldest blocks, keeping the trailing
// cfg.PruneKeepBlocks (spec §4.5). The interval is wall-clock, independent of
// CheckpointInterval (a block-count spacing, not a duration).
func runPruner(ctx context.Context, c *chain.Chain, store storage.Store, cfg *config.Config, logger *slog.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.Prune(ctx, store); err != nil {
				logger.Warn("noded: prune failed", slog.Any("error", err))
			}
		}
	}
}

// resolveSeedCandidates reads and resolves cfg.SeedsRegistryFile, if set,
// feeding every currently-active resolved seed address into connMgr as a
// dial candidate alongside the static BootstrapPeers list. A missing or
// unset file is not an error — DNS seed discovery is optional.
func resolveSeedCandidates(ctx context.Context, cfg *config.Config, connMgr *p2p.ConnManager, logger *slog.Logger) {
	if cfg.SeedsRegistryFile == "" {
		return
	}
	raw, err := os.ReadFile(cfg.SeedsRegistryFile)
	if err != nil {
		logger.Warn("noded: failed to read seeds registry", slog.Any("error", err))
		return
	}
	registry, err := seeds.Parse(raw)
	if err != nil {
		logger.Warn("noded: failed to parse seeds registry", slog.Any("error", err))
		return
	}
	resolver := seeds.NewDNSResolver(cfg.SeedsDNSServers...)
	resolveCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	resolved, err := registry.Resolve(resolveCtx, time.Now(), resolver)
	if err != nil {
		logger.Warn("noded: seeds resolution failed", slog.Any("error", err))
	}
	for _, seed := range resolved {
		connMgr.AddCandidate(seed.Address)
	}
	logger.Info("noded: resolved seed candidates", slog.Int("count", len(resolved)))
}

// p2pInboundHandler upgrades every inbound connection to a websocket
// session and runs it against host until it closes. It runs the session
// against runCtx rather than the request's own context: net/http cancels
// the request context as soon as the HandlerFunc returns, which happens
// immediately here since the session is handed off to a goroutine.
func p2pInboundHandler(runCtx context.Context, host *p2p.Host, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		transport, err := p2p.AcceptWS(w, r)
		if err != nil {
			logger.Warn("noded: websocket accept failed", slog.Any("error", err))
			return
		}
		session := p2p.NewSession(transport, host, logger)
		host.Register(session)
		go func() {
			defer host.Unregister(session)
			if err := session.Run(runCtx); err != nil {
				logger.Debug("noded: inbound session closed", slog.Any("error", err))
			}
		}()
	})
}

// wsDialer implements p2p.Dialer over the websocket transport, the
// reference outbound path the connection manager uses to refill below
// MinConnections.
type wsDialer struct {
	host   *p2p.Host
	logger *slog.Logger
}

func (d *wsDialer) Dial(ctx context.Context, addr string) (*p2p.Session, error) {
	transport, err := p2p.DialWS(ctx, addr)
	if err != nil {
		return nil, err
	}
	session := p2p.NewSession(transport, d.host, d.logger)
	d.host.Register(session)
	if err := d.host.SendHello(session); err != nil {
		d.host.Unregister(session)
		_ = transport.Close()
		return nil, err
	}
	go func() {
		defer d.host.Unregister(session)
		if err := session.Run(context.Background()); err != nil {
			d.logger.Debug("noded: outbound session closed", slog.Any("error", err))
		}
	}()
	return session, nil
}
