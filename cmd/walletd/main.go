// walletd is the wallet backend daemon. Each subcommand runs one role
// (parser, consumer, pricer, api, dynode) so roles scale independently;
// they share the same configuration file.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli"
	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"github.com/walletbase/walletd/api"
	"github.com/walletbase/walletd/bus"
	"github.com/walletbase/walletd/cache"
	"github.com/walletbase/walletd/config"
	"github.com/walletbase/walletd/consumer"
	"github.com/walletbase/walletd/dynode"
	"github.com/walletbase/walletd/log"
	"github.com/walletbase/walletd/metrics"
	"github.com/walletbase/walletd/parser"
	"github.com/walletbase/walletd/pricer"
	"github.com/walletbase/walletd/provider"
	"github.com/walletbase/walletd/pusher"
	"github.com/walletbase/walletd/store"
	"github.com/walletbase/walletd/stream"
	"github.com/walletbase/walletd/types"
)

var logger = log.NewModuleLogger("main")

func main() {
	app := cli.NewApp()
	app.Name = "walletd"
	app.Usage = "multi-chain wallet backend"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "config, c",
			Usage:  "path to the TOML configuration file",
			EnvVar: "WALLETD_CONFIG",
		},
	}
	app.Commands = []cli.Command{
		{
			Name:   "parser",
			Usage:  "run the block parsers for the configured chains",
			Action: runParser,
		},
		{
			Name:   "consumer",
			Usage:  "run the queue consumers and push notifications",
			Action: runConsumer,
		},
		{
			Name:   "pricer",
			Usage:  "run the market price updater",
			Action: runPricer,
		},
		{
			Name:   "api",
			Usage:  "run the HTTP API and price stream server",
			Action: runAPI,
		},
		{
			Name:   "dynode",
			Usage:  "run the node reverse proxy",
			Action: runDynode,
		},
	}
	if err := app.Run(os.Args); err != nil {
		logger.Errorw("walletd exited", "err", err)
		os.Exit(1)
	}
}

// env holds the shared backing services every subcommand opens.
type env struct {
	cfg    *config.Config
	db     *store.Database
	cacher *cache.Cacher
}

func setup(c *cli.Context) (*env, error) {
	cfg, err := config.Load(c.GlobalString("config"))
	if err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.Postgres.URL, cfg.Postgres.Pool)
	if err != nil {
		return nil, err
	}
	cacher, err := cache.New(cfg.Redis.URL)
	if err != nil {
		db.Close()
		return nil, err
	}
	return &env{cfg: cfg, db: db, cacher: cacher}, nil
}

func (e *env) Close() {
	if err := e.cacher.Close(); err != nil {
		logger.Warnw("closing cache", "err", err)
	}
	if err := e.db.Close(); err != nil {
		logger.Warnw("closing store", "err", err)
	}
}

// openBroker connects to Kafka and declares the full topology, including
// the per-chain transaction queues for every registered chain.
func (e *env) openBroker(registry *parser.Registry) (*bus.Broker, error) {
	broker, err := bus.NewBroker(bus.DefaultBrokerConfig(e.cfg.Kafka.Brokers, e.cfg.Kafka.Replicas))
	if err != nil {
		return nil, err
	}
	if err := broker.DeclareQueues(bus.AllQueues()...); err != nil {
		broker.Close()
		return nil, err
	}
	if registry != nil {
		for _, chain := range registry.Chains() {
			if err := broker.DeclareQueues(bus.QueueStoreTransactions.ForChain(chain)); err != nil {
				broker.Close()
				return nil, err
			}
		}
	}
	if err := broker.DeclareExchanges(bus.AllExchanges()...); err != nil {
		broker.Close()
		return nil, err
	}
	err = broker.BindExchange(bus.ExchangeNewAddresses,
		bus.QueueFetchCoinAssoc, bus.QueueFetchTokenAssoc, bus.QueueFetchNftAssoc)
	if err != nil {
		broker.Close()
		return nil, err
	}
	return broker, nil
}

// buildRegistry instantiates a provider per configured chain. Chains
// without an adapter are skipped with a warning rather than failing the
// whole process.
func buildRegistry(cfg *config.Config) *parser.Registry {
	var providers []parser.ChainProvider
	for name, cc := range cfg.Chains {
		chain, err := types.ParseChain(name)
		if err != nil || cc.URL == "" {
			continue
		}
		if chain.Type() != types.ChainTypeEVM {
			logger.Warnw("no adapter for chain, skipping", "chain", chain)
			continue
		}
		providers = append(providers, provider.NewEvmProvider(chain, cc.URL, cfg.Parser.Timeout))
	}
	return parser.NewRegistry(providers...)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-ch:
			logger.Infow("shutdown signal received", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}

func runParser(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	registry := buildRegistry(e.cfg)
	chains := registry.Chains()
	if len(chains) == 0 {
		return errors.New("no chains with adapters configured")
	}
	broker, err := e.openBroker(registry)
	if err != nil {
		return err
	}
	defer broker.Close()

	ctx, cancel := signalContext()
	defer cancel()

	jobs := metrics.NewJobMetrics()
	g, ctx := errgroup.WithContext(ctx)
	for _, chain := range chains {
		if err := e.db.EnsureParserState(chain); err != nil {
			return err
		}
		p := parser.New(chain, e.db, e.cacher, broker, registry, jobs, e.cfg.Parser.Timeout)
		g.Go(func() error {
			p.Run(ctx)
			return nil
		})
	}
	logger.Infow("parser started", "chains", len(chains))
	return g.Wait()
}

func runConsumer(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	registry := buildRegistry(e.cfg)
	broker, err := e.openBroker(registry)
	if err != nil {
		return err
	}
	defer broker.Close()

	ctx, cancel := signalContext()
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	consume := func(queue bus.QueueName, handler bus.Handler) {
		runner := bus.NewRunner(handler, bus.RunnerOptions{
			MaxConcurrent: e.cfg.Consumer.MaxConcurrent,
			MaxRetries:    e.cfg.Consumer.MaxRetries,
			BaseDelay:     e.cfg.Consumer.BaseDelay,
			MaxDelay:      e.cfg.Consumer.MaxDelay,
		}, bus.NewStatusReporter(queue.String(), e.cacher))
		g.Go(func() error {
			return broker.Consume(ctx, queue, runner)
		})
	}

	events := stream.NewEventPublisher(e.cacher)
	txs := consumer.NewTransactionsConsumer(e.db, broker, events, e.cfg.Pricer.MinNotifyUSD)
	for _, chain := range registry.Chains() {
		consume(bus.QueueStoreTransactions.ForChain(chain), txs)
	}
	consume(bus.QueueFetchTransactions,
		consumer.NewDeferredTransactionsConsumer(e.db, broker, events, e.cfg.Pricer.MinNotifyUSD))
	consume(bus.QueueFetchBlocks, consumer.NewBlocksConsumer(registry, broker, e.cfg.Parser.Timeout))
	consume(bus.QueueStorePrices, consumer.NewPricesConsumer(e.db, e.cacher))
	consume(bus.QueueStoreCharts, consumer.NewChartsConsumer(e.db))
	consume(bus.QueueFetchAssets, consumer.NewAssetsConsumer(e.db, registry))
	for _, queue := range []bus.QueueName{bus.QueueFetchCoinAssoc, bus.QueueFetchTokenAssoc, bus.QueueFetchNftAssoc} {
		consume(queue, consumer.NewAssociationsConsumer(queue.String(), registry, e.db))
	}

	gateway := pusher.NewGateway(e.cfg.Pusher.URL)
	consume(bus.QueueNotificationsTxs,
		pusher.New(bus.QueueNotificationsTxs.String(), gateway, e.db, e.cfg.Pusher.IOSTopic))
	consume(bus.QueueNotificationsRewards,
		pusher.New(bus.QueueNotificationsRewards.String(), gateway, e.db, e.cfg.Pusher.IOSTopic))

	logger.Infow("consumers started", "chains", len(registry.Chains()))
	return g.Wait()
}

func runPricer(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	broker, err := e.openBroker(nil)
	if err != nil {
		return err
	}
	defer broker.Close()

	ctx, cancel := signalContext()
	defer cancel()

	client := pricer.NewCoinGeckoClient("", e.cfg.Pricer.CoinGeckoKey)
	updater := pricer.NewUpdater(client, e.db, broker, metrics.NewJobMetrics(), e.cfg.Pricer.UpdateInterval)
	logger.Infow("pricer started", "interval", e.cfg.Pricer.UpdateInterval)
	if err := updater.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func runAPI(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	socket := stream.NewServer(e.db, stream.NewFeed(e.cacher))
	var images api.ImageSource
	if e.cfg.API.NftImageURL != "" {
		images = api.NewImageSource(e.cfg.API.NftImageURL)
	}
	srv := api.NewServer(e.cfg.API.Addr, e.db, e.cacher, stream.NewEventPublisher(e.cacher),
		nil, images, socket, api.NewMetricsHandler(e.db))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Run)
	g.Go(func() error {
		<-ctx.Done()
		socket.Shutdown()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})
	logger.Infow("api started", "addr", e.cfg.API.Addr)
	return g.Wait()
}

// nodeSource resolves dynode upstreams from the nodes table, falling
// back to the statically configured chain endpoints when the table has
// no rows for a chain.
type nodeSource struct {
	db     *store.Database
	static map[types.Chain][]store.Node
}

func newNodeSource(db *store.Database, cfg *config.Config) nodeSource {
	static := make(map[types.Chain][]store.Node)
	for name, cc := range cfg.Chains {
		chain, err := types.ParseChain(name)
		if err != nil || cc.URL == "" {
			continue
		}
		static[chain] = []store.Node{{Chain: chain, URL: cc.URL, Enabled: true}}
	}
	return nodeSource{db: db, static: static}
}

func (s nodeSource) GetNodes(chain types.Chain) ([]store.Node, error) {
	nodes, err := s.db.GetNodes(chain)
	if err == nil && len(nodes) > 0 {
		return nodes, nil
	}
	if err != nil {
		logger.Warnw("node lookup failed, using static endpoints", "chain", chain, "err", err)
	}
	return s.static[chain], nil
}

func runDynode(c *cli.Context) error {
	e, err := setup(c)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	rules := make(map[types.Chain]dynode.RuleSet, len(e.cfg.Dynode.CacheRules))
	for name, configured := range e.cfg.Dynode.CacheRules {
		chain, err := types.ParseChain(name)
		if err != nil {
			return errors.Wrap(err, "dynode cache rules")
		}
		set := make(dynode.RuleSet, 0, len(configured))
		for _, rule := range configured {
			set = append(set, dynode.CacheRule{
				Path:      rule.Path,
				Method:    rule.Method,
				RpcMethod: rule.RpcMethod,
				TTL:       rule.TTL,
			})
		}
		rules[chain] = set
	}

	proxy := dynode.NewProxy(newNodeSource(e.db, e.cfg),
		dynode.NewResponseCache(e.cacher, e.cfg.Dynode.LocalCacheBytes),
		rules, e.cfg.Dynode.HeaderAllowList,
		dynode.NewUpstream(e.cfg.Dynode.Timeout))
	srv := &fasthttp.Server{
		Name:         "dynode",
		Handler:      proxy.Handle,
		ReadTimeout:  e.cfg.Dynode.Timeout,
		WriteTimeout: 2 * e.cfg.Dynode.Timeout,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(e.cfg.Dynode.Addr)
	})
	g.Go(func() error {
		<-ctx.Done()
		return srv.Shutdown()
	})
	logger.Infow("dynode started", "addr", e.cfg.Dynode.Addr)
	return g.Wait()
}
