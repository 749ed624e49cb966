// Command edgekafkad runs the transparent Kafka proxy: one Listener per
// distinct listen address, each resolving to a virtual cluster's filter
// chain, plus an admin gRPC service for live binding updates. Flag parsing
// and signal handling are grounded on the teacher's cmd/rigd/main.go;
// lifecycle composition follows the teacher's run.Group/run.Sequence idiom
// (internal/server/lifecycle.go).
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	awskmssdk "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	tclient "go.temporal.io/sdk/client"
	"google.golang.org/grpc"

	"github.com/edgekafka/edgekafka/internal/admin"
	"github.com/edgekafka/edgekafka/internal/audit"
	"github.com/edgekafka/edgekafka/internal/authlimit"
	"github.com/edgekafka/edgekafka/internal/config"
	"github.com/edgekafka/edgekafka/internal/deadletter"
	"github.com/edgekafka/edgekafka/internal/encryption"
	"github.com/edgekafka/edgekafka/internal/filter"
	"github.com/edgekafka/edgekafka/internal/kms/awskms"
	"github.com/edgekafka/edgekafka/internal/proxy"
	"github.com/edgekafka/edgekafka/internal/rotation"
	"github.com/matgreaves/run"
	"github.com/redis/go-redis/v9"
)

func main() {
	configPath := flag.String("config", "", "path to the virtual cluster JSON config")
	adminAddr := flag.String("admin-addr", "127.0.0.1:9443", "admin gRPC listen address")
	logLevel := flag.String("log-level", "info", "zerolog level (debug, info, warn, error)")
	flag.Parse()

	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()
	if lvl, err := zerolog.ParseLevel(*logLevel); err == nil {
		log = log.Level(lvl)
	}

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "edgekafkad: -config is required")
		os.Exit(1)
	}
	data, err := os.ReadFile(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("read config")
	}
	file, err := config.Decode(data)
	if err != nil {
		log.Fatal().Err(err).Msg("decode config")
	}

	awsCfg, err := awskmssdk.LoadDefaultConfig(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("load aws config")
	}
	kmsClient := awskms.New(kms.NewFromConfig(awsCfg))
	keys := encryption.NewKeyManager(kmsClient, 5*time.Second, 0)
	decryptors := encryption.NewDecryptorCache(kmsClient)
	engine := encryption.NewTransformEngine(keys, decryptors)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := &builder{ctx: ctx, log: log, engine: engine, keys: keys}
	resolver := proxy.NewResolver()
	entries := make([]proxy.Entry, 0, len(file.Clusters))
	listenAddrTLS := make(map[string]*tls.Config)
	var runners []run.Runner

	for _, vc := range file.Clusters {
		localAddr, sni, binding, err := b.Build(vc)
		if err != nil {
			log.Fatal().Err(err).Str("cluster", vc.ClusterID).Msg("build virtual cluster")
		}
		entries = append(entries, proxy.Entry{LocalAddr: localAddr, SNI: sni, Binding: binding})
		if binding.Cluster.DownstreamTLS != nil {
			if _, ok := listenAddrTLS[localAddr]; !ok {
				listenAddrTLS[localAddr] = binding.Cluster.DownstreamTLS
			}
		} else if _, ok := listenAddrTLS[localAddr]; !ok {
			listenAddrTLS[localAddr] = nil
		}
		if r := b.rotationRunner(vc); r != nil {
			runners = append(runners, r)
		}
	}
	resolver.PublishEntries(entries)

	frontend := proxy.NewFrontendHandler(log)
	if err := wireAuthLimiter(file, frontend, log); err != nil {
		log.Fatal().Err(err).Msg("wire auth limiter")
	}

	for addr, baseTLS := range listenAddrTLS {
		l := &proxy.Listener{Addr: addr, BaseTLS: baseTLS, Resolver: resolver, Frontend: frontend, Log: log}
		runners = append(runners, l.Runner())
	}

	adminSvc := admin.NewService(resolver, b)
	runners = append(runners, adminRunner(*adminAddr, adminSvc, log))

	group := make(run.Group, len(runners))
	for i, r := range runners {
		group[fmt.Sprintf("listener-%d", i)] = r
	}
	if err := group.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("edgekafkad exited with error")
	}
}

// builder implements admin.Builder and is also used directly at startup,
// so a config reload over the admin plane constructs bindings identically
// to the initial static load.
type builder struct {
	ctx    context.Context
	log    zerolog.Logger
	engine *encryption.TransformEngine
	keys   *encryption.KeyManager
}

func (b *builder) Build(vc config.VirtualCluster) (string, string, proxy.Binding, error) {
	var filters []any
	filters = append(filters, &filter.APIVersionsFilter{UpstreamRanges: map[int16][2]int16{}})

	if vc.KEKID != "" {
		topics := make(encryption.StaticTopicKeys, len(vc.EncryptedTopics))
		for topic, ts := range vc.EncryptedTopics {
			topics[topic] = encryption.Scheme{KekID: vc.KEKID, EncryptHeaders: ts.EncryptHeaders}
		}
		encFilter := encryption.NewFilter(b.engine, topics)

		var ledger *audit.Ledger
		if vc.Audit != nil {
			var err error
			ledger, err = audit.Open(b.ctx, vc.Audit.PostgresDSN)
			if err != nil {
				return "", "", proxy.Binding{}, err
			}
		}
		var dlq *deadletter.Forwarder
		if vc.DeadLetter != nil {
			awsCfg, err := awskmssdk.LoadDefaultConfig(b.ctx)
			if err != nil {
				return "", "", proxy.Binding{}, err
			}
			dlq = deadletter.New(sqs.NewFromConfig(awsCfg), vc.DeadLetter.QueueURL)
		}
		if ledger != nil || dlq != nil {
			clusterID, kekID := vc.ClusterID, vc.KEKID
			encFilter.OnDecryptFailure = func(topic string, partition int32, failures []encryption.DecryptFailure) {
				for _, f := range failures {
					reason := f.Err.Error()
					if ledger != nil {
						_ = ledger.DecryptFailure(b.ctx, clusterID, kekID, topic, partition, reason, time.Now())
					}
					if dlq != nil {
						_ = dlq.Forward(b.ctx, deadletter.Record{
							ClusterID: clusterID, Topic: topic, Partition: partition,
							KekID: kekID, Reason: reason, At: time.Now(),
						})
					}
				}
			}
		}
		filters = append(filters, encFilter)
	}
	if len(vc.BrokerAddressRules) > 0 {
		rules := make([]filter.BrokerAddressRule, len(vc.BrokerAddressRules))
		for i, r := range vc.BrokerAddressRules {
			rules[i] = filter.BrokerAddressRule{NodeID: r.NodeID, AdvertisedHost: r.AdvertisedHost, AdvertisedPort: r.AdvertisedPort}
		}
		filters = append(filters, &filter.BrokerRewriteFilter{Rules: rules})
	}

	chain, err := filter.New(b.log, filters)
	if err != nil {
		return "", "", proxy.Binding{}, err
	}

	idleTimeout, err := vc.IdleTimeoutDuration()
	if err != nil {
		return "", "", proxy.Binding{}, fmt.Errorf("cluster %q: %w", vc.ClusterID, err)
	}

	cluster := &proxy.VirtualCluster{
		ClusterID:         vc.ClusterID,
		Name:              vc.Name,
		UpstreamBootstrap: vc.UpstreamBootstrap,
		LogNetwork:        vc.LogNetwork,
		LogFrames:         vc.LogFrames,
		SASLMechanisms:    vc.SASLMechanisms,
		IdleTimeout:       idleTimeout,
		Chain:             chain,
	}
	for _, r := range vc.BrokerAddressRules {
		cluster.BrokerAddressRules = append(cluster.BrokerAddressRules, proxy.BrokerAddressRule{
			NodeID: r.NodeID, AdvertisedHost: r.AdvertisedHost, AdvertisedPort: r.AdvertisedPort,
		})
	}
	if vc.DownstreamTLS != nil {
		tlsCfg, err := vc.DownstreamTLS.Load()
		if err != nil {
			return "", "", proxy.Binding{}, err
		}
		cluster.DownstreamTLS = tlsCfg
	}
	if vc.UpstreamTLS != nil {
		tlsCfg, err := vc.UpstreamTLS.Load()
		if err != nil {
			return "", "", proxy.Binding{}, err
		}
		cluster.UpstreamTLS = tlsCfg
	}

	return vc.ListenAddr, "", proxy.Binding{Cluster: cluster, Upstream: vc.UpstreamBootstrap}, nil
}

// rotationRunner starts the Temporal worker and recurring workflow for one
// cluster's proactive DEK rotation, or nil if the cluster doesn't
// configure dekRotation.
func (b *builder) rotationRunner(vc config.VirtualCluster) run.Runner {
	if vc.DekRotation == nil || vc.KEKID == "" {
		return nil
	}
	interval, err := time.ParseDuration(vc.DekRotation.Interval)
	if err != nil || interval <= 0 {
		interval = time.Hour
	}
	kekID := vc.KEKID
	return run.Func(func(ctx context.Context) error {
		c, err := tclient.Dial(tclient.Options{
			HostPort:  vc.DekRotation.TemporalHostPort,
			Namespace: vc.DekRotation.Namespace,
		})
		if err != nil {
			return fmt.Errorf("rotation: dial temporal: %w", err)
		}
		defer c.Close()

		w, err := rotation.StartWorker(c, vc.DekRotation.TaskQueue, b.keys)
		if err != nil {
			return fmt.Errorf("rotation: start worker: %w", err)
		}
		defer w.Stop()

		if err := rotation.StartRotation(ctx, c, vc.DekRotation.TaskQueue, kekID, interval); err != nil {
			b.log.Warn().Err(err).Str("kek", kekID).Msg("rotation: start workflow (may already be running)")
		}

		<-ctx.Done()
		return nil
	})
}

// wireAuthLimiter installs a single shared AuthLimiter across every
// cluster that configures one, preferring Redis when any cluster names a
// redisAddr and falling back to the in-process limiter otherwise. SPEC_FULL
// §4.13 scopes the limiter per remote address, not per cluster, so sharing
// one instance across clusters is correct even when several clusters
// enable gating.
func wireAuthLimiter(file config.File, frontend *proxy.FrontendHandler, log zerolog.Logger) error {
	for _, vc := range file.Clusters {
		if vc.AuthLimiter == nil {
			continue
		}
		window, err := time.ParseDuration(vc.AuthLimiter.Window)
		if err != nil {
			return fmt.Errorf("cluster %q: authLimiter.window: %w", vc.ClusterID, err)
		}
		if vc.AuthLimiter.RedisAddr != "" {
			client := redis.NewClient(&redis.Options{Addr: vc.AuthLimiter.RedisAddr})
			frontend.AuthLimiter = authlimit.NewRedisLimiter(client, vc.AuthLimiter.MaxAttempts, window)
			log.Info().Str("redis", vc.AuthLimiter.RedisAddr).Msg("auth limiter: redis-backed")
		} else {
			frontend.AuthLimiter = authlimit.NewLocalLimiter(vc.AuthLimiter.MaxAttempts, window)
			log.Info().Msg("auth limiter: in-process fallback")
		}
		return nil // one shared limiter is enough; first configured cluster wins
	}
	return nil
}

// adminRunner starts the hand-registered gRPC admin service as a
// run.Runner, listening and serving until ctx is cancelled.
func adminRunner(addr string, svc *admin.Service, log zerolog.Logger) run.Runner {
	return run.Func(func(ctx context.Context) error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("admin: listen %s: %w", addr, err)
		}
		srv := grpc.NewServer()
		admin.RegisterService(srv, svc)

		go func() {
			<-ctx.Done()
			srv.GracefulStop()
		}()

		log.Info().Str("addr", addr).Msg("admin service listening")
		return srv.Serve(ln)
	})
}
