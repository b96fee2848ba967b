package commands

import (
	"flag"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	cmn "github.com/tendermint/tendermint/libs/common"
	"github.com/tendermint/tendermint/libs/log"

	"github.com/mintward/custody/app"
	"github.com/mintward/custody/ledgernet/stellarnet"
	"github.com/mintward/custody/store/iavl"
	"github.com/mintward/custody/x/signers"
)

const defaultExpiryInterval = time.Minute

// StartCmd loads the configuration, assembles the engine and serves the
// admin API until interrupted.
func StartCmd(logger log.Logger, home string, args []string) error {
	var bind string
	startFlags := flag.NewFlagSet("start", flag.ExitOnError)
	startFlags.StringVar(&bind, "bind", "", "address the HTTP listener binds to, overrides the configuration")
	if err := startFlags.Parse(args); err != nil {
		return err
	}

	cfg, err := LoadConfig(home)
	if err != nil {
		return err
	}
	if bind == "" {
		bind = cfg.Bind
	}

	svc, err := buildService(cfg, home, logger)
	if err != nil {
		return err
	}

	interval, err := cfg.expiryInterval()
	if err != nil {
		return err
	}
	if interval <= 0 {
		interval = defaultExpiryInterval
	}
	stopExpiry := make(chan struct{})
	go expiryLoop(svc, logger, interval, stopExpiry)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	registerHandlers(mux, svc)
	srv := &http.Server{Addr: bind, Handler: mux}

	cmn.TrapSignal(logger, func() {
		close(stopExpiry)
		if err := srv.Close(); err != nil {
			logger.Error("server close", "err", err)
		}
	})

	logger.Info("serving", "bind", bind)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func buildService(cfg Config, home string, logger log.Logger) (*app.Service, error) {
	members := make([]signers.Member, 0, len(cfg.Signers))
	for _, sc := range cfg.Signers {
		sig, err := signers.NewStellarSignatory(sc.Seed)
		if err != nil {
			return nil, err
		}
		members = append(members, signers.NewMember(sig, signers.Weight(sc.Weight)))
	}
	registry, err := signers.NewRegistry(members)
	if err != nil {
		return nil, err
	}

	client, err := stellarnet.NewClient(cfg.HorizonURL, cfg.NetworkPassphrase, cfg.AssetCode, cfg.AssetIssuer)
	if err != nil {
		return nil, err
	}

	store := iavl.NewCommitStore(home, "custody")
	if err := store.LoadLatestVersion(); err != nil {
		return nil, err
	}
	if commit, err := store.LatestVersion(); err == nil {
		logger.Info("loaded state", "version", commit.Version)
	}

	ttl, err := cfg.pendingTTL()
	if err != nil {
		return nil, err
	}

	return app.NewService(app.Config{
		Store:           store,
		Client:          client,
		Registry:        registry,
		IssuingAccount:  cfg.IssuingAccount,
		RequiredWeight:  signers.Weight(cfg.RequiredWeight),
		BaseFee:         cfg.BaseFee,
		Ticker:          cfg.AssetCode,
		PendingTTL:      ttl,
		Logger:          logger,
		MetricsRegistry: prometheus.DefaultRegisterer,
	})
}

func expiryLoop(svc *app.Service, logger log.Logger, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if _, err := svc.ExpirePending(); err != nil {
				logger.Error("expiry sweep", "err", err)
			}
		}
	}
}
