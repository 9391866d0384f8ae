package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Sajithrajan03/GreenSquares/commit"
	"github.com/Sajithrajan03/GreenSquares/config"
	gateway "github.com/Sajithrajan03/GreenSquares/github"
	"github.com/Sajithrajan03/GreenSquares/logging"
	"github.com/Sajithrajan03/GreenSquares/oauth"
	"github.com/Sajithrajan03/GreenSquares/ratelimit"
	"github.com/Sajithrajan03/GreenSquares/redis"
	"github.com/Sajithrajan03/GreenSquares/server"
	"github.com/Sajithrajan03/GreenSquares/session"
)

// Version is set at build time with -ldflags "-X main.Version=...".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "greensquares",
		Short:         "GreenSquares backend: GitHub OAuth, profile stats and quick commits",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
	root.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	})
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), Version)
		},
	})
	return root
}

func runServe(parent context.Context) error {
	cfg, err := config.NewLoader("").Load()
	if err != nil {
		logrus.Errorf("config error: %v", err)
		return err
	}
	if err := logging.Setup(cfg.LogLevel, cfg.Env); err != nil {
		return fmt.Errorf("logging: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv, closeFn, err := buildServer(cfg)
	if err != nil {
		logrus.Errorf("startup error: %v", err)
		return err
	}
	defer func() {
		if err := closeFn(); err != nil {
			logrus.WithError(err).Warn("close session store")
		}
	}()

	if err := srv.Run(ctx, cfg.Addr(), cfg.ShutdownGrace); err != nil {
		logrus.Errorf("server error: %v", err)
		return err
	}
	logrus.Info("GreenSquares backend stopped")
	return nil
}

// buildServer wires the components for cfg. The returned func releases the
// session backend.
func buildServer(cfg config.Config) (*server.Server, func() error, error) {
	limiter, err := ratelimit.New(cfg.GithubRateLimit, cfg.CacheSize)
	if err != nil {
		return nil, nil, err
	}
	gh, err := gateway.NewClient(gateway.Options{
		BaseURL:       cfg.GithubAPIURL,
		Timeout:       cfg.HTTPClientTimeout,
		Limiter:       limiter,
		EventsPerPage: cfg.EventsPerPage,
		ReposPerPage:  cfg.ReposPerPage,
	})
	if err != nil {
		return nil, nil, err
	}

	sessions, closeFn, err := newSessionStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	ctrl, err := oauth.NewController(oauth.Options{
		ClientID:     cfg.GithubClientID,
		ClientSecret: cfg.GithubClientSecret,
		RedirectURI:  cfg.GithubRedirectURI,
		Scopes:       cfg.GithubScopes,
		AuthURL:      cfg.GithubAuthURL,
		TokenURL:     cfg.GithubTokenURL,
		FrontendURL:  cfg.FrontendURL,
		StateTTL:     cfg.OAuthStateTTL,
		CacheSize:    cfg.CacheSize,
	}, sessions, gh)
	if err != nil {
		_ = closeFn()
		return nil, nil, err
	}

	srv := server.New(cfg, server.Deps{
		Sessions: sessions,
		GitHub:   gh,
		OAuth:    ctrl,
		Commits:  commit.NewBuilder(cfg.GithubWebURL),
	})
	return srv, closeFn, nil
}

func newSessionStore(cfg config.Config) (session.Store, func() error, error) {
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		var (
			rdb *goredis.Client
			err error
		)
		if cfg.RedisURL != "" {
			rdb, err = redis.ConnectToRedisURL(cfg.RedisURL, cfg.RedisConnTimeout)
		} else {
			rdb, err = redis.ConnectToRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisConnTimeout)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("redis connection error: %w", err)
		}
		logrus.Info("using redis session store")
		return session.NewRedisStore(rdb, cfg.SessionKeyPrefix), rdb.Close, nil
	default:
		logrus.Warn("using in-memory session store; sessions are lost on restart")
		return session.NewMemoryStore(), func() error { return nil }, nil
	}
}
