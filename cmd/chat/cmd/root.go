package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/promoxa/community-client/internal/api"
	"github.com/promoxa/community-client/internal/cache"
	"github.com/promoxa/community-client/internal/chat"
	"github.com/promoxa/community-client/internal/config"
	"github.com/promoxa/community-client/internal/cred"
	"github.com/promoxa/community-client/internal/log"
	"github.com/promoxa/community-client/internal/transport/rest"
	"github.com/promoxa/community-client/internal/transport/ws"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "chat",
	Short: "Promoxa community chat client",
	Long: `chat connects to the Promoxa community feed over its push channel with a
polling fallback, streams messages to stdout, and sends messages from the
command line.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// env holds everything a command needs wired up.
type env struct {
	cfg   config.Config
	log   *zerolog.Logger
	creds *cred.Store
	api   *api.Client
}

func setup() (*env, error) {
	bootstrapLog := log.New("info")
	cfg, path, err := config.Load(bootstrapLog, configPath)
	if err != nil {
		return nil, fmt.Errorf("load config from %s: %w", path, err)
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	logger := log.New(cfg.LogLevel)

	creds, err := cred.Open(tokenPath(cfg))
	if err != nil {
		return nil, err
	}

	return &env{
		cfg:   cfg,
		log:   logger,
		creds: creds,
		api:   api.New(cfg.APIBase, creds, cache.New(0), logger),
	}, nil
}

func tokenPath(cfg config.Config) string {
	if cfg.TokenPath != "" {
		return cfg.TokenPath
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "tokens.json"
	}
	return filepath.Join(base, "promoxa", "tokens.json")
}

// newChatService builds the facade over the push supervisor and pull client.
func (e *env) newChatService() (*chat.Service, error) {
	endpoint, err := e.cfg.PushEndpoint()
	if err != nil {
		return nil, fmt.Errorf("derive push endpoint: %w", err)
	}

	sup := chat.NewSupervisor(chat.SupervisorConfig{
		Endpoint:       endpoint,
		InitialBackoff: e.cfg.InitialBackoff,
		MaxBackoff:     e.cfg.MaxBackoff,
		MaxAttempts:    e.cfg.MaxAttempts,
	}, ws.NewDialer(e.log), e.creds, e.log)

	pull := rest.New(e.cfg.APIBase, e.creds, e.cfg.PollPageSize, e.log)

	return chat.NewService(sup, pull, chat.Options{
		PollInterval: e.cfg.PollInterval,
	}, e.log), nil
}

// identity returns the username from the stored token, or a fallback.
func (e *env) identity() string {
	claims, err := e.creds.Inspect()
	if err != nil || claims.Username == "" {
		return "cli-user"
	}
	return claims.Username
}
