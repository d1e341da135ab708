package cli

import (
	"fmt"
	"log/slog"

	"github.com/vijay-prabhu/crmgmail/internal/account"
	"github.com/vijay-prabhu/crmgmail/internal/config"
	"github.com/vijay-prabhu/crmgmail/internal/correspondence"
	"github.com/vijay-prabhu/crmgmail/internal/crypto"
	"github.com/vijay-prabhu/crmgmail/internal/database"
	"github.com/vijay-prabhu/crmgmail/internal/email/gmail"
	"github.com/vijay-prabhu/crmgmail/internal/oauthflow"
	"github.com/vijay-prabhu/crmgmail/internal/settings"
	"github.com/vijay-prabhu/crmgmail/internal/token"
)

// cliUser owns OAuth state started from the command line
const cliUser = "cli"

// app holds the wired components shared by the commands
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	db         *database.DB
	settings   *settings.Settings
	registry   *account.Registry
	tokens     *token.Manager
	aggregator *correspondence.Aggregator
	flow       *oauthflow.Flow
}

// openApp loads the config, opens the database and wires every component
func openApp() (*app, error) {
	logger, err := newLogger()
	if err != nil {
		return nil, err
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	// Ensure directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	// Open database
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sealer, err := crypto.New(cfg.Security.Secret)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize token encryption: %w", err)
	}

	st := settings.New(db)
	registry := account.NewRegistry(db, sealer)

	tokens := token.NewManager(registry, token.Config{
		AuthURL:     cfg.OAuth.AuthURL,
		TokenURL:    cfg.OAuth.TokenURL,
		RedirectURL: cfg.OAuth.RedirectURL,
		Timeout:     cfg.Gmail.Timeout(),
	}, logger)

	provider := gmail.New(gmail.Config{
		Endpoint: cfg.Gmail.APIEndpoint,
		Timeout:  cfg.Gmail.Timeout(),
	})

	aggregator := correspondence.New(registry, tokens, provider, db, st, correspondence.Config{
		MaxParallelAccounts: cfg.Gmail.MaxParallelAccounts,
		MaxParallelMessages: cfg.Gmail.MaxParallelMessages,
	}, logger)

	flow, err := oauthflow.New(registry, tokens, db, cfg.Security.Secret, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize oauth flow: %w", err)
	}

	return &app{
		cfg:        cfg,
		logger:     logger,
		db:         db,
		settings:   st,
		registry:   registry,
		tokens:     tokens,
		aggregator: aggregator,
		flow:       flow,
	}, nil
}

// Close releases the database
func (a *app) Close() error {
	return a.db.Close()
}
