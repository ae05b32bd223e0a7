package cli

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/richinex/fistop/api"
	"github.com/richinex/fistop/config"
	"github.com/richinex/fistop/dispatch"
	"github.com/richinex/fistop/logging"
	"github.com/richinex/fistop/storage"
	"github.com/richinex/fistop/token"
	"go.uber.org/zap"
)

// Options holds CLI execution options. Non-empty string fields override
// the loaded settings.
type Options struct {
	ConfigPath string
	DBPath     string
	Driver     string
	APIURL     string
	LogLevel   string
	Verbose    bool
	Raw        bool

	Out io.Writer
	Err io.Writer

	// Token, when non-empty, is written to the session tier on open. It is
	// how a one-shot invocation supplies a token without persisting it.
	Token string

	// Session is the session token tier. Nil gets a fresh in-memory tier
	// that lives as long as the App.
	Session storage.KVStore
	// Logger replaces the logger built from settings.
	Logger *zap.Logger
	// HTTPClient replaces the default transport.
	HTTPClient *http.Client
}

// App is one opened environment: persistent tier, result history, token
// tiers, preferences and the remote client.
type App struct {
	settings   config.Settings
	logger     *zap.Logger
	persistent *storage.SqliteKV
	session    storage.KVStore
	pointer    *storage.CurrentPointer
	results    *storage.ResultStore
	tokens     *token.Manager
	prefs      *config.Preferences
	client     *api.Client
	dispatcher *dispatch.Dispatcher

	raw    bool
	out    io.Writer
	errOut io.Writer
	styles styles

	// selected is the shell's type selector.
	selected string
}

// Open loads settings, opens the persistent tier and wires every component.
func Open(ctx context.Context, opts Options) (*App, error) {
	settings, err := loadSettings(opts)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger, err = logging.New(settings.Log.Level, opts.Verbose)
		if err != nil {
			return nil, err
		}
	}

	persistent, err := storage.OpenSqlite(settings.Storage.Path, settings.Storage.Driver)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	app, err := wire(ctx, opts, settings, logger, persistent)
	if err != nil {
		persistent.Close()
		return nil, err
	}
	return app, nil
}

func wire(ctx context.Context, opts Options, settings config.Settings, logger *zap.Logger, persistent *storage.SqliteKV) (*App, error) {
	session := opts.Session
	if session == nil {
		session = storage.NewMemoryKV()
	}

	pointer := storage.NewCurrentPointer(persistent)
	results, err := storage.OpenResultStore(ctx, persistent, pointer, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}

	prefs := config.NewPreferences(persistent)
	baseURL := settings.API.BaseURL
	if opts.APIURL == "" {
		if baseURL, err = prefs.EffectiveBaseURL(ctx, settings.API.BaseURL); err != nil {
			return nil, err
		}
	}

	clientOpts := []api.Option{api.WithLogger(logger)}
	if opts.HTTPClient != nil {
		clientOpts = append(clientOpts, api.WithHTTPClient(opts.HTTPClient))
	}
	clientOpts = append(clientOpts, api.WithTimeout(settings.API.Timeout))
	client, err := api.NewClient(baseURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	theme, err := prefs.Theme(ctx)
	if err != nil {
		return nil, err
	}

	out, errOut := opts.Out, opts.Err
	if out == nil {
		out = os.Stdout
	}
	if errOut == nil {
		errOut = os.Stderr
	}

	logger.Debug("environment opened",
		zap.String("db", settings.Storage.Path),
		zap.String("driver", settings.Storage.Driver),
		zap.String("api", client.BaseURL()),
		zap.Int("results", results.Count()))

	tokens := token.NewManager(session, persistent)
	if opts.Token != "" {
		if err := tokens.SetSession(ctx, opts.Token); err != nil {
			return nil, err
		}
	}

	return &App{
		settings:   settings,
		logger:     logger,
		persistent: persistent,
		session:    session,
		pointer:    pointer,
		results:    results,
		tokens:     tokens,
		prefs:      prefs,
		client:     client,
		dispatcher: dispatch.New(client, results,
			dispatch.WithEndpoints(settings.API.Endpoints),
			dispatch.WithLogger(logger)),
		raw:      opts.Raw,
		out:      out,
		errOut:   errOut,
		styles:   newStyles(lipgloss.NewRenderer(out), theme),
		selected: dispatch.Auto,
	}, nil
}

// loadSettings applies flag overrides on top of file and environment settings.
func loadSettings(opts Options) (config.Settings, error) {
	var (
		settings config.Settings
		err      error
	)
	if opts.ConfigPath != "" {
		settings, err = config.Load(opts.ConfigPath)
	} else {
		settings, err = config.New()
	}
	if err != nil {
		return config.Settings{}, err
	}

	if opts.DBPath != "" {
		settings.Storage.Path = opts.DBPath
	}
	if opts.Driver != "" {
		settings.Storage.Driver = opts.Driver
	}
	if opts.APIURL != "" {
		settings.API.BaseURL = opts.APIURL
	}
	if opts.LogLevel != "" {
		settings.Log.Level = opts.LogLevel
	}
	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

// Close flushes the logger and closes the persistent tier.
func (a *App) Close() error {
	_ = a.logger.Sync()
	return a.persistent.Close()
}

// Settings returns the effective settings.
func (a *App) Settings() config.Settings {
	return a.settings
}
