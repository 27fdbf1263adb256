package cli

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/roach88/gridtrace/internal/config"
	"github.com/roach88/gridtrace/internal/httpapi"
	"github.com/roach88/gridtrace/internal/network"
	"github.com/roach88/gridtrace/internal/store"
	"github.com/roach88/gridtrace/internal/traceclient"
	"github.com/roach88/gridtrace/internal/workflow"
)

// ServeConfig is the environment-driven configuration for the HTTP facade.
// Loaded from the process environment after an optional .env file.
type ServeConfig struct {
	Addr         string // GRIDTRACE_ADDR
	DBPath       string // GRIDTRACE_DB
	ServiceURL   string // GRIDTRACE_SERVICE_URL
	ServiceToken string // GRIDTRACE_SERVICE_TOKEN
	ConfigsPath  string // GRIDTRACE_CONFIGS (optional CUE file)
}

// LoadServeConfig reads the serve configuration from the environment.
func LoadServeConfig() (*ServeConfig, error) {
	cfg := &ServeConfig{
		Addr:         getenv("GRIDTRACE_ADDR", ":8080"),
		DBPath:       getenv("GRIDTRACE_DB", "gridtrace.db"),
		ServiceURL:   os.Getenv("GRIDTRACE_SERVICE_URL"),
		ServiceToken: os.Getenv("GRIDTRACE_SERVICE_TOKEN"),
		ConfigsPath:  os.Getenv("GRIDTRACE_CONFIGS"),
	}
	if cfg.ServiceURL == "" {
		return nil, fmt.Errorf("GRIDTRACE_SERVICE_URL is required")
	}
	return cfg, nil
}

func getenv(key, dflt string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return dflt
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve trace workflow sessions over HTTP",
		Long: `Start the HTTP facade. Each session owns one workflow wired to the
external utility network service (identify and trace endpoints) and to
the durable history store.

Configuration comes from the environment (a .env file is loaded if
present): GRIDTRACE_ADDR, GRIDTRACE_DB, GRIDTRACE_SERVICE_URL,
GRIDTRACE_SERVICE_TOKEN, GRIDTRACE_CONFIGS.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(rootOpts, cmd)
		},
	}
}

func runServe(opts *RootOptions, cmd *cobra.Command) error {
	_ = godotenv.Load()

	cfg, err := LoadServeConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid serve configuration", err)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "cannot open history database", err)
	}
	defer st.Close()

	var configs []network.TraceConfig
	if cfg.ConfigsPath != "" {
		configs, err = config.LoadFile(cfg.ConfigsPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "cannot load trace configurations", err)
		}
		slog.Info("trace configurations loaded", "path", cfg.ConfigsPath, "count", len(configs))
	}

	factory := func(session network.Session) (*workflow.Workflow, error) {
		session.ServiceURL = cfg.ServiceURL
		session.Token = cfg.ServiceToken
		client := traceclient.New(session)
		return workflow.New(session, workflow.Deps{
			Identifier: client,
			Elements:   client,
			Runner:     client,
		}, workflow.WithRecorder(store.NewRecorder(st, session)))
	}

	server := httpapi.NewServer(factory, httpapi.WithConfigs(configs))

	slog.Info("gridtrace serving", "addr", cfg.Addr, "db", cfg.DBPath, "service", cfg.ServiceURL)
	if err := http.ListenAndServe(cfg.Addr, server.Router()); err != nil {
		return WrapExitError(ExitCommandError, "server stopped", err)
	}
	return nil
}
