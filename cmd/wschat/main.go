package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/config"
	"github.com/user/wschat/internal/prefs"
	"github.com/user/wschat/internal/relay"
	"github.com/user/wschat/internal/store/firestore"
	"github.com/user/wschat/internal/store/local"
	"github.com/user/wschat/internal/types"
)

// keyLastWorkspace remembers the workspace used by `chat` and `send` when
// none is given.
const keyLastWorkspace = "last_workspace"

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "wschat",
	Short:         "Workspace chat with a shared AI agent",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	defaultPath := filepath.Join(os.Getenv("HOME"), ".wschat", "config.json")
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", defaultPath, "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func setupLogging(cfg *config.Config) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))
}

// setupFileLogging sends logs to <data_dir>/wschat.log while the chat view
// owns the terminal. The returned func closes the file.
func setupFileLogging(cfg *config.Config) (func(), error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(cfg.DataDir, "wschat.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)})))
	return func() { f.Close() }, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// openBackend opens the configured workspace store.
func openBackend(ctx context.Context, cfg *config.Config) (types.Backend, error) {
	switch cfg.Store.Backend {
	case "", "local":
		s, err := local.Open(filepath.Join(cfg.DataDir, "store"), slog.Default())
		if err != nil {
			return nil, err
		}
		return s, nil
	case "firestore":
		s, err := firestore.NewStore(ctx, cfg.Store.ProjectID, slog.Default())
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store backend %q (want local or firestore)", cfg.Store.Backend)
	}
}

func openPrefs(cfg *config.Config) (*prefs.Store, error) {
	return prefs.Open(filepath.Join(cfg.DataDir, "prefs.json"))
}

// currentIdentity returns the remembered identity, or a fresh demo identity
// when nobody is signed in, and makes sure the store has a profile for it.
func currentIdentity(ctx context.Context, p *prefs.Store, dir types.Directory) (types.Identity, error) {
	who := chat.ResolveIdentity(p.Identity())
	_, err := dir.GetProfile(ctx, who.ID)
	switch {
	case err == nil:
		return who, nil
	case errors.Is(err, types.ErrNotFound):
		profile := &types.UserProfile{ID: who.ID, DisplayName: who.DisplayName, Email: who.Email}
		if err := dir.CreateProfile(ctx, profile); err != nil {
			return who, fmt.Errorf("create profile: %w", err)
		}
		return who, nil
	default:
		return who, fmt.Errorf("get profile: %w", err)
	}
}

// resolveWorkspace picks the workspace named on the command line, falling
// back to the last one used.
func resolveWorkspace(p *prefs.Store, args []string) (types.WorkspaceID, error) {
	if len(args) > 0 && args[0] != "" {
		return types.WorkspaceID(args[0]), nil
	}
	if id, ok := p.Get(keyLastWorkspace); ok && id != "" {
		return types.WorkspaceID(id), nil
	}
	return "", fmt.Errorf("no workspace given and none used before: %w", types.ErrNoWorkspace)
}

func newRelayClient(cfg *config.Config) *relay.Client {
	return relay.New(cfg.Relay.Endpoint, cfg.Relay.BackendURL, time.Duration(cfg.Relay.TimeoutSeconds)*time.Second)
}

// chatRelay returns nil when no relay endpoint is configured so that sends
// skip the relay step entirely.
func chatRelay(cfg *config.Config, c *relay.Client) types.Relay {
	if cfg.Relay.Endpoint == "" {
		return nil
	}
	return c
}

func agentDetector(cfg *config.Config) chat.AgentDetector {
	return chat.AgentDetector{
		Marker:     cfg.Chat.AgentMarker,
		SenderID:   types.UserID(cfg.Chat.AgentSenderID),
		StrictTags: cfg.Chat.StrictAgentTags,
	}
}
