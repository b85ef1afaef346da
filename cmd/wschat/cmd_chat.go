package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/tui"
)

func init() {
	rootCmd.AddCommand(chatCmd)
}

var chatCmd = &cobra.Command{
	Use:   "chat [workspace-id]",
	Short: "Open the live chat view for a workspace",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runChat,
}

func runChat(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	closeLog, err := setupFileLogging(cfg)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, cancel := signalContext()
	defer cancel()

	p, err := openPrefs(cfg)
	if err != nil {
		return err
	}
	workspace, err := resolveWorkspace(p, args)
	if err != nil {
		return err
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	who, err := currentIdentity(ctx, p, backend)
	if err != nil {
		return err
	}

	joined, err := backend.JoinWorkspace(ctx, who.ID, workspace)
	if err != nil {
		return fmt.Errorf("join workspace: %w", err)
	}
	if !joined {
		return fmt.Errorf("workspace %s not found", workspace)
	}
	if err := p.Set(keyLastWorkspace, string(workspace)); err != nil {
		slog.Warn("remember workspace failed", "error", err)
	}

	client := newRelayClient(cfg)
	slog.Info("opening chat", "workspace_id", workspace, "user_id", who.ID, "store", cfg.Store.Backend)

	return tui.Run(ctx, tui.Options{
		Chat: chat.Config{
			Source:   backend,
			Sink:     backend,
			Relay:    chatRelay(cfg, client),
			Identity: who,
			Detector: agentDetector(cfg),
		},
		Workspace: workspace,
		Directory: backend,
		Notifier:  client,
	})
}
