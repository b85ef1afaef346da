package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/wschat/internal/agent"
	"github.com/user/wschat/internal/config"
	"github.com/user/wschat/internal/types"
	"github.com/user/wschat/pkg/llm"
	"github.com/user/wschat/pkg/llm/openai"
)

const relayPIDFile = "relay.pid"

func init() {
	rootCmd.AddCommand(relayCmd)
	relayCmd.AddCommand(relayServeCmd, relayStopCmd)
}

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the development agent relay",
}

var relayServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Answer \\act, \\ask and \\run messages as the workspace agent",
	Args:  cobra.NoArgs,
	RunE:  runRelayServe,
}

var relayStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running relay",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := readPID(loadConfig())
		if err != nil {
			return err
		}
		proc, err := os.FindProcess(pid)
		if err != nil {
			return fmt.Errorf("find process: %w", err)
		}
		if err := proc.Signal(syscall.SIGTERM); err != nil {
			return fmt.Errorf("send SIGTERM: %w", err)
		}
		fmt.Fprintf(os.Stdout, "Sent SIGTERM to relay (PID %d).\n", pid)
		return nil
	},
}

func writePIDFile(dataDir string) (string, error) {
	pidPath := filepath.Join(dataDir, relayPIDFile)
	pid := os.Getpid()
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return pidPath, nil
}

// readPID reads the relay's PID file and checks the process exists by
// sending signal 0.
func readPID(cfg *config.Config) (int, error) {
	data, err := os.ReadFile(filepath.Join(cfg.DataDir, relayPIDFile))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, fmt.Errorf("no running relay (PID file not found)")
		}
		return 0, fmt.Errorf("read PID file: %w", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID file content: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("find process %d: %w", pid, err)
	}
	if err := proc.Signal(syscall.Signal(0)); err != nil {
		return 0, fmt.Errorf("no running relay (process %d not found)", pid)
	}
	return pid, nil
}

// newResponder picks the LLM responder when an API key is configured and
// the echo responder otherwise.
func newResponder(cfg *config.Config) (agent.Responder, error) {
	llmCfg := cfg.Agent.LLM
	if llmCfg.APIKey == "" {
		slog.Warn("no LLM API key configured, agent will echo requests")
		return agent.EchoResponder{}, nil
	}
	prompt, err := agent.NewPromptBuilder(llmCfg.Model, llmCfg.MaxContextTokens, llmCfg.OutputReserve, agentDetector(cfg))
	if err != nil {
		return nil, fmt.Errorf("create prompt builder: %w", err)
	}
	provider := openai.New(&llm.Config{
		BaseURL:     llmCfg.BaseURL,
		APIKey:      llmCfg.APIKey,
		Model:       llmCfg.Model,
		MaxTokens:   llmCfg.MaxTokens,
		Temperature: llmCfg.Temperature,
	})
	return &agent.LLMResponder{Provider: provider, Prompt: prompt, AgentName: cfg.Agent.Name}, nil
}

func runRelayServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	pidPath, err := writePIDFile(cfg.DataDir)
	if err != nil {
		return err
	}
	defer os.Remove(pidPath)

	ctx, cancel := signalContext()
	defer cancel()

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer backend.Close()

	responder, err := newResponder(cfg)
	if err != nil {
		return err
	}

	a := agent.New(agent.Config{
		Store:         backend,
		Responder:     responder,
		Name:          cfg.Agent.Name,
		SenderID:      types.UserID(cfg.Chat.AgentSenderID),
		MaxConcurrent: cfg.Agent.MaxConcurrent,
	})
	// Queued replies finish after a shutdown signal; Stop ends the lanes.
	a.Start(context.WithoutCancel(ctx))
	defer a.Stop()

	httpServer := &http.Server{
		Addr:              cfg.Agent.Listen,
		Handler:           agent.NewServer(a, slog.Default()),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("agent relay started",
			"listen", cfg.Agent.Listen,
			"store", cfg.Store.Backend,
			"agent", cfg.Agent.Name,
			"max_concurrent", cfg.Agent.MaxConcurrent,
			"pid_file", pidPath,
		)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("relay server: %w", err)
		}
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("relay server shutdown", "error", err)
	}
	if !a.WaitIdle(10 * time.Second) {
		slog.Warn("relay stopped with jobs still pending")
	}
	return nil
}
