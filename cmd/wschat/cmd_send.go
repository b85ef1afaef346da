package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/types"
)

const syncTimeout = 15 * time.Second

var (
	sendWorkspace string
	sendWait      time.Duration
)

func init() {
	sendCmd.Flags().StringVarP(&sendWorkspace, "workspace", "w", "", "workspace id (defaults to the last one used)")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 0, "wait up to this long for the agent's reply to a command")
	rootCmd.AddCommand(sendCmd)
}

var sendCmd = &cobra.Command{
	Use:   "send <message>",
	Short: "Send one message to a workspace",
	Long: `Send one message to a workspace without opening the chat view.

Messages starting with \act, \ask, or \run are commands for the agent; with
--wait the reply is printed once it arrives.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	ctx, cancel := signalContext()
	defer cancel()

	p, err := openPrefs(cfg)
	if err != nil {
		return err
	}
	workspace, err := resolveWorkspace(p, []string{sendWorkspace})
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

	changes := make(chan struct{}, 1)
	ctrl := chat.NewController(chat.Config{
		Source:   backend,
		Sink:     backend,
		Relay:    chatRelay(cfg, newRelayClient(cfg)),
		Identity: who,
		Detector: agentDetector(cfg),
		OnChange: func(chat.State) {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
	})
	defer func() {
		ctrl.Close()
		ctrl.Wait()
	}()

	if err := ctrl.Attach(ctx, workspace); err != nil {
		return err
	}
	st, err := awaitState(ctx, ctrl, changes, syncTimeout, func(st chat.State) bool {
		return st.Synced || st.LastError != nil
	})
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	if st.LastError != nil {
		return st.LastError
	}
	seen := st.LastSeenAgentCount

	ctrl.SetDraft(strings.Join(args, " "))
	s, err := ctrl.Submit(ctx)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("nothing to send")
	}
	fmt.Fprintf(os.Stdout, "Sent %s to %s\n", s.ID, workspace)

	if sendWait <= 0 || !s.Command.IsCommand() {
		return nil
	}
	st, err = awaitState(ctx, ctrl, changes, sendWait, func(st chat.State) bool {
		return !st.WaitingForAgent
	})
	if err != nil {
		return fmt.Errorf("wait for agent: %w", err)
	}
	if st.LastError != nil {
		return st.LastError
	}
	reply := newestAgentMessage(ctrl.Detector(), st.Messages)
	if st.LastSeenAgentCount <= seen || reply == nil {
		return fmt.Errorf("agent relay failed; see log for details")
	}
	fmt.Fprintf(os.Stdout, "%s: %s\n", reply.SenderName, reply.Text)
	return nil
}

// awaitState blocks until done reports true for the controller's state.
func awaitState(ctx context.Context, ctrl *chat.Controller, changes <-chan struct{}, timeout time.Duration, done func(chat.State) bool) (chat.State, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	st := ctrl.State()
	for !done(st) {
		select {
		case <-changes:
			st = ctrl.State()
		case <-timer.C:
			return st, fmt.Errorf("timed out after %s", timeout)
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
	return st, nil
}

// newestAgentMessage returns the last agent-authored message in msgs.
func newestAgentMessage(detector chat.AgentDetector, msgs []*types.Message) *types.Message {
	for i := len(msgs) - 1; i >= 0; i-- {
		if detector.IsAgent(msgs[i]) {
			return msgs[i]
		}
	}
	return nil
}
