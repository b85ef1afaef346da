package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/config"
	"github.com/user/wschat/internal/prefs"
	"github.com/user/wschat/internal/types"
)

var invitePrintOnly bool

func init() {
	rootCmd.AddCommand(workspaceCmd)
	workspaceCmd.AddCommand(workspaceCreateCmd, workspaceJoinCmd, workspaceListCmd, workspaceInviteCmd)
	workspaceInviteCmd.Flags().BoolVar(&invitePrintOnly, "print", false, "print the invite code without copying it")
}

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Create, join, and list workspaces",
}

// session bundles what every workspace subcommand needs.
type session struct {
	cfg     *config.Config
	prefs   *prefs.Store
	backend types.Backend
	who     types.Identity
}

func openSession(ctx context.Context) (*session, error) {
	cfg := loadConfig()
	setupLogging(cfg)

	p, err := openPrefs(cfg)
	if err != nil {
		return nil, err
	}
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	who, err := currentIdentity(ctx, p, backend)
	if err != nil {
		backend.Close()
		return nil, err
	}
	if p.Identity() == nil {
		fmt.Fprintf(os.Stderr, "Not signed in; using demo identity %s.\n", who.ID)
	}
	return &session{cfg: cfg, prefs: p, backend: backend, who: who}, nil
}

func (s *session) remember(id types.WorkspaceID) {
	if err := s.prefs.Set(keyLastWorkspace, string(id)); err != nil {
		slog.Warn("remember workspace failed", "workspace_id", id, "error", err)
	}
}

var workspaceCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a workspace and become its host",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.backend.Close()

		id, err := s.backend.CreateWorkspace(ctx, s.who.ID, args[0])
		if err != nil {
			return fmt.Errorf("create workspace: %w", err)
		}
		s.remember(id)

		// The operational backend learns about the host; failure is not fatal.
		notifyCtx, cancelNotify := context.WithTimeout(ctx, 10*time.Second)
		defer cancelNotify()
		if err := newRelayClient(s.cfg).NotifyJoin(notifyCtx, s.who.ID, id); err != nil {
			slog.Warn("join notification failed", "workspace_id", id, "error", err)
		}

		fmt.Fprintf(os.Stdout, "Created workspace %q\nInvite code: %s\n", args[0], id)
		return nil
	},
}

var workspaceJoinCmd = &cobra.Command{
	Use:   "join <invite-code>",
	Short: "Join a workspace by its invite code",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.backend.Close()

		id := types.WorkspaceID(args[0])
		ok, err := s.backend.JoinWorkspace(ctx, s.who.ID, id)
		if err != nil {
			return fmt.Errorf("join workspace: %w", err)
		}
		if !ok {
			return fmt.Errorf("workspace %s not found", id)
		}
		s.remember(id)
		fmt.Fprintf(os.Stdout, "Joined workspace %s\n", id)
		return nil
	},
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your workspaces, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		s, err := openSession(ctx)
		if err != nil {
			return err
		}
		defer s.backend.Close()

		list, err := s.backend.ListWorkspaces(ctx, s.who.ID)
		if err != nil {
			return fmt.Errorf("list workspaces: %w", err)
		}
		if len(list) == 0 {
			fmt.Println("No workspaces found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tHOST\tMEMBERS\tCREATED")
		for _, ws := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
				ws.ID,
				ws.Name,
				ws.HostName,
				ws.ParticipantCount,
				ws.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			)
		}
		return w.Flush()
	},
}

var workspaceInviteCmd = &cobra.Command{
	Use:   "invite [workspace-id]",
	Short: "Copy a workspace's invite code to the clipboard",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		p, err := openPrefs(cfg)
		if err != nil {
			return err
		}
		id, err := resolveWorkspace(p, args)
		if err != nil {
			return err
		}
		code := chat.NewInviteCode(id)
		if invitePrintOnly {
			fmt.Fprintln(os.Stdout, code)
			return nil
		}
		if err := code.Copy(clipboard.WriteAll); err != nil {
			fmt.Fprintf(os.Stderr, "Could not copy to clipboard: %v\n", err)
			fmt.Fprintln(os.Stdout, code)
			return nil
		}
		fmt.Fprintf(os.Stdout, "Copied invite code %s\n", code)
		return nil
	},
}
