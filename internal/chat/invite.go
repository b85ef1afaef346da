package chat

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/user/wschat/internal/types"
)

// CopiedFlagDuration is how long the "copied" acknowledgment stays up.
const CopiedFlagDuration = 2 * time.Second

// PlaceholderName is shown when the participant record cannot be read.
const PlaceholderName = "User"

// InviteCode renders a workspace id as a shareable code and tracks the
// transient "copied" acknowledgment.
type InviteCode struct {
	code string
	now  func() time.Time

	mu          sync.Mutex
	copiedUntil time.Time
}

func NewInviteCode(id types.WorkspaceID) *InviteCode {
	return &InviteCode{code: string(id), now: time.Now}
}

func (i *InviteCode) String() string {
	return i.code
}

// Copy hands the code to write (usually the system clipboard) and raises the
// copied flag for CopiedFlagDuration.
func (i *InviteCode) Copy(write func(string) error) error {
	if i.code == "" {
		return types.ErrNoWorkspace
	}
	if err := write(i.code); err != nil {
		return err
	}
	i.mu.Lock()
	i.copiedUntil = i.now().Add(CopiedFlagDuration)
	i.mu.Unlock()
	return nil
}

// Copied reports whether the acknowledgment flag is still raised.
func (i *InviteCode) Copied() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.now().Before(i.copiedUntil)
}

// Membership is the current user's name and role inside a workspace.
type Membership struct {
	DisplayName string
	Role        string
}

func (m Membership) IsHost() bool {
	return m.Role == types.RoleHost
}

// ResolveMembership reads the participant record once. Any failure degrades
// to the placeholder name with no role; it never blocks sending.
func ResolveMembership(ctx context.Context, dir types.Directory, workspace types.WorkspaceID, who types.Identity, logger *slog.Logger) Membership {
	if logger == nil {
		logger = slog.Default()
	}
	if dir == nil || workspace == "" {
		return Membership{DisplayName: PlaceholderName}
	}
	p, err := dir.GetParticipant(ctx, workspace, who.ID)
	if err != nil {
		if !errors.Is(err, types.ErrNotFound) {
			logger.Warn("resolve membership failed", "workspace_id", workspace, "user_id", who.ID, "error", err)
		}
		return Membership{DisplayName: PlaceholderName}
	}
	name := p.DisplayName
	if name == "" {
		name = who.DisplayName
	}
	if name == "" {
		name = PlaceholderName
	}
	return Membership{DisplayName: name, Role: p.Role}
}
