package local

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/user/wschat/internal/types"
)

func (s *Store) loadIndex() ([]*types.Workspace, error) {
	var index []*types.Workspace
	if _, err := readJSON(s.indexPath(), &index); err != nil {
		return nil, err
	}
	return index, nil
}

func (s *Store) loadParticipants(id types.WorkspaceID) ([]*types.Participant, error) {
	var participants []*types.Participant
	if _, err := readJSON(s.participantsPath(id), &participants); err != nil {
		return nil, err
	}
	return participants, nil
}

// profileFields reads a raw profile document. Caller must hold dirMu.
func (s *Store) profileFields(id types.UserID) (map[string]any, error) {
	var fields map[string]any
	found, err := readJSON(s.profilePath(id), &fields)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("user profile %s: %w", id, types.ErrNotFound)
	}
	return fields, nil
}

// CreateWorkspace creates a workspace with host as its only participant.
func (s *Store) CreateWorkspace(_ context.Context, host types.UserID, name string) (types.WorkspaceID, error) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	fields, err := s.profileFields(host)
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	hostName := types.DisplayNameFrom(fields)

	index, err := s.loadIndex()
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	ws := &types.Workspace{
		ID:               types.NewWorkspaceID(),
		Name:             name,
		HostID:           host,
		HostName:         hostName,
		ParticipantCount: 1,
		CreatedAt:        now,
	}
	if err := os.MkdirAll(s.workspaceDir(ws.ID), 0o755); err != nil {
		return "", fmt.Errorf("create workspace dir: %w", err)
	}
	participants := []*types.Participant{{
		UserID:      host,
		DisplayName: hostName,
		Role:        types.RoleHost,
		JoinedAt:    now,
		WorkspaceID: ws.ID,
	}}
	if err := writeJSON(s.participantsPath(ws.ID), participants); err != nil {
		return "", err
	}
	if err := writeJSON(s.indexPath(), append(index, ws)); err != nil {
		return "", err
	}

	s.logger.Info("workspace created", "workspace_id", ws.ID, "host", host)
	return ws.ID, nil
}

// JoinWorkspace adds user as a member. It reports false when the workspace
// does not exist and true without changes when user already belongs to it.
func (s *Store) JoinWorkspace(_ context.Context, user types.UserID, workspace types.WorkspaceID) (bool, error) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return false, err
	}
	var ws *types.Workspace
	for _, w := range index {
		if w.ID == workspace {
			ws = w
			break
		}
	}
	if ws == nil {
		return false, nil
	}

	participants, err := s.loadParticipants(workspace)
	if err != nil {
		return false, err
	}
	for _, p := range participants {
		if p.UserID == user {
			return true, nil
		}
	}

	fields, err := s.profileFields(user)
	if err != nil {
		return false, fmt.Errorf("join workspace: %w", err)
	}
	participants = append(participants, &types.Participant{
		UserID:      user,
		DisplayName: types.DisplayNameFrom(fields),
		Role:        types.RoleMember,
		JoinedAt:    time.Now().UTC(),
		WorkspaceID: workspace,
	})
	if err := writeJSON(s.participantsPath(workspace), participants); err != nil {
		return false, err
	}

	ws.ParticipantCount++
	if err := writeJSON(s.indexPath(), index); err != nil {
		return false, err
	}
	return true, nil
}

// ListWorkspaces returns the workspaces user participates in, newest first.
func (s *Store) ListWorkspaces(_ context.Context, user types.UserID) ([]*types.Workspace, error) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}

	var out []*types.Workspace
	for _, ws := range index {
		participants, err := s.loadParticipants(ws.ID)
		if err != nil {
			return nil, err
		}
		for _, p := range participants {
			if p.UserID == user {
				out = append(out, ws)
				break
			}
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) GetWorkspace(_ context.Context, id types.WorkspaceID) (*types.Workspace, error) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	index, err := s.loadIndex()
	if err != nil {
		return nil, err
	}
	for _, ws := range index {
		if ws.ID == id {
			return ws, nil
		}
	}
	return nil, fmt.Errorf("workspace %s: %w", id, types.ErrNotFound)
}

func (s *Store) GetParticipant(_ context.Context, workspace types.WorkspaceID, user types.UserID) (*types.Participant, error) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	participants, err := s.loadParticipants(workspace)
	if err != nil {
		return nil, err
	}
	for _, p := range participants {
		if p.UserID == user {
			return p, nil
		}
	}
	return nil, fmt.Errorf("participant %s in %s: %w", user, workspace, types.ErrNotFound)
}

func (s *Store) GetProfile(_ context.Context, user types.UserID) (*types.UserProfile, error) {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	fields, err := s.profileFields(user)
	if err != nil {
		return nil, err
	}
	return types.ProfileFromFields(user, fields), nil
}

// CreateProfile writes a profile document, replacing any existing one.
func (s *Store) CreateProfile(_ context.Context, profile *types.UserProfile) error {
	s.dirMu.Lock()
	defer s.dirMu.Unlock()

	return writeJSON(s.profilePath(profile.ID), map[string]any{
		"auth_id":      string(profile.ID),
		"display_name": profile.DisplayName,
		"email":        profile.Email,
		"services":     []string{},
	})
}
