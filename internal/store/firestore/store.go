// Package firestore is the hosted workspace store. Messages live in
// workspaces/{id}/messages and are followed with snapshot listeners.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/user/wschat/internal/types"
)

var _ types.Backend = (*Store)(nil)

// profileCollections are searched in order for user profiles.
var profileCollections = []string{"Users", "users"}

// listConcurrency bounds participant lookups while listing workspaces.
const listConcurrency = 8

type Store struct {
	client *firestore.Client
	logger *slog.Logger
}

// NewStore creates a Firestore store. FIRESTORE_EMULATOR_HOST is honored by
// the client library.
func NewStore(ctx context.Context, projectID string, logger *slog.Logger) (*Store, error) {
	if projectID == "" {
		return nil, fmt.Errorf("projectID is required for Firestore store")
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &Store{client: client, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) workspacesCol() *firestore.CollectionRef {
	return s.client.Collection("workspaces")
}

func (s *Store) workspaceDoc(id types.WorkspaceID) *firestore.DocumentRef {
	return s.workspacesCol().Doc(string(id))
}

func (s *Store) participantDoc(ws types.WorkspaceID, user types.UserID) *firestore.DocumentRef {
	return s.workspaceDoc(ws).Collection("participants").Doc(string(user))
}

func (s *Store) messagesCol(ws types.WorkspaceID) *firestore.CollectionRef {
	return s.workspaceDoc(ws).Collection("messages")
}

type messageDoc struct {
	SenderID   string    `firestore:"senderId"`
	SenderName string    `firestore:"senderName"`
	Text       string    `firestore:"text"`
	Type       string    `firestore:"type"`
	Timestamp  time.Time `firestore:"timestamp"`
}

type workspaceDoc struct {
	ID               string    `firestore:"id"`
	Name             string    `firestore:"name"`
	HostID           string    `firestore:"hostId"`
	HostName         string    `firestore:"hostName"`
	ParticipantCount int       `firestore:"participantCount"`
	CreatedAt        time.Time `firestore:"createdAt"`
}

type participantDoc struct {
	UserID      string    `firestore:"userId"`
	DisplayName string    `firestore:"displayName"`
	Role        string    `firestore:"role"`
	JoinedAt    time.Time `firestore:"joinedAt"`
	WorkspaceID string    `firestore:"workspaceId"`
}

func toMessage(id string, doc messageDoc) *types.Message {
	t := doc.Type
	if t == "" {
		t = types.MessageTypeUser
	}
	return &types.Message{
		ID:         types.MessageID(id),
		SenderID:   types.UserID(doc.SenderID),
		SenderName: doc.SenderName,
		Text:       doc.Text,
		Type:       t,
		Timestamp:  doc.Timestamp,
	}
}

func toWorkspace(id string, doc workspaceDoc) *types.Workspace {
	return &types.Workspace{
		ID:               types.WorkspaceID(id),
		Name:             doc.Name,
		HostID:           types.UserID(doc.HostID),
		HostName:         doc.HostName,
		ParticipantCount: doc.ParticipantCount,
		CreatedAt:        doc.CreatedAt,
	}
}

func isNotFound(err error) bool {
	return status.Code(err) == codes.NotFound
}

// ─────────────────────────────────────────
// Messages
// ─────────────────────────────────────────

// Append adds a message document with a server-assigned timestamp.
func (s *Store) Append(ctx context.Context, workspace types.WorkspaceID, msg *types.Message) (types.MessageID, error) {
	if workspace == "" {
		return "", fmt.Errorf("%w: %w", types.ErrWrite, types.ErrNoWorkspace)
	}
	t := msg.Type
	if t == "" {
		t = types.MessageTypeUser
	}
	ref, _, err := s.messagesCol(workspace).Add(ctx, map[string]any{
		"senderId":   string(msg.SenderID),
		"senderName": msg.SenderName,
		"text":       msg.Text,
		"type":       t,
		"timestamp":  firestore.ServerTimestamp,
	})
	if err != nil {
		return "", fmt.Errorf("%w: firestore Append: %w", types.ErrWrite, err)
	}
	return types.MessageID(ref.ID), nil
}

// Subscribe follows the ordered message collection until cancel is called or
// ctx ends. cancel must not be called from a callback.
func (s *Store) Subscribe(ctx context.Context, q types.Query, onSnapshot func([]*types.Message), onError func(error)) (func(), error) {
	if q.Workspace == "" {
		return nil, types.ErrNoWorkspace
	}
	orderBy := q.OrderBy
	if orderBy == "" {
		orderBy = "timestamp"
	}
	dir := firestore.Asc
	if q.Direction == types.Desc {
		dir = firestore.Desc
	}

	subCtx, stop := context.WithCancel(ctx)
	it := s.messagesCol(q.Workspace).OrderBy(orderBy, dir).Snapshots(subCtx)
	stopped := make(chan struct{})

	go func() {
		defer close(stopped)
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if subCtx.Err() != nil || errors.Is(err, iterator.Done) || status.Code(err) == codes.Canceled {
					return
				}
				s.logger.Warn("message listener failed", "workspace_id", q.Workspace, "error", err)
				onError(fmt.Errorf("%w: %w", types.ErrSubscribe, err))
				return
			}
			msgs, err := decodeMessages(snap.Documents)
			if err != nil {
				if subCtx.Err() != nil {
					return
				}
				onError(fmt.Errorf("%w: %w", types.ErrSubscribe, err))
				return
			}
			onSnapshot(msgs)
		}
	}()

	var once sync.Once
	return func() {
		once.Do(stop)
		<-stopped
	}, nil
}

func decodeMessages(docs *firestore.DocumentIterator) ([]*types.Message, error) {
	defer docs.Stop()
	msgs := []*types.Message{}
	for {
		snap, err := docs.Next()
		if errors.Is(err, iterator.Done) {
			return msgs, nil
		}
		if err != nil {
			return nil, fmt.Errorf("iterate messages: %w", err)
		}
		var doc messageDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("decode message %s: %w", snap.Ref.ID, err)
		}
		msgs = append(msgs, toMessage(snap.Ref.ID, doc))
	}
}

// ─────────────────────────────────────────
// Directory
// ─────────────────────────────────────────

// profileFields looks the user up in each profile collection in turn.
func (s *Store) profileFields(ctx context.Context, user types.UserID) (map[string]any, error) {
	for _, col := range profileCollections {
		snap, err := s.client.Collection(col).Doc(string(user)).Get(ctx)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("firestore GetProfile: %w", err)
		}
		return snap.Data(), nil
	}
	return nil, fmt.Errorf("user profile %s: %w", user, types.ErrNotFound)
}

func (s *Store) GetProfile(ctx context.Context, user types.UserID) (*types.UserProfile, error) {
	fields, err := s.profileFields(ctx, user)
	if err != nil {
		return nil, err
	}
	return types.ProfileFromFields(user, fields), nil
}

func (s *Store) CreateProfile(ctx context.Context, profile *types.UserProfile) error {
	_, err := s.client.Collection(profileCollections[0]).Doc(string(profile.ID)).Set(ctx, map[string]any{
		"auth_id":      string(profile.ID),
		"display_name": profile.DisplayName,
		"email":        profile.Email,
		"services":     []string{},
	})
	if err != nil {
		return fmt.Errorf("firestore CreateProfile: %w", err)
	}
	return nil
}

// CreateWorkspace creates the workspace and its host participant together.
func (s *Store) CreateWorkspace(ctx context.Context, host types.UserID, name string) (types.WorkspaceID, error) {
	fields, err := s.profileFields(ctx, host)
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	hostName := types.DisplayNameFrom(fields)

	ref := s.workspacesCol().NewDoc()
	id := types.WorkspaceID(ref.ID)
	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if err := tx.Create(ref, map[string]any{
			"id":               ref.ID,
			"name":             name,
			"hostId":           string(host),
			"hostName":         hostName,
			"participantCount": 1,
			"createdAt":        firestore.ServerTimestamp,
		}); err != nil {
			return err
		}
		return tx.Create(s.participantDoc(id, host), map[string]any{
			"userId":      string(host),
			"displayName": hostName,
			"role":        types.RoleHost,
			"joinedAt":    firestore.ServerTimestamp,
			"workspaceId": ref.ID,
		})
	})
	if err != nil {
		return "", fmt.Errorf("firestore CreateWorkspace: %w", err)
	}

	s.logger.Info("workspace created", "workspace_id", id, "host", host)
	return id, nil
}

// JoinWorkspace adds user as a member. It reports false when the workspace
// does not exist and true without changes when user already belongs to it.
func (s *Store) JoinWorkspace(ctx context.Context, user types.UserID, workspace types.WorkspaceID) (bool, error) {
	if workspace == "" {
		return false, nil
	}
	fields, profileErr := s.profileFields(ctx, user)

	joined := false
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		joined = false
		wsRef := s.workspaceDoc(workspace)
		if _, err := tx.Get(wsRef); err != nil {
			if isNotFound(err) {
				return nil
			}
			return err
		}

		pRef := s.participantDoc(workspace, user)
		if _, err := tx.Get(pRef); err == nil {
			joined = true
			return nil
		} else if !isNotFound(err) {
			return err
		}

		if profileErr != nil {
			return profileErr
		}
		if err := tx.Create(pRef, map[string]any{
			"userId":      string(user),
			"displayName": types.DisplayNameFrom(fields),
			"role":        types.RoleMember,
			"joinedAt":    firestore.ServerTimestamp,
			"workspaceId": string(workspace),
		}); err != nil {
			return err
		}
		joined = true
		return tx.Update(wsRef, []firestore.Update{
			{Path: "participantCount", Value: firestore.Increment(1)},
		})
	})
	if err != nil {
		return false, fmt.Errorf("firestore JoinWorkspace: %w", err)
	}
	return joined, nil
}

// ListWorkspaces returns the workspaces user participates in, newest first.
func (s *Store) ListWorkspaces(ctx context.Context, user types.UserID) ([]*types.Workspace, error) {
	iter := s.workspacesCol().Documents(ctx)
	defer iter.Stop()

	var all []*types.Workspace
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore ListWorkspaces: %w", err)
		}
		var doc workspaceDoc
		if err := snap.DataTo(&doc); err != nil {
			return nil, fmt.Errorf("firestore ListWorkspaces decode: %w", err)
		}
		all = append(all, toWorkspace(snap.Ref.ID, doc))
	}

	member := make([]bool, len(all))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(listConcurrency)
	for i, ws := range all {
		g.Go(func() error {
			_, err := s.participantDoc(ws.ID, user).Get(gctx)
			if err == nil {
				member[i] = true
				return nil
			}
			if isNotFound(err) {
				return nil
			}
			return fmt.Errorf("check participant in %s: %w", ws.ID, err)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("firestore ListWorkspaces: %w", err)
	}

	var out []*types.Workspace
	for i, ws := range all {
		if member[i] {
			out = append(out, ws)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(list []*types.Workspace) {
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].CreatedAt.After(list[j].CreatedAt)
	})
}

func (s *Store) GetWorkspace(ctx context.Context, id types.WorkspaceID) (*types.Workspace, error) {
	snap, err := s.workspaceDoc(id).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("workspace %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("firestore GetWorkspace: %w", err)
	}
	var doc workspaceDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetWorkspace decode: %w", err)
	}
	return toWorkspace(snap.Ref.ID, doc), nil
}

func (s *Store) GetParticipant(ctx context.Context, workspace types.WorkspaceID, user types.UserID) (*types.Participant, error) {
	snap, err := s.participantDoc(workspace, user).Get(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("participant %s in %s: %w", user, workspace, types.ErrNotFound)
		}
		return nil, fmt.Errorf("firestore GetParticipant: %w", err)
	}
	var doc participantDoc
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("firestore GetParticipant decode: %w", err)
	}
	return &types.Participant{
		UserID:      types.UserID(doc.UserID),
		DisplayName: doc.DisplayName,
		Role:        doc.Role,
		JoinedAt:    doc.JoinedAt,
		WorkspaceID: types.WorkspaceID(doc.WorkspaceID),
	}, nil
}
