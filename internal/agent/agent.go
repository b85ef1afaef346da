// Package agent is a development stand-in for the external agent relay. It
// accepts relayed commands over HTTP and answers each one by appending an
// agent-tagged message to the workspace.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/user/wschat/internal/chat"
	"github.com/user/wschat/internal/types"
)

// FailureReply is appended when a reply could not be produced, so waiting
// clients still see an agent message.
const FailureReply = "Sorry, something went wrong processing your request."

type Config struct {
	Store         types.MessageStore
	Responder     Responder
	Name          string
	SenderID      types.UserID
	MaxConcurrent int
	Retry         *RetryPolicy
	Logger        *slog.Logger
}

// Agent answers relay jobs in per-workspace FIFO order.
type Agent struct {
	store     types.MessageStore
	responder Responder
	name      string
	senderID  types.UserID
	retry     *RetryPolicy
	logger    *slog.Logger
	queue     *Queue
}

func New(cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	a := &Agent{
		store:     cfg.Store,
		responder: cfg.Responder,
		name:      cfg.Name,
		senderID:  cfg.SenderID,
		retry:     cfg.Retry,
		logger:    logger,
		queue:     NewQueue(int64(cfg.MaxConcurrent), logger),
	}
	if a.responder == nil {
		a.responder = EchoResponder{}
	}
	if a.name == "" {
		a.name = "Agent"
	}
	if a.senderID == "" {
		a.senderID = "agent"
	}
	if a.retry == nil {
		a.retry = DefaultRetryPolicy()
	}
	a.queue.SetProcessor(a.process)
	a.queue.SetFailureHandler(a.fail)
	return a
}

func (a *Agent) Start(ctx context.Context) {
	a.queue.Start(ctx)
}

// Stop waits for jobs already being processed; queued jobs are dropped.
func (a *Agent) Stop() {
	a.queue.Stop()
}

// WaitIdle blocks until every accepted job has been answered or timeout passes.
func (a *Agent) WaitIdle(timeout time.Duration) bool {
	return a.queue.WaitIdle(timeout)
}

// Submit queues a relay request and returns its id.
func (a *Agent) Submit(req types.RelayRequest) (types.RelayID, error) {
	if req.WorkspaceID == "" {
		return "", types.ErrNoWorkspace
	}
	if strings.TrimSpace(req.Message) == "" {
		return "", fmt.Errorf("empty message")
	}
	job := &Job{
		ID:         types.NewRelayID(),
		Workspace:  req.WorkspaceID,
		Username:   req.Username,
		Message:    req.Message,
		Command:    chat.Classify(req.Message),
		ReceivedAt: time.Now(),
	}
	if err := a.queue.Enqueue(job); err != nil {
		return "", err
	}
	a.logger.Info("relay accepted", "relay_id", job.ID, "workspace_id", job.Workspace, "command", job.Command.String())
	return job.ID, nil
}

// Stats reports queue depth for the service info endpoint.
func (a *Agent) Stats() (active int64, pending int) {
	return a.queue.Active(), a.queue.Pending()
}

func (a *Agent) process(ctx context.Context, job *Job) error {
	history, err := a.history(ctx, job.Workspace)
	if err != nil {
		// A reply without context is better than none.
		a.logger.Warn("read history failed", "workspace_id", job.Workspace, "error", err)
	}

	reply, err := a.responder.Respond(ctx, job, history)
	if err != nil {
		return fmt.Errorf("respond: %w", err)
	}
	return a.reply(ctx, job, reply)
}

func (a *Agent) fail(ctx context.Context, job *Job, _ error) {
	if err := a.reply(ctx, job, FailureReply); err != nil {
		a.logger.Error("failure reply not delivered", "relay_id", job.ID, "workspace_id", job.Workspace, "error", err)
	}
}

func (a *Agent) reply(ctx context.Context, job *Job, text string) error {
	msg := &types.Message{
		SenderID:   a.senderID,
		SenderName: a.name,
		Text:       text,
		Type:       types.MessageTypeAgent,
	}
	var id types.MessageID
	err := a.retry.Execute(ctx, func() error {
		var err error
		id, err = a.store.Append(ctx, job.Workspace, msg)
		return err
	})
	if err != nil {
		return fmt.Errorf("append reply: %w", err)
	}
	a.logger.Info("agent replied", "relay_id", job.ID, "workspace_id", job.Workspace, "message_id", id,
		"latency", time.Since(job.ReceivedAt).Round(time.Millisecond))
	return nil
}

// history reads the workspace's current messages from one live snapshot.
func (a *Agent) history(ctx context.Context, workspace types.WorkspaceID) ([]*types.Message, error) {
	snaps := make(chan []*types.Message, 1)
	errs := make(chan error, 1)
	cancel, err := a.store.Subscribe(ctx, types.MessagesByTimestamp(workspace),
		func(msgs []*types.Message) {
			select {
			case snaps <- msgs:
			default:
			}
		},
		func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	)
	if err != nil {
		return nil, err
	}
	defer cancel()

	select {
	case msgs := <-snaps:
		return msgs, nil
	case err := <-errs:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Second):
		return nil, fmt.Errorf("read history: timed out")
	}
}
