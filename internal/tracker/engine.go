package tracker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"tracker/internal/models"
)

// Event is a notification about a committed change.
type Event struct {
	ID        string         `json:"event_id"`
	Type      string         `json:"event"`
	ProjectID string         `json:"project_id"`
	TaskID    string         `json:"task_id,omitempty"`
	Action    string         `json:"action"`
	ActorID   string         `json:"actor_id"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Event types.
const (
	EventProjectUpdate = "project_update"
	EventTaskUpdate    = "task_update"
	EventTaskAssigned  = "task_assigned"
)

// Publisher delivers events to the given users. Delivery is best effort.
type Publisher interface {
	Publish(userIDs []string, ev Event)
}

type nopPublisher struct{}

func (nopPublisher) Publish([]string, Event) {}

// Engine implements project and task lifecycles on top of a Repository.
// It keeps no state between calls.
type Engine struct {
	repo     Repository
	logger   *slog.Logger
	events   Publisher
	recorder *Recorder
	newID    func() string
	now      func() time.Time
}

// Option customizes an Engine.
type Option func(*Engine)

func WithPublisher(p Publisher) Option {
	return func(e *Engine) {
		if p != nil {
			e.events = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
		e.recorder.now = now
	}
}

// New constructs an engine backed by repo.
func New(repo Repository, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		repo:     repo,
		logger:   logger,
		events:   nopPublisher{},
		recorder: NewRecorder(),
		newID:    uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SyncUser mirrors an authenticated identity into the store and returns the
// stored row. A blocked user is refused.
func (e *Engine) SyncUser(ctx context.Context, id, name, email string) (models.User, error) {
	u, err := e.repo.GetUser(ctx, id)
	switch {
	case err == nil:
		if u.Status == models.UserBlocked {
			return models.User{}, Forbidden()
		}
		if (name == "" || name == u.Name) && (email == "" || email == u.Email) {
			return u, nil
		}
	case errors.Is(err, ErrNoRecord):
		u = models.User{ID: id, Status: models.UserActive, CreatedAt: e.timestamp()}
	default:
		return models.User{}, Internal(err)
	}
	stored := u.Email
	if name != "" {
		u.Name = name
	}
	if email != "" {
		u.Email = email
	}
	u.UpdatedAt = e.timestamp()
	err = e.repo.WithinTx(ctx, func(tx Tx) error {
		return tx.UpsertUser(ctx, u)
	})
	if errors.Is(err, ErrDuplicate) {
		// Another identity owns the email; keep what was stored before.
		e.logger.Warn("identity email already in use, not mirrored",
			slog.String("user_id", id), slog.String("email", email))
		u.Email = stored
		err = e.repo.WithinTx(ctx, func(tx Tx) error {
			return tx.UpsertUser(ctx, u)
		})
	}
	if err != nil {
		return models.User{}, Internal(err)
	}
	return u, nil
}

// audience lists everyone who can see a project: the PM and all members.
func (e *Engine) audience(ctx context.Context, r Reader, project models.Project) []string {
	ids := []string{project.PMID}
	members, err := r.ListMembers(ctx, project.ID)
	if err != nil {
		e.logger.Warn("unable to resolve event audience",
			slog.String("project_id", project.ID), slog.String("error", err.Error()))
		return ids
	}
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	return ids
}

func (e *Engine) publish(ctx context.Context, project models.Project, ev Event) {
	ev.ID = e.newID()
	ev.ProjectID = project.ID
	e.events.Publish(e.audience(ctx, e.repo, project), ev)
}

func (e *Engine) timestamp() time.Time {
	return e.now().UTC().Truncate(time.Second)
}
