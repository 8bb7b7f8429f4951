package tracker_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tracker/internal/models"
	"tracker/internal/storage/sqlite"
	"tracker/internal/tracker"
)

type published struct {
	to []string
	ev tracker.Event
}

type capture struct {
	mu     sync.Mutex
	events []published
}

func (c *capture) Publish(userIDs []string, ev tracker.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, published{to: userIDs, ev: ev})
}

func (c *capture) ofType(typ string) []published {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []published
	for _, p := range c.events {
		if p.ev.Type == typ {
			out = append(out, p)
		}
	}
	return out
}

type fixture struct {
	ctx    context.Context
	engine *tracker.Engine
	store  *sqlite.Store
	events *capture
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "tracker.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	events := &capture{}
	return &fixture{
		ctx:    context.Background(),
		engine: tracker.New(store, logger, tracker.WithPublisher(events)),
		store:  store,
		events: events,
	}
}

func (f *fixture) user(t *testing.T, name string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := f.engine.SyncUser(f.ctx, id, name, name+"@example.com")
	require.NoError(t, err)
	return id
}

func (f *fixture) project(t *testing.T, pm string, members ...string) string {
	t.Helper()
	p, err := f.engine.CreateProject(f.ctx, pm, tracker.CreateProjectInput{Name: "Alpha", MemberUserIDs: members})
	require.NoError(t, err)
	return p.ID
}

func (f *fixture) task(t *testing.T, actor, projectID, title string) models.TaskDetail {
	t.Helper()
	task, err := f.engine.CreateTask(f.ctx, actor, projectID, tracker.CreateTaskInput{Title: title})
	require.NoError(t, err)
	return task
}

func requireKind(t *testing.T, want tracker.Kind, err error) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, want.String(), tracker.KindOf(err).String(), err.Error())
}

func ptr[T any](v T) *T { return &v }

func TestGuidedWorkflow(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	lead := f.user(t, "lead")

	p, err := f.engine.CreateProject(f.ctx, alice, tracker.CreateProjectInput{Name: "Alpha"})
	require.NoError(t, err)
	assert.Equal(t, models.ProjectActive, p.Status)
	require.NotNil(t, p.PM)
	assert.Equal(t, alice, p.PM.ID)

	_, err = f.engine.AddMember(f.ctx, alice, p.ID, tracker.AddMemberInput{UserID: bob})
	require.NoError(t, err)
	_, err = f.engine.AddMember(f.ctx, alice, p.ID, tracker.AddMemberInput{UserID: lead, Role: ptr(models.RoleLeader)})
	require.NoError(t, err)

	task, err := f.engine.CreateTask(f.ctx, bob, p.ID, tracker.CreateTaskInput{Title: "Fix bug", Type: ptr(models.TypeBug)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusTodo, task.Status)
	assert.Equal(t, models.TypeBug, task.Type)
	assert.Equal(t, bob, task.Reporter)

	move := func(actor string, to models.TaskStatus) error {
		_, err := f.engine.UpdateTaskStatus(f.ctx, actor, p.ID, task.ID, tracker.UpdateStatusInput{Status: to})
		return err
	}

	requireKind(t, tracker.KindValidation, move(bob, models.StatusReview))
	require.NoError(t, move(bob, models.StatusInProgress))
	require.NoError(t, move(bob, models.StatusReview))
	require.NoError(t, move(lead, models.StatusDone))
	requireKind(t, tracker.KindValidation, move(lead, models.StatusInProgress))

	got, err := f.engine.GetTask(f.ctx, bob, p.ID, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, got.Status)

	history, err := f.engine.ListTaskHistory(f.ctx, alice, p.ID, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	want := [][2]string{{"TODO", "IN_PROGRESS"}, {"IN_PROGRESS", "REVIEW"}, {"REVIEW", "DONE"}}
	for i, h := range history {
		assert.Equal(t, tracker.FieldStatus, h.Field)
		assert.Equal(t, want[i][0], *h.OldValue)
		assert.Equal(t, want[i][1], *h.NewValue)
	}
	assert.Equal(t, lead, history[2].ChangedBy)
}

func TestUnguidedUpdateBypassesWorkflow(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	pid := f.project(t, alice)
	task := f.task(t, alice, pid, "Ship it")

	updated, err := f.engine.UpdateTask(f.ctx, alice, pid, task.ID, tracker.UpdateTaskInput{Status: ptr(models.StatusDone)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusDone, updated.Status)

	updated, err = f.engine.UpdateTask(f.ctx, alice, pid, task.ID, tracker.UpdateTaskInput{Status: ptr(models.StatusReject)})
	require.NoError(t, err)
	assert.Equal(t, models.StatusReject, updated.Status)

	// Setting the same status still leaves a trail.
	_, err = f.engine.UpdateTask(f.ctx, alice, pid, task.ID, tracker.UpdateTaskInput{Status: ptr(models.StatusReject)})
	require.NoError(t, err)

	history, err := f.engine.ListTaskHistory(f.ctx, alice, pid, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "REJECT", *history[2].OldValue)
	assert.Equal(t, "REJECT", *history[2].NewValue)
}

func TestUpdateTaskHistoryBatch(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	pid := f.project(t, alice, bob)
	task := f.task(t, alice, pid, "Write docs")

	_, err := f.engine.UpdateTask(f.ctx, alice, pid, task.ID, tracker.UpdateTaskInput{
		Title:      ptr("Write API docs"),
		Priority:   ptr(models.PriorityHigh),
		AssignedTo: ptr(bob),
		DueDate:    ptr("2024-06-30"),
		Progress:   ptr(25),
	})
	require.NoError(t, err)

	_, err = f.engine.UpdateTask(f.ctx, bob, pid, task.ID, tracker.UpdateTaskInput{Progress: ptr(60)})
	require.NoError(t, err)

	// An update that changes nothing tracked writes no batch.
	_, err = f.engine.UpdateTask(f.ctx, bob, pid, task.ID, tracker.UpdateTaskInput{Description: ptr("more words")})
	require.NoError(t, err)

	history, err := f.engine.ListTaskHistory(f.ctx, bob, pid, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 6)

	first := history[0].BatchID
	for _, h := range history[:5] {
		assert.Equal(t, first, h.BatchID)
		assert.Equal(t, alice, h.ChangedBy)
	}
	assert.NotEqual(t, first, history[5].BatchID)

	// Replaying new values over the initial state reconstructs the task.
	state := map[string]string{
		tracker.FieldTitle:    task.Title,
		tracker.FieldPriority: string(task.Priority),
		tracker.FieldProgress: "0",
	}
	for _, h := range history {
		if h.NewValue != nil {
			state[h.Field] = *h.NewValue
		}
	}
	current, err := f.engine.GetTask(f.ctx, bob, pid, task.ID)
	require.NoError(t, err)
	assert.Equal(t, current.Title, state[tracker.FieldTitle])
	assert.Equal(t, string(current.Priority), state[tracker.FieldPriority])
	assert.Equal(t, *current.AssignedTo, state[tracker.FieldAssignedTo])
	assert.Equal(t, *current.DueDate, state[tracker.FieldDueDate])
	assert.Equal(t, "60", state[tracker.FieldProgress])
	assert.Equal(t, 60, current.Progress)
	require.NotNil(t, current.Description)
	assert.Equal(t, "more words", *current.Description)
}

func TestUpdateTaskFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	outsider := f.user(t, "outsider")
	pid := f.project(t, alice)
	task := f.task(t, alice, pid, "Original")

	_, err := f.engine.UpdateTask(f.ctx, alice, pid, task.ID, tracker.UpdateTaskInput{
		Title:      ptr("Renamed"),
		AssignedTo: ptr(outsider),
	})
	requireKind(t, tracker.KindValidation, err)

	got, err := f.engine.GetTask(f.ctx, alice, pid, task.ID)
	require.NoError(t, err)
	assert.Equal(t, "Original", got.Title)
	assert.Nil(t, got.AssignedTo)

	history, err := f.engine.ListTaskHistory(f.ctx, alice, pid, task.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestConcurrentStatusUpdates(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	pid := f.project(t, alice)
	task := f.task(t, alice, pid, "Contended")

	const writers = 12
	statuses := []models.TaskStatus{models.StatusInProgress, models.StatusReview, models.StatusDone, models.StatusTodo}
	errs := make(chan error, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(status models.TaskStatus) {
			defer wg.Done()
			_, err := f.engine.UpdateTask(f.ctx, alice, pid, task.ID, tracker.UpdateTaskInput{Status: ptr(status)})
			errs <- err
		}(statuses[i%len(statuses)])
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	history, err := f.engine.ListTaskHistory(f.ctx, alice, pid, task.ID)
	require.NoError(t, err)
	require.Len(t, history, writers)

	batches := make(map[string]struct{}, writers)
	prev := string(models.StatusTodo)
	for _, h := range history {
		assert.Equal(t, "status", h.Field)
		batches[h.BatchID] = struct{}{}
		// Writers are serialized, so each row starts where the previous one ended.
		require.NotNil(t, h.OldValue)
		require.NotNil(t, h.NewValue)
		assert.Equal(t, prev, *h.OldValue)
		prev = *h.NewValue
	}
	assert.Len(t, batches, writers)

	got, err := f.engine.GetTask(f.ctx, alice, pid, task.ID)
	require.NoError(t, err)
	assert.Equal(t, prev, string(got.Status))
}

func TestClearAssignee(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	pid := f.project(t, alice, bob)

	task, err := f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{Title: "Triage", AssignedTo: ptr(bob)})
	require.NoError(t, err)
	require.NotNil(t, task.AssignedTo)

	assigned := f.events.ofType(tracker.EventTaskAssigned)
	require.Len(t, assigned, 1)
	assert.Equal(t, []string{bob}, assigned[0].to)

	updated, err := f.engine.UpdateTask(f.ctx, alice, pid, task.ID, tracker.UpdateTaskInput{AssignedTo: ptr("")})
	require.NoError(t, err)
	assert.Nil(t, updated.AssignedTo)

	history, err := f.engine.ListTaskHistory(f.ctx, alice, pid, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, tracker.FieldAssignedTo, history[0].Field)
	assert.Equal(t, bob, *history[0].OldValue)
	assert.Nil(t, history[0].NewValue)
}

func TestPMCanBeAssigned(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	pid := f.project(t, alice, bob)

	task, err := f.engine.CreateTask(f.ctx, bob, pid, tracker.CreateTaskInput{Title: "Approve budget", AssignedTo: ptr(alice)})
	require.NoError(t, err)
	assert.Equal(t, alice, *task.AssignedTo)
}

func TestMemberCannotDeleteTask(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	pid := f.project(t, alice, bob)
	task := f.task(t, bob, pid, "Mine")

	requireKind(t, tracker.KindForbidden, f.engine.DeleteTask(f.ctx, bob, pid, task.ID))

	_, err := f.engine.GetTask(f.ctx, bob, pid, task.ID)
	require.NoError(t, err)
}

func TestDeleteTaskWithSubtasks(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	pid := f.project(t, alice)
	a := f.task(t, alice, pid, "Parent")

	b, err := f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{Title: "Child", ParentTaskID: ptr(a.ID)})
	require.NoError(t, err)
	require.NotNil(t, b.Parent)
	assert.Equal(t, a.ID, b.Parent.ID)

	detail, err := f.engine.GetTask(f.ctx, alice, pid, a.ID)
	require.NoError(t, err)
	require.Len(t, detail.Subtasks, 1)

	err = f.engine.DeleteTask(f.ctx, alice, pid, a.ID)
	requireKind(t, tracker.KindValidation, err)
	assert.Contains(t, err.Error(), "subtask")

	require.NoError(t, f.engine.DeleteTask(f.ctx, alice, pid, b.ID))
	require.NoError(t, f.engine.DeleteTask(f.ctx, alice, pid, a.ID))

	_, err = f.engine.GetTask(f.ctx, alice, pid, a.ID)
	requireKind(t, tracker.KindNotFound, err)
}

func TestParentValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	pid := f.project(t, alice)
	other := f.project(t, alice)

	a := f.task(t, alice, pid, "A")
	b, err := f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{Title: "B", ParentTaskID: ptr(a.ID)})
	require.NoError(t, err)
	c, err := f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{Title: "C", ParentTaskID: ptr(b.ID)})
	require.NoError(t, err)
	foreign := f.task(t, alice, other, "Elsewhere")

	t.Run("self parent on create", func(t *testing.T) {
		id := uuid.NewString()
		_, err := f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{ID: ptr(id), Title: "Loop", ParentTaskID: ptr(id)})
		requireKind(t, tracker.KindValidation, err)
	})

	t.Run("self parent on update", func(t *testing.T) {
		_, err := f.engine.UpdateTask(f.ctx, alice, pid, a.ID, tracker.UpdateTaskInput{ParentTaskID: ptr(a.ID)})
		requireKind(t, tracker.KindValidation, err)
	})

	t.Run("descendant as parent", func(t *testing.T) {
		_, err := f.engine.UpdateTask(f.ctx, alice, pid, a.ID, tracker.UpdateTaskInput{ParentTaskID: ptr(c.ID)})
		requireKind(t, tracker.KindValidation, err)
		assert.Contains(t, err.Error(), "descendant")
	})

	t.Run("parent in another project", func(t *testing.T) {
		_, err := f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{Title: "Cross", ParentTaskID: ptr(foreign.ID)})
		requireKind(t, tracker.KindValidation, err)

		_, err = f.engine.UpdateTask(f.ctx, alice, pid, c.ID, tracker.UpdateTaskInput{ParentTaskID: ptr(foreign.ID)})
		requireKind(t, tracker.KindValidation, err)
	})

	t.Run("reparent and detach", func(t *testing.T) {
		moved, err := f.engine.UpdateTask(f.ctx, alice, pid, c.ID, tracker.UpdateTaskInput{ParentTaskID: ptr(a.ID)})
		require.NoError(t, err)
		assert.Equal(t, a.ID, *moved.ParentTaskID)

		detached, err := f.engine.UpdateTask(f.ctx, alice, pid, c.ID, tracker.UpdateTaskInput{ParentTaskID: ptr("")})
		require.NoError(t, err)
		assert.Nil(t, detached.ParentTaskID)
		assert.Nil(t, detached.Parent)
	})
}

func TestCreateTaskDuplicateID(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	pid := f.project(t, alice)
	id := uuid.NewString()

	_, err := f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{ID: ptr(id), Title: "First"})
	require.NoError(t, err)
	_, err = f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{ID: ptr(id), Title: "Second"})
	requireKind(t, tracker.KindValidation, err)

	// A collision with a task in a project the caller cannot see says nothing about it.
	bob := f.user(t, "bob")
	other := f.project(t, bob)
	_, err = f.engine.CreateTask(f.ctx, bob, other, tracker.CreateTaskInput{ID: ptr(id), Title: "Third"})
	requireKind(t, tracker.KindValidation, err)
	var terr *tracker.Error
	require.ErrorAs(t, err, &terr)
	require.Len(t, terr.Fields, 1)
	assert.Equal(t, "id", terr.Fields[0].Field)
	assert.Equal(t, "id is not available", terr.Fields[0].Message)
}

func TestTaskScopedToProject(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	pid := f.project(t, alice)
	other := f.project(t, alice)
	task := f.task(t, alice, pid, "Here")

	_, err := f.engine.GetTask(f.ctx, alice, other, task.ID)
	requireKind(t, tracker.KindNotFound, err)
}

func TestNotFoundBeforeForbidden(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	stranger := f.user(t, "stranger")
	pid := f.project(t, alice)

	_, err := f.engine.GetProject(f.ctx, stranger, uuid.NewString())
	requireKind(t, tracker.KindNotFound, err)

	_, err = f.engine.GetProject(f.ctx, stranger, pid)
	requireKind(t, tracker.KindForbidden, err)

	// Authorization is decided before the input is looked at.
	_, err = f.engine.CreateTask(f.ctx, stranger, pid, tracker.CreateTaskInput{Title: ""})
	requireKind(t, tracker.KindForbidden, err)

	_, err = f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{Title: ""})
	requireKind(t, tracker.KindValidation, err)
}

func TestRoleOf(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	lead := f.user(t, "lead")
	stranger := f.user(t, "stranger")
	pid := f.project(t, alice, bob)
	_, err := f.engine.AddMember(f.ctx, alice, pid, tracker.AddMemberInput{UserID: lead, Role: ptr(models.RoleLeader)})
	require.NoError(t, err)

	project, err := f.store.GetProject(f.ctx, pid)
	require.NoError(t, err)

	for user, want := range map[string]models.Role{
		alice:    models.RolePM,
		bob:      models.RoleMember,
		lead:     models.RoleLeader,
		stranger: models.RoleNone,
	} {
		got, err := tracker.RoleOf(f.ctx, f.store, project, user)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestMembership(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	lead := f.user(t, "lead")
	carol := f.user(t, "carol")
	pid := f.project(t, alice, bob)

	_, err := f.engine.AddMember(f.ctx, alice, pid, tracker.AddMemberInput{UserID: lead, Role: ptr(models.RoleLeader)})
	require.NoError(t, err)

	t.Run("duplicate member", func(t *testing.T) {
		_, err := f.engine.AddMember(f.ctx, alice, pid, tracker.AddMemberInput{UserID: bob})
		requireKind(t, tracker.KindValidation, err)
	})

	t.Run("pm cannot be added", func(t *testing.T) {
		_, err := f.engine.AddMember(f.ctx, alice, pid, tracker.AddMemberInput{UserID: alice})
		requireKind(t, tracker.KindValidation, err)
	})

	t.Run("pm role cannot be granted", func(t *testing.T) {
		_, err := f.engine.AddMember(f.ctx, alice, pid, tracker.AddMemberInput{UserID: carol, Role: ptr(models.RolePM)})
		requireKind(t, tracker.KindValidation, err)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := f.engine.AddMember(f.ctx, alice, pid, tracker.AddMemberInput{UserID: uuid.NewString()})
		requireKind(t, tracker.KindValidation, err)
	})

	t.Run("member cannot add", func(t *testing.T) {
		_, err := f.engine.AddMember(f.ctx, bob, pid, tracker.AddMemberInput{UserID: carol})
		requireKind(t, tracker.KindForbidden, err)
	})

	t.Run("leader adds and removes", func(t *testing.T) {
		m, err := f.engine.AddMember(f.ctx, lead, pid, tracker.AddMemberInput{UserID: carol})
		require.NoError(t, err)
		assert.Equal(t, models.RoleMember, m.Role)
		require.NotNil(t, m.User)
		assert.Equal(t, "carol", m.User.Name)

		require.NoError(t, f.engine.RemoveMember(f.ctx, lead, pid, carol))
		requireKind(t, tracker.KindNotFound, f.engine.RemoveMember(f.ctx, lead, pid, carol))
	})

	t.Run("leader cannot change roles", func(t *testing.T) {
		_, err := f.engine.UpdateMemberRole(f.ctx, lead, pid, bob, tracker.UpdateMemberRoleInput{Role: models.RoleLeader})
		requireKind(t, tracker.KindForbidden, err)
	})

	t.Run("pm promotes member", func(t *testing.T) {
		m, err := f.engine.UpdateMemberRole(f.ctx, alice, pid, bob, tracker.UpdateMemberRoleInput{Role: models.RoleLeader})
		require.NoError(t, err)
		assert.Equal(t, models.RoleLeader, m.Role)

		_, err = f.engine.UpdateMemberRole(f.ctx, alice, pid, bob, tracker.UpdateMemberRoleInput{Role: models.RolePM})
		requireKind(t, tracker.KindValidation, err)

		_, err = f.engine.UpdateMemberRole(f.ctx, alice, pid, carol, tracker.UpdateMemberRoleInput{Role: models.RoleLeader})
		requireKind(t, tracker.KindNotFound, err)
	})

	t.Run("pm cannot be removed", func(t *testing.T) {
		requireKind(t, tracker.KindValidation, f.engine.RemoveMember(f.ctx, lead, pid, alice))
	})

	members, err := f.engine.ListMembers(f.ctx, bob, pid)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestCreateProjectResolvesMembers(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")

	p, err := f.engine.CreateProject(f.ctx, alice, tracker.CreateProjectInput{
		Name:          "Beta",
		StartDate:     ptr("2024-01-01"),
		EndDate:       ptr("2024-12-31"),
		MemberEmails:  []string{"BOB@example.com", "ghost@example.com", "alice@example.com"},
		MemberUserIDs: []string{carol, uuid.NewString(), bob},
	})
	require.NoError(t, err)

	ids := make([]string, 0, len(p.Members))
	for _, m := range p.Members {
		assert.Equal(t, models.RoleMember, m.Role)
		ids = append(ids, m.UserID)
	}
	assert.ElementsMatch(t, []string{bob, carol}, ids)
}

func TestCreateProjectValidation(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")

	_, err := f.engine.CreateProject(f.ctx, alice, tracker.CreateProjectInput{
		Name:      "A",
		StartDate: ptr("2024-05-01"),
		EndDate:   ptr("2024-04-01"),
	})
	requireKind(t, tracker.KindValidation, err)

	var e *tracker.Error
	require.ErrorAs(t, err, &e)
	fields := make([]string, 0, len(e.Fields))
	for _, fe := range e.Fields {
		fields = append(fields, fe.Field)
	}
	assert.ElementsMatch(t, []string{"name", "end_date"}, fields)
}

func TestProjectLifecycle(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	lead := f.user(t, "lead")
	pid := f.project(t, alice, bob)
	_, err := f.engine.AddMember(f.ctx, alice, pid, tracker.AddMemberInput{UserID: lead, Role: ptr(models.RoleLeader)})
	require.NoError(t, err)

	_, err = f.engine.UpdateProject(f.ctx, lead, pid, tracker.UpdateProjectInput{Name: ptr("Hijack")})
	requireKind(t, tracker.KindForbidden, err)

	updated, err := f.engine.UpdateProject(f.ctx, alice, pid, tracker.UpdateProjectInput{
		Name:   ptr("Alpha v2"),
		Status: ptr(models.ProjectArchived),
	})
	require.NoError(t, err)
	assert.Equal(t, "Alpha v2", updated.Name)
	assert.Equal(t, models.ProjectArchived, updated.Status)
	assert.Equal(t, alice, updated.PMID)

	list, page, err := f.engine.ListProjects(f.ctx, bob, tracker.ListProjectsInput{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, 10, page.Limit)

	list, _, err = f.engine.ListProjects(f.ctx, bob, tracker.ListProjectsInput{Status: ptr(models.ProjectActive)})
	require.NoError(t, err)
	assert.Empty(t, list)

	requireKind(t, tracker.KindForbidden, f.engine.DeleteProject(f.ctx, lead, pid))
}

func TestDeleteProjectCascades(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	pid := f.project(t, alice, bob)

	parent := f.task(t, alice, pid, "Parent")
	child, err := f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{Title: "Child", ParentTaskID: ptr(parent.ID)})
	require.NoError(t, err)
	_, err = f.engine.UpdateTaskStatus(f.ctx, bob, pid, child.ID, tracker.UpdateStatusInput{Status: models.StatusInProgress})
	require.NoError(t, err)
	_, err = f.engine.AddComment(f.ctx, bob, pid, child.ID, tracker.AddCommentInput{Content: "started"})
	require.NoError(t, err)
	_, err = f.engine.SubmitReport(f.ctx, bob, pid, child.ID, tracker.SubmitReportInput{Content: "half done"})
	require.NoError(t, err)

	require.NoError(t, f.engine.DeleteProject(f.ctx, alice, pid))

	_, err = f.engine.GetProject(f.ctx, alice, pid)
	requireKind(t, tracker.KindNotFound, err)
	_, err = f.store.GetTask(f.ctx, pid, child.ID)
	assert.ErrorIs(t, err, tracker.ErrNoRecord)
	members, err := f.store.ListMembers(f.ctx, pid)
	require.NoError(t, err)
	assert.Empty(t, members)
	history, err := f.store.ListHistory(f.ctx, child.ID)
	require.NoError(t, err)
	assert.Empty(t, history)

	deleted := f.events.ofType(tracker.EventProjectUpdate)
	last := deleted[len(deleted)-1]
	assert.Equal(t, "deleted", last.ev.Action)
	assert.ElementsMatch(t, []string{alice, bob}, last.to)
}

func TestListTasksFilters(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	pid := f.project(t, alice, bob)

	_, err := f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{Title: "Login bug", Type: ptr(models.TypeBug), AssignedTo: ptr(bob)})
	require.NoError(t, err)
	_, err = f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{Title: "Signup flow", Priority: ptr(models.PriorityHigh)})
	require.NoError(t, err)
	_, err = f.engine.CreateTask(f.ctx, alice, pid, tracker.CreateTaskInput{Title: "100%_done"})
	require.NoError(t, err)

	all, page, err := f.engine.ListTasks(f.ctx, bob, pid, tracker.ListTasksInput{})
	require.NoError(t, err)
	assert.Len(t, all, 3)
	assert.Equal(t, 50, page.Limit)

	bugs, _, err := f.engine.ListTasks(f.ctx, bob, pid, tracker.ListTasksInput{Type: ptr(models.TypeBug)})
	require.NoError(t, err)
	require.Len(t, bugs, 1)
	assert.Equal(t, "Login bug", bugs[0].Title)

	mine, _, err := f.engine.ListTasks(f.ctx, bob, pid, tracker.ListTasksInput{AssignedTo: ptr(bob)})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	high, _, err := f.engine.ListTasks(f.ctx, bob, pid, tracker.ListTasksInput{Priority: ptr(models.PriorityHigh)})
	require.NoError(t, err)
	assert.Len(t, high, 1)

	found, _, err := f.engine.ListTasks(f.ctx, bob, pid, tracker.ListTasksInput{Search: "%_"})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "100%_done", found[0].Title)

	paged, page, err := f.engine.ListTasks(f.ctx, bob, pid, tracker.ListTasksInput{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, paged, 1)
	assert.Equal(t, 2, page.TotalPages)

	_, _, err = f.engine.ListTasks(f.ctx, bob, pid, tracker.ListTasksInput{Limit: 1000})
	requireKind(t, tracker.KindValidation, err)
}

func TestCommentsAndReports(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	pid := f.project(t, alice, bob)
	task := f.task(t, alice, pid, "Deliver")

	_, err := f.engine.AddComment(f.ctx, bob, pid, task.ID, tracker.AddCommentInput{Content: "   "})
	requireKind(t, tracker.KindValidation, err)
	c, err := f.engine.AddComment(f.ctx, bob, pid, task.ID, tracker.AddCommentInput{Content: " on it "})
	require.NoError(t, err)
	assert.Equal(t, "on it", c.Content)

	detail, err := f.engine.GetTask(f.ctx, alice, pid, task.ID)
	require.NoError(t, err)
	require.Len(t, detail.Comments, 1)

	report, err := f.engine.SubmitReport(f.ctx, bob, pid, task.ID, tracker.SubmitReportInput{
		Content:     "done, see links",
		Attachments: []string{"https://files.example.com/a.png"},
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportPending, report.Status)

	_, err = f.engine.ReviewReport(f.ctx, bob, pid, task.ID, report.ID, tracker.ReviewReportInput{Status: models.ReportApproved})
	requireKind(t, tracker.KindForbidden, err)

	_, err = f.engine.ReviewReport(f.ctx, alice, pid, task.ID, report.ID, tracker.ReviewReportInput{Status: models.ReportPending})
	requireKind(t, tracker.KindValidation, err)

	reviewed, err := f.engine.ReviewReport(f.ctx, alice, pid, task.ID, report.ID, tracker.ReviewReportInput{Status: models.ReportApproved})
	require.NoError(t, err)
	assert.Equal(t, models.ReportApproved, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedBy)
	assert.Equal(t, alice, *reviewed.ReviewedBy)

	_, err = f.engine.ReviewReport(f.ctx, alice, pid, task.ID, report.ID, tracker.ReviewReportInput{Status: models.ReportRejected})
	requireKind(t, tracker.KindValidation, err)

	_, err = f.engine.ReviewReport(f.ctx, alice, pid, task.ID, uuid.NewString(), tracker.ReviewReportInput{Status: models.ReportApproved})
	requireKind(t, tracker.KindNotFound, err)

	reports, err := f.engine.ListReports(f.ctx, bob, pid, task.ID)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, []string{"https://files.example.com/a.png"}, reports[0].Attachments)

	// Reports never move the task.
	got, err := f.engine.GetTask(f.ctx, alice, pid, task.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusTodo, got.Status)
}

// blockedRepo reports one user as BLOCKED, the way an identity provider
// suspension would be mirrored.
type blockedRepo struct {
	*sqlite.Store
	blocked string
}

func (r blockedRepo) GetUser(ctx context.Context, id string) (models.User, error) {
	u, err := r.Store.GetUser(ctx, id)
	if err == nil && id == r.blocked {
		u.Status = models.UserBlocked
	}
	return u, err
}

func TestSyncUser(t *testing.T) {
	f := newFixture(t)
	id := uuid.NewString()

	u, err := f.engine.SyncUser(f.ctx, id, "Dana", "dana@example.com")
	require.NoError(t, err)
	assert.Equal(t, models.UserActive, u.Status)

	u, err = f.engine.SyncUser(f.ctx, id, "Dana Scully", "")
	require.NoError(t, err)
	assert.Equal(t, "Dana Scully", u.Name)
	assert.Equal(t, "dana@example.com", u.Email)

	stored, err := f.store.GetUser(f.ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Dana Scully", stored.Name)

	// A second identity carrying a stored email is mirrored without it.
	other := uuid.NewString()
	u, err = f.engine.SyncUser(f.ctx, other, "Impostor", "DANA@example.com")
	require.NoError(t, err)
	assert.Empty(t, u.Email)
	stored, err = f.store.GetUser(f.ctx, other)
	require.NoError(t, err)
	assert.Equal(t, "Impostor", stored.Name)
	assert.Empty(t, stored.Email)

	// An existing identity keeps its own email when the new one is taken.
	u, err = f.engine.SyncUser(f.ctx, other, "Impostor", "other@example.com")
	require.NoError(t, err)
	assert.Equal(t, "other@example.com", u.Email)
	u, err = f.engine.SyncUser(f.ctx, other, "", "dana@example.com")
	require.NoError(t, err)
	assert.Equal(t, "other@example.com", u.Email)

	blocked := tracker.New(blockedRepo{Store: f.store, blocked: id}, nil)
	_, err = blocked.SyncUser(f.ctx, id, "Dana", "")
	requireKind(t, tracker.KindForbidden, err)
}

func TestEventsCarryIDs(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := sqlite.Open(filepath.Join(t.TempDir(), "tracker.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	events := &capture{}
	engine := tracker.New(store, logger, tracker.WithPublisher(events), tracker.WithClock(func() time.Time { return now }))

	ctx := context.Background()
	alice := uuid.NewString()
	_, err = engine.SyncUser(ctx, alice, "alice", "")
	require.NoError(t, err)
	p, err := engine.CreateProject(ctx, alice, tracker.CreateProjectInput{Name: "Clocked"})
	require.NoError(t, err)
	assert.Equal(t, now, p.CreatedAt.UTC())

	task, err := engine.CreateTask(ctx, alice, p.ID, tracker.CreateTaskInput{Title: "Tick"})
	require.NoError(t, err)
	_, err = engine.UpdateTaskStatus(ctx, alice, p.ID, task.ID, tracker.UpdateStatusInput{Status: models.StatusInProgress})
	require.NoError(t, err)

	history, err := engine.ListTaskHistory(ctx, alice, p.ID, task.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, now, history[0].ChangedAt.UTC())

	seen := map[string]bool{}
	for _, ev := range events.ofType(tracker.EventTaskUpdate) {
		assert.NotEmpty(t, ev.ev.ID)
		assert.False(t, seen[ev.ev.ID], "event ids are unique")
		seen[ev.ev.ID] = true
		assert.Equal(t, p.ID, ev.ev.ProjectID)
	}
	assert.Len(t, seen, 2)
}

// txOnlyProjects refuses project lookups made outside a transaction.
type txOnlyProjects struct {
	*sqlite.Store
}

func (txOnlyProjects) GetProject(context.Context, string) (models.Project, error) {
	return models.Project{}, errors.New("project read outside transaction")
}

func TestProjectMutationsAuthorizeInTransaction(t *testing.T) {
	f := newFixture(t)
	alice := f.user(t, "alice")
	bob := f.user(t, "bob")
	carol := f.user(t, "carol")
	pid := f.project(t, alice, bob)

	engine := tracker.New(txOnlyProjects{Store: f.store}, nil)

	_, err := engine.UpdateProject(f.ctx, alice, pid, tracker.UpdateProjectInput{Name: ptr("Beta")})
	require.NoError(t, err)
	_, err = engine.AddMember(f.ctx, alice, pid, tracker.AddMemberInput{UserID: carol})
	require.NoError(t, err)
	_, err = engine.UpdateMemberRole(f.ctx, alice, pid, carol, tracker.UpdateMemberRoleInput{Role: models.RoleLeader})
	require.NoError(t, err)
	require.NoError(t, engine.RemoveMember(f.ctx, carol, pid, bob))

	// A forbidden attempt writes nothing.
	_, err = engine.UpdateProject(f.ctx, bob, pid, tracker.UpdateProjectInput{Name: ptr("Gamma")})
	requireKind(t, tracker.KindForbidden, err)
	p, err := f.store.GetProject(f.ctx, pid)
	require.NoError(t, err)
	assert.Equal(t, "Beta", p.Name)

	require.NoError(t, engine.DeleteProject(f.ctx, alice, pid))
	_, err = f.store.GetProject(f.ctx, pid)
	assert.ErrorIs(t, err, tracker.ErrNoRecord)
}
