package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/chore-tracker/internal/apperror"
	"github.com/sakif/chore-tracker/internal/model"
	"github.com/sakif/chore-tracker/internal/watch"
)

// choreFamily sets up a family of Ada (admin) and Bob with a fixed code and
// a controllable clock on the chore service.
func choreFamily(t *testing.T) (f *fixture, ada, bob string, clock *time.Time) {
	t.Helper()
	f = newFixture(t, FamilyOptions{Codes: seqCodes("HOME12")})
	ctx := context.Background()
	ada = f.user(t, "Ada")
	bob = f.user(t, "Bob")
	_, err := f.families.Create(ctx, ada, "Home")
	require.NoError(t, err)
	_, err = f.families.Join(ctx, bob, "HOME12")
	require.NoError(t, err)

	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	clock = &now
	f.chores.now = func() time.Time { return *clock }
	return f, ada, bob, clock
}

func strPtr(s string) *string { return &s }

func TestChoreCreate_Defaults(t *testing.T) {
	f, ada, _, _ := choreFamily(t)

	chore, err := f.chores.Create(context.Background(), ada, ChoreInput{Title: "  Take out trash "})
	require.NoError(t, err)

	assert.NotEmpty(t, chore.ID)
	assert.Equal(t, "HOME12", chore.FamilyCode)
	assert.Equal(t, "Take out trash", chore.Title)
	assert.Nil(t, chore.AssignedTo)
	assert.Equal(t, model.UnassignedName, chore.AssignedToName)
	assert.Nil(t, chore.DueDate)
	assert.False(t, chore.IsCompleted)
	assert.Equal(t, ada, chore.CreatedBy)
	assert.True(t, chore.Valid())
}

func TestChoreCreate_AssigneeAndDueDate(t *testing.T) {
	f, ada, bob, _ := choreFamily(t)

	chore, err := f.chores.Create(context.Background(), ada, ChoreInput{
		Title:      "Vacuum",
		AssignedTo: strPtr(bob),
		DueDate:    "2024-03-05",
	})
	require.NoError(t, err)

	require.NotNil(t, chore.AssignedTo)
	assert.Equal(t, bob, *chore.AssignedTo)
	assert.Equal(t, "Bob", chore.AssignedToName)
	require.NotNil(t, chore.DueDate)
	assert.Equal(t, "2024-03-05", *chore.DueDate)
}

func TestChoreCreate_EmptyAssigneeMeansAnyone(t *testing.T) {
	f, ada, _, _ := choreFamily(t)

	chore, err := f.chores.Create(context.Background(), ada, ChoreInput{Title: "Dust", AssignedTo: strPtr("")})
	require.NoError(t, err)
	assert.Nil(t, chore.AssignedTo)
	assert.Equal(t, model.UnassignedName, chore.AssignedToName)
}

func TestChoreCreate_Validation(t *testing.T) {
	f, ada, _, _ := choreFamily(t)
	outsider := f.user(t, "Eve")

	tests := []struct {
		name  string
		in    ChoreInput
		field string
	}{
		{"blank title", ChoreInput{Title: "   "}, "title"},
		{"assignee outside family", ChoreInput{Title: "Mop", AssignedTo: strPtr(outsider)}, "assignedTo"},
		{"malformed due date", ChoreInput{Title: "Mop", DueDate: "05/03/2024"}, "dueDate"},
		{"impossible due date", ChoreInput{Title: "Mop", DueDate: "2024-02-30"}, "dueDate"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writes := f.store.writeCount()
			_, err := f.chores.Create(context.Background(), ada, tt.in)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.field, appErr.Field)
			assert.Equal(t, writes, f.store.writeCount())
		})
	}
}

func TestChore_NonMemberIsRejected(t *testing.T) {
	f, ada, _, _ := choreFamily(t)
	ctx := context.Background()
	chore, err := f.chores.Create(ctx, ada, ChoreInput{Title: "Laundry"})
	require.NoError(t, err)

	eve := f.user(t, "Eve")
	_, err = f.chores.List(ctx, eve)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	// A profile that points at the family without a member entry is not
	// enough to see its chores.
	require.NoError(t, f.store.Profiles().Upsert(ctx, model.Joined(eve, "HOME12")))
	_, err = f.chores.List(ctx, eve)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	_, err = f.chores.Toggle(ctx, eve, chore.ID)
	assert.ErrorIs(t, err, apperror.ErrForbidden)
	assert.ErrorIs(t, f.chores.Delete(ctx, eve, chore.ID), apperror.ErrForbidden)
	_, err = f.chores.Create(ctx, eve, ChoreInput{Title: "Sneaky"})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestChoreList_Order(t *testing.T) {
	f, ada, _, clock := choreFamily(t)
	ctx := context.Background()

	var ids []string
	for _, title := range []string{"oldest", "middle", "newest"} {
		c, err := f.chores.Create(ctx, ada, ChoreInput{Title: title})
		require.NoError(t, err)
		ids = append(ids, c.ID)
		*clock = clock.Add(time.Minute)
	}
	// Completing the newest chore moves it behind the open ones.
	_, err := f.chores.Toggle(ctx, ada, ids[2])
	require.NoError(t, err)

	chores, err := f.chores.List(ctx, ada)
	require.NoError(t, err)
	var titles []string
	for _, c := range chores {
		titles = append(titles, c.Title)
	}
	assert.Equal(t, []string{"middle", "oldest", "newest"}, titles)
}

func TestChoreToggle_KeepsCompletionFieldsInStep(t *testing.T) {
	f, ada, bob, clock := choreFamily(t)
	ctx := context.Background()
	chore, err := f.chores.Create(ctx, ada, ChoreInput{Title: "Dishes"})
	require.NoError(t, err)

	done, err := f.chores.Toggle(ctx, bob, chore.ID)
	require.NoError(t, err)
	assert.True(t, done.IsCompleted)
	require.NotNil(t, done.CompletedBy)
	assert.Equal(t, bob, *done.CompletedBy)
	require.NotNil(t, done.CompletedAt)
	assert.True(t, done.CompletedAt.Equal(*clock))

	reopened, err := f.chores.Toggle(ctx, ada, chore.ID)
	require.NoError(t, err)
	assert.False(t, reopened.IsCompleted)
	assert.Nil(t, reopened.CompletedAt)
	assert.Nil(t, reopened.CompletedBy)

	stored := f.store.snapshot().chores[chore.ID]
	assert.True(t, stored.Valid())
	assert.False(t, stored.IsCompleted)
}

func TestChoreToggle_UnknownChore(t *testing.T) {
	f, ada, _, _ := choreFamily(t)
	_, err := f.chores.Toggle(context.Background(), ada, "missing")
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestChoreToggle_ConcurrentTogglesBothApply(t *testing.T) {
	for i := 0; i < 50; i++ {
		f, ada, bob, _ := choreFamily(t)
		ctx := context.Background()
		chore, err := f.chores.Create(ctx, ada, ChoreInput{Title: "Laundry"})
		require.NoError(t, err)

		var wg sync.WaitGroup
		for _, who := range []string{ada, bob} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := f.chores.Toggle(ctx, who, chore.ID)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		// Two flips cancel out; neither was lost.
		stored := f.store.snapshot().chores[chore.ID]
		assert.False(t, stored.IsCompleted)
		assert.True(t, stored.Valid())
	}
}

func TestChoreDelete(t *testing.T) {
	f, ada, bob, _ := choreFamily(t)
	ctx := context.Background()
	chore, err := f.chores.Create(ctx, ada, ChoreInput{Title: "Windows"})
	require.NoError(t, err)

	// Any member may delete, not only the creator.
	require.NoError(t, f.chores.Delete(ctx, bob, chore.ID))
	assert.Empty(t, f.store.snapshot().chores)

	assert.ErrorIs(t, f.chores.Delete(ctx, bob, chore.ID), apperror.ErrNotFound)
}

func TestChore_PublishesSortedList(t *testing.T) {
	f, ada, _, clock := choreFamily(t)
	ctx := context.Background()
	sub := f.hub.Subscribe(watch.ChoresTopic("HOME12"))
	defer sub.Close()

	_, err := f.chores.Create(ctx, ada, ChoreInput{Title: "first"})
	require.NoError(t, err)
	*clock = clock.Add(time.Second)
	_, err = f.chores.Create(ctx, ada, ChoreInput{Title: "second"})
	require.NoError(t, err)

	ev := <-sub.C()
	require.True(t, ev.Exists())
	chores := ev.Value.([]model.Chore)
	require.Len(t, chores, 2)
	assert.Equal(t, "second", chores[0].Title)
	assert.Equal(t, "first", chores[1].Title)
}

func TestChoreFamily(t *testing.T) {
	f, _, bob, _ := choreFamily(t)
	code, err := f.chores.Family(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, "HOME12", code)
}
