package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	appErrors "github.com/noticeboardhq/noticeboard/pkg/errors"
)

func newPostService(t *testing.T) (*PostService, testEnv) {
	t.Helper()
	env := openServiceTestEnv(t)
	svc, err := NewPostService(env.db, env.store, env.inv, time.Hour)
	require.NoError(t, err)
	return svc, env
}

func TestPostCreateAndGet(t *testing.T) {
	svc, _ := newPostService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, memberIdentity(1), PostInput{
		Title:    "Garage sale Saturday",
		Body:     "Everything must go",
		Category: "events",
	})
	require.NoError(t, err)
	require.NotZero(t, created.ID)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Garage sale Saturday", got.Title)
	require.Equal(t, uint(1), got.AuthorID)
}

func TestPostGetMissingIsNotFound(t *testing.T) {
	svc, _ := newPostService(t)

	_, err := svc.Get(context.Background(), 99)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestPostCreateRejectsInvalidInput(t *testing.T) {
	svc, _ := newPostService(t)

	_, err := svc.Create(context.Background(), memberIdentity(1), PostInput{Body: "no title"})
	require.Error(t, err)

	var appErr *appErrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, 400, appErr.StatusCode)
}

func TestPostRecentServesFromCacheUntilInvalidated(t *testing.T) {
	svc, env := newPostService(t)
	ctx := context.Background()

	_, err := svc.Create(ctx, memberIdentity(1), PostInput{Title: "first", Body: "b"})
	require.NoError(t, err)

	recent, err := svc.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 1)

	has, err := env.store.Has(ctx, KeyRecentPosts)
	require.NoError(t, err)
	require.True(t, has, "recent listing should be cached after a read")

	// A second post must invalidate the listing so the next read recomputes.
	_, err = svc.Create(ctx, memberIdentity(1), PostInput{Title: "second", Body: "b"})
	require.NoError(t, err)

	has, err = env.store.Has(ctx, KeyRecentPosts)
	require.NoError(t, err)
	require.False(t, has)

	recent, err = svc.Recent(ctx)
	require.NoError(t, err)
	require.Len(t, recent, 2)
}

func TestPostUpdateInvalidatesCachedPost(t *testing.T) {
	svc, env := newPostService(t)
	ctx := context.Background()
	author := memberIdentity(1)

	created, err := svc.Create(ctx, author, PostInput{Title: "before", Body: "b"})
	require.NoError(t, err)

	// Prime the per-post cache.
	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)
	has, err := env.store.Has(ctx, PostKey(created.ID))
	require.NoError(t, err)
	require.True(t, has)

	_, err = svc.Update(ctx, author, created.ID, PostInput{Title: "after", Body: "b"})
	require.NoError(t, err)

	has, err = env.store.Has(ctx, PostKey(created.ID))
	require.NoError(t, err)
	require.False(t, has)

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "after", got.Title)
}

func TestPostUpdateDeniedForNonAuthor(t *testing.T) {
	svc, _ := newPostService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, memberIdentity(1), PostInput{Title: "mine", Body: "b"})
	require.NoError(t, err)

	// A stranger and a request for a nonexistent id get the same denial, so
	// the response does not reveal which posts exist.
	_, strangerErr := svc.Update(ctx, memberIdentity(2), created.ID, PostInput{Title: "x", Body: "b"})
	require.ErrorIs(t, strangerErr, appErrors.ErrAccessDenied)

	_, missingErr := svc.Update(ctx, memberIdentity(2), 9999, PostInput{Title: "x", Body: "b"})
	require.ErrorIs(t, missingErr, appErrors.ErrAccessDenied)

	// Admins get the honest answer.
	_, adminErr := svc.Update(ctx, adminIdentity(3), 9999, PostInput{Title: "x", Body: "b"})
	require.ErrorIs(t, adminErr, appErrors.ErrNotFound)
}

func TestPostAdminMayUpdateAnyPost(t *testing.T) {
	svc, _ := newPostService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, memberIdentity(1), PostInput{Title: "member post", Body: "b"})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, adminIdentity(2), created.ID, PostInput{Title: "moderated", Body: "b"})
	require.NoError(t, err)
	require.Equal(t, "moderated", updated.Title)
}

func TestPostDeleteRemovesPost(t *testing.T) {
	svc, _ := newPostService(t)
	ctx := context.Background()
	author := memberIdentity(1)

	created, err := svc.Create(ctx, author, PostInput{Title: "ephemeral", Body: "b"})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, author, created.ID))

	_, err = svc.Get(ctx, created.ID)
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestPostAddCommentInvalidatesThread(t *testing.T) {
	svc, env := newPostService(t)
	ctx := context.Background()

	created, err := svc.Create(ctx, memberIdentity(1), PostInput{Title: "thread", Body: "b"})
	require.NoError(t, err)

	_, err = svc.Get(ctx, created.ID)
	require.NoError(t, err)

	comment, err := svc.AddComment(ctx, memberIdentity(2), created.ID, CommentInput{Body: "me too"})
	require.NoError(t, err)
	require.Equal(t, created.ID, comment.PostID)

	has, err := env.store.Has(ctx, PostKey(created.ID))
	require.NoError(t, err)
	require.False(t, has, "commenting must drop the cached thread")

	got, err := svc.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, got.Comments, 1)
}

func TestPostAddCommentToMissingPost(t *testing.T) {
	svc, _ := newPostService(t)

	_, err := svc.AddComment(context.Background(), memberIdentity(1), 42, CommentInput{Body: "hello?"})
	require.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestPostSearchFiltersAndPaginates(t *testing.T) {
	svc, _ := newPostService(t)
	ctx := context.Background()

	for _, p := range []PostInput{
		{Title: "selling bike", Body: "red bike", Category: "marketplace"},
		{Title: "selling couch", Body: "blue couch", Category: "marketplace"},
		{Title: "lost cat", Body: "orange tabby", Category: "lost-and-found"},
	} {
		_, err := svc.Create(ctx, memberIdentity(1), p)
		require.NoError(t, err)
	}

	posts, total, err := svc.Search(ctx, "selling", "", 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, posts, 2)

	posts, total, err = svc.Search(ctx, "", "lost-and-found", 1, 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "lost cat", posts[0].Title)

	posts, total, err = svc.Search(ctx, "selling", "marketplace", 1, 1)
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, posts, 1, "page size caps the rows returned")

	posts, total, err = svc.Search(ctx, "nothing matches this", "", 1, 10)
	require.NoError(t, err)
	require.Zero(t, total)
	require.NotNil(t, posts)
	require.Empty(t, posts)
}

func TestPostCategoryCounts(t *testing.T) {
	svc, _ := newPostService(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Create(ctx, memberIdentity(1), PostInput{Title: "e", Body: "b", Category: "events"})
		require.NoError(t, err)
	}
	_, err := svc.Create(ctx, memberIdentity(1), PostInput{Title: "m", Body: "b", Category: "marketplace"})
	require.NoError(t, err)

	counts, err := svc.CategoryCounts(ctx)
	require.NoError(t, err)
	require.Len(t, counts, 2)
	require.Equal(t, "events", counts[0].Category)
	require.EqualValues(t, 2, counts[0].Count)
}
