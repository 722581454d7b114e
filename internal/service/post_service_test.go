package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/blogpost/internal/model"
	"github.com/d60-Lab/blogpost/internal/repository"
	"github.com/d60-Lab/blogpost/internal/testutil"
)

var (
	clock  = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	alice  = &model.Caller{ID: "alice", Role: model.RoleAuthor}
	bob    = &model.Caller{ID: "bob", Role: model.RoleAuthor}
	admin  = &model.Caller{ID: "root", Role: model.RoleAdmin}
	future = clock.Add(24 * time.Hour)
)

type fixture struct {
	svc   PostService
	repo  repository.PostRepository
	blobs *fakeBlobStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := repository.NewPostRepository(testutil.NewTestDB(t))
	blobs := newFakeBlobStore()
	return &fixture{
		svc:   NewPostService(repo, blobs, func() time.Time { return clock }),
		repo:  repo,
		blobs: blobs,
	}
}

func (f *fixture) create(t *testing.T, caller *model.Caller, in CreatePostInput) *model.Post {
	t.Helper()
	res, err := f.svc.CreatePost(context.Background(), caller, in)
	require.NoError(t, err)
	return res.Post
}

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestCreatePost_Defaults(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.CreatePost(ctx, alice, CreatePostInput{
		Title:          "  ",
		Content:        "hello",
		CW:             "",
		Hashtags:       []string{"#go", "Go", " blog "},
		AttachmentURLs: []string{"https://cdn/x.png"},
		Uploads:        []Upload{fileUpload("y.png", "img")},
		Poll:           &PollSubmission{Options: texts("yes", "", "no")},
	})
	require.NoError(t, err)
	assert.Empty(t, res.FailedUploads)

	got, err := f.repo.Get(ctx, res.Post.ID)
	require.NoError(t, err)
	assert.Equal(t, model.UntitledPost, got.Title)
	assert.Equal(t, "alice", got.AuthorID)
	assert.Nil(t, got.CW)
	assert.True(t, got.Published)
	assert.Equal(t, []string{"go", "blog"}, got.Hashtags)
	assert.Equal(t, []string{"/uploads/y.png", "https://cdn/x.png"}, got.Attachments)
	require.NotNil(t, got.ThumbnailURL)
	assert.Equal(t, "/uploads/y.png", *got.ThumbnailURL)
	require.NotNil(t, got.Poll)
	assert.Equal(t, model.DefaultPollQuestion, got.Poll.Question)
	require.Len(t, got.Poll.Options, 2)
	assert.True(t, got.CreatedAt.Equal(clock))
}

func TestCreatePost_Rejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreatePost(ctx, nil, CreatePostInput{Content: "x"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.CreatePost(ctx, alice, CreatePostInput{Title: "no body", Content: "  "})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.CreatePost(ctx, alice, CreatePostInput{Title: string(make([]byte, 300)), Content: "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCreatePost_ScheduledStaysHidden(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post := f.create(t, alice, CreatePostInput{Title: "later", Content: "x", ScheduledAt: &future})
	assert.True(t, post.Published)
	assert.Equal(t, model.PostStatusScheduled, post.Status(clock))

	feed, err := f.svc.ListVisiblePosts(ctx, clock, FeedQuery{})
	require.NoError(t, err)
	assert.Empty(t, feed)

	feed, err = f.svc.ListVisiblePosts(ctx, future, FeedQuery{})
	require.NoError(t, err)
	assert.Len(t, feed, 1)
}

func TestEditPost_Ownership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.create(t, alice, CreatePostInput{Title: "mine", Content: "x"})

	_, err := f.svc.EditPost(ctx, nil, post.ID, EditPostInput{Title: strPtr("t")})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.EditPost(ctx, bob, post.ID, EditPostInput{Title: strPtr("hijack")})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.EditPost(ctx, bob, "missing", EditPostInput{})
	assert.ErrorIs(t, err, ErrNotFound)

	res, err := f.svc.EditPost(ctx, admin, post.ID, EditPostInput{Title: strPtr("moderated")})
	require.NoError(t, err)
	assert.Equal(t, "moderated", res.Post.Title)
	assert.Equal(t, "alice", res.Post.AuthorID)
}

func TestEditPost_MergesAttachmentsAndPoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post := f.create(t, alice, CreatePostInput{
		Title:          "poll",
		Content:        "x",
		AttachmentURLs: []string{"u1", "u2"},
		Poll:           &PollSubmission{Question: "Best?", Options: texts("A", "B")},
	})
	for i := 0; i < 3; i++ {
		require.NoError(t, f.svc.CastVote(ctx, post.ID, 0))
	}
	require.NoError(t, f.svc.CastVote(ctx, post.ID, 1))

	res, err := f.svc.EditPost(ctx, alice, post.ID, EditPostInput{
		KeptAttachments: []string{"u2"},
		Uploads:         []Upload{fileUpload("u3", "img")},
		Poll:            &PollSubmission{Question: "Best?", Options: texts("A", "C")},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "/uploads/u3"}, res.Post.Attachments)

	got, err := f.repo.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2", "/uploads/u3"}, got.Attachments)
	assert.Equal(t, "u2", *got.ThumbnailURL)
	require.Len(t, got.Poll.Options, 2)
	assert.Equal(t, "A", got.Poll.Options[0].Text)
	assert.Equal(t, int64(3), got.Poll.Options[0].Votes)
	assert.Equal(t, "C", got.Poll.Options[1].Text)
	assert.Equal(t, int64(0), got.Poll.Options[1].Votes)
	assert.Equal(t, "poll", got.Title, "title not submitted")
}

func TestEditPost_FieldsNotSubmittedAreKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post := f.create(t, alice, CreatePostInput{
		Title:          "t",
		Content:        "x",
		CW:             "spoiler",
		CategoryID:     "c1",
		ScheduledAt:    &future,
		AttachmentURLs: []string{"u1"},
		Poll:           &PollSubmission{Question: "Q", Options: texts("A")},
	})

	_, err := f.svc.EditPost(ctx, alice, post.ID, EditPostInput{Content: strPtr("y"), KeptAttachments: []string{"u1"}})
	require.NoError(t, err)

	got, err := f.repo.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, "y", got.Content)
	assert.Equal(t, "spoiler", *got.CW)
	assert.Equal(t, "c1", *got.CategoryID)
	assert.NotNil(t, got.ScheduledAt)
	assert.Equal(t, []string{"u1"}, got.Attachments)
	require.NotNil(t, got.Poll)

	// 编辑后的附件只由 KeptAttachments 和新上传决定
	_, err = f.svc.EditPost(ctx, alice, post.ID, EditPostInput{})
	require.NoError(t, err)
	got, err = f.repo.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Attachments)
	assert.Nil(t, got.ThumbnailURL)

	_, err = f.svc.EditPost(ctx, alice, post.ID, EditPostInput{
		CW:              strPtr(""),
		CategoryID:      strPtr(""),
		ClearSchedule: true,
		Published:     boolPtr(false),
		Poll:          &PollSubmission{Question: "Q"},
	})
	require.NoError(t, err)

	got, err = f.repo.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CW)
	assert.Nil(t, got.CategoryID)
	assert.Nil(t, got.ScheduledAt)
	assert.False(t, got.Published)
	assert.Empty(t, got.Attachments)
	assert.Nil(t, got.ThumbnailURL)
	assert.Nil(t, got.Poll)
	assert.Equal(t, model.PostStatusDraft, got.Status(clock))
}

func TestEditPost_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.create(t, alice, CreatePostInput{Content: "x"})

	_, err := f.svc.EditPost(ctx, alice, post.ID, EditPostInput{Content: strPtr(" ")})
	assert.ErrorIs(t, err, ErrValidation)

}

func TestEditPost_BlankQuestionKeepsPoll(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.create(t, alice, CreatePostInput{Content: "x", Poll: &PollSubmission{Question: "Q", Options: texts("A", "B")}})
	require.NoError(t, f.svc.CastVote(ctx, post.ID, 1))

	_, err := f.svc.EditPost(ctx, alice, post.ID, EditPostInput{Poll: &PollSubmission{Question: " ", Options: texts("X")}})
	require.NoError(t, err)

	got, err := f.repo.Get(ctx, post.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Poll)
	assert.Equal(t, "Q", got.Poll.Question)
	require.Len(t, got.Poll.Options, 2)
	assert.Equal(t, "B", got.Poll.Options[1].Text)
	assert.Equal(t, int64(1), got.Poll.Options[1].Votes)
}

func TestUpdatedAtFollowsServiceClock(t *testing.T) {
	repo := repository.NewPostRepository(testutil.NewTestDB(t))
	now := clock
	svc := NewPostService(repo, newFakeBlobStore(), func() time.Time { return now })
	ctx := context.Background()

	res, err := svc.CreatePost(ctx, alice, CreatePostInput{Content: "x", Poll: &PollSubmission{Options: texts("A")}})
	require.NoError(t, err)
	id := res.Post.ID

	now = clock.Add(time.Hour)
	_, err = svc.EditPost(ctx, alice, id, EditPostInput{Title: strPtr("t2")})
	require.NoError(t, err)
	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.CreatedAt.Equal(clock), "created_at %v", got.CreatedAt)
	assert.True(t, got.UpdatedAt.Equal(now), "updated_at after edit %v", got.UpdatedAt)

	now = clock.Add(2 * time.Hour)
	require.NoError(t, svc.CastVote(ctx, id, 0))
	got, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, got.UpdatedAt.Equal(now), "updated_at after vote %v", got.UpdatedAt)
	assert.Equal(t, int64(1), got.Poll.Options[0].Votes)
}

func TestEditPost_Idempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post := f.create(t, alice, CreatePostInput{
		Title:          "t",
		Content:        "x",
		AttachmentURLs: []string{"u1", "u2"},
		Poll:           &PollSubmission{Question: "Q", Options: texts("A", "B")},
	})
	require.NoError(t, f.svc.CastVote(ctx, post.ID, 1))

	edit := EditPostInput{
		Title:           strPtr("t2"),
		Content:         strPtr("x2"),
		KeptAttachments: []string{"u2"},
		Poll:            &PollSubmission{Question: "Q2", Options: texts("B", "C")},
	}
	_, err := f.svc.EditPost(ctx, alice, post.ID, edit)
	require.NoError(t, err)
	first, err := f.repo.Get(ctx, post.ID)
	require.NoError(t, err)

	_, err = f.svc.EditPost(ctx, alice, post.ID, edit)
	require.NoError(t, err)
	second, err := f.repo.Get(ctx, post.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int64(1), second.Poll.Options[0].Votes)
}

func TestDeletePost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	post := f.create(t, alice, CreatePostInput{Content: "x"})

	assert.ErrorIs(t, f.svc.DeletePost(ctx, nil, post.ID), ErrUnauthorized)
	assert.ErrorIs(t, f.svc.DeletePost(ctx, bob, post.ID), ErrForbidden)
	require.NoError(t, f.svc.DeletePost(ctx, alice, post.ID))
	assert.ErrorIs(t, f.svc.DeletePost(ctx, alice, post.ID), ErrNotFound)
}

func TestGetPost_GateAndOwnerBypass(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	draft := f.create(t, alice, CreatePostInput{Content: "x", Published: boolPtr(false)})

	_, err := f.svc.GetPost(ctx, nil, draft.ID, clock)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.svc.GetPost(ctx, bob, draft.ID, clock)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := f.svc.GetPost(ctx, alice, draft.ID, clock)
	require.NoError(t, err)
	assert.Equal(t, draft.ID, got.ID)
	_, err = f.svc.GetPost(ctx, admin, draft.ID, clock)
	assert.NoError(t, err)

	_, err = f.svc.GetPost(ctx, alice, "missing", clock)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListVisiblePosts_Filters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, alice, CreatePostInput{Title: "Category tips", Content: "x", Hashtags: []string{"howto"}})
	f.create(t, bob, CreatePostInput{Title: "Dogs", Content: "about cats", CategoryID: "pets"})
	f.create(t, bob, CreatePostInput{Title: "Cats draft", Content: "x", Published: boolPtr(false)})
	f.create(t, bob, CreatePostInput{Title: "Cats later", Content: "x", ScheduledAt: &future})

	all, err := f.svc.ListVisiblePosts(ctx, clock, FeedQuery{Query: " "})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	cat, err := f.svc.ListVisiblePosts(ctx, clock, FeedQuery{Query: "CAT"})
	require.NoError(t, err)
	assert.Len(t, cat, 2)

	titles, err := f.svc.ListVisiblePosts(ctx, clock, FeedQuery{Query: "cat", Targets: SearchTargets{Title: true}})
	require.NoError(t, err)
	require.Len(t, titles, 1)
	assert.Equal(t, "Category tips", titles[0].Title)

	pets, err := f.svc.ListVisiblePosts(ctx, clock, FeedQuery{CategoryID: "pets"})
	require.NoError(t, err)
	require.Len(t, pets, 1)
	assert.Equal(t, "Dogs", pets[0].Title)

	tagged, err := f.svc.ListVisiblePosts(ctx, clock, FeedQuery{Tag: "#HowTo"})
	require.NoError(t, err)
	require.Len(t, tagged, 1)
	assert.Equal(t, "Category tips", tagged[0].Title)
}

func TestDashboards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.create(t, alice, CreatePostInput{Content: "a1", Published: boolPtr(false)})
	f.create(t, alice, CreatePostInput{Content: "a2", ScheduledAt: &future})
	f.create(t, bob, CreatePostInput{Content: "b1", CategoryID: "c1"})

	mine, err := f.svc.ListAuthorPosts(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	_, err = f.svc.ListAuthorPosts(ctx, nil)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.ListAllPosts(ctx, alice, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = f.svc.ListAllPosts(ctx, nil, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	everything, err := f.svc.ListAllPosts(ctx, admin, "")
	require.NoError(t, err)
	assert.Len(t, everything, 3)

	inCat, err := f.svc.ListAllPosts(ctx, admin, "c1")
	require.NoError(t, err)
	assert.Len(t, inCat, 1)
}

func TestCastVote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	post := f.create(t, alice, CreatePostInput{Content: "x", Poll: &PollSubmission{Options: texts("A", "B")}})
	for i := 0; i < 4; i++ {
		require.NoError(t, f.svc.CastVote(ctx, post.ID, 1))
	}
	require.NoError(t, f.svc.CastVote(ctx, post.ID, 1))
	require.NoError(t, f.svc.CastVote(ctx, post.ID, 99))
	require.NoError(t, f.svc.CastVote(ctx, post.ID, -1))
	require.NoError(t, f.svc.CastVote(ctx, "missing", 0))

	got, err := f.repo.Get(ctx, post.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), got.Poll.Options[0].Votes)
	assert.Equal(t, int64(5), got.Poll.Options[1].Votes)
}

func TestUploadImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	up := fileUpload("pic.png", "bytes")
	url, err := f.svc.UploadImage(ctx, alice, &up)
	require.NoError(t, err)
	assert.Equal(t, "/uploads/pic.png", url)

	_, err = f.svc.UploadImage(ctx, nil, &up)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = f.svc.UploadImage(ctx, alice, nil)
	assert.ErrorIs(t, err, ErrValidation)

	empty := fileUpload("empty.png", "")
	_, err = f.svc.UploadImage(ctx, alice, &empty)
	assert.ErrorIs(t, err, ErrValidation)

	f.blobs.fail["broken.png"] = true
	broken := fileUpload("broken.png", "x")
	_, err = f.svc.UploadImage(ctx, alice, &broken)
	assert.ErrorIs(t, err, ErrUpload)

	doc := fileUpload("notes.txt", "text")
	doc.ContentType = "text/plain"
	_, err = f.svc.UploadImage(ctx, alice, &doc)
	assert.NoError(t, err)
}
