package post

import (
	"context"
	"fmt"
	"testing"

	gomock "github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"pinboard/pkg/apperr"
	"pinboard/pkg/comment"
)

func TestPostAdd(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()

	mockMongoColl := NewMockIMongoCollection(ctrl)
	mockInserOneResult := NewMockIMongoInsertOneResult(ctrl)

	repo := &Repo{
		posts: mockMongoColl,
	}

	testPost := New("owner", &Input{Title: "Sunset"}, "http://x/uploads/a.png", "a.png")

	t.Run("success", func(t *testing.T) {
		mockMongoColl.EXPECT().
			InsertOne(ctx, testPost).
			Return(mockInserOneResult, nil)

		insertedPostId, err := repo.Add(ctx, testPost)
		assert.NoError(t, err)
		assert.Equal(t, testPost.Id, insertedPostId)
	})

	t.Run("insert error", func(t *testing.T) {
		expectedErr := fmt.Errorf("insert_failed")
		mockMongoColl.EXPECT().
			InsertOne(ctx, gomock.Any()).
			Return(nil, expectedErr)

		insertedPostId, err := repo.Add(ctx, &Post{})
		assert.Equal(t, primitive.NilObjectID, insertedPostId)
		assert.ErrorIs(t, err, expectedErr)
	})
}

func TestGetById(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockMongoColl := NewMockIMongoCollection(ctrl)
	mockSingle := NewMockIMongoSingleResult(ctrl)
	repo := &Repo{posts: mockMongoColl}

	id := primitive.NewObjectID()

	t.Run("found", func(t *testing.T) {
		mockMongoColl.EXPECT().FindOne(ctx, gomock.Any()).Return(mockSingle)
		mockSingle.EXPECT().
			Decode(gomock.AssignableToTypeOf(&Post{})).
			SetArg(0, Post{Id: id, Title: "Sunset"}).
			Return(nil)

		p, err := repo.GetById(ctx, id)
		assert.NoError(t, err)
		assert.Equal(t, "Sunset", p.Title)
	})

	t.Run("not found", func(t *testing.T) {
		mockMongoColl.EXPECT().FindOne(ctx, gomock.Any()).Return(mockSingle)
		mockSingle.EXPECT().Decode(gomock.Any()).Return(mongo.ErrNoDocuments)

		p, err := repo.GetById(ctx, id)
		assert.Nil(t, p)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})

	t.Run("storage failure", func(t *testing.T) {
		mockMongoColl.EXPECT().FindOne(ctx, gomock.Any()).Return(mockSingle)
		mockSingle.EXPECT().Decode(gomock.Any()).Return(fmt.Errorf("connection reset"))

		_, err := repo.GetById(ctx, id)
		assert.Error(t, err)
		assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))
	})
}

func TestDelete(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockMongoColl := NewMockIMongoCollection(ctrl)
	mockDeleteRes := NewMockIMongoDeleteResult(ctrl)
	repo := &Repo{posts: mockMongoColl}

	mockMongoColl.EXPECT().DeleteOne(ctx, gomock.Any()).Return(mockDeleteRes, nil).Times(2)
	mockDeleteRes.EXPECT().DeletedCount().Return(int64(1))
	mockDeleteRes.EXPECT().DeletedCount().Return(int64(0))

	assert.NoError(t, repo.Delete(ctx, primitive.NewObjectID()))
	assert.ErrorIs(t, repo.Delete(ctx, primitive.NewObjectID()), apperr.ErrNotFound)
}

func TestToggleLike(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockMongoColl := NewMockIMongoCollection(ctrl)
	mockSingle := NewMockIMongoSingleResult(ctrl)
	repo := &Repo{posts: mockMongoColl}

	id := primitive.NewObjectID()

	t.Run("liked", func(t *testing.T) {
		mockMongoColl.EXPECT().
			FindOneAndUpdate(ctx, gomock.Any(), gomock.AssignableToTypeOf(mongo.Pipeline{}), gomock.Any()).
			Return(mockSingle)
		mockSingle.EXPECT().
			Decode(gomock.Any()).
			SetArg(0, Post{Id: id, Likes: []string{"viewer"}}).
			Return(nil)

		p, err := repo.ToggleLike(ctx, id, "viewer")
		assert.NoError(t, err)
		assert.Equal(t, []string{"viewer"}, p.Likes)
	})

	t.Run("missing post", func(t *testing.T) {
		mockMongoColl.EXPECT().
			FindOneAndUpdate(ctx, gomock.Any(), gomock.Any(), gomock.Any()).
			Return(mockSingle)
		mockSingle.EXPECT().Decode(gomock.Any()).Return(mongo.ErrNoDocuments)

		_, err := repo.ToggleLike(ctx, id, "viewer")
		assert.ErrorIs(t, err, apperr.ErrNotFound)
	})
}

func TestAddComment(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockMongoColl := NewMockIMongoCollection(ctrl)
	mockUpdateRes := NewMockIMongoUpdateResult(ctrl)
	mockSingle := NewMockIMongoSingleResult(ctrl)
	repo := &Repo{posts: mockMongoColl}

	postId := primitive.NewObjectID()
	c := comment.New("author", "nice")

	t.Run("pushed", func(t *testing.T) {
		mockMongoColl.EXPECT().UpdateOne(ctx, gomock.Any(), gomock.Any()).Return(mockUpdateRes, nil)
		mockUpdateRes.EXPECT().MatchedCount().Return(int64(1))

		assert.NoError(t, repo.AddComment(ctx, postId, c))
	})

	t.Run("post is full", func(t *testing.T) {
		mockMongoColl.EXPECT().UpdateOne(ctx, gomock.Any(), gomock.Any()).Return(mockUpdateRes, nil)
		mockUpdateRes.EXPECT().MatchedCount().Return(int64(0))
		mockMongoColl.EXPECT().FindOne(ctx, gomock.Any()).Return(mockSingle)
		mockSingle.EXPECT().Decode(gomock.Any()).Return(nil)

		err := repo.AddComment(ctx, postId, c)
		assert.ErrorIs(t, err, apperr.ErrValidation)
		assert.EqualError(t, err, "comment limit reached")
	})

	t.Run("post is gone", func(t *testing.T) {
		mockMongoColl.EXPECT().UpdateOne(ctx, gomock.Any(), gomock.Any()).Return(mockUpdateRes, nil)
		mockUpdateRes.EXPECT().MatchedCount().Return(int64(0))
		mockMongoColl.EXPECT().FindOne(ctx, gomock.Any()).Return(mockSingle)
		mockSingle.EXPECT().Decode(gomock.Any()).Return(mongo.ErrNoDocuments)

		assert.ErrorIs(t, repo.AddComment(ctx, postId, c), apperr.ErrNotFound)
	})
}

func TestUpdateAndDeleteComment(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockMongoColl := NewMockIMongoCollection(ctrl)
	mockUpdateRes := NewMockIMongoUpdateResult(ctrl)
	repo := &Repo{posts: mockMongoColl}

	postId, commentId := primitive.NewObjectID(), primitive.NewObjectID()

	mockMongoColl.EXPECT().UpdateOne(ctx, gomock.Any(), gomock.Any()).Return(mockUpdateRes, nil).Times(3)
	mockUpdateRes.EXPECT().MatchedCount().Return(int64(1))
	mockUpdateRes.EXPECT().MatchedCount().Return(int64(1))
	mockUpdateRes.EXPECT().MatchedCount().Return(int64(0))

	assert.NoError(t, repo.UpdateComment(ctx, postId, commentId, "edited"))
	assert.NoError(t, repo.DeleteComment(ctx, postId, commentId))
	assert.ErrorIs(t, repo.DeleteComment(ctx, postId, commentId), apperr.ErrNotFound)
}

func TestSearch(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockMongoColl := NewMockIMongoCollection(ctrl)
	mockCursor := NewMockIMongoCursor(ctrl)
	repo := &Repo{posts: mockMongoColl}

	t.Run("window and total", func(t *testing.T) {
		res := facetResult{Data: []*Post{{Title: "a"}, {Title: "b"}}}
		res.Metadata = append(res.Metadata, struct {
			Total int64 `bson:"total"`
		}{Total: 25})

		mockMongoColl.EXPECT().Aggregate(ctx, gomock.Any()).Return(mockCursor, nil)
		mockCursor.EXPECT().
			All(ctx, gomock.AssignableToTypeOf(&[]facetResult{})).
			SetArg(1, []facetResult{res}).
			Return(nil)
		mockCursor.EXPECT().Close(ctx).Return(nil)

		posts, total, err := repo.Search(ctx, mongo.Pipeline{})
		assert.NoError(t, err)
		assert.Len(t, posts, 2)
		assert.Equal(t, int64(25), total)
	})

	t.Run("no matches", func(t *testing.T) {
		mockMongoColl.EXPECT().Aggregate(ctx, gomock.Any()).Return(mockCursor, nil)
		mockCursor.EXPECT().
			All(ctx, gomock.Any()).
			SetArg(1, []facetResult{{}}).
			Return(nil)
		mockCursor.EXPECT().Close(ctx).Return(nil)

		posts, total, err := repo.Search(ctx, mongo.Pipeline{})
		assert.NoError(t, err)
		assert.NotNil(t, posts)
		assert.Empty(t, posts)
		assert.Zero(t, total)
	})

	t.Run("aggregate failure", func(t *testing.T) {
		mockMongoColl.EXPECT().Aggregate(ctx, gomock.Any()).Return(nil, fmt.Errorf("timeout"))

		_, _, err := repo.Search(ctx, mongo.Pipeline{})
		assert.ErrorContains(t, err, "timeout")
	})
}

func TestCommentsByUser(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	mockMongoColl := NewMockIMongoCollection(ctrl)
	mockCursor := NewMockIMongoCursor(ctrl)
	repo := &Repo{posts: mockMongoColl}

	expected := []*comment.UserComment{{Text: "first"}, {Text: "second"}}
	mockMongoColl.EXPECT().Aggregate(ctx, gomock.AssignableToTypeOf(mongo.Pipeline{})).Return(mockCursor, nil)
	mockCursor.EXPECT().
		All(ctx, gomock.AssignableToTypeOf(&expected)).
		SetArg(1, expected).
		Return(nil)
	mockCursor.EXPECT().Close(ctx).Return(nil)

	comments, err := repo.CommentsByUser(ctx, "author")
	assert.NoError(t, err)
	assert.Equal(t, expected, comments)
}
