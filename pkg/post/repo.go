package post

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"pinboard/pkg/apperr"
	"pinboard/pkg/comment"
	"pinboard/pkg/likes"
	"pinboard/pkg/logger"
)

var (
	ErrPostNotFound    = apperr.NotFound("No post found with that ID")
	ErrCommentNotFound = apperr.NotFound("No comment found with that ID")
	ErrCommentLimit    = apperr.Validation("comment limit reached")
)

type Repo struct {
	posts IMongoCollection
}

// facetResult is the single document the feed pipeline's $facet stage yields.
type facetResult struct {
	Metadata []struct {
		Total int64 `bson:"total"`
	} `bson:"metadata"`
	Data []*Post `bson:"data"`
}

func NewPostRepo(postsCol *mongo.Collection) *Repo {
	posts := &MongoCollection{
		Coll: postsCol,
	}
	return &Repo{
		posts: posts,
	}
}

func (r *Repo) EnsureIndexes(ctx context.Context) error {
	err := r.posts.CreateIndexes(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdBy", Value: 1}, {Key: "createdAt", Value: -1}}},
		{Keys: bson.D{{Key: "tags", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "comments.commentedBy", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("post/repo: failed creating indexes: %w", err)
	}
	return nil
}

func (r *Repo) Add(ctx context.Context, p *Post) (primitive.ObjectID, error) {
	_, err := r.posts.InsertOne(ctx, p)
	if err != nil {
		return primitive.NilObjectID, fmt.Errorf("post/repo: failed inserting a post: %w", err)
	}
	return p.Id, nil
}

func (r *Repo) GetById(ctx context.Context, id primitive.ObjectID) (*Post, error) {
	post := new(Post)
	err := r.posts.FindOne(ctx, bson.M{"_id": id}).Decode(post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post/repo: failed finding post: %w", err)
	}
	return post, nil
}

func (r *Repo) Count(ctx context.Context) (int64, error) {
	n, err := r.posts.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("post/repo: failed counting posts: %w", err)
	}
	return n, nil
}

// Update applies patch to a post owned by ownerId. A non-empty imageURL
// replaces the post image. Returns the updated post.
func (r *Repo) Update(ctx context.Context, id primitive.ObjectID, ownerId string, patch *Patch, imageURL, imageKey string) (*Post, error) {
	set := bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}
	if patch.Title != nil {
		set = append(set, bson.E{Key: "title", Value: *patch.Title})
	}
	if patch.Description != nil {
		set = append(set, bson.E{Key: "description", Value: *patch.Description})
	}
	if patch.Tags != nil {
		set = append(set, bson.E{Key: "tags", Value: patch.Tags})
	}
	if imageURL != "" {
		set = append(set,
			bson.E{Key: "imageUrl", Value: imageURL},
			bson.E{Key: "imageKey", Value: imageKey})
	}

	filter := bson.D{{Key: "_id", Value: id}, {Key: "createdBy", Value: ownerId}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	post := new(Post)
	err := r.posts.FindOneAndUpdate(ctx, filter, bson.D{{Key: "$set", Value: set}}, opts).Decode(post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post/repo: failed updating post: %w", err)
	}
	return post, nil
}

func (r *Repo) Delete(ctx context.Context, id primitive.ObjectID) error {
	res, err := r.posts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("post/repo: failed deleting post: %w", err)
	}
	if res.DeletedCount() == 0 {
		return ErrPostNotFound
	}
	return nil
}

// ToggleLike flips userId's membership in the post's likes in one atomic
// update and returns the post as it is afterwards.
func (r *Repo) ToggleLike(ctx context.Context, id primitive.ObjectID, userId string) (*Post, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	post := new(Post)
	err := r.posts.FindOneAndUpdate(ctx, bson.M{"_id": id}, likes.Toggle(userId), opts).Decode(post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrPostNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("post/repo: failed toggling like: %w", err)
	}
	return post, nil
}

// AddComment pushes c unless the post already holds the maximum number of
// comments. The limit check and the push are one update.
func (r *Repo) AddComment(ctx context.Context, postId primitive.ObjectID, c *comment.Comment) error {
	filter := bson.D{
		{Key: "_id", Value: postId},
		{Key: fmt.Sprintf("comments.%d", comment.MaxPerPost-1), Value: bson.D{{Key: "$exists", Value: false}}},
	}
	update := bson.D{
		{Key: "$push", Value: bson.D{{Key: "comments", Value: c}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: c.CreatedAt}}},
	}
	res, err := r.posts.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("post/repo: failed adding comment: %w", err)
	}
	if res.MatchedCount() > 0 {
		return nil
	}

	// Nothing matched: either the post is gone or it is full.
	if _, err := r.GetById(ctx, postId); err != nil {
		return err
	}
	logger.Log(ctx).Debugw("comment rejected, post is full", "post", postId.Hex())
	return ErrCommentLimit
}

func (r *Repo) UpdateComment(ctx context.Context, postId, commentId primitive.ObjectID, text string) error {
	now := time.Now().UTC()
	filter := bson.D{{Key: "_id", Value: postId}, {Key: "comments._id", Value: commentId}}
	update := bson.D{{Key: "$set", Value: bson.D{
		{Key: "comments.$.text", Value: text},
		{Key: "comments.$.updatedAt", Value: now},
		{Key: "updatedAt", Value: now},
	}}}
	res, err := r.posts.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("post/repo: failed updating comment: %w", err)
	}
	if res.MatchedCount() == 0 {
		return ErrCommentNotFound
	}
	return nil
}

func (r *Repo) DeleteComment(ctx context.Context, postId, commentId primitive.ObjectID) error {
	filter := bson.D{{Key: "_id", Value: postId}, {Key: "comments._id", Value: commentId}}
	update := bson.D{
		{Key: "$pull", Value: bson.D{{Key: "comments", Value: bson.D{{Key: "_id", Value: commentId}}}}},
		{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: time.Now().UTC()}}},
	}
	res, err := r.posts.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("post/repo: failed deleting comment: %w", err)
	}
	if res.MatchedCount() == 0 {
		return ErrCommentNotFound
	}
	return nil
}

// CommentsByUser lists every comment userId wrote, newest first.
func (r *Repo) CommentsByUser(ctx context.Context, userId string) ([]*comment.UserComment, error) {
	byUser := bson.D{{Key: "$match", Value: bson.D{{Key: "comments.commentedBy", Value: userId}}}}
	pipeline := mongo.Pipeline{
		byUser,
		{{Key: "$unwind", Value: "$comments"}},
		byUser,
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: "$comments._id"},
			{Key: "postId", Value: "$_id"},
			{Key: "text", Value: "$comments.text"},
			{Key: "createdAt", Value: "$comments.createdAt"},
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}}},
	}

	cursor, err := r.posts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("post/repo: failed aggregating user comments: %w", err)
	}
	defer cursor.Close(ctx)

	comments := []*comment.UserComment{}
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("post/repo: failed geting comments from cursor: %w", err)
	}
	return comments, nil
}

// Search runs a feed pipeline ending in a {metadata, data} $facet and returns
// the data window together with the total match count.
func (r *Repo) Search(ctx context.Context, pipeline mongo.Pipeline) ([]*Post, int64, error) {
	cursor, err := r.posts.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, 0, fmt.Errorf("post/repo: failed aggregating posts: %w", err)
	}
	defer cursor.Close(ctx)

	results := []facetResult{}
	if err := cursor.All(ctx, &results); err != nil {
		return nil, 0, fmt.Errorf("post/repo: failed geting posts from cursor: %w", err)
	}

	posts := []*Post{}
	var total int64
	if len(results) > 0 {
		if len(results[0].Metadata) > 0 {
			total = results[0].Metadata[0].Total
		}
		if results[0].Data != nil {
			posts = results[0].Data
		}
	}
	return posts, total, nil
}
