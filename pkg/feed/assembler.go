package feed

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"pinboard/pkg/logger"
	"pinboard/pkg/post"
)

//go:generate mockgen -source=assembler.go -destination=mock_assembler.go -package=feed

type (
	// Source runs a feed pipeline and returns the window plus the total.
	Source interface {
		Search(context.Context, mongo.Pipeline) ([]*post.Post, int64, error)
	}

	SavedLister interface {
		SavedPostIDs(ctx context.Context, userId string) ([]string, error)
	}
)

type Assembler struct {
	source Source
	saved  SavedLister
}

type Result struct {
	Views      []*View
	Total      int64
	Page       Page
	TotalPages int
}

func NewAssembler(source Source, saved SavedLister) *Assembler {
	return &Assembler{source: source, saved: saved}
}

// Pipeline is the whole listing as one aggregation, so the count and the
// window come from the same snapshot.
func Pipeline(q *Query) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: q.Filter()}},
		derivedFields(),
		{{Key: "$facet", Value: bson.D{
			{Key: "metadata", Value: bson.A{bson.D{{Key: "$count", Value: "total"}}}},
			{Key: "data", Value: bson.A{
				q.Sort.Stage(),
				bson.D{{Key: "$skip", Value: q.Page.Skip()}},
				bson.D{{Key: "$limit", Value: int64(q.Page.Limit)}},
			}},
		}}},
	}
}

// Search runs q and personalises every post for viewerId ("" is anonymous).
func (a *Assembler) Search(ctx context.Context, q *Query, viewerId string) (*Result, error) {
	viewer, err := a.Viewer(ctx, viewerId)
	if err != nil {
		return nil, err
	}
	return a.run(ctx, q, viewer)
}

// Saved lists the posts viewerId has saved, filtered and sorted like any other
// listing.
func (a *Assembler) Saved(ctx context.Context, q *Query, viewerId string) (*Result, error) {
	ids, err := a.saved.SavedPostIDs(ctx, viewerId)
	if err != nil {
		return nil, fmt.Errorf("feed: failed loading saved posts: %w", err)
	}

	q.IDs = make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		oid, err := primitive.ObjectIDFromHex(id)
		if err != nil {
			logger.Log(ctx).Warnw("skipping malformed saved post id", "user", viewerId, "post", id)
			continue
		}
		q.IDs = append(q.IDs, oid)
	}

	return a.run(ctx, q, NewViewer(viewerId, ids))
}

// Viewer loads what personalisation needs to know about viewerId.
func (a *Assembler) Viewer(ctx context.Context, viewerId string) (*Viewer, error) {
	if viewerId == "" {
		return nil, nil
	}
	ids, err := a.saved.SavedPostIDs(ctx, viewerId)
	if err != nil {
		return nil, fmt.Errorf("feed: failed loading saved posts: %w", err)
	}
	return NewViewer(viewerId, ids), nil
}

// View personalises a single post.
func (a *Assembler) View(ctx context.Context, p *post.Post, viewerId string) (*View, error) {
	viewer, err := a.Viewer(ctx, viewerId)
	if err != nil {
		return nil, err
	}
	return NewView(p, viewer), nil
}

func (a *Assembler) run(ctx context.Context, q *Query, viewer *Viewer) (*Result, error) {
	posts, total, err := a.source.Search(ctx, Pipeline(q))
	if err != nil {
		return nil, err
	}

	views := make([]*View, 0, len(posts))
	for _, p := range posts {
		views = append(views, NewView(p, viewer))
	}

	logger.Log(ctx).Debugw("feed assembled", "total", total, "page", q.Page.Number, "returned", len(views))
	return &Result{
		Views:      views,
		Total:      total,
		Page:       q.Page,
		TotalPages: q.Page.TotalPages(total),
	}, nil
}
