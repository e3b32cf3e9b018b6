// Package feed builds, runs and personalises post listings: filtering, sorting,
// pagination and the viewer-relative liked/commented/saved flags.
package feed

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pinboard/pkg/apperr"
	"pinboard/pkg/common"
	"pinboard/pkg/post"
)

const dateOnly = "2006-01-02"

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02T15:04", dateOnly}

type Query struct {
	Search         string
	Tags           []string
	CreatedBy      string
	CreatedAtStart *time.Time
	CreatedAtEnd   *time.Time
	// IDs restricts the result to these posts when non-nil. An empty non-nil
	// slice matches nothing.
	IDs  []primitive.ObjectID
	Sort Sort
	Page Page
}

// ParseQuery reads the listing parameters. Malformed owner ids and dates are
// validation errors; sort and pagination fall back to their defaults.
func ParseQuery(values url.Values, maxLimit int) (*Query, error) {
	q := &Query{
		Search: strings.TrimSpace(values.Get("search")),
		Sort:   ParseSort(values.Get("sort")),
		Page:   ParsePage(values.Get("page"), values.Get("limit"), maxLimit),
	}

	if raw, ok := values["tags"]; ok {
		if tags := post.ParseTags(raw); len(tags) > 0 {
			q.Tags = tags
		}
	}

	if raw := strings.TrimSpace(values.Get("createdBy")); raw != "" {
		if _, err := common.ParseID(raw, "user"); err != nil {
			return nil, err
		}
		q.CreatedBy = raw
	}

	var err error
	if q.CreatedAtStart, err = parseBound(values.Get("createdAtStart"), "createdAtStart", false); err != nil {
		return nil, err
	}
	if q.CreatedAtEnd, err = parseBound(values.Get("createdAtEnd"), "createdAtEnd", true); err != nil {
		return nil, err
	}

	return q, nil
}

// parseBound accepts RFC 3339 timestamps and plain dates. A plain date used as
// an upper bound covers that whole day.
func parseBound(raw, name string, upper bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range dateLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}
		if upper && layout == dateOnly {
			t = t.Add(24*time.Hour - time.Nanosecond)
		}
		t = t.UTC()
		return &t, nil
	}
	return nil, apperr.Validation("Invalid %s date: %s", name, raw)
}

// Filter is the $match predicate. All clauses are ANDed; an empty query
// matches every post.
func (q *Query) Filter() bson.D {
	filter := bson.D{}

	if q.Search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(q.Search), Options: "i"}
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "title", Value: pattern}},
			bson.D{{Key: "description", Value: pattern}},
		}})
	}

	if len(q.Tags) > 0 {
		filter = append(filter, bson.E{Key: "tags", Value: bson.D{{Key: "$all", Value: q.Tags}}})
	}

	if q.CreatedBy != "" {
		filter = append(filter, bson.E{Key: "createdBy", Value: q.CreatedBy})
	}

	if q.CreatedAtStart != nil || q.CreatedAtEnd != nil {
		createdAt := bson.D{}
		if q.CreatedAtStart != nil {
			createdAt = append(createdAt, bson.E{Key: "$gte", Value: *q.CreatedAtStart})
		}
		if q.CreatedAtEnd != nil {
			createdAt = append(createdAt, bson.E{Key: "$lte", Value: *q.CreatedAtEnd})
		}
		filter = append(filter, bson.E{Key: "createdAt", Value: createdAt})
	}

	if q.IDs != nil {
		filter = append(filter, bson.E{Key: "_id", Value: bson.D{{Key: "$in", Value: q.IDs}}})
	}

	return filter
}
