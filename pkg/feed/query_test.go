package feed

import (
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pinboard/pkg/apperr"
)

func lookup(d bson.D, key string) (interface{}, bool) {
	for _, e := range d {
		if e.Key == key {
			return e.Value, true
		}
	}
	return nil, false
}

func TestParseQueryDefaults(t *testing.T) {
	q, err := ParseQuery(url.Values{}, 100)
	require.NoError(t, err)

	assert.Equal(t, Newest, q.Sort)
	assert.Equal(t, Page{Number: 1, Limit: 10}, q.Page)
	assert.Empty(t, q.Filter(), "no filters must match every post")
}

func TestParseQueryFilters(t *testing.T) {
	owner := primitive.NewObjectID().Hex()
	values := url.Values{
		"search":         {"  sun.set "},
		"tags":           {"nature, sky", "sea"},
		"createdBy":      {owner},
		"createdAtStart": {"2024-01-01"},
		"createdAtEnd":   {"2024-01-31"},
		"sort":           {"most_liked"},
		"page":           {"2"},
		"limit":          {"5"},
	}

	q, err := ParseQuery(values, 100)
	require.NoError(t, err)

	assert.Equal(t, "sun.set", q.Search)
	assert.Equal(t, []string{"nature", "sky", "sea"}, q.Tags)
	assert.Equal(t, owner, q.CreatedBy)
	assert.Equal(t, MostLiked, q.Sort)
	assert.Equal(t, Page{Number: 2, Limit: 5}, q.Page)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *q.CreatedAtStart)
	assert.Equal(t, time.Date(2024, 1, 31, 23, 59, 59, 999999999, time.UTC), *q.CreatedAtEnd)

	f := q.Filter()

	or, ok := lookup(f, "$or")
	require.True(t, ok)
	clauses := or.(bson.A)
	require.Len(t, clauses, 2)
	title, _ := lookup(clauses[0].(bson.D), "title")
	assert.Equal(t, primitive.Regex{Pattern: `sun\.set`, Options: "i"}, title)

	tags, ok := lookup(f, "tags")
	require.True(t, ok)
	all, _ := lookup(tags.(bson.D), "$all")
	assert.Equal(t, []string{"nature", "sky", "sea"}, all, "tags are ANDed")

	createdBy, _ := lookup(f, "createdBy")
	assert.Equal(t, owner, createdBy)

	createdAt, ok := lookup(f, "createdAt")
	require.True(t, ok)
	assert.Len(t, createdAt.(bson.D), 2)

	_, ok = lookup(f, "_id")
	assert.False(t, ok)
}

func TestParseQueryErrors(t *testing.T) {
	cases := map[string]url.Values{
		"bad owner":      {"createdBy": {"not-an-id"}},
		"bad start date": {"createdAtStart": {"yesterday"}},
		"bad end date":   {"createdAtEnd": {"2024-13-45"}},
	}
	for name, values := range cases {
		t.Run(name, func(t *testing.T) {
			q, err := ParseQuery(values, 100)
			assert.Nil(t, q)
			assert.ErrorIs(t, err, apperr.ErrValidation)
		})
	}
}

func TestParseQueryTimestampBounds(t *testing.T) {
	q, err := ParseQuery(url.Values{"createdAtEnd": {"2024-05-01T10:00:00+02:00"}}, 100)
	require.NoError(t, err)
	assert.Nil(t, q.CreatedAtStart)
	assert.Equal(t, time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC), *q.CreatedAtEnd)
}

func TestFilterIDs(t *testing.T) {
	q := &Query{IDs: []primitive.ObjectID{}}
	ids, ok := lookup(q.Filter(), "_id")
	require.True(t, ok, "an empty id set must still restrict the result")
	in, _ := lookup(ids.(bson.D), "$in")
	assert.Empty(t, in)
}

func TestEmptyTagsIgnored(t *testing.T) {
	q, err := ParseQuery(url.Values{"tags": {" , "}}, 100)
	require.NoError(t, err)
	assert.Nil(t, q.Tags)
	_, ok := lookup(q.Filter(), "tags")
	assert.False(t, ok)
}
