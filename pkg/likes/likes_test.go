package likes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestStatusOf(t *testing.T) {
	likes := []string{"a", "b"}

	assert.Equal(t, Status{Liked: true, Count: 2}, StatusOf(likes, "a"))
	assert.Equal(t, Status{Liked: false, Count: 2}, StatusOf(likes, "c"))
	assert.Equal(t, Status{Liked: false, Count: 2}, StatusOf(likes, ""), "anonymous never likes")
	assert.Equal(t, Status{}, StatusOf(nil, "a"))
}

func field(t *testing.T, d bson.D, key string) interface{} {
	t.Helper()
	for _, e := range d {
		if e.Key == key {
			return e.Value
		}
	}
	require.Failf(t, "missing key", "%q not in %v", key, d)
	return nil
}

func TestTogglePipeline(t *testing.T) {
	p := Toggle("u1")
	require.Len(t, p, 1)

	set := field(t, p[0], "$set").(bson.D)
	assert.Equal(t, "$$NOW", field(t, set, "updatedAt"))

	let := field(t, field(t, set, "likes").(bson.D), "$let").(bson.D)
	vars := field(t, let, "vars").(bson.D)
	assert.Equal(t, bson.D{{Key: "$ifNull", Value: bson.A{"$likes", bson.A{}}}}, field(t, vars, "likes"),
		"missing likes read as an empty set")

	branches := field(t, field(t, let, "in").(bson.D), "$cond").(bson.A)
	require.Len(t, branches, 3)

	// already liked?
	assert.Equal(t, bson.D{{Key: "$in", Value: bson.A{"u1", "$$likes"}}}, branches[0])

	// then: drop every occurrence of the user
	remove := field(t, branches[1].(bson.D), "$filter").(bson.D)
	assert.Equal(t, "$$likes", field(t, remove, "input"))
	assert.Equal(t, bson.D{{Key: "$ne", Value: bson.A{"$$this", "u1"}}}, field(t, remove, "cond"))

	// else: append the user
	assert.Equal(t, bson.D{{Key: "$concatArrays", Value: bson.A{"$$likes", bson.A{"u1"}}}}, branches[2])
}
