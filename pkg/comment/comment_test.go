package comment

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	c := New("author", "nice shot")
	assert.False(t, c.Id.IsZero())
	assert.Equal(t, "author", c.CommentedBy)
	assert.Equal(t, c.CreatedAt, c.UpdatedAt)
}

func TestCanModify(t *testing.T) {
	c := &Comment{CommentedBy: "author"}

	assert.True(t, c.CanModify("author", "owner"))
	assert.True(t, c.CanModify("owner", "owner"))
	assert.False(t, c.CanModify("stranger", "owner"))
	assert.False(t, c.CanModify("", ""))
}

func TestInputNormalize(t *testing.T) {
	in := Input{Text: "  hello \n"}
	in.Normalize()
	assert.Equal(t, "hello", in.Text)
}
