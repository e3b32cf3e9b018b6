package comment

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	MaxPerPost = 100
	MaxTextLen = 100
)

type Comment struct {
	Id          primitive.ObjectID `json:"id" bson:"_id"`
	Text        string             `json:"text" bson:"text"`
	CommentedBy string             `json:"commentedBy" bson:"commentedBy"`
	CreatedAt   time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// UserComment is a comment listed outside its post.
type UserComment struct {
	Id        primitive.ObjectID `json:"id" bson:"_id"`
	PostId    primitive.ObjectID `json:"postId" bson:"postId"`
	Text      string             `json:"text" bson:"text"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
}

// Input is the add/edit payload; Text is trimmed before validation.
type Input struct {
	Text string `json:"text" validate:"required,max=100"`
}

func (in *Input) Normalize() {
	in.Text = strings.TrimSpace(in.Text)
}

func New(authorId, text string) *Comment {
	now := time.Now().UTC()
	return &Comment{
		Id:          primitive.NewObjectID(),
		Text:        text,
		CommentedBy: authorId,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// CanModify reports whether userId may edit or delete the comment:
// its author or the owner of the post it belongs to.
func (c *Comment) CanModify(userId, postOwnerId string) bool {
	return userId != "" && (userId == c.CommentedBy || userId == postOwnerId)
}
