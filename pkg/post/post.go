package post

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"pinboard/pkg/comment"
)

const (
	MaxTitleLen       = 100
	MaxDescriptionLen = 1000
	MaxTags           = 10
	MaxTagLen         = 20
)

type Post struct {
	Id          primitive.ObjectID `json:"id" bson:"_id"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description" bson:"description"`
	ImageURL    string             `json:"imageUrl" bson:"imageUrl"`
	// Key of the stored image, released when the post goes away.
	ImageKey  string             `json:"-" bson:"imageKey,omitempty"`
	CreatedBy string             `json:"createdBy" bson:"createdBy"`
	Likes     []string           `json:"likes" bson:"likes"`
	Comments  []*comment.Comment `json:"comments" bson:"comments"`
	Tags      []string           `json:"tags" bson:"tags"`
	CreatedAt time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Input is the create payload.
type Input struct {
	Title       string   `json:"title" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=1000"`
	Tags        []string `json:"tags" validate:"max=10,dive,max=20"`
}

// Patch is the update payload. Nil fields are left untouched.
type Patch struct {
	Title       *string  `json:"title" validate:"omitnil,min=1,max=100"`
	Description *string  `json:"description" validate:"omitnil,max=1000"`
	Tags        []string `json:"tags" validate:"max=10,dive,max=20"`
}

func (in *Input) Normalize() {
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	in.Tags = CleanTags(in.Tags)
}

func (p *Patch) Normalize() {
	if p.Title != nil {
		t := strings.TrimSpace(*p.Title)
		p.Title = &t
	}
	if p.Description != nil {
		d := strings.TrimSpace(*p.Description)
		p.Description = &d
	}
	if p.Tags != nil {
		p.Tags = CleanTags(p.Tags)
	}
}

func (p *Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Tags == nil
}

// CleanTags trims tags and drops empty ones. A non-nil input always gives a
// non-nil result so "clear all tags" survives normalization.
func CleanTags(raw []string) []string {
	if raw == nil {
		return nil
	}
	tags := make([]string, 0, len(raw))
	for _, t := range raw {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// ParseTags splits form values like "a, b" or repeated fields into tags.
func ParseTags(values []string) []string {
	tags := []string{}
	for _, v := range values {
		tags = append(tags, strings.Split(v, ",")...)
	}
	return CleanTags(tags)
}

func New(ownerId string, in *Input, imageURL, imageKey string) *Post {
	now := time.Now().UTC()
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	return &Post{
		Id:          primitive.NewObjectID(),
		Title:       in.Title,
		Description: in.Description,
		ImageURL:    imageURL,
		ImageKey:    imageKey,
		CreatedBy:   ownerId,
		Likes:       []string{},
		Comments:    []*comment.Comment{},
		Tags:        tags,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func (p *Post) IsOwner(userId string) bool {
	return userId != "" && p.CreatedBy == userId
}

func (p *Post) Comment(id primitive.ObjectID) (*comment.Comment, bool) {
	for _, c := range p.Comments {
		if c.Id == id {
			return c, true
		}
	}
	return nil, false
}
