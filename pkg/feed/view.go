package feed

import (
	"time"

	"pinboard/pkg/common"
	"pinboard/pkg/likes"
	"pinboard/pkg/post"
)

type CommentsStatus struct {
	Count     int  `json:"count"`
	Commented bool `json:"commented"`
}

// View is a post as the requesting viewer sees it.
type View struct {
	Id          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description"`
	ImageURL    string         `json:"imageUrl"`
	CreatedBy   string         `json:"createdBy"`
	Likes       likes.Status   `json:"likes"`
	Comments    CommentsStatus `json:"comments"`
	Saved       bool           `json:"saved"`
	Tags        []string       `json:"tags"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

func NewView(p *post.Post, v *Viewer) *View {
	rel := Resolve(p, v)

	tags := p.Tags
	if tags == nil {
		tags = []string{}
	}

	return &View{
		Id:          p.Id.Hex(),
		Title:       p.Title,
		Description: p.Description,
		ImageURL:    p.ImageURL,
		CreatedBy:   p.CreatedBy,
		Likes:       likes.Status{Count: len(p.Likes), Liked: rel.Liked},
		Comments:    CommentsStatus{Count: len(p.Comments), Commented: rel.Commented},
		Saved:       rel.Saved,
		Tags:        tags,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

// Response is the listing body sent to clients.
type Response struct {
	Status     string  `json:"status"`
	Results    int     `json:"results"`
	Data       []*View `json:"data"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	Total      int64   `json:"total"`
	TotalPages int     `json:"totalPages"`
}

func (r *Result) Response() *Response {
	return &Response{
		Status:     common.StatusSuccess,
		Results:    len(r.Views),
		Data:       r.Views,
		Page:       r.Page.Number,
		Limit:      r.Page.Limit,
		Total:      r.Total,
		TotalPages: r.TotalPages,
	}
}
