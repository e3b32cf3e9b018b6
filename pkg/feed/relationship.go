package feed

import (
	"pinboard/pkg/likes"
	"pinboard/pkg/post"
)

// Viewer is the requesting user as far as personalisation cares. A nil
// *Viewer is the anonymous viewer.
type Viewer struct {
	Id    string
	saved map[string]struct{}
}

func NewViewer(id string, savedPostIds []string) *Viewer {
	if id == "" {
		return nil
	}
	v := &Viewer{Id: id, saved: make(map[string]struct{}, len(savedPostIds))}
	for _, pid := range savedPostIds {
		v.saved[pid] = struct{}{}
	}
	return v
}

func (v *Viewer) Saved(postId string) bool {
	if v == nil {
		return false
	}
	_, ok := v.saved[postId]
	return ok
}

type Relationship struct {
	Liked     bool
	Commented bool
	Saved     bool
}

// Resolve computes the viewer-relative flags of one post. The anonymous viewer
// gets all flags false.
func Resolve(p *post.Post, v *Viewer) Relationship {
	if v == nil || v.Id == "" {
		return Relationship{}
	}

	rel := Relationship{
		Liked: likes.Contains(p.Likes, v.Id),
		Saved: v.Saved(p.Id.Hex()),
	}
	for _, c := range p.Comments {
		if c != nil && c.CommentedBy == v.Id {
			rel.Commented = true
			break
		}
	}
	return rel
}
