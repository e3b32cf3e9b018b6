package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pinboard/pkg/apperr"
	"pinboard/pkg/comment"
	. "pinboard/pkg/common"
	"pinboard/pkg/feed"
	"pinboard/pkg/imagestore"
	"pinboard/pkg/likes"
	"pinboard/pkg/logger"
	"pinboard/pkg/post"
	"pinboard/pkg/sessions"
)

//go:generate mockgen -source=handlers.go -destination=mock_handlers.go -package=api

const (
	imageField = "postImage"
	// form fields on top of the image
	formOverhead = 1 << 20
	maxJSONBody  = 64 << 10
)

type (
	PostRepo interface {
		Add(context.Context, *post.Post) (primitive.ObjectID, error)
		GetById(context.Context, primitive.ObjectID) (*post.Post, error)
		Update(ctx context.Context, id primitive.ObjectID, ownerId string, patch *post.Patch, imageURL, imageKey string) (*post.Post, error)
		Delete(context.Context, primitive.ObjectID) error
		ToggleLike(ctx context.Context, id primitive.ObjectID, userId string) (*post.Post, error)
		AddComment(context.Context, primitive.ObjectID, *comment.Comment) error
		UpdateComment(ctx context.Context, postId, commentId primitive.ObjectID, text string) error
		DeleteComment(ctx context.Context, postId, commentId primitive.ObjectID) error
		CommentsByUser(ctx context.Context, userId string) ([]*comment.UserComment, error)
	}

	Feed interface {
		Search(ctx context.Context, q *feed.Query, viewerId string) (*feed.Result, error)
		Saved(ctx context.Context, q *feed.Query, viewerId string) (*feed.Result, error)
		View(ctx context.Context, p *post.Post, viewerId string) (*feed.View, error)
	}

	SavedPosts interface {
		ToggleSaved(ctx context.Context, userId, postId string) (bool, error)
		RemoveSavedPost(ctx context.Context, postId string) error
	}

	ImageStore interface {
		Save(context.Context, io.Reader) (*imagestore.Image, error)
		Delete(ctx context.Context, key string) error
	}

	Validator interface {
		Validate(interface{}) error
	}

	PostHandler struct {
		Posts        PostRepo
		Feed         Feed
		Saved        SavedPosts
		Images       ImageStore
		Validator    Validator
		MaxPageLimit int
	}
)

// Fields clients may never set themselves.
var (
	createForbidden = []string{"likes", "comments"}
	updateForbidden = []string{"likes", "comments", "createdBy", "imageUrl"}
)

func NewPostHandler(posts PostRepo, f Feed, saved SavedPosts, images ImageStore, v Validator, maxPageLimit int) *PostHandler {
	return &PostHandler{
		Posts:        posts,
		Feed:         f,
		Saved:        saved,
		Images:       images,
		Validator:    v,
		MaxPageLimit: maxPageLimit,
	}
}

// Feeds

// List serves /posts and /posts/search.
func (ph *PostHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := feed.ParseQuery(r.URL.Query(), ph.MaxPageLimit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	ph.search(w, r, q)
}

func (ph *PostHandler) Mine(w http.ResponseWriter, r *http.Request) {
	viewer, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	q, err := feed.ParseQuery(r.URL.Query(), ph.MaxPageLimit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	q.CreatedBy = viewer.Id
	ph.search(w, r, q)
}

func (ph *PostHandler) ByUser(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["userId"]
	if _, err := ParseID(userId, "user"); err != nil {
		WriteError(w, r, err)
		return
	}
	q, err := feed.ParseQuery(r.URL.Query(), ph.MaxPageLimit)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	q.CreatedBy = userId
	ph.search(w, r, q)
}

func (ph *PostHandler) SavedFeed(w http.ResponseWriter, r *http.Request) {
	viewer, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	q, err := feed.ParseQuery(r.URL.Query(), ph.MaxPageLimit)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	res, err := ph.Feed.Saved(r.Context(), q, viewer.Id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeFeed(w, res)
}

func (ph *PostHandler) search(w http.ResponseWriter, r *http.Request, q *feed.Query) {
	res, err := ph.Feed.Search(r.Context(), q, sessions.ViewerID(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	writeFeed(w, res)
}

func writeFeed(w http.ResponseWriter, res *feed.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	WriteRespJSON(w, res.Response())
}

// Single posts

func (ph *PostHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, ok := ph.loadPost(w, r)
	if !ok {
		return
	}
	view, err := ph.Feed.View(r.Context(), p, sessions.ViewerID(r.Context()))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, view)
}

func (ph *PostHandler) Create(w http.ResponseWriter, r *http.Request) {
	author, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := parseMultipart(w, r); err != nil {
		WriteError(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	form := r.MultipartForm.Value
	if err := rejectFields(form, createForbidden); err != nil {
		WriteError(w, r, err)
		return
	}

	in := &post.Input{
		Title:       firstValue(form, "title"),
		Description: firstValue(form, "description"),
		Tags:        post.ParseTags(form["tags"]),
	}
	in.Normalize()
	if err := ph.Validator.Validate(in); err != nil {
		WriteError(w, r, err)
		return
	}

	file, err := openImage(r.MultipartForm)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if file == nil {
		WriteError(w, r, apperr.Validation("A post must have an image."))
		return
	}
	defer file.Close()

	img, err := ph.Images.Save(r.Context(), file)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	p := post.New(author.Id, in, img.URL, img.Key)
	if _, err := ph.Posts.Add(r.Context(), p); err != nil {
		ph.releaseImage(r.Context(), img.Key)
		WriteError(w, r, err)
		return
	}

	logger.Log(r.Context()).Infow("post created", "post", p.Id.Hex(), "user", author.Id)
	WriteData(w, http.StatusCreated, feed.NewView(p, feed.NewViewer(author.Id, nil)))
}

func (ph *PostHandler) Update(w http.ResponseWriter, r *http.Request) {
	editor, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	p, ok := ph.loadPost(w, r)
	if !ok {
		return
	}
	if !p.IsOwner(editor.Id) {
		WriteError(w, r, apperr.Forbidden("You can only update your own posts"))
		return
	}

	var (
		patch *post.Patch
		file  multipart.File
	)
	if isMultipart(r) {
		if err := parseMultipart(w, r); err != nil {
			WriteError(w, r, err)
			return
		}
		defer r.MultipartForm.RemoveAll()
		if patch, err = patchFromForm(r.MultipartForm.Value); err != nil {
			WriteError(w, r, err)
			return
		}
		if file, err = openImage(r.MultipartForm); err != nil {
			WriteError(w, r, err)
			return
		}
		if file != nil {
			defer file.Close()
		}
	} else if patch, err = patchFromJSON(w, r); err != nil {
		WriteError(w, r, err)
		return
	}

	patch.Normalize()
	if patch.Empty() && file == nil {
		WriteError(w, r, apperr.Validation("No fields to update"))
		return
	}
	if err := ph.Validator.Validate(patch); err != nil {
		WriteError(w, r, err)
		return
	}

	var img *imagestore.Image
	if file != nil {
		if img, err = ph.Images.Save(r.Context(), file); err != nil {
			WriteError(w, r, err)
			return
		}
	}

	imageURL, imageKey := "", ""
	if img != nil {
		imageURL, imageKey = img.URL, img.Key
	}
	updated, err := ph.Posts.Update(r.Context(), p.Id, editor.Id, patch, imageURL, imageKey)
	if err != nil {
		if img != nil {
			ph.releaseImage(r.Context(), img.Key)
		}
		WriteError(w, r, err)
		return
	}
	if img != nil {
		ph.releaseImage(r.Context(), p.ImageKey)
	}

	view, err := ph.Feed.View(r.Context(), updated, editor.Id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, view)
}

func (ph *PostHandler) Delete(w http.ResponseWriter, r *http.Request) {
	owner, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	p, ok := ph.loadPost(w, r)
	if !ok {
		return
	}
	if !p.IsOwner(owner.Id) {
		WriteError(w, r, apperr.Forbidden("You can only delete your own posts"))
		return
	}

	if err := ph.Posts.Delete(r.Context(), p.Id); err != nil {
		WriteError(w, r, err)
		return
	}

	// The post is gone; leftovers below are only logged.
	ph.releaseImage(r.Context(), p.ImageKey)
	if err := ph.Saved.RemoveSavedPost(r.Context(), p.Id.Hex()); err != nil {
		logger.Log(r.Context()).Errorw("failed removing deleted post from saved lists", "post", p.Id.Hex(), "err", err)
	}

	logger.Log(r.Context()).Infow("post deleted", "post", p.Id.Hex(), "user", owner.Id)
	w.WriteHeader(http.StatusNoContent)
}

// Relations

type saveStatus struct {
	Saved bool `json:"saved"`
}

func (ph *PostHandler) Like(w http.ResponseWriter, r *http.Request) {
	voter, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	postId, err := ParseID(mux.Vars(r)["postId"], "post")
	if err != nil {
		WriteError(w, r, err)
		return
	}

	p, err := ph.Posts.ToggleLike(r.Context(), postId, voter.Id)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, likes.StatusOf(p.Likes, voter.Id))
}

func (ph *PostHandler) Save(w http.ResponseWriter, r *http.Request) {
	viewer, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	p, ok := ph.loadPost(w, r)
	if !ok {
		return
	}

	saved, err := ph.Saved.ToggleSaved(r.Context(), viewer.Id, p.Id.Hex())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, saveStatus{Saved: saved})
}

// Comments

func (ph *PostHandler) ListComments(w http.ResponseWriter, r *http.Request) {
	p, ok := ph.loadPost(w, r)
	if !ok {
		return
	}
	comments := p.Comments
	if comments == nil {
		comments = []*comment.Comment{}
	}
	WriteData(w, http.StatusOK, comments)
}

func (ph *PostHandler) AddComment(w http.ResponseWriter, r *http.Request) {
	commenter, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	postId, err := ParseID(mux.Vars(r)["postId"], "post")
	if err != nil {
		WriteError(w, r, err)
		return
	}
	in, err := ph.commentInput(w, r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	c := comment.New(commenter.Id, in.Text)
	if err := ph.Posts.AddComment(r.Context(), postId, c); err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, http.StatusCreated, c)
}

func (ph *PostHandler) EditComment(w http.ResponseWriter, r *http.Request) {
	editor, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	p, c, ok := ph.loadComment(w, r, editor.Id)
	if !ok {
		return
	}
	in, err := ph.commentInput(w, r)
	if err != nil {
		WriteError(w, r, err)
		return
	}

	if err := ph.Posts.UpdateComment(r.Context(), p.Id, c.Id, in.Text); err != nil {
		WriteError(w, r, err)
		return
	}

	edited := *c
	edited.Text = in.Text
	edited.UpdatedAt = time.Now().UTC()
	WriteData(w, http.StatusOK, &edited)
}

func (ph *PostHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	editor, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	p, c, ok := ph.loadComment(w, r, editor.Id)
	if !ok {
		return
	}

	if err := ph.Posts.DeleteComment(r.Context(), p.Id, c.Id); err != nil {
		WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (ph *PostHandler) MyComments(w http.ResponseWriter, r *http.Request) {
	viewer, err := sessions.GetAuthUser(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	ph.userComments(w, r, viewer.Id)
}

func (ph *PostHandler) UserComments(w http.ResponseWriter, r *http.Request) {
	userId := mux.Vars(r)["userId"]
	if _, err := ParseID(userId, "user"); err != nil {
		WriteError(w, r, err)
		return
	}
	ph.userComments(w, r, userId)
}

func (ph *PostHandler) userComments(w http.ResponseWriter, r *http.Request, userId string) {
	comments, err := ph.Posts.CommentsByUser(r.Context(), userId)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	WriteData(w, http.StatusOK, comments)
}

// Helpers

func (ph *PostHandler) loadPost(w http.ResponseWriter, r *http.Request) (*post.Post, bool) {
	postId, err := ParseID(mux.Vars(r)["postId"], "post")
	if err != nil {
		WriteError(w, r, err)
		return nil, false
	}
	p, err := ph.Posts.GetById(r.Context(), postId)
	if err != nil {
		WriteError(w, r, err)
		return nil, false
	}
	return p, true
}

// loadComment finds the addressed comment and checks userId may modify it.
func (ph *PostHandler) loadComment(w http.ResponseWriter, r *http.Request, userId string) (*post.Post, *comment.Comment, bool) {
	commentId, err := ParseID(mux.Vars(r)["commentId"], "comment")
	if err != nil {
		WriteError(w, r, err)
		return nil, nil, false
	}
	p, ok := ph.loadPost(w, r)
	if !ok {
		return nil, nil, false
	}
	c, found := p.Comment(commentId)
	if !found {
		WriteError(w, r, post.ErrCommentNotFound)
		return nil, nil, false
	}
	if !c.CanModify(userId, p.CreatedBy) {
		WriteError(w, r, apperr.Forbidden("You can only modify your own comments"))
		return nil, nil, false
	}
	return p, c, true
}

func (ph *PostHandler) commentInput(w http.ResponseWriter, r *http.Request) (*comment.Input, error) {
	in := new(comment.Input)
	if err := ParseReqBody(http.MaxBytesReader(w, r.Body, maxJSONBody), in); err != nil {
		return nil, err
	}
	in.Normalize()
	if err := ph.Validator.Validate(in); err != nil {
		return nil, err
	}
	return in, nil
}

func (ph *PostHandler) releaseImage(ctx context.Context, key string) {
	if err := ph.Images.Delete(ctx, key); err != nil {
		logger.Log(ctx).Errorw("failed releasing image", "key", key, "err", err)
	}
}

func isMultipart(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mt == "multipart/form-data"
}

func parseMultipart(w http.ResponseWriter, r *http.Request) error {
	if !isMultipart(r) {
		return apperr.Validation("expected a multipart/form-data body")
	}
	r.Body = http.MaxBytesReader(w, r.Body, imagestore.MaxImageSize+formOverhead)
	if err := r.ParseMultipartForm(formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperr.Validation("image cannot be larger than %d MiB", imagestore.MaxImageSize>>20)
		}
		return apperr.Validation("bad request format")
	}
	return nil
}

// openImage returns nil without error when the form carries no image.
func openImage(form *multipart.Form) (multipart.File, error) {
	headers := form.File[imageField]
	if len(headers) == 0 {
		return nil, nil
	}
	f, err := headers[0].Open()
	if err != nil {
		return nil, apperr.Validation("failed reading the uploaded image")
	}
	return f, nil
}

func rejectFields(form map[string][]string, forbidden []string) error {
	for _, name := range forbidden {
		if _, ok := form[name]; ok {
			return apperr.Validation("Field %s cannot be set directly", name)
		}
	}
	return nil
}

func firstValue(form map[string][]string, name string) string {
	if v := form[name]; len(v) > 0 {
		return v[0]
	}
	return ""
}

func patchFromForm(form map[string][]string) (*post.Patch, error) {
	if err := rejectFields(form, updateForbidden); err != nil {
		return nil, err
	}
	patch := new(post.Patch)
	if v, ok := form["title"]; ok && len(v) > 0 {
		patch.Title = &v[0]
	}
	if v, ok := form["description"]; ok && len(v) > 0 {
		patch.Description = &v[0]
	}
	if v, ok := form["tags"]; ok {
		patch.Tags = post.ParseTags(v)
	}
	return patch, nil
}

func patchFromJSON(w http.ResponseWriter, r *http.Request) (*post.Patch, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		return nil, apperr.Validation("bad request format")
	}

	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, apperr.Validation("bad request format")
	}
	for name := range fields {
		for _, forbidden := range updateForbidden {
			if strings.EqualFold(name, forbidden) {
				return nil, apperr.Validation("Field %s cannot be set directly", forbidden)
			}
		}
	}

	patch := new(post.Patch)
	if err := json.Unmarshal(raw, patch); err != nil {
		return nil, apperr.Validation("bad request format")
	}
	return patch, nil
}
