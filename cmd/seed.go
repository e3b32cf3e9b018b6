package main

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jaswdr/faker"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"pinboard/pkg/comment"
	. "pinboard/pkg/common"
	"pinboard/pkg/logger"
	"pinboard/pkg/post"
	"pinboard/pkg/user"
)

const (
	seedUsers = 5
	seedPosts = 40
	// Same password for every fake account.
	seedPassword = "sdfsdfsdf"
)

var (
	f        = faker.New()
	seedTags = []string{"nature", "sky", "travel", "food", "design", "art", "city", "animals", "diy", "fashion"}
)

type (
	IUserRepo interface {
		Add(context.Context, *user.User) (string, error)
		GetAll(context.Context) ([]*user.User, error)
	}
	IPostRepo interface {
		Add(context.Context, *post.Post) (primitive.ObjectID, error)
		Count(context.Context) (int64, error)
	}
)

// seed fills empty databases. Existing posts mean the job was already done.
func seed(ctx context.Context, userRepo IUserRepo, postRepo IPostRepo) error {
	n, err := postRepo.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logger.Log(ctx).Infow("seed: posts already present, skipping", "posts", n)
		return nil
	}

	authors, err := userRepo.GetAll(ctx)
	if err != nil {
		return fmt.Errorf("seed: can't get all authors: %w", err)
	}
	if len(authors) == 0 {
		if authors, err = createAuthors(ctx, userRepo); err != nil {
			return err
		}
	}

	for i := 0; i < seedPosts; i++ {
		if _, err := postRepo.Add(ctx, genPost(authors)); err != nil {
			return fmt.Errorf("seed: can't add post: %w", err)
		}
	}
	logger.Log(ctx).Infow("seed: done", "users", len(authors), "posts", seedPosts)
	return nil
}

func createAuthors(ctx context.Context, userRepo IUserRepo) ([]*user.User, error) {
	pass, err := NewPassHash(seedPassword)
	if err != nil {
		return nil, err
	}

	// User for experiments (not random)
	authors := []*user.User{{Username: "pike", Email: "pike@example.com", Password: pass, Verified: true}}
	for i := 0; i < seedUsers; i++ {
		authors = append(authors, genUser(pass, i))
	}

	for _, u := range authors {
		if _, err := userRepo.Add(ctx, u); err != nil {
			return nil, fmt.Errorf("seed: can't add user %s: %w", u.Username, err)
		}
	}
	return authors, nil
}

func genUser(pass []byte, n int) *user.User {
	// The suffix keeps usernames unique when faker repeats a name.
	username := fmt.Sprintf("%s%d", strings.ToLower(f.Person().FirstName()), n)
	return &user.User{
		Username:       username,
		Email:          username + "@example.com",
		Password:       pass,
		ProfilePicture: "https://i.pravatar.cc/150?u=" + username,
		Verified:       true,
	}
}

func genPost(users []*user.User) *post.Post {
	in := &post.Input{
		Title:       genTitle(),
		Description: f.Lorem().Paragraph(rand.Intn(2) + 1),
		Tags:        randTags(),
	}
	if len(in.Description) > post.MaxDescriptionLen {
		in.Description = in.Description[:post.MaxDescriptionLen]
	}

	p := post.New(randUser(users).Id, in, "", "")
	p.ImageURL = fmt.Sprintf("https://picsum.photos/seed/%s/600/800", p.Id.Hex())
	p.CreatedAt = f.Time().TimeBetween(time.Now().AddDate(0, -6, 0), time.Now()).UTC()
	p.UpdatedAt = p.CreatedAt
	p.Likes = randLikes(users)
	p.Comments = genComments(users, p.CreatedAt)
	return p
}

func genTitle() string {
	title := strings.Join(f.Lorem().Words(rand.Intn(4)+2), " ")
	if len(title) > post.MaxTitleLen {
		title = title[:post.MaxTitleLen]
	}
	return strings.ToUpper(title[:1]) + title[1:]
}

func genComments(users []*user.User, after time.Time) []*comment.Comment {
	n := rand.Intn(8)
	comments := make([]*comment.Comment, 0, n)
	for i := 0; i < n; i++ {
		text := f.Lorem().Sentence(rand.Intn(8) + 2)
		if len(text) > comment.MaxTextLen {
			text = text[:comment.MaxTextLen]
		}
		c := comment.New(randUser(users).Id, text)
		c.CreatedAt = f.Time().TimeBetween(after, time.Now()).UTC()
		c.UpdatedAt = c.CreatedAt
		comments = append(comments, c)
	}
	return comments
}

func randTags() []string {
	perm := rand.Perm(len(seedTags))
	tags := make([]string, 0, 3)
	for _, i := range perm[:rand.Intn(4)] {
		tags = append(tags, seedTags[i])
	}
	return tags
}

func randLikes(users []*user.User) []string {
	likes := []string{}
	for _, u := range users {
		if rand.Intn(2) == 0 {
			likes = append(likes, u.Id)
		}
	}
	return likes
}

func randUser(users []*user.User) *user.User {
	return users[rand.Intn(len(users))]
}
