package user

import "time"

type User struct {
	Id             string    `json:"id"`
	Username       string    `json:"username"`
	Email          string    `json:"email,omitempty"`
	Password       []byte    `json:"-"`
	ProfilePicture string    `json:"profilePicture"`
	Verified       bool      `json:"verified"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Public is the shape shown to other users: no email.
func (u *User) Public() *User {
	cp := *u
	cp.Email = ""
	cp.Password = nil
	return &cp
}

type UserFromToken struct {
	Username string `json:"username"`
	Id       string `json:"id"`
}
