package user

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgconn"
	"github.com/stretchr/testify/assert"

	"pinboard/pkg/apperr"
	. "pinboard/pkg/common"
)

var (
	userID     = "64b7f0c2a1b2c3d4e5f60718"
	postID     = "64b7f0c2a1b2c3d4e5f60999"
	username   = "pike"
	email      = "pike@example.com"
	password   = "sdfsdfsdf"
	salt       = "12345678"
	hashedPass = HashPass(password, salt)
	created    = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	columns    = []string{"id", "username", "email", "password", "profile_picture", "verified", "created_at", "updated_at"}
)

func userRow(u *User) []driver.Value {
	return []driver.Value{u.Id, u.Username, u.Email, u.Password, u.ProfilePicture, u.Verified, u.CreatedAt, u.UpdatedAt}
}

func newMock(t *testing.T) (*UserRepo, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("cant create mock: %s", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewUserRepo(db), mock
}

func TestGetById(t *testing.T) {
	r, mock := newMock(t)

	t.Run("should return user", func(t *testing.T) {
		expect := &User{Id: userID, Username: username, Email: email, Password: hashedPass, Verified: true, CreatedAt: created, UpdatedAt: created}
		rows := sqlmock.NewRows(columns).AddRow(userRow(expect)...)

		mock.
			ExpectQuery("SELECT (.+) FROM users WHERE id").
			WithArgs(userID).
			WillReturnRows(rows)

		gotUser, err := r.GetById(context.TODO(), userID)
		if err != nil {
			t.Errorf("unexpected err: %s", err)
			return
		}
		assert.Equal(t, expect, gotUser)
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})

	t.Run("should return not found", func(t *testing.T) {
		mock.
			ExpectQuery("SELECT (.+) FROM users WHERE id").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows(columns))

		_, err := r.GetById(context.TODO(), userID)
		assert.ErrorIs(t, err, apperr.ErrNotFound)
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})

	t.Run("should return DB error", func(t *testing.T) {
		expectedErr := fmt.Errorf("mock_db_error")
		mock.
			ExpectQuery("SELECT (.+) FROM users WHERE id").
			WithArgs(userID).
			WillReturnError(expectedErr)
		_, err := r.GetById(context.TODO(), userID)
		assert.ErrorIs(t, err, expectedErr)
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})
}

func TestRepoAdd(t *testing.T) {
	repo, mock := newMock(t)

	newUser := func() *User {
		return &User{Id: userID, Username: username, Email: email, Password: hashedPass}
	}
	expectInsert := func() *sqlmock.ExpectedExec {
		return mock.
			ExpectExec("INSERT INTO users").
			WithArgs(userID, username, email, hashedPass, "", false, sqlmock.AnyArg(), sqlmock.AnyArg())
	}

	t.Run("should add new user", func(t *testing.T) {
		expectInsert().WillReturnResult(sqlmock.NewResult(0, 1))

		u := newUser()
		addedUserId, err := repo.Add(context.TODO(), u)
		if err != nil {
			t.Errorf("unexpected error %s", err)
			return
		}
		assert.Equal(t, userID, addedUserId)
		assert.False(t, u.CreatedAt.IsZero())
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})

	t.Run("should generate id", func(t *testing.T) {
		mock.
			ExpectExec("INSERT INTO users").
			WithArgs(sqlmock.AnyArg(), username, email, hashedPass, "", false, sqlmock.AnyArg(), sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(0, 1))

		u := newUser()
		u.Id = ""
		id, err := repo.Add(context.TODO(), u)
		assert.NoError(t, err)
		_, err = ParseID(id, "user")
		assert.NoError(t, err)
	})

	t.Run("should return query error", func(t *testing.T) {
		expectedErr := fmt.Errorf("bad query")
		expectInsert().WillReturnError(expectedErr)
		_, err := repo.Add(context.TODO(), newUser())
		assert.ErrorIs(t, err, expectedErr)
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})

	t.Run("should map unique violation to conflict", func(t *testing.T) {
		expectInsert().WillReturnError(&pgconn.PgError{Code: "23505"})
		_, err := repo.Add(context.TODO(), newUser())
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("should return result error", func(t *testing.T) {
		expectedErr := fmt.Errorf("bad_result")
		expectInsert().WillReturnResult(sqlmock.NewErrorResult(expectedErr))

		_, err := repo.Add(context.TODO(), newUser())
		assert.ErrorIs(t, err, expectedErr)
	})

	t.Run("should return zero RowsAffected error", func(t *testing.T) {
		expectInsert().WillReturnResult(sqlmock.NewResult(0, 0))
		_, err := repo.Add(context.TODO(), newUser())
		assert.ErrorContains(t, err, "user wasn't added")
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})
}

func TestGetByEmailAndPass(t *testing.T) {
	r, mock := newMock(t)
	expect := &User{Id: userID, Username: username, Email: email, Password: hashedPass, CreatedAt: created, UpdatedAt: created}

	t.Run("should return user", func(t *testing.T) {
		mock.
			ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs(email).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(userRow(expect)...))

		gotUser, err := r.GetByEmailAndPass(context.TODO(), email, password)
		if err != nil {
			t.Errorf("unexpected err: %s", err)
			return
		}
		assert.Equal(t, expect, gotUser)
	})

	t.Run("should return error: bad password", func(t *testing.T) {
		mock.
			ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs(email).
			WillReturnRows(sqlmock.NewRows(columns).AddRow(userRow(expect)...))
		_, err := r.GetByEmailAndPass(context.TODO(), email, "badpassword")
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("should return error: unknown email", func(t *testing.T) {
		mock.
			ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs("nobody@example.com").
			WillReturnRows(sqlmock.NewRows(columns))
		_, err := r.GetByEmailAndPass(context.TODO(), "nobody@example.com", password)
		assert.ErrorIs(t, err, apperr.ErrUnauthorized)
	})

	t.Run("should return error: DB error", func(t *testing.T) {
		expectedErr := fmt.Errorf("mock_db_error")
		mock.
			ExpectQuery("SELECT (.+) FROM users WHERE email").
			WithArgs(email).
			WillReturnError(expectedErr)
		_, err := r.GetByEmailAndPass(context.TODO(), email, password)
		assert.ErrorIs(t, err, expectedErr)
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})
}

func TestUserExists(t *testing.T) {
	r, mock := newMock(t)

	t.Run("should return true", func(t *testing.T) {
		mock.
			ExpectQuery("SELECT id FROM users WHERE").
			WithArgs(username, email).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(userID))
		exists, err := r.UserExists(context.TODO(), username, email)
		assert.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("should return false", func(t *testing.T) {
		mock.
			ExpectQuery("SELECT id FROM users WHERE").
			WithArgs(username, email).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		exists, err := r.UserExists(context.TODO(), username, email)
		assert.NoError(t, err)
		assert.False(t, exists)
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})
}

func TestUpdates(t *testing.T) {
	r, mock := newMock(t)

	t.Run("verify", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET verified").
			WithArgs(userID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, r.SetVerified(context.TODO(), userID))
	})

	t.Run("verify unknown user", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET verified").
			WithArgs(userID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		assert.ErrorIs(t, r.SetVerified(context.TODO(), userID), apperr.ErrNotFound)
	})

	t.Run("password", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET password").
			WithArgs(userID, hashedPass).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, r.UpdatePassword(context.TODO(), userID, hashedPass))
	})

	t.Run("profile keeps nil fields", func(t *testing.T) {
		newName := "rob"
		mock.ExpectExec("UPDATE users SET username=COALESCE").
			WithArgs(userID, newName, nil).
			WillReturnResult(sqlmock.NewResult(0, 1))
		assert.NoError(t, r.UpdateProfile(context.TODO(), userID, &newName, nil))
	})

	t.Run("profile username taken", func(t *testing.T) {
		newName := "ken"
		mock.ExpectExec("UPDATE users SET username=COALESCE").
			WithArgs(userID, newName, nil).
			WillReturnError(&pgconn.PgError{Code: "23505"})
		assert.ErrorIs(t, r.UpdateProfile(context.TODO(), userID, &newName, nil), apperr.ErrConflict)
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})
}

func TestSavedPosts(t *testing.T) {
	r, mock := newMock(t)

	t.Run("toggle on", func(t *testing.T) {
		mock.ExpectExec("WITH removed AS").
			WithArgs(userID, postID).
			WillReturnResult(sqlmock.NewResult(0, 1))
		saved, err := r.ToggleSaved(context.TODO(), userID, postID)
		assert.NoError(t, err)
		assert.True(t, saved)
	})

	t.Run("toggle off", func(t *testing.T) {
		mock.ExpectExec("WITH removed AS").
			WithArgs(userID, postID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM saved_posts`).
			WithArgs(userID, postID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
		saved, err := r.ToggleSaved(context.TODO(), userID, postID)
		assert.NoError(t, err)
		assert.False(t, saved)
	})

	t.Run("concurrent first save lost the insert", func(t *testing.T) {
		mock.ExpectExec("WITH removed AS").
			WithArgs(userID, postID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM saved_posts`).
			WithArgs(userID, postID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		saved, err := r.ToggleSaved(context.TODO(), userID, postID)
		assert.NoError(t, err)
		assert.True(t, saved, "the row exists, so the post is saved")
	})

	t.Run("state lookup fails", func(t *testing.T) {
		mock.ExpectExec("WITH removed AS").
			WithArgs(userID, postID).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(`SELECT EXISTS\(SELECT 1 FROM saved_posts`).
			WithArgs(userID, postID).
			WillReturnError(fmt.Errorf("conn reset"))
		_, err := r.ToggleSaved(context.TODO(), userID, postID)
		assert.ErrorContains(t, err, "conn reset")
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})

	t.Run("list", func(t *testing.T) {
		mock.ExpectQuery("SELECT post_id FROM saved_posts").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"post_id"}).AddRow(postID).AddRow(userID))
		ids, err := r.SavedPostIDs(context.TODO(), userID)
		assert.NoError(t, err)
		assert.Equal(t, []string{postID, userID}, ids)
	})

	t.Run("list empty", func(t *testing.T) {
		mock.ExpectQuery("SELECT post_id FROM saved_posts").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"post_id"}))
		ids, err := r.SavedPostIDs(context.TODO(), userID)
		assert.NoError(t, err)
		assert.Equal(t, []string{}, ids)
	})

	t.Run("remove everywhere", func(t *testing.T) {
		mock.ExpectExec("DELETE FROM saved_posts WHERE post_id").
			WithArgs(postID).
			WillReturnResult(sqlmock.NewResult(0, 3))
		assert.NoError(t, r.RemoveSavedPost(context.TODO(), postID))
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})
}

func TestEnsureSchema(t *testing.T) {
	r, mock := newMock(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS users").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS saved_posts").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS").WillReturnResult(sqlmock.NewResult(0, 0))
	assert.NoError(t, r.EnsureSchema(context.TODO()))
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("expectations unfulfilled: %s", err)
	}
}

func TestGetAll(t *testing.T) {
	r, mock := newMock(t)

	t.Run("should return users", func(t *testing.T) {
		rows := sqlmock.NewRows(columns)
		expectedUsers := []*User{
			{Id: "1", Username: "user1", Email: "u1@example.com", Password: hashedPass, CreatedAt: created, UpdatedAt: created},
			{Id: "2", Username: "user2", Email: "u2@example.com", Password: hashedPass, CreatedAt: created, UpdatedAt: created},
		}
		for _, u := range expectedUsers {
			rows.AddRow(userRow(u)...)
		}
		mock.
			ExpectQuery("SELECT (.+) FROM users").
			WillReturnRows(rows)
		gotUsers, err := r.GetAll(context.TODO())
		if err != nil {
			t.Errorf("unexpected err: %s", err)
			return
		}
		assert.Equal(t, expectedUsers, gotUsers)
	})

	t.Run("should return scan rows error", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id"}).AddRow("2")
		mock.
			ExpectQuery("SELECT (.+) FROM users").
			WillReturnRows(rows)
		_, err := r.GetAll(context.TODO())
		assert.ErrorContains(t, err, "scan")
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})

	t.Run("should return iteration error", func(t *testing.T) {
		u := &User{Id: "1", Username: "user1", Email: "u1@example.com", Password: hashedPass, CreatedAt: created, UpdatedAt: created}
		rows := sqlmock.NewRows(columns).
			AddRow(userRow(u)...).
			AddRow(userRow(u)...).
			RowError(1, fmt.Errorf("connection lost"))
		mock.
			ExpectQuery("SELECT (.+) FROM users").
			WillReturnRows(rows)
		gotUsers, err := r.GetAll(context.TODO())
		assert.Nil(t, gotUsers)
		assert.ErrorContains(t, err, "connection lost")
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("expectations unfulfilled: %s", err)
		}
	})
}

func TestPublic(t *testing.T) {
	u := &User{Id: userID, Username: username, Email: email, Password: hashedPass}
	p := u.Public()
	assert.Empty(t, p.Email)
	assert.Nil(t, p.Password)
	assert.Equal(t, email, u.Email)
}
