package common

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"golang.org/x/crypto/argon2"

	"pinboard/pkg/apperr"
	"pinboard/pkg/logger"
)

const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

const saltLen = 8

type Msg struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Envelope is the success body: {status: "success", data: ...}.
type Envelope struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data"`
}

func statusFor(code int) string {
	switch {
	case code >= 500:
		return StatusError
	case code >= 400:
		return StatusFail
	default:
		return StatusSuccess
	}
}

func WriteMsg(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	WriteRespJSON(w, Msg{Status: statusFor(code), Message: msg})
}

func WriteData(w http.ResponseWriter, code int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	WriteRespJSON(w, Envelope{Status: StatusSuccess, Data: data})
}

// WriteError maps err to its HTTP answer. Internal errors are logged with
// their cause and answered with a generic message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var e *apperr.Error
	if !errors.As(err, &e) {
		logger.Log(r.Context()).Errorw("unhandled error", "path", r.URL.Path, "err", err)
		WriteMsg(w, "something went wrong", http.StatusInternalServerError)
		return
	}
	if e.Kind == apperr.KindInternal {
		logger.Log(r.Context()).Errorw(e.Message, "path", r.URL.Path, "err", err)
	} else {
		logger.Log(r.Context()).Infow("request rejected", "path", r.URL.Path, "kind", e.Kind.String(), "reason", e.Message)
	}
	WriteMsg(w, e.Message, e.HTTPStatus())
}

func WriteRespJSON(w http.ResponseWriter, data interface{}) {
	resp, err := json.Marshal(data)
	if err != nil {
		logger.Log(context.Background()).Errorw("common: JSON marshaling failed", "err", err)
		http.Error(w, `{"status":"error","message":"response failed"}`, http.StatusInternalServerError)
		return
	}

	_, err = w.Write(resp)
	if err != nil {
		logger.Log(context.Background()).Errorw("common: failed writing response", "err", err)
	}
}

func ParseReqBody(body io.Reader, ptr interface{}) error {
	err := json.NewDecoder(body).Decode(ptr)
	if err != nil {
		return apperr.Validation("bad request format")
	}
	return nil
}

// ParseID checks the 24-hex-char identifier syntax shared by posts, comments and users.
func ParseID(raw, what string) (primitive.ObjectID, error) {
	id, err := primitive.ObjectIDFromHex(raw)
	if err != nil {
		return primitive.NilObjectID, apperr.Validation("Invalid %s ID", what)
	}
	return id, nil
}

func NewToken(n int) (string, error) {
	return gonanoid.New(n)
}

func HashPass(plainPassword, salt string) []byte {
	hashedPass := argon2.IDKey([]byte(plainPassword), []byte(salt), 1, 64*1024, 4, 32)
	res := []byte(salt)
	return append(res, hashedPass...)
}

func NewPassHash(plainPassword string) ([]byte, error) {
	salt, err := gonanoid.New(saltLen)
	if err != nil {
		return nil, err
	}
	return HashPass(plainPassword, salt), nil
}

// CheckPass compares a plain password with a salt-prefixed hash from HashPass.
func CheckPass(hashed []byte, plainPassword string) bool {
	if len(hashed) <= saltLen {
		return false
	}
	salt := string(hashed[:saltLen])
	return subtle.ConstantTimeCompare(HashPass(plainPassword, salt), hashed) == 1
}
