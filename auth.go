package main

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/asdine/storm"
	"github.com/dgrijalva/jwt-go"
	"github.com/go-chi/render"
	"golang.org/x/crypto/bcrypt"

	"cannode/monitor"
)

const JWT_LIFESPAN = time.Hour

var (
	JWT_EMPTY = errors.New("bearer token not provided")
)

//---
// Structs
//

// Represents a local user of the monitor API
type User struct {
	ID       int    `storm:"increment"` // pk
	Email    string `storm:"unique"`
	Name     string
	Password string
	Admin    bool
}

// Sets the User.Password to the hashed value for the provided plain text
func (u *User) SetPassword(pass []byte) {
	hash, _ := bcrypt.GenerateFromPassword(pass, bcrypt.DefaultCost)
	u.Password = string(hash)
}

// Compares User.Password with the provided plain text.
// Returns values directly as provided by the bcrypt library for downstream processing.
func (u *User) VerifyPassword(pass []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(u.Password), pass)
}

//---
// Generic payloads
//---

type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (l *LoginPayload) Bind(r *http.Request) error {
	return nil
}

type JWTPayload struct {
	SignedToken string `json:"token"`
}

//---
// Helper functions
//

// Produce a standard format JWT token
func newJWT(sub string) (ts string, err error) {
	now := time.Now().UTC()
	claims := jwt.StandardClaims{
		Issuer:    ENV.JWT_ISSUER,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(JWT_LIFESPAN).Unix(),
		Subject:   sub,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	return token.SignedString(jwtSecret)
}

//---
// Views
//---

// Login looks up a user, verifies the password and responds with a token
func Login(w http.ResponseWriter, r *http.Request) {
	data := &LoginPayload{}
	if err := render.Bind(r, data); err != nil {
		render.Render(w, r, monitor.ErrInvalidRequest(err))
		return
	}

	var user User
	if err := ENV.DB.One("Email", data.Email, &user); err != nil {
		if err == storm.ErrNotFound {
			render.Render(w, r, monitor.ErrNotFound)
			return
		}
		panic(err)
	}

	if err := user.VerifyPassword([]byte(data.Password)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			render.Render(w, r, monitor.ErrPermissionDenied(errors.New("invalid password")))
			return
		}
		render.Render(w, r, monitor.ErrRender(err))
		return
	}

	tokenString, err := newJWT(user.Email)
	if err != nil {
		render.Render(w, r, monitor.ErrRender(err))
		return
	}

	render.JSON(w, r, JWTPayload{tokenString})
}

// JWTRefresh provides a new token to an already authenticated client
func JWTRefresh(w http.ResponseWriter, r *http.Request) {
	token := r.Context().Value("jwt").(*jwt.Token)
	claims := token.Claims.(*jwt.StandardClaims)

	tokenString, err := newJWT(claims.Subject)
	if err != nil {
		render.Render(w, r, monitor.ErrRender(err))
		return
	}

	render.JSON(w, r, JWTPayload{tokenString})
}

//---
// Authentication middleware
//---

// ValidateJWT accepts the token from the Authorization header or, for
// websocket clients that cannot set headers, from the jwt query parameter.
func ValidateJWT(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var tokenStr string

		if bearer := r.Header.Get("Authorization"); len(bearer) > 7 && strings.EqualFold(bearer[0:6], "BEARER") {
			tokenStr = bearer[7:]
		}
		if tokenStr == "" {
			tokenStr = r.URL.Query().Get("jwt")
		}

		if tokenStr == "" {
			render.Render(w, r, monitor.ErrUnauthorized(JWT_EMPTY))
			return
		}

		token, err := jwt.ParseWithClaims(tokenStr,
			&jwt.StandardClaims{},
			func(*jwt.Token) (interface{}, error) { return jwtSecret, nil })

		if err != nil || !token.Valid {
			reason := errors.New("invalid token")
			var jwterr *jwt.ValidationError
			if errors.As(err, &jwterr) && jwterr.Errors&jwt.ValidationErrorExpired != 0 {
				reason = errors.New("token has expired")
			}

			render.Render(w, r, monitor.ErrUnauthorized(reason))
			return
		}

		ctx := context.WithValue(r.Context(), "jwt", token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
