package auth

import (
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

type Claims struct {
	jwt.RegisteredClaims
	UserID int `json:"user_id"`
}

const TokenExp = time.Hour * 3

// SecretKey signs session tokens; main overrides it from config at startup.
var SecretKey = "supersecretkey"

func BuildJWTString(userID int) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(TokenExp)),
		},
		UserID: userID,
	})

	tokenString, err := token.SignedString([]byte(SecretKey))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

func GetUserID(tokenString string) (int, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(SecretKey), nil
	})
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("invalid token")
	}

	return claims.UserID, nil
}

// AuthPost issues a session cookie for a freshly authenticated user.
func AuthPost(w http.ResponseWriter, r *http.Request, userID int) error {
	token, err := BuildJWTString(userID)
	if err != nil {
		http.Error(w, "Error while generating token", http.StatusInternalServerError)
		return err
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "cookie",
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(TokenExp),
		HttpOnly: true,
	})

	return nil
}

// AuthGet extracts the authenticated user id from the request cookie.
func AuthGet(r *http.Request) (int, error) {
	cookie, err := r.Cookie("cookie")
	if err != nil {
		return 0, err
	}

	userID, err := GetUserID(cookie.Value)
	if err != nil {
		return 0, err
	}

	return userID, err
}
