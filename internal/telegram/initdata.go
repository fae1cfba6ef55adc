// Package telegram verifies Mini App init data and sends bot messages.
package telegram

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

var (
	ErrInvalidInitData = errors.New("telegram: init data signature invalid")
	ErrExpiredInitData = errors.New("telegram: init data expired")
)

// WebAppUser is the user object embedded in init data.
type WebAppUser struct {
	ID           int64  `json:"id"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
}

// InitData is the verified payload a Mini App session starts from.
type InitData struct {
	User     WebAppUser
	AuthDate time.Time
	QueryID  string
}

// FullName joins the first and last name the way the client displays it.
func (u WebAppUser) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// Verifier checks init data signatures against one bot token.
type Verifier struct {
	secret []byte
	maxAge time.Duration
}

// NewVerifier derives the signing secret from the bot token. maxAge bounds
// how old accepted init data may be; zero disables the age check.
func NewVerifier(botToken string, maxAge time.Duration) *Verifier {
	mac := hmac.New(sha256.New, []byte("WebAppData"))
	mac.Write([]byte(botToken))
	return &Verifier{
		secret: mac.Sum(nil),
		maxAge: maxAge,
	}
}

// Verify validates the raw init data query string and returns the parsed
// payload. The hash covers every field except itself, joined sorted by key.
func (v *Verifier) Verify(raw string) (InitData, error) {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return InitData{}, fmt.Errorf("telegram: parse init data: %w", err)
	}
	gotHash := values.Get("hash")
	if gotHash == "" {
		return InitData{}, ErrInvalidInitData
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	want := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(want), []byte(gotHash)) {
		return InitData{}, ErrInvalidInitData
	}

	var data InitData
	data.QueryID = values.Get("query_id")

	if authDate := values.Get("auth_date"); authDate != "" {
		unix, err := strconv.ParseInt(authDate, 10, 64)
		if err != nil {
			return InitData{}, fmt.Errorf("telegram: parse auth_date: %w", err)
		}
		data.AuthDate = time.Unix(unix, 0)
		if v.maxAge > 0 && time.Since(data.AuthDate) > v.maxAge {
			return InitData{}, ErrExpiredInitData
		}
	}

	if rawUser := values.Get("user"); rawUser != "" {
		if err := json.Unmarshal([]byte(rawUser), &data.User); err != nil {
			return InitData{}, fmt.Errorf("telegram: parse user: %w", err)
		}
	}
	if data.User.ID == 0 {
		return InitData{}, ErrInvalidInitData
	}
	return data, nil
}

// Sign produces a valid init data string for the verifier's token. Used by
// tests to build known-good payloads.
func (v *Verifier) Sign(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k == "hash" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+values.Get(k))
	}
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	values.Set("hash", hex.EncodeToString(mac.Sum(nil)))
	return values.Encode()
}
