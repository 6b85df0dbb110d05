package google_auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const DefaultTokenInfoURL = "https://oauth2.googleapis.com/tokeninfo"

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrAudienceMismatch = errors.New("token was not issued for this application")
	ErrTokenExpired     = errors.New("token expired")
)

// MissingFieldError token info 缺少必要欄位
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("token info missing required field %q", e.Field)
}

type IAuthVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*UserInfo, error)
}

// GoogleAuthVerifier 驗證Google登入token並取得用戶資訊
type GoogleAuthVerifier struct {
	ClientID     string
	TokenInfoURL string
	HTTPClient   *http.Client
	now          func() time.Time
}

// UserInfo 驗證後的用戶資訊
type UserInfo struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	VerifiedEmail bool      `json:"verified_email"`
	Name          string    `json:"name"`
	Picture       string    `json:"picture"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// tokenInfo tokeninfo endpoint 的回應
// 數字與布林欄位 google 會以字串回傳
type tokenInfo struct {
	Iss           string   `json:"iss"`
	Aud           string   `json:"aud"`
	Sub           string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
	Exp           flexUnix `json:"exp"`
}

type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*b = false
		return nil
	}
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = flexBool(v)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("email_verified: %w", err)
	}
	v, err := strconv.ParseBool(strings.TrimSpace(s))
	if err != nil {
		return fmt.Errorf("email_verified: %w", err)
	}
	*b = flexBool(v)
	return nil
}

type flexUnix int64

func (u *flexUnix) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if string(data) == "null" {
		*u = 0
		return nil
	}
	var n int64
	if err := json.Unmarshal(data, &n); err == nil {
		*u = flexUnix(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("exp: %w", err)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("exp: %w", err)
	}
	*u = flexUnix(n)
	return nil
}

// NewGoogleAuthVerifier 建立一個新的驗證器
func NewGoogleAuthVerifier(clientID string) *GoogleAuthVerifier {
	return &GoogleAuthVerifier{
		ClientID:     clientID,
		TokenInfoURL: DefaultTokenInfoURL,
		HTTPClient:   &http.Client{Timeout: 5 * time.Second},
		now:          time.Now,
	}
}

// VerifyIDToken 驗證從前端傳來的ID token
func (g *GoogleAuthVerifier) VerifyIDToken(ctx context.Context, idToken string) (*UserInfo, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrInvalidToken
	}

	reqURL := g.TokenInfoURL + "?id_token=" + url.QueryEscape(idToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := g.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending verification request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, ErrInvalidToken
	}

	var info tokenInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	return g.validate(&info)
}

func (g *GoogleAuthVerifier) validate(info *tokenInfo) (*UserInfo, error) {
	for _, f := range []struct {
		name  string
		value string
	}{
		{"sub", info.Sub},
		{"email", info.Email},
		{"aud", info.Aud},
	} {
		if strings.TrimSpace(f.value) == "" {
			return nil, &MissingFieldError{Field: f.name}
		}
	}

	// 驗證這個token是發給你的應用的
	if info.Aud != g.ClientID {
		return nil, ErrAudienceMismatch
	}

	var expiresAt time.Time
	if info.Exp > 0 {
		expiresAt = time.Unix(int64(info.Exp), 0)
		if !g.now().Before(expiresAt) {
			return nil, ErrTokenExpired
		}
	}

	return &UserInfo{
		ID:            info.Sub,
		Email:         strings.ToLower(info.Email),
		VerifiedEmail: bool(info.EmailVerified),
		Name:          info.Name,
		Picture:       info.Picture,
		ExpiresAt:     expiresAt,
	}, nil
}
