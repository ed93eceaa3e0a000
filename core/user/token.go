package user

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base32"
	"encoding/base64"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	tokenSalt  = []byte("kikundi.core.user.password_reset")
	tsEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

// ResetTokens signs single-use password reset tokens. A token stops verifying once the password,
// the last login or the day count changes.
type ResetTokens struct {
	key     []byte
	timeout time.Duration
	now     func() time.Time
}

func NewResetTokens(secretKey string, timeout time.Duration) *ResetTokens {
	key := sha256.Sum256(append(append([]byte{}, tokenSalt...), secretKey...))
	return &ResetTokens{key: key[:], timeout: timeout, now: time.Now}
}

// EncodeUID base64 encodes the user ID for reset links.
func EncodeUID(usr User) string {
	return base64.RawURLEncoding.EncodeToString([]byte(usr.ID))
}

func DecodeUID(uid string) (string, error) {
	id, err := base64.RawURLEncoding.DecodeString(uid)
	if err != nil {
		return "", ErrInvalidToken
	}
	return string(id), nil
}

// Make generates a password reset token for `usr`.
func (rt *ResetTokens) Make(usr User) string {
	return rt.makeWithTimestamp(usr, daysSince2001(rt.now()))
}

// Verify checks that `token` was issued for `usr` and has not expired.
func (rt *ResetTokens) Verify(usr User, token string) error {
	parts := strings.SplitN(token, "-", 2)
	if len(parts) < 2 {
		return ErrInvalidToken
	}
	data, err := tsEncoding.DecodeString(parts[0])
	if err != nil {
		return ErrInvalidToken
	}
	ts, err := strconv.Atoi(string(data))
	if err != nil {
		return ErrInvalidToken
	}

	// check that token has not been tampered with
	if subtle.ConstantTimeCompare([]byte(rt.makeWithTimestamp(usr, ts)), []byte(token)) == 0 {
		return ErrInvalidToken
	}
	if daysSince2001(rt.now())-ts > int(rt.timeout/(24*time.Hour)) {
		return ErrTokenExpired
	}
	return nil
}

func (rt *ResetTokens) makeWithTimestamp(usr User, ts int) string {
	h := hmac.New(sha256.New, rt.key)
	_, _ = h.Write(hashValue(usr, ts))
	return tsEncoding.EncodeToString([]byte(strconv.Itoa(ts))) + "-" + base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func daysSince2001(t time.Time) int {
	ref := time.Date(2001, time.January, 1, 0, 0, 0, 0, time.UTC)
	return int(math.Ceil(t.Sub(ref).Hours() / 24))
}

func hashValue(usr User, ts int) []byte {
	var val bytes.Buffer
	val.WriteString(usr.ID)
	val.Write(usr.PasswordHash)
	if usr.LastLogin != nil {
		val.WriteString(usr.LastLogin.UTC().Format(time.RFC3339Nano))
	}
	val.WriteString(strconv.Itoa(ts))
	return val.Bytes()
}
