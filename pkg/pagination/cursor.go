package pagination

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Version is the current cursor schema version.
const Version = 1

// Cursor is the opaque pagination token before encoding. Field names are
// short to keep tokens small.
//
//   - v:   schema version
//   - fh:  hash of the filter set the page was produced for
//   - srt: sort order the offsets refer to
//   - off: offset of the next row
//   - ps:  page size
//   - iat: issued-at (unix seconds)
type Cursor struct {
	V   int    `json:"v"`
	Fh  string `json:"fh"`
	Srt string `json:"srt,omitempty"`
	Off int    `json:"off"`
	Ps  int    `json:"ps"`
	Iat int64  `json:"iat"`
}

// EncodeCursor serializes c as minified JSON in unpadded URL-safe base64.
func EncodeCursor(c Cursor) (string, error) {
	if err := validate(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor parses a token produced by EncodeCursor.
func DecodeCursor(token string) (*Cursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, errors.New("cursor: empty token")
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("cursor: invalid base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor: invalid json: %w", err)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Matches reports whether the cursor was issued for the given filter hash and sort.
func (c Cursor) Matches(filterHash, sort string) bool {
	return c.Fh == filterHash && c.Srt == sort
}

func validate(c *Cursor) error {
	if c.V <= 0 {
		c.V = Version
	}
	if c.V > Version {
		return fmt.Errorf("cursor: unsupported version %d", c.V)
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	if strings.TrimSpace(c.Fh) == "" {
		return errors.New("cursor: fh (filter hash) required")
	}
	if c.Off < 0 {
		return errors.New("cursor: off must be >= 0")
	}
	if c.Ps <= 0 {
		return errors.New("cursor: ps must be > 0")
	}
	return nil
}

// NextOffset computes the next offset after returning n rows.
func NextOffset(curr, n int) int {
	if curr < 0 {
		curr = 0
	}
	if n <= 0 {
		return curr
	}
	return curr + n
}
