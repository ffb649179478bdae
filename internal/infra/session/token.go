// Package session keeps the session tokens that give a client
// read-your-writes consistency, scoped by container identity and partition.
package session

import (
	"fmt"
	"strconv"
	"strings"
)

// Token is a parsed "<version>#<lsn>" session token.
type Token struct {
	Version string
	LSN     int64
}

// ParseToken parses a session token. The LSN is the part after the last '#'.
func ParseToken(s string) (Token, error) {
	i := strings.LastIndexByte(s, '#')
	if i <= 0 || i == len(s)-1 {
		return Token{}, fmt.Errorf("invalid session token %q", s)
	}
	lsn, err := strconv.ParseInt(s[i+1:], 10, 64)
	if err != nil {
		return Token{}, fmt.Errorf("invalid session token lsn %q: %w", s, err)
	}
	return Token{Version: s[:i], LSN: lsn}, nil
}

func (t Token) String() string {
	return t.Version + "#" + strconv.FormatInt(t.LSN, 10)
}

// Merge returns the token to keep when next arrives while current is stored.
// The higher LSN wins; a token that does not parse never replaces one that
// does.
func Merge(current, next string) string {
	if current == "" {
		return next
	}
	cur, err := ParseToken(current)
	if err != nil {
		return next
	}
	nt, err := ParseToken(next)
	if err != nil {
		return current
	}
	if nt.LSN >= cur.LSN {
		return next
	}
	return current
}
