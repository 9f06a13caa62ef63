// ABOUTME: Platform credential and its Authorization header form
// ABOUTME: Bot tokens use the "Bot" scheme, OAuth2 tokens use "Bearer"

package api

import (
	"fmt"
	"strings"
)

// TokenKind selects the Authorization scheme.
type TokenKind string

const (
	TokenBot    TokenKind = "bot"
	TokenBearer TokenKind = "bearer"
)

// Token is a platform credential.
type Token struct {
	Kind  TokenKind
	Value string
}

// BotToken returns a bot credential.
func BotToken(value string) Token {
	return Token{Kind: TokenBot, Value: value}
}

// ParseTokenKind accepts "bot", "bearer" and "oauth2" in any case.
func ParseTokenKind(s string) (TokenKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "bot":
		return TokenBot, nil
	case "bearer", "oauth2":
		return TokenBearer, nil
	default:
		return "", fmt.Errorf("unknown token type %q", s)
	}
}

// String returns the Authorization header value.
func (t Token) String() string {
	if t.Kind == TokenBearer {
		return "Bearer " + t.Value
	}
	return "Bot " + t.Value
}
