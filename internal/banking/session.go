// Package banking fetches transactions from the bank-data provider on
// behalf of one user. Credentials travel in an explicit Session value.
package banking

import (
	"context"
	"errors"
	"strings"

	"golang.org/x/oauth2"

	"finboard/internal/core"
)

var (
	ErrNoSession    = errors.New("missing banking session")
	ErrUnauthorized = errors.New("banking provider rejected credentials")
)

// Session carries one user's provider credentials for the lifetime of a
// request. It is never stored in package state.
type Session struct {
	UserID string
	Token  *oauth2.Token
}

// NewSession builds a session from a bearer access token.
func NewSession(userID, accessToken string) Session {
	var tok *oauth2.Token
	if accessToken != "" {
		tok = &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	}
	return Session{UserID: strings.TrimSpace(userID), Token: tok}
}

func (s Session) Validate() error {
	if s.UserID == "" {
		return errors.New("session user id cannot be empty")
	}
	if s.Token == nil || !s.Token.Valid() {
		return ErrNoSession
	}
	return nil
}

// TransactionSource supplies a user's transactions across all linked accounts.
type TransactionSource interface {
	Transactions(ctx context.Context, sess Session) ([]core.Transaction, error)
}
