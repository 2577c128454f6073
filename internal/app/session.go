package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"moscowboard/api/internal/auth"
	"moscowboard/api/internal/board"
	"moscowboard/api/internal/store"
	"moscowboard/api/internal/util"
)

// Register creates an anonymous profile under the chosen display name and
// signs it in. A blank name is rejected before anything is written.
func (s *Service) Register(ctx context.Context, username string) (Session, error) {
	name, err := board.NormalizeUsername(username)
	if err != nil {
		return Session{}, err
	}

	user, err := s.store.CreateUser(ctx, store.User{ID: util.NewUUID(), Username: name})
	if err != nil {
		s.logger.WithError(err).Error("create user failed")
		return Session{}, err
	}
	s.logger.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("user registered")
	return s.issueSession(ctx, user)
}

// Refresh rotates a refresh token. The profile is reloaded so a deleted
// user cannot keep refreshing.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)
	holder, err := s.sessions.LookupRefreshSession(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}
	user, err := s.store.GetUserByID(ctx, holder.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrSignedOut
		}
		return Session{}, err
	}
	if err := s.sessions.RevokeRefreshSession(ctx, tokenHash); err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	token, claims, err := s.signer.Issue(user.ID, user.Username)
	if err != nil {
		return Session{}, err
	}

	refresh := auth.NewRefreshToken()
	refreshExpires := s.now().Add(s.cfg.RefreshTTL)
	if err := s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires); err != nil {
		return Session{}, fmt.Errorf("save refresh session: %w", err)
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		Username:     user.Username,
		JTI:          claims.JTI,
		ExpiresAt:    claims.ExpiresAt(),
	}, nil
}

// SessionFromToken resumes a session. A token whose profile no longer
// exists is treated as signed out.
func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.signer.Parse(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.sessions.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, ErrSignedOut
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		JTI:       claims.JTI,
		ExpiresAt: claims.ExpiresAt(),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		if err := s.sessions.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt); err != nil {
			s.logger.WithError(err).WithField("user_id", session.UserID).Warn("revoke access token")
		}
	}
	if refreshToken != "" {
		if err := s.sessions.RevokeRefreshSession(ctx, auth.HashToken(refreshToken)); err != nil {
			s.logger.WithError(err).WithField("user_id", session.UserID).Warn("revoke refresh session")
		}
	}
	return nil
}
