// Examwatch - Live Exam Progress Tracking for Proctors
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/examwatch

// Package student turns upstream records into the progress card of a
// tracked student.
package student

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/tomtom215/examwatch/internal/cache"
	"github.com/tomtom215/examwatch/internal/exam"
	"github.com/tomtom215/examwatch/internal/intra"
	"github.com/tomtom215/examwatch/internal/logging"
	"github.com/tomtom215/examwatch/internal/models"
)

// Upstream is the part of the intra client the fetcher needs.
type Upstream interface {
	GetUser(ctx context.Context, token, login string) (*models.IntraUser, error)
	GetProjectsUsers(ctx context.Context, token, login string) ([]models.ProjectUser, error)
}

// TokenSource hands out the proctor's bearer token.
type TokenSource interface {
	// Token returns the current token, or "" when the proctor is signed out.
	Token(ctx context.Context) (string, error)
	// Invalidate drops a token the upstream rejected.
	Invalidate(ctx context.Context) error
}

// IdentityCache keeps the identity of every student seen during a session.
// Identities never change during an exam, so entries do not expire.
type IdentityCache struct {
	entries *cache.Cache[models.StudentIdentity]
}

// NewIdentityCache returns an empty cache.
func NewIdentityCache() *IdentityCache {
	return &IdentityCache{entries: cache.New[models.StudentIdentity](0)}
}

// Get returns the cached identity of login.
func (c *IdentityCache) Get(login string) (models.StudentIdentity, bool) {
	return c.entries.Get(NormalizeLogin(login))
}

// Put stores an identity under its login.
func (c *IdentityCache) Put(identity models.StudentIdentity) {
	c.entries.Set(NormalizeLogin(identity.Login), identity)
}

// Forget drops the identity of a student removed from the session.
func (c *IdentityCache) Forget(login string) {
	c.entries.Delete(NormalizeLogin(login))
}

// Len returns the number of cached identities.
func (c *IdentityCache) Len() int {
	return c.entries.Len()
}

// Fetcher produces a DerivedStudentState for a login. It does not retry:
// 429 retries live in the transport and everything else is the caller's
// decision.
type Fetcher struct {
	upstream   Upstream
	tokens     TokenSource
	identities *IdentityCache
	now        func() time.Time
}

// NewFetcher builds a fetcher. identities may be shared across fetchers of
// the same session; nil allocates a private cache.
func NewFetcher(upstream Upstream, tokens TokenSource, identities *IdentityCache) *Fetcher {
	if identities == nil {
		identities = NewIdentityCache()
	}
	return &Fetcher{
		upstream:   upstream,
		tokens:     tokens,
		identities: identities,
		now:        time.Now,
	}
}

// Identities returns the identity cache of the fetcher.
func (f *Fetcher) Identities() *IdentityCache {
	return f.identities
}

// Fetch resolves the identity of login (once per session), fetches its
// enrollments and derives the current exam state.
//
// A missing token fails with intra.ErrAuth before any request. An upstream
// 401 invalidates the stored token. If ctx is cancelled while the request
// is in flight, the result is discarded and ctx.Err() is returned.
func (f *Fetcher) Fetch(ctx context.Context, login string) (*models.DerivedStudentState, error) {
	login = NormalizeLogin(login)

	token, err := f.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, &intra.StatusError{
			Kind:       intra.ErrAuth,
			StatusCode: http.StatusUnauthorized,
			Message:    "no access token, please sign in",
		}
	}

	identity, cached := f.identities.Get(login)
	if !cached {
		user, err := f.upstream.GetUser(ctx, token, login)
		if err != nil {
			return nil, f.fail(ctx, login, err)
		}
		identity = models.StudentIdentity{
			ID:        user.ID,
			Login:     user.Login,
			AvatarURL: user.AvatarURL(),
		}
		if identity.Login == "" {
			identity.Login = login
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		f.identities.Put(identity)
	}

	enrollments, err := f.upstream.GetProjectsUsers(ctx, token, login)
	if err != nil {
		return nil, f.fail(ctx, login, err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	state := exam.Reduce(identity, enrollments, f.now())

	logging.Ctx(ctx).Debug().
		Str("login", login).
		Int("progress", state.Progress).
		Str("status", string(state.Status)).
		Bool("identity_cached", cached).
		Msg("Fetched student state")

	return state, nil
}

// fail maps a fetch error. Cancellation wins over whatever the request
// reported, and a rejected token is purged.
func (f *Fetcher) fail(ctx context.Context, login string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, intra.ErrAuth) {
		if invErr := f.tokens.Invalidate(ctx); invErr != nil {
			logging.Ctx(ctx).Warn().Err(invErr).Msg("Failed to invalidate rejected access token")
		}
	}
	logging.Ctx(ctx).Debug().Err(err).Str("login", login).Str("kind", intra.Kind(err)).Msg("Student fetch failed")
	return err
}

// NormalizeLogin lowercases and trims a login.
func NormalizeLogin(login string) string {
	return strings.ToLower(strings.TrimSpace(login))
}
