package guard

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kasiviral/kasiviral-backend/pkg/apiclient"
)

const reasonSubscriptionRequired = "SUBSCRIPTION_REQUIRED"

// defaultFetchTimeout bounds a shared fetch once it no longer follows any one caller.
const defaultFetchTimeout = 10 * time.Second

// EntitlementFetcher loads the signed-in caller's entitlement view.
type EntitlementFetcher interface {
	Me(ctx context.Context) (apiclient.EntitlementView, error)
}

// Session tracks who is signed in and resolves their guard State against the
// API, sharing one in-flight fetch per subject.
type Session struct {
	fetcher      EntitlementFetcher
	cache        *Cache
	group        singleflight.Group
	fetchTimeout time.Duration

	mu          sync.RWMutex
	subjectID   string
	authLoading bool
	checkErr    error
}

// NewSession starts in the auth-loading state until SignIn or SignOut settles it.
func NewSession(fetcher EntitlementFetcher, cache *Cache) *Session {
	if cache == nil {
		cache = NewCache(0, nil)
	}
	return &Session{fetcher: fetcher, cache: cache, fetchTimeout: defaultFetchTimeout, authLoading: true}
}

func (s *Session) SignIn(subjectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subjectID != "" && s.subjectID != subjectID {
		s.cache.Invalidate(s.subjectID)
	}
	s.subjectID = subjectID
	s.authLoading = false
	s.checkErr = nil
}

// SignOut forgets the subject and clears every cached view.
func (s *Session) SignOut() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subjectID = ""
	s.authLoading = false
	s.checkErr = nil
	s.cache.Clear()
}

// Activated drops the cached view so the next Resolve sees the new entitlement.
func (s *Session) Activated() {
	s.mu.RLock()
	subject := s.subjectID
	s.mu.RUnlock()
	if subject != "" {
		s.cache.Invalidate(subject)
	}
}

// Snapshot returns the current State without network I/O. A signed-in
// subject without a fresh cached view reports SubscriptionLoading.
func (s *Session) Snapshot() State {
	s.mu.RLock()
	subject, authLoading, checkErr := s.subjectID, s.authLoading, s.checkErr
	s.mu.RUnlock()

	if authLoading {
		return State{AuthLoading: true}
	}
	if subject == "" {
		return State{}
	}
	if checkErr != nil {
		return State{IsLoggedIn: true, IsSubscriptionCheckError: true}
	}
	view, fresh, ok := s.cache.Get(subject)
	if !ok || !fresh {
		return State{IsLoggedIn: true, SubscriptionLoading: true}
	}
	return State{IsLoggedIn: true, IsActive: view.IsActive}
}

// Resolve fetches the entitlement when the cache is stale and returns the
// settled State. A caller whose ctx ends first gets SubscriptionLoading and
// leaves the shared fetch running for the others.
func (s *Session) Resolve(ctx context.Context) State {
	s.mu.RLock()
	subject, authLoading := s.subjectID, s.authLoading
	s.mu.RUnlock()

	if authLoading {
		return State{AuthLoading: true}
	}
	if subject == "" {
		return State{}
	}
	if view, fresh, ok := s.cache.Get(subject); ok && fresh {
		s.setCheckErr(subject, nil)
		return State{IsLoggedIn: true, IsActive: view.IsActive}
	}

	// The fetch is shared by every waiter, so it runs detached from the caller
	// that started it; each waiter stops waiting on its own context.
	ch := s.group.DoChan(subject, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
		defer cancel()
		return s.fetcher.Me(fetchCtx)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return State{IsLoggedIn: true, SubscriptionLoading: true}
	}
	if res.Err != nil {
		return s.stateForError(subject, res.Err)
	}
	view := res.Val.(apiclient.EntitlementView)
	s.cache.Put(subject, view)
	s.setCheckErr(subject, nil)
	return State{IsLoggedIn: true, IsActive: view.IsActive}
}

// Retry clears a previous check error and resolves again.
func (s *Session) Retry(ctx context.Context) State {
	s.mu.RLock()
	subject := s.subjectID
	s.mu.RUnlock()
	s.setCheckErr(subject, nil)
	s.cache.Invalidate(subject)
	return s.Resolve(ctx)
}

// LastError returns the error behind IsSubscriptionCheckError, if any.
func (s *Session) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.checkErr
}

func (s *Session) stateForError(subject string, err error) State {
	if errors.Is(err, apiclient.ErrSignedOut) {
		s.SignOut()
		return State{}
	}
	if apiErr, ok := apiclient.AsError(err); ok {
		switch {
		case apiErr.Status == http.StatusUnauthorized:
			s.SignOut()
			return State{}
		case apiErr.Status == http.StatusForbidden && apiErr.Reason() == reasonSubscriptionRequired:
			s.cache.Put(subject, apiclient.EntitlementView{Status: "inactive"})
			s.setCheckErr(subject, nil)
			return State{IsLoggedIn: true}
		}
	}
	s.setCheckErr(subject, err)
	return State{IsLoggedIn: true, IsSubscriptionCheckError: true}
}

func (s *Session) setCheckErr(subject string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subjectID == subject {
		s.checkErr = err
	}
}
