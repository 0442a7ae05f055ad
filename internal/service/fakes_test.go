package service

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/cigarclub/identity/internal/errs"
	"github.com/cigarclub/identity/internal/limiter"
	"github.com/cigarclub/identity/internal/model"
	"github.com/cigarclub/identity/internal/repository"
)

// fakeStore backs both repositories with the same atomicity the SQL stores give.
type fakeStore struct {
	mu       sync.Mutex
	accounts map[string]*model.Account // by email
	tokens   []*model.RefreshToken

	err error // returned by every call when set
}

var (
	_ repository.AccountRepository      = (*fakeStore)(nil)
	_ repository.RefreshTokenRepository = (*fakeTokens)(nil)
)

func newFakeStore() *fakeStore {
	return &fakeStore{accounts: map[string]*model.Account{}}
}

func (f *fakeStore) Create(_ context.Context, a *model.Account) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.accounts[a.Email]; ok {
		return errs.ErrAlreadyExists
	}
	c := *a
	f.accounts[a.Email] = &c
	return nil
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, a := range f.accounts {
		if a.ID == id {
			c := *a
			return &c, nil
		}
	}
	return nil, errs.ErrNotFound
}

func (f *fakeStore) GetByEmail(_ context.Context, email string) (*model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	a, ok := f.accounts[email]
	if !ok {
		return nil, errs.ErrNotFound
	}
	c := *a
	return &c, nil
}

func (f *fakeStore) List(context.Context) ([]model.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]model.Account, 0, len(f.accounts))
	for _, a := range f.accounts {
		out = append(out, *a)
	}
	return out, nil
}

func (f *fakeStore) SetRole(_ context.Context, id uuid.UUID, role model.Role) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	if !f.assignRole(id, role) {
		return 0, errs.ErrNotFound
	}
	var n int64
	for _, t := range f.tokens {
		if t.AccountID == id && !t.Revoked {
			t.Revoked = true
			n++
		}
	}
	return n, nil
}

// assignRole changes the role only, leaving sessions alone. Caller holds mu.
func (f *fakeStore) assignRole(id uuid.UUID, role model.Role) bool {
	for _, a := range f.accounts {
		if a.ID == id {
			a.Role = role
			return true
		}
	}
	return false
}

func (f *fakeStore) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// fakeTokens shares the lock and data of its store.
type fakeTokens struct{ *fakeStore }

func (f fakeTokens) find(hash []byte) *model.RefreshToken {
	for _, t := range f.tokens {
		if bytes.Equal(t.SecretHash, hash) {
			return t
		}
	}
	return nil
}

func (f fakeTokens) Create(_ context.Context, t *model.RefreshToken) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.find(t.SecretHash) != nil {
		return errs.ErrAlreadyExists
	}
	c := *t
	f.tokens = append(f.tokens, &c)
	return nil
}

func (f fakeTokens) GetByHash(_ context.Context, hash []byte) (*model.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	t := f.find(hash)
	if t == nil {
		return nil, errs.ErrNotFound
	}
	c := *t
	return &c, nil
}

func (f fakeTokens) Rotate(_ context.Context, oldID uuid.UUID, next *model.RefreshToken, now time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	for _, t := range f.tokens {
		if t.ID == oldID {
			if !t.Redeemable(now) {
				return errs.ErrInvalidOrExpiredToken
			}
			t.Revoked = true
			c := *next
			f.tokens = append(f.tokens, &c)
			return nil
		}
	}
	return errs.ErrInvalidOrExpiredToken
}

func (f fakeTokens) Revoke(_ context.Context, hash []byte) (uuid.UUID, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return uuid.Nil, false, f.err
	}
	t := f.find(hash)
	if t == nil || t.Revoked {
		return uuid.Nil, false, nil
	}
	t.Revoked = true
	return t.AccountID, true, nil
}

func (f fakeTokens) active(accountID uuid.UUID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, t := range f.tokens {
		if t.AccountID == accountID && !t.Revoked {
			n++
		}
	}
	return n
}

type fakeLimiter struct {
	mu sync.Mutex

	allowOK  bool
	allowErr error

	failBlocked bool
	failErr     error

	allowCalls   int
	failureCalls int
	successCalls int
	lastEmail    string
}

var _ limiter.Limiter = (*fakeLimiter)(nil)

func (l *fakeLimiter) Allow(_ context.Context, email string, _ []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowCalls++
	l.lastEmail = email
	return l.allowOK, 0, l.allowErr
}

func (l *fakeLimiter) Success(context.Context, string, []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.successCalls++
	return nil
}

func (l *fakeLimiter) Failure(context.Context, string, []byte) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failureCalls++
	return l.failBlocked, time.Minute, l.failErr
}
