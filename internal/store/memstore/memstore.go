// Package memstore is an in-process store.Store. Transactions run under a
// single lock against a copy of the state that replaces the live state on
// success, so a failed unit of work leaves no trace. It enforces the same
// uniqueness rules as the Postgres indexes.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	auditentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/entity"
	settingentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/setting/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	tpentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty/entity"
	tokenentity "github.com/ovaphlow/pitchfork/service-auth-go/internal/token/entity"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
)

type state struct {
	users    map[int64]*entity.User
	profiles map[int64]*entity.Profile
	roles    map[int64]*entity.Role
	settings map[int64]*settingentity.Setting
	refresh  map[int64]*tokenentity.RefreshToken
	resets   map[int64]*tokenentity.PasswordResetToken
	accounts map[int64]*tpentity.Account
	logins   []auditentity.LoginHistory
	security []auditentity.SecurityLog
}

func newState() *state {
	return &state{
		users:    map[int64]*entity.User{},
		profiles: map[int64]*entity.Profile{},
		roles:    map[int64]*entity.Role{},
		settings: map[int64]*settingentity.Setting{},
		refresh:  map[int64]*tokenentity.RefreshToken{},
		resets:   map[int64]*tokenentity.PasswordResetToken{},
		accounts: map[int64]*tpentity.Account{},
	}
}

func cloneMap[T any](m map[int64]*T) map[int64]*T {
	out := make(map[int64]*T, len(m))
	for k, v := range m {
		c := *v
		out[k] = &c
	}
	return out
}

func (s *state) clone() *state {
	return &state{
		users:    cloneMap(s.users),
		profiles: cloneMap(s.profiles),
		roles:    cloneMap(s.roles),
		settings: cloneMap(s.settings),
		refresh:  cloneMap(s.refresh),
		resets:   cloneMap(s.resets),
		accounts: cloneMap(s.accounts),
		logins:   append([]auditentity.LoginHistory(nil), s.logins...),
		security: append([]auditentity.SecurityLog(nil), s.security...),
	}
}

// Store is safe for concurrent use.
type Store struct {
	*view
	mu sync.Mutex
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	s := &Store{}
	s.view = &view{st: newState(), faults: map[string]error{}}
	s.view.mu = &s.mu
	return s
}

// InTx runs fn on a private copy of the state and publishes it only when fn returns nil.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Repository) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &view{st: s.st.clone(), faults: s.faults}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// FailOn makes the named Repository method return err until cleared with a nil err.
func (s *Store) FailOn(method string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, method)
		return
	}
	s.faults[method] = err
}

// Counts reports the number of rows per table.
type Counts struct {
	Users, Profiles, Roles, Settings, RefreshTokens, ResetTokens, Accounts, LoginHistory, SecurityLogs int
}

// Counts returns current row counts.
func (s *Store) Counts() Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Counts{
		Users:         len(s.st.users),
		Profiles:      len(s.st.profiles),
		Roles:         len(s.st.roles),
		Settings:      len(s.st.settings),
		RefreshTokens: len(s.st.refresh),
		ResetTokens:   len(s.st.resets),
		Accounts:      len(s.st.accounts),
		LoginHistory:  len(s.st.logins),
		SecurityLogs:  len(s.st.security),
	}
}

// LoginHistory returns a copy of the login history in insertion order.
func (s *Store) LoginHistory() []auditentity.LoginHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auditentity.LoginHistory(nil), s.st.logins...)
}

// SecurityLogs returns a copy of the security log in insertion order.
func (s *Store) SecurityLogs() []auditentity.SecurityLog {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]auditentity.SecurityLog(nil), s.st.security...)
}

// RefreshTokensFor returns copies of every refresh token row of a user.
func (s *Store) RefreshTokensFor(userID int64) []tokenentity.RefreshToken {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []tokenentity.RefreshToken
	for _, t := range s.st.refresh {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// SetRefreshExpiry overrides expires_at of every refresh token of a user.
func (s *Store) SetRefreshExpiry(userID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.st.refresh {
		if t.UserID == userID {
			t.ExpiresAt = at
		}
	}
}

// SetUserStatus overrides the status of a user.
func (s *Store) SetUserStatus(userID int64, status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.st.users[userID]; ok {
		u.Status = status
	}
}

// SoftDeleteUser flags a user as deleted.
func (s *Store) SoftDeleteUser(userID int64, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.st.users[userID]; ok {
		u.IsDeleted = true
		u.DeletedAt = &at
		u.Status = entity.StatusDeleted
	}
}

// view implements store.Repository over one state. mu is nil inside a transaction.
type view struct {
	mu     *sync.Mutex
	st     *state
	faults map[string]error
}

func (v *view) enter(method string) (func(), error) {
	unlock := func() {}
	if v.mu != nil {
		v.mu.Lock()
		unlock = v.mu.Unlock
	}
	if err, ok := v.faults[method]; ok {
		unlock()
		return func() {}, err
	}
	return unlock, nil
}

func eq(p *string, v string) bool { return p != nil && *p == v }

func (v *view) CreateUser(ctx context.Context, u *entity.User) error {
	done, err := v.enter("CreateUser")
	if err != nil {
		return err
	}
	defer done()
	for _, o := range v.st.users {
		if o.IsDeleted {
			continue
		}
		switch {
		case o.Username == u.Username:
			return &store.UniqueViolation{Field: store.FieldUsername}
		case u.Email != nil && eq(o.Email, *u.Email):
			return &store.UniqueViolation{Field: store.FieldEmail}
		case u.Phone != nil && eq(o.Phone, *u.Phone):
			return &store.UniqueViolation{Field: store.FieldPhone}
		}
	}
	c := *u
	v.st.users[u.ID] = &c
	return nil
}

func (v *view) CreateProfile(ctx context.Context, p *entity.Profile) error {
	done, err := v.enter("CreateProfile")
	if err != nil {
		return err
	}
	defer done()
	c := *p
	v.st.profiles[p.ID] = &c
	return nil
}

func (v *view) CreateRole(ctx context.Context, r *entity.Role) error {
	done, err := v.enter("CreateRole")
	if err != nil {
		return err
	}
	defer done()
	c := *r
	v.st.roles[r.ID] = &c
	return nil
}

func (v *view) GetUser(ctx context.Context, id int64) (*entity.User, error) {
	done, err := v.enter("GetUser")
	if err != nil {
		return nil, err
	}
	defer done()
	u, ok := v.st.users[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (v *view) sortedUsers() []*entity.User {
	out := make([]*entity.User, 0, len(v.st.users))
	for _, u := range v.st.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v *view) findUser(method string, match func(*entity.User) bool) (*entity.User, error) {
	done, err := v.enter(method)
	if err != nil {
		return nil, err
	}
	defer done()
	for _, u := range v.sortedUsers() {
		if !u.IsDeleted && match(u) {
			c := *u
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) FindUserByLogin(ctx context.Context, identifier string) (*entity.User, error) {
	return v.findUser("FindUserByLogin", func(u *entity.User) bool {
		return u.Username == identifier || eq(u.Email, identifier) || eq(u.Phone, identifier)
	})
}

func (v *view) FindUserByContact(ctx context.Context, identifier string) (*entity.User, error) {
	return v.findUser("FindUserByContact", func(u *entity.User) bool {
		return eq(u.Email, identifier) || eq(u.Phone, identifier)
	})
}

func (v *view) UserFieldTaken(ctx context.Context, field, value string) (bool, error) {
	var match func(*entity.User) bool
	switch field {
	case store.FieldUsername:
		match = func(u *entity.User) bool { return u.Username == value }
	case store.FieldEmail:
		match = func(u *entity.User) bool { return eq(u.Email, value) }
	case store.FieldPhone:
		match = func(u *entity.User) bool { return eq(u.Phone, value) }
	default:
		return false, fmt.Errorf("unknown user field %q", field)
	}
	_, err := v.findUser("UserFieldTaken", match)
	switch {
	case err == nil:
		return true, nil
	case err == store.ErrNotFound:
		return false, nil
	default:
		return false, err
	}
}

func (v *view) updateUser(method string, id int64, fn func(*entity.User)) error {
	done, err := v.enter(method)
	if err != nil {
		return err
	}
	defer done()
	u, ok := v.st.users[id]
	if !ok {
		return store.ErrNotFound
	}
	fn(u)
	return nil
}

func (v *view) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	return v.updateUser("RecordLogin", id, func(u *entity.User) {
		u.LoginCount++
		u.LastLoginAt = &at
		u.UpdatedAt = at
	})
}

func (v *view) SetPassword(ctx context.Context, id int64, hash string, at time.Time) error {
	return v.updateUser("SetPassword", id, func(u *entity.User) {
		u.PasswordHash = &hash
		u.PasswordUpdatedAt = &at
		u.UpdatedAt = at
	})
}

func (v *view) MarkVerified(ctx context.Context, id int64, at time.Time) error {
	return v.updateUser("MarkVerified", id, func(u *entity.User) {
		u.Verified = true
		u.UpdatedAt = at
	})
}

func (v *view) ListRoles(ctx context.Context, userID int64) ([]string, error) {
	done, err := v.enter("ListRoles")
	if err != nil {
		return nil, err
	}
	defer done()
	var rows []*entity.Role
	for _, r := range v.st.roles {
		if r.UserID == userID && !r.IsDeleted {
			rows = append(rows, r)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID < rows[j].ID })
	roles := make([]string, 0, len(rows))
	for _, r := range rows {
		roles = append(roles, r.Role)
	}
	return roles, nil
}

func (v *view) CreateSetting(ctx context.Context, s *settingentity.Setting) error {
	done, err := v.enter("CreateSetting")
	if err != nil {
		return err
	}
	defer done()
	c := *s
	v.st.settings[s.ID] = &c
	return nil
}

func (v *view) CreateRefreshToken(ctx context.Context, t *tokenentity.RefreshToken) error {
	done, err := v.enter("CreateRefreshToken")
	if err != nil {
		return err
	}
	defer done()
	for _, o := range v.st.refresh {
		if o.Token == t.Token {
			return &store.UniqueViolation{Field: store.FieldToken}
		}
	}
	c := *t
	v.st.refresh[t.ID] = &c
	return nil
}

func (v *view) findRefresh(method string, userID int64, token string, activeOnly bool) (*tokenentity.RefreshToken, error) {
	done, err := v.enter(method)
	if err != nil {
		return nil, err
	}
	defer done()
	for _, t := range v.st.refresh {
		if t.UserID == userID && t.Token == token && !t.IsDeleted && (!activeOnly || !t.IsRevoked) {
			c := *t
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) FindActiveRefreshToken(ctx context.Context, userID int64, token string) (*tokenentity.RefreshToken, error) {
	return v.findRefresh("FindActiveRefreshToken", userID, token, true)
}

func (v *view) FindRefreshToken(ctx context.Context, userID int64, token string) (*tokenentity.RefreshToken, error) {
	return v.findRefresh("FindRefreshToken", userID, token, false)
}

func (v *view) TouchRefreshToken(ctx context.Context, id int64, at time.Time) error {
	done, err := v.enter("TouchRefreshToken")
	if err != nil {
		return err
	}
	defer done()
	if t, ok := v.st.refresh[id]; ok {
		t.UseCount++
		t.LastUsedAt = &at
	}
	return nil
}

func (v *view) RevokeRefreshToken(ctx context.Context, id int64, at time.Time) error {
	done, err := v.enter("RevokeRefreshToken")
	if err != nil {
		return err
	}
	defer done()
	if t, ok := v.st.refresh[id]; ok && !t.IsRevoked {
		t.IsRevoked = true
		t.RevokedAt = &at
	}
	return nil
}

func (v *view) RevokeAllRefreshTokens(ctx context.Context, userID int64, at time.Time) (int64, error) {
	done, err := v.enter("RevokeAllRefreshTokens")
	if err != nil {
		return 0, err
	}
	defer done()
	var n int64
	for _, t := range v.st.refresh {
		if t.UserID == userID && !t.IsRevoked && !t.IsDeleted {
			t.IsRevoked = true
			t.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

func (v *view) CreateResetToken(ctx context.Context, t *tokenentity.PasswordResetToken) error {
	done, err := v.enter("CreateResetToken")
	if err != nil {
		return err
	}
	defer done()
	for _, o := range v.st.resets {
		if o.Token == t.Token {
			return &store.UniqueViolation{Field: store.FieldToken}
		}
	}
	c := *t
	v.st.resets[t.ID] = &c
	return nil
}

func (v *view) FindResetToken(ctx context.Context, token, code string) (*tokenentity.PasswordResetToken, error) {
	done, err := v.enter("FindResetToken")
	if err != nil {
		return nil, err
	}
	defer done()
	for _, t := range v.st.resets {
		if t.Token == token && t.VerificationCode == code && !t.IsUsed && !t.IsDeleted {
			c := *t
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (v *view) MarkResetTokenUsed(ctx context.Context, id int64, at time.Time) error {
	done, err := v.enter("MarkResetTokenUsed")
	if err != nil {
		return err
	}
	defer done()
	t, ok := v.st.resets[id]
	if !ok || t.IsUsed {
		return store.ErrNotFound
	}
	t.IsUsed = true
	t.UsedAt = &at
	return nil
}

func (v *view) CreateAccount(ctx context.Context, a *tpentity.Account) error {
	done, err := v.enter("CreateAccount")
	if err != nil {
		return err
	}
	defer done()
	for _, o := range v.st.accounts {
		if o.IsDeleted {
			continue
		}
		if o.Provider == a.Provider && o.ProviderUserID == a.ProviderUserID {
			return &store.UniqueViolation{Field: store.FieldProviderIdentity}
		}
		if o.Provider == a.Provider && o.UserID == a.UserID {
			return &store.UniqueViolation{Field: store.FieldProviderSlot}
		}
	}
	c := *a
	v.st.accounts[a.ID] = &c
	return nil
}

func (v *view) findAccount(method string, match func(*tpentity.Account) bool) (*tpentity.Account, error) {
	done, err := v.enter(method)
	if err != nil {
		return nil, err
	}
	defer done()
	var hit *tpentity.Account
	for _, a := range v.st.accounts {
		if !a.IsDeleted && match(a) && (hit == nil || a.ID < hit.ID) {
			hit = a
		}
	}
	if hit == nil {
		return nil, store.ErrNotFound
	}
	c := *hit
	return &c, nil
}

func (v *view) FindAccount(ctx context.Context, provider tpentity.Provider, providerUserID string) (*tpentity.Account, error) {
	return v.findAccount("FindAccount", func(a *tpentity.Account) bool {
		return a.Provider == provider && a.ProviderUserID == providerUserID
	})
}

func (v *view) FindAccountForUser(ctx context.Context, userID int64, provider tpentity.Provider) (*tpentity.Account, error) {
	return v.findAccount("FindAccountForUser", func(a *tpentity.Account) bool {
		return a.UserID == userID && a.Provider == provider
	})
}

func (v *view) CountOtherAccounts(ctx context.Context, userID, excludeID int64) (int, error) {
	done, err := v.enter("CountOtherAccounts")
	if err != nil {
		return 0, err
	}
	defer done()
	n := 0
	for _, a := range v.st.accounts {
		if a.UserID == userID && a.ID != excludeID && !a.IsDeleted {
			n++
		}
	}
	return n, nil
}

func (v *view) UpdateAccountLogin(ctx context.Context, a *tpentity.Account) error {
	done, err := v.enter("UpdateAccountLogin")
	if err != nil {
		return err
	}
	defer done()
	cur, ok := v.st.accounts[a.ID]
	if !ok {
		return store.ErrNotFound
	}
	cur.AccessToken = a.AccessToken
	cur.RefreshToken = a.RefreshToken
	cur.ExpiresAt = a.ExpiresAt
	cur.Nickname = a.Nickname
	cur.AvatarURL = a.AvatarURL
	cur.Email = a.Email
	cur.LastLoginAt = a.LastLoginAt
	cur.UpdatedAt = a.UpdatedAt
	return nil
}

func (v *view) UnbindAccount(ctx context.Context, id int64, at time.Time) error {
	done, err := v.enter("UnbindAccount")
	if err != nil {
		return err
	}
	defer done()
	a, ok := v.st.accounts[id]
	if !ok || a.IsDeleted {
		return store.ErrNotFound
	}
	a.IsBound = false
	a.IsDeleted = true
	a.DeletedAt = &at
	a.UpdatedAt = at
	return nil
}

func (v *view) AppendLoginHistory(ctx context.Context, h *auditentity.LoginHistory) error {
	done, err := v.enter("AppendLoginHistory")
	if err != nil {
		return err
	}
	defer done()
	v.st.logins = append(v.st.logins, *h)
	return nil
}

func (v *view) AppendSecurityLog(ctx context.Context, l *auditentity.SecurityLog) error {
	done, err := v.enter("AppendSecurityLog")
	if err != nil {
		return err
	}
	defer done()
	v.st.security = append(v.st.security, *l)
	return nil
}
