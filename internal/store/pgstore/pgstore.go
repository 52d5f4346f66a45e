// Package pgstore implements store.Store on Postgres by composing the sqlx repositories.
package pgstore

import (
	"context"

	"github.com/jmoiron/sqlx"

	auditrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/audit/repo"
	settingrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/store"
	tprepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/thirdparty/repo"
	tokenrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/token/repo"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

type repos struct {
	*userrepo.UserRepo
	*settingrepo.Repo
	*tokenrepo.RefreshRepo
	*tokenrepo.ResetRepo
	*tprepo.AccountRepo
	*auditrepo.AuditRepo
}

func newRepos(db sqlx.ExtContext) *repos {
	return &repos{
		UserRepo:    userrepo.NewUserRepo(db),
		Repo:        settingrepo.NewRepo(db),
		RefreshRepo: tokenrepo.NewRefreshRepo(db),
		ResetRepo:   tokenrepo.NewResetRepo(db),
		AccountRepo: tprepo.NewAccountRepo(db),
		AuditRepo:   auditrepo.NewAuditRepo(db),
	}
}

// Store is the Postgres-backed store.Store.
type Store struct {
	*repos
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// New wraps an open connection pool.
func New(db *sqlx.DB) *Store {
	return &Store{repos: newRepos(db), db: db}
}

// InTx runs fn against repositories bound to a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(tx store.Repository) error) error {
	return database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		return fn(newRepos(tx))
	})
}

// EnsureSchema creates all tables in dependency order.
func (s *Store) EnsureSchema(ctx context.Context) error {
	steps := []func(context.Context) error{
		s.UserRepo.EnsureTable,
		s.Repo.EnsureTable,
		s.RefreshRepo.EnsureTable,
		s.ResetRepo.EnsureTable,
		s.AccountRepo.EnsureTable,
		s.AuditRepo.EnsureTable,
	}
	for _, step := range steps {
		if err := step(ctx); err != nil {
			return err
		}
	}
	return nil
}
