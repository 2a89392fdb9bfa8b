package memory

import (
	"context"
	"time"

	"github.com/hashicorp/go-memdb"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	"github.com/oksasatya/identity-service/internal/domain/repository"
)

const (
	tableIdentity = "identity"
	tableLink     = "external_link"
)

type identityRecord struct {
	ID                string
	Email             string
	TaxID             string
	RefreshToken      string
	VerificationToken string
	ResetToken        string
	State             entity.IdentityState
}

type linkRecord struct {
	Provider   string
	SubjectID  string
	IdentityID string
	CreatedAt  time.Time
}

func schema() *memdb.DBSchema {
	optional := func(name, field string, unique bool) *memdb.IndexSchema {
		return &memdb.IndexSchema{
			Name:         name,
			Unique:       unique,
			AllowMissing: true,
			Indexer:      &memdb.StringFieldIndex{Field: field},
		}
	}
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			tableIdentity: {
				Name: tableIdentity,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:    "id",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "ID"},
					},
					"email": {
						Name:    "email",
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Email", Lowercase: true},
					},
					"email_exact": {
						Name:    "email_exact",
						Indexer: &memdb.StringFieldIndex{Field: "Email"},
					},
					"tax_id":             optional("tax_id", "TaxID", true),
					"refresh_token":      optional("refresh_token", "RefreshToken", false),
					"verification_token": optional("verification_token", "VerificationToken", false),
					"reset_token":        optional("reset_token", "ResetToken", false),
				},
			},
			tableLink: {
				Name: tableLink,
				Indexes: map[string]*memdb.IndexSchema{
					"id": {
						Name:   "id",
						Unique: true,
						Indexer: &memdb.CompoundIndex{Indexes: []memdb.Indexer{
							&memdb.StringFieldIndex{Field: "Provider", Lowercase: true},
							&memdb.StringFieldIndex{Field: "SubjectID"},
						}},
					},
					"identity_id": {
						Name:    "identity_id",
						Indexer: &memdb.StringFieldIndex{Field: "IdentityID"},
					},
				},
			},
		},
	}
}

// Store is an in-process transactional store. memdb serialises write
// transactions, so check-then-insert inside one write transaction is atomic.
type Store struct {
	db *memdb.MemDB
}

func NewStore() (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Identities() *IdentityRepository  { return &IdentityRepository{s: s} }
func (s *Store) Links() *ExternalLinkRepository    { return &ExternalLinkRepository{s: s} }
func (s *Store) Transactor() repository.Transactor { return s }

type txKey struct{}

func txFrom(ctx context.Context) (*memdb.Txn, bool) {
	t, ok := ctx.Value(txKey{}).(*memdb.Txn)
	return t, ok
}

// WithinTx joins an enclosing transaction when ctx already carries one.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txFrom(ctx); ok {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	txn := s.db.Txn(true)
	committed := false
	defer func() {
		if !committed {
			txn.Abort()
		}
	}()
	if err := fn(context.WithValue(ctx, txKey{}, txn)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	txn.Commit()
	committed = true
	return nil
}

func (s *Store) read(ctx context.Context) (*memdb.Txn, func()) {
	if t, ok := txFrom(ctx); ok {
		return t, func() {}
	}
	t := s.db.Txn(false)
	return t, t.Abort
}

// write runs fn in the ambient transaction or in its own short one.
func (s *Store) write(ctx context.Context, fn func(txn *memdb.Txn) error) error {
	if t, ok := txFrom(ctx); ok {
		return fn(t)
	}
	t := s.db.Txn(true)
	if err := fn(t); err != nil {
		t.Abort()
		return err
	}
	t.Commit()
	return nil
}
