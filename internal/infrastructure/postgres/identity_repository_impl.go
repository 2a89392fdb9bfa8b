package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/oksasatya/identity-service/internal/domain/entity"
	"github.com/oksasatya/identity-service/internal/domain/repository"
)

const identityColumns = `id, email, name, phone, tax_id, credential_secret, role, created_at,
	avatar_url, is_email_verified, email_verification_token,
	password_reset_token, password_reset_token_expiry,
	refresh_token, refresh_token_expiry, concurrency_stamp`

type IdentityRepository struct {
	pool *pgxpool.Pool
}

func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

var _ repository.IdentityRepository = (*IdentityRepository)(nil)

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

func scanIdentity(row pgx.Row) (entity.IdentityState, error) {
	var (
		st                                        entity.IdentityState
		role                                      string
		taxID, secret, avatar, verify, reset, rtk *string
		resetExp, rtkExp                          *time.Time
	)
	err := row.Scan(&st.ID, &st.Email, &st.Name, &st.Phone, &taxID, &secret, &role, &st.CreatedAt,
		&avatar, &st.IsEmailVerified, &verify, &reset, &resetExp, &rtk, &rtkExp, &st.ConcurrencyStamp)
	if err != nil {
		return st, err
	}
	st.Role = entity.Role(role)
	st.TaxID = deref(taxID)
	st.CredentialSecret = deref(secret)
	st.AvatarURL = deref(avatar)
	st.EmailVerificationToken = deref(verify)
	st.PasswordResetToken = deref(reset)
	st.PasswordResetTokenExpiry = deref(resetExp)
	st.RefreshToken = deref(rtk)
	st.RefreshTokenExpiry = deref(rtkExp)
	st.CreatedAt = st.CreatedAt.UTC()
	return st, nil
}

func (r *IdentityRepository) loadAddresses(ctx context.Context, q querier, id uuid.UUID) ([]entity.Address, error) {
	rows, err := q.Query(ctx, `
		SELECT id, name, street, country_code
		FROM identity_addresses
		WHERE identity_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []entity.Address
	for rows.Next() {
		var a entity.Address
		if err := rows.Scan(&a.ID, &a.Name, &a.Street, &a.CountryCode); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *IdentityRepository) getOne(ctx context.Context, where string, arg any) (*entity.Identity, error) {
	q := conn(ctx, r.pool)
	st, err := scanIdentity(q.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if st.Addresses, err = r.loadAddresses(ctx, q, st.ID); err != nil {
		return nil, err
	}
	return entity.RestoreIdentity(st), nil
}

func (r *IdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Identity, error) {
	return r.getOne(ctx, "id = $1", id)
}

func (r *IdentityRepository) GetByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	return r.getOne(ctx, "email = $1", email)
}

func (r *IdentityRepository) FindByEmail(ctx context.Context, email string) (*entity.Identity, error) {
	return r.getOne(ctx, "lower(email) = lower($1)", strings.TrimSpace(email))
}

func (r *IdentityRepository) GetByTaxID(ctx context.Context, taxID string) (*entity.Identity, error) {
	return r.getOne(ctx, "tax_id = $1", strings.ToUpper(strings.TrimSpace(taxID)))
}

func (r *IdentityRepository) GetByRefreshToken(ctx context.Context, token string) (*entity.Identity, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}
	return r.getOne(ctx, "refresh_token = $1", token)
}

func (r *IdentityRepository) GetByVerificationToken(ctx context.Context, token string) (*entity.Identity, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}
	return r.getOne(ctx, "email_verification_token = $1", token)
}

func (r *IdentityRepository) GetByResetToken(ctx context.Context, token string) (*entity.Identity, error) {
	if token == "" {
		return nil, repository.ErrNotFound
	}
	return r.getOne(ctx, "password_reset_token = $1", token)
}

func writeAddresses(ctx context.Context, q querier, id uuid.UUID, addrs []entity.Address) error {
	if _, err := q.Exec(ctx, `DELETE FROM identity_addresses WHERE identity_id = $1`, id); err != nil {
		return err
	}
	for pos, a := range addrs {
		if _, err := q.Exec(ctx, `
			INSERT INTO identity_addresses (id, identity_id, position, name, street, country_code)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, a.ID, id, pos, a.Name, a.Street, a.CountryCode); err != nil {
			return err
		}
	}
	return nil
}

func (r *IdentityRepository) Create(ctx context.Context, i *entity.Identity) error {
	st := i.State()
	err := inTx(ctx, r.pool, func(q querier) error {
		_, err := q.Exec(ctx, `
			INSERT INTO identities (`+identityColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, 1)
		`, st.ID, st.Email, st.Name, st.Phone, nullString(st.TaxID), nullString(st.CredentialSecret),
			string(st.Role), st.CreatedAt, nullString(st.AvatarURL), st.IsEmailVerified,
			nullString(st.EmailVerificationToken), nullString(st.PasswordResetToken),
			nullTime(st.PasswordResetTokenExpiry), nullString(st.RefreshToken), nullTime(st.RefreshTokenExpiry))
		if err != nil {
			return mapError(err)
		}
		return writeAddresses(ctx, q, st.ID, st.Addresses)
	})
	if err != nil {
		return err
	}
	i.MarkSaved(1)
	return nil
}

func (r *IdentityRepository) Update(ctx context.Context, i *entity.Identity) error {
	st := i.State()
	var next int64
	err := inTx(ctx, r.pool, func(q querier) error {
		err := q.QueryRow(ctx, `
			UPDATE identities
			SET email = $3, name = $4, phone = $5, tax_id = $6, credential_secret = $7, role = $8,
			    avatar_url = $9, is_email_verified = $10, email_verification_token = $11,
			    password_reset_token = $12, password_reset_token_expiry = $13,
			    refresh_token = $14, refresh_token_expiry = $15,
			    concurrency_stamp = concurrency_stamp + 1
			WHERE id = $1 AND concurrency_stamp = $2
			RETURNING concurrency_stamp
		`, st.ID, st.ConcurrencyStamp, st.Email, st.Name, st.Phone, nullString(st.TaxID),
			nullString(st.CredentialSecret), string(st.Role), nullString(st.AvatarURL), st.IsEmailVerified,
			nullString(st.EmailVerificationToken), nullString(st.PasswordResetToken),
			nullTime(st.PasswordResetTokenExpiry), nullString(st.RefreshToken),
			nullTime(st.RefreshTokenExpiry)).Scan(&next)
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM identities WHERE id = $1)`, st.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return repository.ErrNotFound
			}
			return repository.ErrConcurrencyConflict
		}
		if err != nil {
			return mapError(err)
		}
		return writeAddresses(ctx, q, st.ID, st.Addresses)
	})
	if err != nil {
		return err
	}
	i.MarkSaved(next)
	return nil
}

// Delete removes the identity; addresses and external links cascade.
func (r *IdentityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

var sortColumns = map[string]string{
	repository.AttrEmail:     "email",
	repository.AttrID:        "id",
	repository.AttrName:      "name",
	repository.AttrPhone:     "phone",
	repository.AttrTaxID:     "tax_id",
	repository.AttrCreatedAt: "created_at",
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func buildListQuery(q repository.IdentityQuery) (string, []any, error) {
	var (
		sb   strings.Builder
		args []any
	)
	sb.WriteString(`SELECT ` + identityColumns + ` FROM identities`)
	if q.Attribute != "" {
		col, ok := sortColumns[q.Attribute]
		if !ok || q.Attribute == repository.AttrCreatedAt {
			return "", nil, fmt.Errorf("unsupported filter attribute %q", q.Attribute)
		}
		expr := "lower(coalesce(" + col + ", ''))"
		if q.Attribute == repository.AttrID {
			expr = "id::text"
		}
		v := likeEscaper.Replace(strings.ToLower(q.Value))
		switch q.Op {
		case repository.OpContains:
			args = append(args, "%"+v+"%")
		case repository.OpStartsWith:
			args = append(args, v+"%")
		case repository.OpEndsWith:
			args = append(args, "%"+v)
		case repository.OpEquals:
			args = append(args, strings.ToLower(q.Value))
		default:
			return "", nil, fmt.Errorf("unsupported filter operator %q", q.Op)
		}
		if q.Op == repository.OpEquals {
			sb.WriteString(" WHERE " + expr + " = $1")
		} else {
			sb.WriteString(" WHERE " + expr + ` LIKE $1 ESCAPE '\'`)
		}
	}
	order, ok := sortColumns[q.SortBy]
	if !ok {
		order = "created_at"
	}
	sb.WriteString(" ORDER BY " + order)
	if q.Desc {
		sb.WriteString(" DESC")
	}
	if q.Limit > 0 {
		args = append(args, q.Limit)
		sb.WriteString(fmt.Sprintf(" LIMIT $%d", len(args)))
	}
	if q.Offset > 0 {
		args = append(args, q.Offset)
		sb.WriteString(fmt.Sprintf(" OFFSET $%d", len(args)))
	}
	return sb.String(), args, nil
}

func (r *IdentityRepository) List(ctx context.Context, lq repository.IdentityQuery) ([]*entity.Identity, error) {
	sql, args, err := buildListQuery(lq)
	if err != nil {
		return nil, err
	}
	q := conn(ctx, r.pool)
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var states []entity.IdentityState
	for rows.Next() {
		st, err := scanIdentity(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		states = append(states, st)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*entity.Identity, 0, len(states))
	for _, st := range states {
		if st.Addresses, err = r.loadAddresses(ctx, q, st.ID); err != nil {
			return nil, err
		}
		out = append(out, entity.RestoreIdentity(st))
	}
	return out, nil
}
