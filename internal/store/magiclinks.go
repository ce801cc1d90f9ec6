package store

import (
	"context"
	"errors"

	"github.com/accordsai/podx/internal/model"
	"github.com/jackc/pgx/v5"
)

func (s *Store) GetMagicLinkByTokenHash(ctx context.Context, tokenHash string) (model.MagicLink, error) {
	var l model.MagicLink
	err := s.DB.QueryRow(ctx, `
SELECT token_hash,role,jti,expires_at,used_at,session_id FROM magic_links WHERE token_hash=$1
`, tokenHash).Scan(&l.TokenHash, &l.Role, &l.JTI, &l.ExpiresAt, &l.UsedAt, &l.SessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.MagicLink{}, ErrNotFound
		}
		return model.MagicLink{}, err
	}
	return l, nil
}

// MarkMagicLinkUsed performs a single-use conditional update: a row is only affected if
// usedAt was still NULL, so concurrent completions never both succeed.
func (s *Store) MarkMagicLinkUsed(ctx context.Context, tokenHash string) (bool, error) {
	tag, err := s.DB.Exec(ctx, `UPDATE magic_links SET used_at=now() WHERE token_hash=$1 AND used_at IS NULL`, tokenHash)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}
