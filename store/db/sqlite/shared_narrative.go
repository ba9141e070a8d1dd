package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/guildmind/store"
)

const narrativeColumns = "id, user_id, guild_id, memory, tone, created_ts, expires_ts, deletable"

func (d *DB) CreateSharedNarrative(ctx context.Context, create *store.SharedNarrative) (*store.SharedNarrative, error) {
	stmt := `INSERT INTO shared_narrative (` + narrativeColumns + `) VALUES (` + placeholders(8) + `)`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.UserID, create.GuildID, create.Memory, create.Tone,
		create.CreatedAt.Unix(), toNullUnix(create.ExpiresAt), create.Deletable); err != nil {
		return nil, errors.Wrap(err, "failed to create shared_narrative")
	}
	create.CreatedAt = fromUnix(create.CreatedAt.Unix())
	if create.ExpiresAt != nil {
		create.ExpiresAt = fromNullUnix(toNullUnix(create.ExpiresAt))
	}
	return create, nil
}

func (d *DB) ListSharedNarratives(ctx context.Context, find *store.FindSharedNarrative) ([]*store.SharedNarrative, error) {
	where, args := []string{"user_id = ?", "guild_id = ?"}, []any{find.UserID, find.GuildID}
	if find.ActiveAt != nil {
		where, args = append(where, "(expires_ts IS NULL OR expires_ts > ?)"), append(args, find.ActiveAt.Unix())
	}

	query := `SELECT ` + narrativeColumns + ` FROM shared_narrative WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts ASC, id ASC`
	if find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list shared_narratives")
	}
	defer rows.Close()

	list := make([]*store.SharedNarrative, 0)
	for rows.Next() {
		var (
			n         store.SharedNarrative
			createdTs int64
			expiresTs sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &n.GuildID, &n.Memory, &n.Tone, &createdTs, &expiresTs, &n.Deletable); err != nil {
			return nil, errors.Wrap(err, "failed to scan shared_narrative")
		}
		n.CreatedAt = fromUnix(createdTs)
		n.ExpiresAt = fromNullUnix(expiresTs)
		list = append(list, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate shared_narratives")
	}
	return list, nil
}

func (d *DB) DeleteSharedNarrative(ctx context.Context, delete *store.DeleteSharedNarrative) (int64, error) {
	where, args := []string{"user_id = ?", "memory = ?", "deletable = 1"}, []any{delete.UserID, delete.Memory}
	if delete.GuildID != nil {
		where, args = append(where, "guild_id = ?"), append(args, *delete.GuildID)
	}

	result, err := d.db.ExecContext(ctx, `DELETE FROM shared_narrative WHERE `+strings.Join(where, " AND "), args...)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete shared_narrative")
	}
	return result.RowsAffected()
}
