package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/guildmind/store"
)

const profileColumns = "user_id, guild_id, name, nickname, domains, preferences, learning_level, created_ts, updated_ts"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserProfile(row rowScanner) (*store.UserProfile, error) {
	var (
		p                    store.UserProfile
		domains, prefs       string
		createdTs, updatedTs int64
	)
	if err := row.Scan(&p.UserID, &p.GuildID, &p.Name, &p.Nickname, &domains, &prefs, &p.LearningLevel, &createdTs, &updatedTs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(domains), &p.Domains); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal domains")
	}
	if err := json.Unmarshal([]byte(prefs), &p.Preferences); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal preferences")
	}
	p.CreatedAt = fromUnix(createdTs)
	p.UpdatedAt = fromUnix(updatedTs)
	return &p, nil
}

func (d *DB) UpsertUserProfile(ctx context.Context, upsert *store.UpsertUserProfile) (*store.UserProfile, error) {
	now := time.Now().Unix()
	stmt := `INSERT INTO user_profile (user_id, guild_id, name, nickname, created_ts, updated_ts)
		VALUES (` + placeholders(6) + `)
		ON CONFLICT (user_id, guild_id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE user_profile.name END,
			nickname = CASE WHEN excluded.nickname != '' THEN excluded.nickname ELSE user_profile.nickname END,
			updated_ts = excluded.updated_ts
		RETURNING ` + profileColumns

	p, err := scanUserProfile(d.db.QueryRowContext(ctx, stmt, upsert.UserID, upsert.GuildID, upsert.Name, upsert.Nickname, now, now))
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert user_profile")
	}
	return p, nil
}

func (d *DB) GetUserProfile(ctx context.Context, find *store.FindUserProfile) (*store.UserProfile, error) {
	if find == nil || find.UserID == nil || find.GuildID == nil {
		return nil, errors.New("user_id and guild_id are required")
	}

	query := `SELECT ` + profileColumns + ` FROM user_profile WHERE user_id = ` + placeholder(1) + ` AND guild_id = ` + placeholder(2)
	p, err := scanUserProfile(d.db.QueryRowContext(ctx, query, *find.UserID, *find.GuildID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get user_profile")
	}

	facts, err := d.ListMemorableFacts(ctx, &store.FindMemorableFact{UserID: p.UserID, GuildID: p.GuildID})
	if err != nil {
		return nil, err
	}
	p.Facts = facts
	return p, nil
}

func (d *DB) ListUserProfiles(ctx context.Context, find *store.FindUserProfile) ([]*store.UserProfile, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find != nil {
		if find.UserID != nil {
			where, args = append(where, "user_id = "+placeholder(len(args)+1)), append(args, *find.UserID)
		}
		if find.GuildID != nil {
			where, args = append(where, "guild_id = "+placeholder(len(args)+1)), append(args, *find.GuildID)
		}
	}

	query := `SELECT ` + profileColumns + ` FROM user_profile WHERE ` + strings.Join(where, " AND ") + ` ORDER BY guild_id, user_id`
	if find != nil && find.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", find.Limit)
		if find.Offset > 0 {
			query += fmt.Sprintf(" OFFSET %d", find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list user_profiles")
	}
	defer rows.Close()

	list := make([]*store.UserProfile, 0)
	for rows.Next() {
		p, err := scanUserProfile(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan user_profile")
		}
		list = append(list, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate user_profiles")
	}
	return list, nil
}

func (d *DB) MergeUserProfile(ctx context.Context, merge *store.MergeUserProfile) error {
	now := time.Now().Unix()
	return d.inTx(ctx, func(tx *sql.Tx) error {
		// The insert takes the write lock before the read below.
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_profile (user_id, guild_id, created_ts, updated_ts) VALUES (`+placeholders(4)+`)
			ON CONFLICT (user_id, guild_id) DO NOTHING`,
			merge.UserID, merge.GuildID, now, now); err != nil {
			return errors.Wrap(err, "failed to ensure user_profile")
		}

		var domainsRaw, prefsRaw string
		if err := tx.QueryRowContext(ctx,
			`SELECT domains, preferences FROM user_profile WHERE user_id = `+placeholder(1)+` AND guild_id = `+placeholder(2),
			merge.UserID, merge.GuildID).Scan(&domainsRaw, &prefsRaw); err != nil {
			return errors.Wrap(err, "failed to read user_profile")
		}

		var domains []string
		var prefs map[string]any
		if err := json.Unmarshal([]byte(domainsRaw), &domains); err != nil {
			return errors.Wrap(err, "failed to unmarshal domains")
		}
		if err := json.Unmarshal([]byte(prefsRaw), &prefs); err != nil {
			return errors.Wrap(err, "failed to unmarshal preferences")
		}

		domainsJSON, err := marshalJSON(store.UnionDomains(domains, merge.Domains), "[]")
		if err != nil {
			return errors.Wrap(err, "failed to marshal domains")
		}
		prefsJSON, err := marshalJSON(store.MergePreferences(prefs, merge.Preferences), "{}")
		if err != nil {
			return errors.Wrap(err, "failed to marshal preferences")
		}

		set, args := []string{"domains = ?", "preferences = ?", "updated_ts = ?"}, []any{domainsJSON, prefsJSON, now}
		if merge.LearningLevel != nil {
			set, args = append(set, "learning_level = ?"), append(args, *merge.LearningLevel)
		}
		args = append(args, merge.UserID, merge.GuildID)

		if _, err := tx.ExecContext(ctx,
			`UPDATE user_profile SET `+strings.Join(set, ", ")+` WHERE user_id = ? AND guild_id = ?`, args...); err != nil {
			return errors.Wrap(err, "failed to update user_profile")
		}
		return nil
	})
}

func (d *DB) DeleteUserProfile(ctx context.Context, delete *store.DeleteUserProfile) error {
	if delete == nil || delete.UserID == "" || delete.GuildID == "" {
		return errors.New("no condition to delete user_profile")
	}
	return d.inTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"memorable_fact", "shared_narrative", "user_profile"} {
			stmt := `DELETE FROM ` + table + ` WHERE user_id = ` + placeholder(1) + ` AND guild_id = ` + placeholder(2)
			if _, err := tx.ExecContext(ctx, stmt, delete.UserID, delete.GuildID); err != nil {
				return errors.Wrapf(err, "failed to delete from %s", table)
			}
		}
		return nil
	})
}
