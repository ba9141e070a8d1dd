package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/guildmind/store"
)

const factColumns = "id, user_id, guild_id, text, type, confidence, category, source, added_ts, last_confirmed_ts"

func scanMemorableFact(row rowScanner) (*store.MemorableFact, error) {
	var (
		f               store.MemorableFact
		factType        string
		addedTs, confTs int64
	)
	if err := row.Scan(&f.ID, &f.UserID, &f.GuildID, &f.Text, &factType, &f.Confidence, &f.Category, &f.Source, &addedTs, &confTs); err != nil {
		return nil, err
	}
	f.Type = store.FactType(factType)
	f.AddedAt = fromUnix(addedTs)
	f.LastConfirmed = fromUnix(confTs)
	return &f, nil
}

func (d *DB) AppendMemorableFact(ctx context.Context, create *store.MemorableFact) (*store.MemorableFact, error) {
	now := time.Now()
	if create.AddedAt.IsZero() {
		create.AddedAt = now
	}
	if create.LastConfirmed.IsZero() {
		create.LastConfirmed = create.AddedAt
	}

	err := d.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_profile (user_id, guild_id, created_ts, updated_ts) VALUES (`+placeholders(4)+`)
			ON CONFLICT (user_id, guild_id) DO NOTHING`,
			create.UserID, create.GuildID, now.Unix(), now.Unix()); err != nil {
			return errors.Wrap(err, "failed to ensure user_profile")
		}

		stmt := `INSERT INTO memorable_fact (` + factColumns + `) VALUES (` + placeholders(10) + `)`
		if _, err := tx.ExecContext(ctx, stmt,
			create.ID, create.UserID, create.GuildID, create.Text, string(create.Type), create.Confidence,
			create.Category, create.Source, create.AddedAt.Unix(), create.LastConfirmed.Unix()); err != nil {
			return errors.Wrap(err, "failed to insert memorable_fact")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	create.AddedAt = fromUnix(create.AddedAt.Unix())
	create.LastConfirmed = fromUnix(create.LastConfirmed.Unix())
	return create, nil
}

func (d *DB) ListMemorableFacts(ctx context.Context, find *store.FindMemorableFact) ([]*store.MemorableFact, error) {
	query := `SELECT ` + factColumns + ` FROM memorable_fact WHERE user_id = ` + placeholder(1) + ` AND guild_id = ` + placeholder(2) + ` ORDER BY seq ASC`
	rows, err := d.db.QueryContext(ctx, query, find.UserID, find.GuildID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list memorable_facts")
	}
	defer rows.Close()

	list := make([]*store.MemorableFact, 0)
	for rows.Next() {
		f, err := scanMemorableFact(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan memorable_fact")
		}
		list = append(list, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate memorable_facts")
	}
	return list, nil
}

func (d *DB) ReinforceMemorableFact(ctx context.Context, reinforce *store.ReinforceMemorableFact) error {
	stmt := `UPDATE memorable_fact
		SET confidence = MIN(confidence + ?, ?), last_confirmed_ts = ?
		WHERE id = ? AND user_id = ? AND guild_id = ?`
	result, err := d.db.ExecContext(ctx, stmt,
		reinforce.Boost, reinforce.Ceiling, reinforce.ConfirmedAt.Unix(),
		reinforce.ID, reinforce.UserID, reinforce.GuildID)
	if err != nil {
		return errors.Wrap(err, "failed to reinforce memorable_fact")
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ApplyFactChanges commits each update and delete only while the fact still
// holds the state the caller observed.
func (d *DB) ApplyFactChanges(ctx context.Context, changes *store.FactChanges) (*store.AppliedFactChanges, error) {
	applied := &store.AppliedFactChanges{}
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		for _, u := range changes.Updates {
			n, err := execCount(ctx, tx,
				`UPDATE memorable_fact SET confidence = ?, last_confirmed_ts = ?
				WHERE id = ? AND user_id = ? AND guild_id = ? AND `+observedGuard,
				u.Confidence, u.LastConfirmed.Unix(), u.ID, changes.UserID, changes.GuildID,
				u.Observed.Confidence, u.Observed.LastConfirmed.Unix())
			if err != nil {
				return errors.Wrapf(err, "failed to update memorable_fact %s", u.ID)
			}
			applied.Updated += n
		}

		for _, del := range changes.Deletes {
			n, err := execCount(ctx, tx,
				`DELETE FROM memorable_fact WHERE id = ? AND user_id = ? AND guild_id = ? AND `+observedGuard,
				del.ID, changes.UserID, changes.GuildID, del.Observed.Confidence, del.Observed.LastConfirmed.Unix())
			if err != nil {
				return errors.Wrapf(err, "failed to delete memorable_fact %s", del.ID)
			}
			applied.Deleted += n
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

// observedGuard matches a fact still at the (confidence, last_confirmed_ts) it was read with.
const observedGuard = `MIN(MAX(confidence, 0), 1) = ? AND last_confirmed_ts = ?`

func execCount(ctx context.Context, tx *sql.Tx, stmt string, args ...any) (int, error) {
	result, err := tx.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}
	return int(affected), nil
}
