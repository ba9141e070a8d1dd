package postgres

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/hrygo/guildmind/store"
)

const sessionColumns = "id, user_id, guild_id, channel_id, status, messages, summary, created_ts, closed_ts, archived_ts"

func scanSession(row rowScanner) (*store.Session, error) {
	var (
		s                    store.Session
		status               string
		messages             []byte
		createdTs            int64
		closedTs, archivedTs sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.UserID, &s.GuildID, &s.ChannelID, &status, &messages, &s.Summary, &createdTs, &closedTs, &archivedTs); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(messages, &s.Messages); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal session messages")
	}
	if s.Messages == nil {
		s.Messages = []store.SessionMessage{}
	}
	s.Status = store.SessionStatus(status)
	s.CreatedAt = fromUnix(createdTs)
	s.ClosedAt = fromNullUnix(closedTs)
	s.ArchivedAt = fromNullUnix(archivedTs)
	return &s, nil
}

func (d *DB) CreateSession(ctx context.Context, create *store.Session) (*store.Session, error) {
	messages, err := marshalJSON(create.Messages, "[]")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal session messages")
	}

	stmt := `INSERT INTO conversation_session (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10) RETURNING ` + sessionColumns
	s, err := scanSession(d.db.QueryRowContext(ctx, stmt,
		create.ID, create.UserID, create.GuildID, create.ChannelID, string(create.Status), messages, create.Summary,
		create.CreatedAt.Unix(), toNullUnix(create.ClosedAt), toNullUnix(create.ArchivedAt)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create conversation_session")
	}
	return s, nil
}

func (d *DB) GetSession(ctx context.Context, id string) (*store.Session, error) {
	s, err := scanSession(d.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM conversation_session WHERE id = $1`, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get conversation_session")
	}
	return s, nil
}

func (d *DB) GetLatestClosedSession(ctx context.Context, userID, guildID string) (*store.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM conversation_session
		WHERE user_id = $1 AND guild_id = $2 AND status = 'CLOSED'
		ORDER BY closed_ts DESC, created_ts DESC LIMIT 1`
	s, err := scanSession(d.db.QueryRowContext(ctx, query, userID, guildID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.Wrap(err, "failed to get latest closed conversation_session")
	}
	return s, nil
}

func (d *DB) AppendSessionMessage(ctx context.Context, append *store.AppendSessionMessage) error {
	message, err := json.Marshal(append.Message)
	if err != nil {
		return errors.Wrap(err, "failed to marshal session message")
	}

	stmt := `UPDATE conversation_session SET messages = messages || jsonb_build_array($1::jsonb)
		WHERE id = $2 AND status = 'OPEN'`
	return d.execExpectOne(ctx, "append session message", stmt, string(message), append.ID)
}

func (d *DB) CloseSession(ctx context.Context, close *store.CloseSession) error {
	stmt := `UPDATE conversation_session SET status = 'CLOSED', summary = $1, closed_ts = $2
		WHERE id = $3 AND status = 'OPEN'`
	return d.execExpectOne(ctx, "close session", stmt, close.Summary, close.ClosedAt.Unix(), close.ID)
}

func (d *DB) ArchiveSessions(ctx context.Context, archive *store.ArchiveSessions) ([]*store.ArchivedSession, error) {
	stmt := `UPDATE conversation_session SET status = 'ARCHIVED', archived_ts = $1, messages = '[]'::jsonb
		WHERE status = 'CLOSED' AND closed_ts < $2
		RETURNING id, user_id, guild_id`
	rows, err := d.db.QueryContext(ctx, stmt, archive.ArchivedAt.Unix(), archive.ClosedBefore.Unix())
	if err != nil {
		return nil, errors.Wrap(err, "failed to archive conversation_sessions")
	}
	defer rows.Close()

	list := make([]*store.ArchivedSession, 0)
	for rows.Next() {
		var a store.ArchivedSession
		if err := rows.Scan(&a.ID, &a.UserID, &a.GuildID); err != nil {
			return nil, errors.Wrap(err, "failed to scan archived conversation_session")
		}
		list = append(list, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate archived conversation_sessions")
	}
	return list, nil
}

func (d *DB) DeleteStaleSessions(ctx context.Context, delete *store.DeleteStaleSessions) (int64, error) {
	result, err := d.db.ExecContext(ctx,
		`DELETE FROM conversation_session WHERE status = 'OPEN' AND created_ts < $1`, delete.CreatedBefore.Unix())
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete stale conversation_sessions")
	}
	return result.RowsAffected()
}

func (d *DB) execExpectOne(ctx context.Context, op, stmt string, args ...any) error {
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrapf(err, "failed to %s", op)
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
