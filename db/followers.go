package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/deemkeen/birdbridge/domain"
	"github.com/google/uuid"
)

// Follower queries
const (
	sqlUpsertFollower = `INSERT INTO followers(id, actor_uri, acct, host, inbox_uri, shared_inbox, follow_uri, target_handle, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_uri, target_handle) DO UPDATE SET
			acct = excluded.acct,
			host = excluded.host,
			inbox_uri = excluded.inbox_uri,
			shared_inbox = excluded.shared_inbox,
			follow_uri = excluded.follow_uri`
	sqlDeleteFollower          = `DELETE FROM followers WHERE actor_uri = ? AND target_handle = ?`
	sqlCountFollowersByHandle  = `SELECT COUNT(*) FROM followers WHERE target_handle = ?`
	sqlSelectFollowersByHandle = `SELECT id, actor_uri, acct, host, inbox_uri, shared_inbox, follow_uri, target_handle, created_at
		FROM followers WHERE target_handle = ? ORDER BY created_at ASC`

	sqlInsertFollowedAccount = `INSERT INTO followed_accounts(id, handle, created_at) VALUES (?, ?, ?) ON CONFLICT(handle) DO NOTHING`
	sqlDeleteFollowedAccount = `DELETE FROM followed_accounts WHERE handle = ?`
	sqlCountFollowedAccounts = `SELECT COUNT(*) FROM followed_accounts`
	sqlSelectFollowedAccount = `SELECT id, handle, created_at FROM followed_accounts WHERE handle = ?`
)

// AddFollower stores the follow relation and registers the target as a
// followed account. Following twice only refreshes the stored inboxes.
func (db *DB) AddFollower(ctx context.Context, f *domain.Follower) error {
	if f.Id == uuid.Nil {
		f.Id = uuid.New()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now()
	}

	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlInsertFollowedAccount, uuid.New().String(), f.TargetHandle, f.CreatedAt); err != nil {
			return err
		}
		_, err := tx.Exec(sqlUpsertFollower,
			f.Id.String(),
			f.ActorURI,
			f.Acct,
			f.Host,
			f.InboxURI,
			f.SharedInbox,
			f.FollowURI,
			f.TargetHandle,
			f.CreatedAt,
		)
		return err
	})
}

// RemoveFollower deletes the follow relation. The followed account is
// dropped once nobody follows it anymore. Removing an unknown relation is
// not an error.
func (db *DB) RemoveFollower(ctx context.Context, actorURI string, targetHandle string) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(sqlDeleteFollower, actorURI, targetHandle); err != nil {
			return err
		}

		var remaining int
		if err := tx.QueryRow(sqlCountFollowersByHandle, targetHandle).Scan(&remaining); err != nil {
			return err
		}
		if remaining == 0 {
			if _, err := tx.Exec(sqlDeleteFollowedAccount, targetHandle); err != nil {
				return err
			}
		}
		return nil
	})
}

func (db *DB) ReadFollowersByHandle(ctx context.Context, handle string) ([]domain.Follower, error) {
	rows, err := db.db.QueryContext(ctx, sqlSelectFollowersByHandle, handle)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var followers []domain.Follower
	for rows.Next() {
		var f domain.Follower
		var idStr string
		var followURI, sharedInbox sql.NullString
		if err := rows.Scan(&idStr, &f.ActorURI, &f.Acct, &f.Host, &f.InboxURI, &sharedInbox, &followURI, &f.TargetHandle, &f.CreatedAt); err != nil {
			return followers, err
		}
		f.Id, _ = uuid.Parse(idStr)
		f.FollowURI = followURI.String
		f.SharedInbox = sharedInbox.String
		followers = append(followers, f)
	}
	return followers, rows.Err()
}

func (db *DB) CountFollowers(ctx context.Context, handle string) (int, error) {
	var count int
	err := db.db.QueryRowContext(ctx, sqlCountFollowersByHandle, handle).Scan(&count)
	return count, err
}

// CountFollowedAccounts returns how many mirrored accounts have at least
// one follower.
func (db *DB) CountFollowedAccounts(ctx context.Context) (int, error) {
	var count int
	err := db.db.QueryRowContext(ctx, sqlCountFollowedAccounts).Scan(&count)
	return count, err
}

// ReadFollowedAccount returns nil when handle has no followers.
func (db *DB) ReadFollowedAccount(ctx context.Context, handle string) (*domain.FollowedAccount, error) {
	var acc domain.FollowedAccount
	var idStr string
	err := db.db.QueryRowContext(ctx, sqlSelectFollowedAccount, handle).Scan(&idStr, &acc.Handle, &acc.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	acc.Id, _ = uuid.Parse(idStr)
	return &acc, nil
}
