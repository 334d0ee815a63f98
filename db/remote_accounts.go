package db

import (
	"context"
	"database/sql"

	"github.com/deemkeen/birdbridge/domain"
	"github.com/google/uuid"
)

// Remote Accounts queries
const (
	sqlUpsertRemoteAccount = `INSERT INTO remote_accounts(id, username, domain, actor_uri, inbox_uri, shared_inbox, public_key_id, public_key_pem, last_fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(actor_uri) DO UPDATE SET
			username = excluded.username,
			domain = excluded.domain,
			inbox_uri = excluded.inbox_uri,
			shared_inbox = excluded.shared_inbox,
			public_key_id = excluded.public_key_id,
			public_key_pem = excluded.public_key_pem,
			last_fetched_at = excluded.last_fetched_at`
	sqlSelectRemoteAccountByURI = `SELECT id, username, domain, actor_uri, inbox_uri, shared_inbox, public_key_id, public_key_pem, last_fetched_at
		FROM remote_accounts WHERE actor_uri = ?`
)

// SaveRemoteAccount inserts the actor or refreshes the cached copy.
func (db *DB) SaveRemoteAccount(ctx context.Context, acc *domain.RemoteAccount) error {
	if acc.Id == uuid.Nil {
		acc.Id = uuid.New()
	}
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(sqlUpsertRemoteAccount,
			acc.Id.String(),
			acc.Username,
			acc.Domain,
			acc.ActorURI,
			acc.InboxURI,
			acc.SharedInbox,
			acc.PublicKeyId,
			acc.PublicKeyPem,
			acc.LastFetchedAt,
		)
		return err
	})
}

// ReadRemoteAccountByURI returns nil when the actor is not cached.
func (db *DB) ReadRemoteAccountByURI(ctx context.Context, uri string) (*domain.RemoteAccount, error) {
	row := db.db.QueryRowContext(ctx, sqlSelectRemoteAccountByURI, uri)
	var acc domain.RemoteAccount
	var idStr string
	var sharedInbox, keyId sql.NullString
	err := row.Scan(
		&idStr,
		&acc.Username,
		&acc.Domain,
		&acc.ActorURI,
		&acc.InboxURI,
		&sharedInbox,
		&keyId,
		&acc.PublicKeyPem,
		&acc.LastFetchedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	acc.Id, _ = uuid.Parse(idStr)
	acc.SharedInbox = sharedInbox.String
	acc.PublicKeyId = keyId.String
	return &acc, nil
}
