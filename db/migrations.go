package db

import (
	"context"
	"database/sql"
)

const (
	sqlCreateFollowedAccountsTable = `CREATE TABLE IF NOT EXISTS followed_accounts (
		id TEXT NOT NULL PRIMARY KEY,
		handle TEXT UNIQUE NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateFollowersTable = `CREATE TABLE IF NOT EXISTS followers (
		id TEXT NOT NULL PRIMARY KEY,
		actor_uri TEXT NOT NULL,
		acct TEXT NOT NULL,
		host TEXT NOT NULL,
		inbox_uri TEXT NOT NULL,
		follow_uri TEXT,
		target_handle TEXT NOT NULL,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(actor_uri, target_handle)
	)`

	sqlCreateFollowersIndices = `
		CREATE INDEX IF NOT EXISTS idx_followers_target_handle ON followers(target_handle);
		CREATE INDEX IF NOT EXISTS idx_followers_host ON followers(host);
	`

	// Remote accounts cache table
	sqlCreateRemoteAccountsTable = `CREATE TABLE IF NOT EXISTS remote_accounts (
		id TEXT NOT NULL PRIMARY KEY,
		username TEXT NOT NULL,
		domain TEXT NOT NULL,
		actor_uri TEXT UNIQUE NOT NULL,
		inbox_uri TEXT NOT NULL,
		public_key_id TEXT,
		public_key_pem TEXT NOT NULL,
		last_fetched_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	)`

	sqlCreateRemoteAccountsIndices = `
		CREATE INDEX IF NOT EXISTS idx_remote_accounts_domain ON remote_accounts(domain);
	`
)

// RunMigrations executes all database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	return db.wrapTransaction(ctx, func(tx *sql.Tx) error {
		if err := db.createTableIfNotExists(tx, sqlCreateFollowedAccountsTable, "followed_accounts"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateFollowersTable, "followers"); err != nil {
			return err
		}
		if err := db.createTableIfNotExists(tx, sqlCreateRemoteAccountsTable, "remote_accounts"); err != nil {
			return err
		}

		if _, err := tx.Exec(sqlCreateFollowersIndices); err != nil {
			db.log.Warnf("Failed to create followers indices: %v", err)
		}
		if _, err := tx.Exec(sqlCreateRemoteAccountsIndices); err != nil {
			db.log.Warnf("Failed to create remote_accounts indices: %v", err)
		}

		// Extend existing tables (ignore errors if columns already exist)
		db.extendExistingTables(tx)

		return nil
	})
}

func (db *DB) createTableIfNotExists(tx *sql.Tx, createSQL string, tableName string) error {
	_, err := tx.Exec(createSQL)
	if err != nil {
		db.log.Errorf("Error creating table %s: %v", tableName, err)
		return err
	}
	db.log.Debugf("Table %s created or already exists", tableName)
	return nil
}

func (db *DB) extendExistingTables(tx *sql.Tx) {
	// shared inboxes were added after the first release
	if !db.hasColumn(tx, "followers", "shared_inbox") {
		tx.Exec("ALTER TABLE followers ADD COLUMN shared_inbox TEXT DEFAULT ''")
	}
	if !db.hasColumn(tx, "remote_accounts", "shared_inbox") {
		tx.Exec("ALTER TABLE remote_accounts ADD COLUMN shared_inbox TEXT DEFAULT ''")
	}
}

func (db *DB) hasColumn(tx *sql.Tx, table string, column string) bool {
	rows, err := tx.Query("SELECT name FROM pragma_table_info(?)", table)
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err == nil && name == column {
			return true
		}
	}
	return false
}
