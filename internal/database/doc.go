// Package database opens the PostgreSQL pool used by the session journal.
package database
