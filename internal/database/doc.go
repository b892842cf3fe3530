// Package database provides the PostgreSQL connection pool used by the
// event recorder, along with the schema for the socket_events table.
package database
