package database

import "errors"

var (
	// ErrNoMigrations indicates Migrate was given a nil filesystem.
	ErrNoMigrations = errors.New("database: no migrations filesystem")

	// ErrMigrationNotFound indicates an applied migration has no file.
	ErrMigrationNotFound = errors.New("database: migration not found")

	// ErrNoDownSQL indicates a migration cannot be rolled back.
	ErrNoDownSQL = errors.New("database: migration has no down SQL")
)
