package config

import "errors"

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL environment variable is required")
	ErrUnknownProject     = errors.New("unknown project")
	ErrUnknownImporter    = errors.New("unknown importer type")
	ErrUnknownLoader      = errors.New("unknown loader")
)
