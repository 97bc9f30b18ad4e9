// Package appfs embeds the files the binaries need at runtime.
package appfs

import "embed"

// FS holds the goose migrations under migrations/ and the e-mail templates under templates/email/.
//
//go:embed migrations/*.sql templates/email/*
var FS embed.FS

const (
	MigrationsDir     = "migrations"
	EmailTemplatesDir = "templates/email"
)
