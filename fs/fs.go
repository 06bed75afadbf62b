// Package appfs embeds the static files shipped with the binaries.
package appfs

import "embed"

const (
	MigrationsDir     = "migrations"
	EmailTemplatesDir = "templates/email"
	CommonPasswords   = "common-passwords.txt"
)

//go:embed migrations templates templates/email/_base.txt templates/email/_base.gohtml common-passwords.txt
var FS embed.FS
