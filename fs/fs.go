// Package appfs embeds the database migrations, fixtures and email templates.
package appfs

import "embed"

//go:embed migrations/*.sql fixtures/*.yaml templates/email/* passwords/common.txt
var FS embed.FS
