// Package migrations contains embedded SQL migrations for every supported store driver.
package migrations

import "embed"

// FS holds one directory of goose migrations per dialect: postgres/ and sqlite/.
//
//go:embed postgres/*.sql sqlite/*.sql
var FS embed.FS
