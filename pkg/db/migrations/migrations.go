// Package migrations holds the schema of the crawl database.
package migrations

import (
	"github.com/jingkaihe/agentkit/pkg/db"
)

// All returns every migration
func All() []db.Migration {
	return []db.Migration{
		createDocPages(),
		addDocPagesIndexes(),
	}
}
