// Package all registers every rule store backend.
package all

import (
	_ "github.com/San-2310/hsbc-hack/internal/rulestore/postgres"
	_ "github.com/San-2310/hsbc-hack/internal/rulestore/redis"
	_ "github.com/San-2310/hsbc-hack/internal/rulestore/sqlite"
)
