// Package migrations holds the schema for quizzes, questions and user scores.
package migrations

import "github.com/uptrace/bun/migrate"

var Migrations = migrate.NewMigrations()
