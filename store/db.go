// Package store is the relational persistence layer: gorm models for the
// canonical tables plus the queries the pipeline needs.
package store

import (
	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/postgres"
	"github.com/pkg/errors"

	"github.com/walletbase/walletd/log"
)

var logger = log.NewModuleLogger("store")

type Database struct {
	db *gorm.DB
}

// Open connects to postgres and migrates the schema. Failure here is
// fatal to the process.
func Open(url string, pool int) (*Database, error) {
	db, err := gorm.Open("postgres", url)
	if err != nil {
		return nil, errors.Wrap(err, "open postgres")
	}
	db.DB().SetMaxOpenConns(pool)
	db.DB().SetMaxIdleConns(pool / 2)
	if err := db.AutoMigrate(allModels()...).Error; err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migrate schema")
	}
	return &Database{db: db}, nil
}

// NewWithDB wraps an existing gorm handle. Used by tests.
func NewWithDB(db *gorm.DB) *Database {
	return &Database{db: db}
}

func (d *Database) Close() error { return d.db.Close() }
