// Package database is the durable system of record for orders.
package database

import (
	"fmt"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/proofline-hq/proofline/pkg/models"
)

// Connect opens the MySQL connection for the durable order store
func Connect(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// AutoMigrate applies idempotent schema migrations for the order tables
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Order{})
}
