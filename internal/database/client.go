// Package database is the record store: equipment, sites, rentals and
// usage logs, plus the snapshot query that flattens them into the usage
// records the engine consumes.
package database

import (
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go.uber.org/zap"

	"github.com/smartrental/rentaltracker/internal/log"
)

// Client holds the connection to the rental database
type Client struct {
	dsn    string
	DB     *gorm.DB // Exported so it can be accessed from other packages
	logger *zap.SugaredLogger
}

// NewClient creates a new database client
func NewClient(dsn string, logger *zap.SugaredLogger) *Client {
	return &Client{
		dsn:    dsn,
		logger: logger,
	}
}

// Connect connects to the rental database
func (c *Client) Connect() error {
	var err error

	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(log.GetZapLogger()),
		logger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: false,
			Colorful:                  true,
		},
	)

	config := &gorm.Config{
		Logger: dbLogger,
	}

	log.Info("connecting to rental database...")
	c.DB, err = gorm.Open(postgres.Open(c.dsn), config)
	if err != nil {
		log.Warn("warning: unable to create a database connection:", err)
		return err
	}
	log.Info("rental database connection successful")

	return nil
}

// Migrate creates or updates the record store schema
func (c *Client) Migrate() error {
	return c.DB.AutoMigrate(&Equipment{}, &Site{}, &Rental{}, &UsageLog{})
}

// Close closes the underlying connection
func (c *Client) Close() error {
	sqlDB, err := c.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
