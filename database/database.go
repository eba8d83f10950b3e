package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"microblog/domain"
)

// Config describes how to reach the database. Dialect is either "postgres" or
// "sqlite"; Path is only used by sqlite.
type Config struct {
	Dialect  string `json:"dialect"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Path     string `json:"path"`
}

// DefaultConfig is the local development database.
func DefaultConfig() Config {
	return Config{
		Dialect: "postgres",
		Host:    "localhost",
		Port:    5432,
		User:    "postgres",
		Name:    "microblog",
	}
}

// ConnectionInfo returns the DSN for the configured dialect.
func (c Config) ConnectionInfo() string {
	if c.Dialect == "sqlite" {
		path := c.Path
		if path == "" {
			path = ":memory:"
		}
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	}
	if c.Password == "" {
		return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=disable", c.Host, c.Port, c.User, c.Name)
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable", c.Host, c.Port, c.User, c.Password, c.Name)
}

// DB provides the database connection.
type DB struct {
	// Object-relational mapping.
	Gorm *gorm.DB
	// Config the connection was opened with.
	Config Config
}

// Open opens a new database connection. Queries are logged outside of production.
func Open(cfg Config, isProd bool) (*DB, error) {
	gormCfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	if !isProd {
		gormCfg.Logger = logger.Default.LogMode(logger.Info)
	}

	var dialector gorm.Dialector
	switch cfg.Dialect {
	case "postgres", "":
		dialector = postgres.Open(cfg.ConnectionInfo())
	case "sqlite":
		dialector = sqlite.Open(cfg.ConnectionInfo())
	default:
		return nil, errors.Errorf("unsupported database dialect %q", cfg.Dialect)
	}

	g, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s connection", cfg.Dialect)
	}
	if cfg.Dialect == "sqlite" {
		// sqlite allows a single writer, and every connection to :memory: is a new database.
		sqlDB, err := g.DB()
		if err != nil {
			return nil, errors.Wrap(err, "sqlite pool")
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return &DB{Gorm: g, Config: cfg}, nil
}

// models lists every table in creation order.
func models() []interface{} {
	return []interface{}{
		&domain.User{},
		&domain.Group{},
		&domain.Post{},
		&domain.Comment{},
		&domain.Follow{},
	}
}

// AutoMigrate runs database migrations for all tables.
func (db *DB) AutoMigrate() error {
	return errors.Wrap(db.Gorm.AutoMigrate(models()...), "auto migrate")
}

// DestructiveReset drops all tables and rebuilds them.
func (db *DB) DestructiveReset() error {
	m := models()
	// Drop dependants first.
	for i, j := 0, len(m)-1; i < j; i, j = i+1, j-1 {
		m[i], m[j] = m[j], m[i]
	}
	if err := db.Gorm.Migrator().DropTable(m...); err != nil {
		return errors.Wrap(err, "drop tables")
	}
	return db.AutoMigrate()
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.Gorm.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
