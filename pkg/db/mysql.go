package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// KVRecord is one key of the hierarchical history store.
type KVRecord struct {
	Key   string `gorm:"primaryKey;size:255"`
	Value []byte `gorm:"type:blob"`
}

// TableName pins the table name regardless of naming strategy.
func (KVRecord) TableName() string { return "kv_records" }

// MySQLConfig describes how to reach the server. DSN wins when set.
type MySQLConfig struct {
	DSN      string
	Host     string
	Port     string
	User     string
	Password string
	Database string
}

func (c MySQLConfig) dsn() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local", c.User, c.Password, c.Host, c.Port, c.Database)
}

// Open connects to MySQL, creating the database when missing, and migrates
// the kv table.
func Open(c MySQLConfig) (*gorm.DB, error) {
	cfg := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}
	db, err := gorm.Open(mysql.Open(c.dsn()), cfg)
	if err != nil {
		if !strings.Contains(err.Error(), "Unknown database") || c.DSN != "" {
			return nil, err
		}
		if cerr := createDatabase(c); cerr != nil {
			return nil, fmt.Errorf("create database failed: %w", cerr)
		}
		db, err = gorm.Open(mysql.Open(c.dsn()), cfg)
		if err != nil {
			return nil, err
		}
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetMaxOpenConns(2)
	if err := db.AutoMigrate(&KVRecord{}); err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	return db, nil
}

func createDatabase(c MySQLConfig) error {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/", c.User, c.Password, c.Host, c.Port)
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return err
	}
	defer db.Close()
	_, err = db.Exec(fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` DEFAULT CHARACTER SET utf8mb4", c.Database))
	return err
}
