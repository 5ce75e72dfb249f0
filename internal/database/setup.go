package database

import (
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"flux/internal/config"
)

func setPragmaValues(db *sqlx.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	return nil
}

func readPragmaValues(db *sqlx.DB, sugar *zap.SugaredLogger) error {
	var foreignKeysValue bool
	err := db.Get(&foreignKeysValue, "PRAGMA foreign_keys")
	if err != nil {
		return err
	}

	var journalModeValue string
	err = db.Get(&journalModeValue, "PRAGMA journal_mode")
	if err != nil {
		return err
	}

	var synchronousValue int
	err = db.Get(&synchronousValue, "PRAGMA synchronous")
	if err != nil {
		return err
	}

	var synchronousValueStr string
	switch synchronousValue {
	case 0:
		synchronousValueStr = "off"
	case 1:
		synchronousValueStr = "normal"
	case 2:
		synchronousValueStr = "full"
	case 3:
		synchronousValueStr = "extra"
	default:
		return fmt.Errorf("synchronous value is unsupported")
	}

	sugar.Debugf("sqlite PRAGMA foreign_keys: %t, journal_mode: %s, synchronous: %s", foreignKeysValue, journalModeValue, synchronousValueStr)

	return nil
}

// Driver is the database/sql driver name Setup opens for cfg.
func Driver(cfg config.Config) string {
	if cfg.SelfContained {
		return "sqlite"
	}
	if cfg.DbDriver == "postgres" {
		return "postgres"
	}
	return "mysql"
}

func dataSourceName(cfg config.Config) string {
	switch Driver(cfg) {
	case "sqlite":
		return cfg.DbPath
	case "postgres":
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&connect_timeout=10", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase)
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&timeout=10s", cfg.DbUser, cfg.DbPassword, cfg.DbAddress, cfg.DbPort, cfg.DbDatabase)
	}
}

func Setup(cfg config.Config, sugar *zap.SugaredLogger) (*sqlx.DB, error) {
	driver := Driver(cfg)
	sugar.Infof("Connecting to database %s...", driver)

	db, err := sqlx.Connect(driver, dataSourceName(cfg))
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		// there can be sqlite busy errors if this is not set to 1
		db.SetMaxOpenConns(1)

		err = setPragmaValues(db)
		if err != nil {
			db.Close()
			return nil, err
		}

		err = readPragmaValues(db, sugar)
		if err != nil {
			db.Close()
			return nil, err
		}
	} else {
		db.SetMaxOpenConns(10)
	}

	err = setupTables(db)
	if err != nil {
		db.Close()
		return nil, err
	}

	return db, nil
}

func setupTables(db *sqlx.DB) error {
	_, err := db.Exec(`
			CREATE TABLE IF NOT EXISTS users (
				id BIGINT PRIMARY KEY,
				email VARCHAR(64) NOT NULL UNIQUE,
				password VARCHAR(60) NOT NULL
			);
		`)
	if err != nil {
		return err
	}

	// every collection shares one table, data is the json encoded document and
	// created_at the order key live queries sort by
	_, err = db.Exec(`
			CREATE TABLE IF NOT EXISTS documents (
				collection VARCHAR(255) NOT NULL,
				id VARCHAR(32) NOT NULL,
				created_at BIGINT NOT NULL,
				data TEXT NOT NULL,
				PRIMARY KEY (collection, id)
			);
		`)
	if err != nil {
		return err
	}

	return nil
}
