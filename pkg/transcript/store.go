package transcript

import (
	"context"
	"net"
	"strings"

	"github.com/ethanbaker/ragchat/pkg/session"
	"github.com/go-sql-driver/mysql"
	"github.com/m-mizutani/goerr/v2"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store persists transcript pairs using GORM
type Store struct {
	db *gorm.DB
}

// NewStore opens the database and creates the transcript table if it is missing.
// Running it on every start is safe
func NewStore(dialector gorm.Dialector) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open database")
	}

	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, goerr.Wrap(err, "failed to migrate transcript table")
	}

	return &Store{db: db}, nil
}

// OpenDialector picks the GORM dialector for a driver name
func OpenDialector(driver, dsn string) (gorm.Dialector, error) {
	if dsn == "" {
		return nil, goerr.New("database dsn is empty", goerr.V("driver", driver))
	}

	switch strings.ToLower(driver) {
	case "", "mysql":
		return gormmysql.Open(dsn), nil
	case "postgres", "postgresql", "pg":
		return postgres.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	default:
		return nil, goerr.New("unsupported database driver", goerr.V("driver", driver))
	}
}

// MySQLDSN builds a MySQL DSN from its parts
func MySQLDSN(user, password, host, port, database string) string {
	cfg := mysql.Config{
		User:                 user,
		Passwd:               password,
		Net:                  "tcp",
		Addr:                 net.JoinHostPort(host, port),
		DBName:               database,
		ParseTime:            true,
		AllowNativePasswords: true,
	}
	return cfg.FormatDSN()
}

// PersistPair inserts one transcript row for a completed pair
func (s *Store) PersistPair(ctx context.Context, pair session.Pair) error {
	record := NewRecord(pair)

	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		return goerr.Wrap(err, "failed to insert transcript",
			goerr.V("session_id", pair.SessionID),
			goerr.V("turn_id", pair.TurnID),
		)
	}

	return nil
}

// ListBySession returns the newest transcript rows for a session, oldest first
func (s *Store) ListBySession(ctx context.Context, sessionID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}

	var records []Record
	result := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("timestamp DESC").Order("id DESC").
		Limit(limit).
		Find(&records)
	if result.Error != nil {
		return nil, goerr.Wrap(result.Error, "failed to query transcripts", goerr.V("session_id", sessionID))
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}

	return records, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return goerr.Wrap(err, "failed to get sql.DB from gorm.DB")
	}
	return sqlDB.Close()
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return goerr.Wrap(err, "failed to get sql.DB from gorm.DB")
	}
	return sqlDB.PingContext(ctx)
}
