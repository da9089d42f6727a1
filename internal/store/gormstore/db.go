// Package gormstore is the PostgreSQL Session Store.
package gormstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/DoyleJ11/dnd-assistant-backend/internal/store"
)

type Config struct {
	DSN              string
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration
	RetryInterval    time.Duration
	MaxOpenConns     int
	MaxIdleConns     int
}

type Store struct {
	db        *gorm.DB
	sqlDB     *sql.DB
	opTimeout time.Duration
	retry     time.Duration
	log       *zap.Logger
}

// Open connects and migrates, retrying at a fixed interval until the
// database answers or ctx ends. A DSN that does not parse fails at once.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.With(zap.String("component", "gormstore"))

	pcfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("gormstore: malformed DSN: %w", err)
	}
	if cfg.ConnectTimeout > 0 {
		pcfg.ConnectTimeout = cfg.ConnectTimeout
	}

	sqlDB := stdlib.OpenDB(*pcfg)
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: newGormLogger(log),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("gormstore: open: %w", err)
	}

	s := &Store{
		db:        db,
		sqlDB:     sqlDB,
		opTimeout: cfg.OperationTimeout,
		retry:     cfg.RetryInterval,
		log:       log,
	}
	if s.retry <= 0 {
		s.retry = 5 * time.Second
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if err := s.Ping(ctx); err != nil {
			return struct{}{}, err
		}
		if err := s.migrate(ctx); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.retry)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Warn("database not reachable, retrying", zap.Error(err), zap.Duration("retry_in", next))
		}),
	)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("gormstore: connect: %w", err)
	}
	log.Info("database connected", zap.String("host", pcfg.Host), zap.String("database", pcfg.Database))
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&sessionRow{}, &rollRow{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.sqlDB.Close() }

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.opContext(ctx)
	defer cancel()
	return s.sqlDB.PingContext(ctx)
}

// Monitor pings every interval and, once the database stops answering, keeps
// retrying at the configured interval until it is back. It returns when ctx
// ends.
func (s *Store) Monitor(ctx context.Context, interval time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		if err := s.Ping(ctx); err == nil || ctx.Err() != nil {
			continue
		}
		s.log.Error("database connection lost")
		_, err := backoff.Retry(ctx, func() (struct{}, error) {
			return struct{}{}, s.Ping(ctx)
		},
			backoff.WithBackOff(backoff.NewConstantBackOff(s.retry)),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				s.log.Warn("reconnecting to database", zap.Error(err), zap.Duration("retry_in", next))
			}),
		)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("gormstore: monitor: %w", err)
		}
		s.log.Info("database reconnected")
	}
}

func (s *Store) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opTimeout)
}

const uniqueViolation = "23505"

// translate maps driver errors onto the store sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", store.ErrConflict, pgErr.ConstraintName)
	}
	return err
}

type gormLogger struct {
	log   *zap.Logger
	level gormlogger.LogLevel
	slow  time.Duration
}

func newGormLogger(log *zap.Logger) gormlogger.Interface {
	return &gormLogger{log: log, level: gormlogger.Warn, slow: 200 * time.Millisecond}
}

func (l *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *l
	cp.level = level
	return &cp
}

func (l *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Info {
		l.log.Sugar().Infof(msg, args...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Warn {
		l.log.Sugar().Warnf(msg, args...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if l.level >= gormlogger.Error {
		l.log.Sugar().Errorf(msg, args...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= gormlogger.Error:
		stmt, rows := fc()
		l.log.Error("query failed", zap.Error(err), zap.String("sql", stmt), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	case elapsed > l.slow && l.level >= gormlogger.Warn:
		stmt, rows := fc()
		l.log.Warn("slow query", zap.String("sql", stmt), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	case l.level >= gormlogger.Info:
		stmt, rows := fc()
		l.log.Debug("query", zap.String("sql", stmt), zap.Int64("rows", rows), zap.Duration("elapsed", elapsed))
	}
}
