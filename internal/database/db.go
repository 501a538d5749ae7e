// Package database opens the MySQL pool and owns the lobby schema.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/sirupsen/logrus"
)

// Options describes the MySQL connection and pool.
type Options struct {
	User string
	Pass string // may be empty
	Host string
	Port string
	Name string

	MaxConns     int           // open and idle; 25 when zero
	ConnLifetime time.Duration // 30m when zero
}

// DSN renders the driver connection string.  DATETIME columns are
// parsed into time.Time in UTC so joined_at orders the same for every
// client.
func (o Options) DSN() string {
	c := mysql.NewConfig()
	c.User = o.User
	c.Passwd = o.Pass
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(o.Host, o.Port)
	c.DBName = o.Name
	c.ParseTime = true
	c.Loc = time.UTC
	c.Params = map[string]string{"charset": "utf8mb4"}
	return c.FormatDSN()
}

// Open connects to MySQL and pings it before returning the pool.
func Open(ctx context.Context, o Options) (*sql.DB, error) {
	db, err := sql.Open("mysql", o.DSN())
	if err != nil {
		return nil, err
	}

	maxConns := o.MaxConns
	if maxConns <= 0 {
		maxConns = 25
	}
	lifetime := o.ConnLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(lifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping mysql %s: %w", net.JoinHostPort(o.Host, o.Port), err)
	}
	logrus.WithFields(logrus.Fields{
		"component": "database",
		"addr":      net.JoinHostPort(o.Host, o.Port),
		"db":        o.Name,
		"max_conns": maxConns,
	}).Info("mysql connected")
	return db, nil
}
