package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strconv"

	gomysql "github.com/go-sql-driver/mysql"
	"github.com/koustreak/djcore/internal/native"
)

// MySQL server error numbers
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied  = 1044
	errAccessDenied    = 1045
	errUnknownDatabase = 1049
	errConnRefused     = 2003
	errUnknownHost     = 2005
)

type mysqlBackend struct{}

func (mysqlBackend) name() string { return "mysql" }

// connector builds a go-sql-driver connector. Temporal columns are left as
// text so they decode the same way through both protocols.
func (mysqlBackend) connector(cfg Config) (driver.Connector, error) {
	return gomysql.NewConnector(mysqlConfig(cfg))
}

func mysqlConfig(cfg Config) *gomysql.Config {
	port := cfg.Port
	if port == 0 {
		port = defaultMySQLPort
	}
	mc := gomysql.NewConfig()
	mc.User = cfg.Username
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(cfg.Hostname, strconv.Itoa(int(port)))
	mc.DBName = cfg.DatabaseName
	mc.ParseTime = false
	mc.TLSConfig = mysqlTLS(cfg.UseTLS)
	return mc
}

func mysqlTLS(mode native.TLSMode) string {
	switch mode {
	case native.TLSRequired:
		return "true"
	case native.TLSForbidden:
		return "false"
	default:
		return "preferred"
	}
}

func (mysqlBackend) exec(ctx context.Context, session *sql.Conn, query string, args []any) (uint64, error) {
	return execSQL(ctx, session, query, args)
}

// mapError converts a go-sql-driver error into a native status.
func (mysqlBackend) mapError(err error) (native.Status, string) {
	var mysqlErr *gomysql.MySQLError
	if errors.As(err, &mysqlErr) {
		msg := fmt.Sprintf("error %d: %s", mysqlErr.Number, mysqlErr.Message)
		switch mysqlErr.Number {
		case errDBAccessDenied, errAccessDenied, errUnknownDatabase:
			return native.ConfigurationError, msg
		case errConnRefused, errUnknownHost:
			return native.IoError, msg
		default:
			return native.UnknownDatabaseError, msg
		}
	}

	switch {
	case errors.Is(err, gomysql.ErrNoTLS):
		return native.TlsError, err.Error()
	case errors.Is(err, gomysql.ErrInvalidConn),
		errors.Is(err, gomysql.ErrMalformPkt),
		errors.Is(err, gomysql.ErrPktSync),
		errors.Is(err, gomysql.ErrPktSyncMul),
		errors.Is(err, gomysql.ErrPktTooLarge),
		errors.Is(err, gomysql.ErrBusyBuffer):
		return native.ProtocolError, err.Error()
	}

	return mapCommonError(err)
}
