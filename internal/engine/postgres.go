package engine

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/koustreak/djcore/internal/native"
)

// PostgreSQL SQLSTATE codes and classes
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection    = "08"
	pgClassInvalidAuth   = "28"
	pgErrInvalidCatalog  = "3D000"
	pgErrProtocolViolate = "08P01"
)

type postgresBackend struct{}

func (postgresBackend) name() string { return "postgres" }

func (postgresBackend) connector(cfg Config) (driver.Connector, error) {
	connCfg, err := pgx.ParseConfig(postgresURL(cfg))
	if err != nil {
		return nil, fmt.Errorf("invalid postgres config: %w", err)
	}
	return stdlib.GetConnector(*connCfg), nil
}

// postgresURL builds a postgres:// URL. Port 0 means the postgres default.
func postgresURL(cfg Config) string {
	port := int(cfg.Port)
	if port == 0 {
		port = defaultPostgresPort
	}
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(cfg.Hostname, strconv.Itoa(port)),
		Path:   "/" + cfg.DatabaseName,
	}
	if cfg.Username != "" || cfg.Password != "" {
		u.User = url.UserPassword(cfg.Username, cfg.Password)
	}
	q := url.Values{}
	q.Set("sslmode", postgresSSLMode(cfg.UseTLS))
	u.RawQuery = q.Encode()
	return u.String()
}

func postgresSSLMode(mode native.TLSMode) string {
	switch mode {
	case native.TLSRequired:
		return "require"
	case native.TLSForbidden:
		return "disable"
	default:
		return "prefer"
	}
}

// exec goes through the pgx connection when one is available so the
// command tag tells reads from writes; SELECT reports zero affected rows.
func (postgresBackend) exec(ctx context.Context, session *sql.Conn, query string, args []any) (uint64, error) {
	var (
		n      uint64
		viaPgx bool
	)
	err := session.Raw(func(driverConn any) error {
		sc, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return nil
		}
		viaPgx = true
		tag, err := sc.Conn().Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if !tag.Select() {
			n = uint64(tag.RowsAffected())
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if !viaPgx {
		return execSQL(ctx, session, query, args)
	}
	return n, nil
}

// mapError converts a pgx error into a native status.
func (postgresBackend) mapError(err error) (native.Status, string) {
	if errors.Is(err, pgx.ErrNoRows) {
		return native.RowNotFound, "row not found"
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		msg := fmt.Sprintf("%s (SQLSTATE %s)", pgErr.Message, pgErr.Code)
		switch {
		case pgErr.Code == pgErrProtocolViolate:
			return native.ProtocolError, msg
		case pgErr.Code == pgErrInvalidCatalog:
			return native.ConfigurationError, msg
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgClassInvalidAuth:
			return native.ConfigurationError, msg
		case len(pgErr.Code) >= 2 && pgErr.Code[:2] == pgClassConnection:
			return native.IoError, msg
		default:
			return native.UnknownDatabaseError, msg
		}
	}

	if pgconn.Timeout(err) {
		return native.PoolTimedOut, fmt.Sprintf("timed out: %v", err)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		status, msg := mapCommonError(err)
		if status == native.UnknownDatabaseError {
			status = native.IoError
		}
		return status, msg
	}

	return mapCommonError(err)
}
