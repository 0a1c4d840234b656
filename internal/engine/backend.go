package engine

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/koustreak/djcore/internal/native"
)

// backend holds what differs between database kinds once a session exists.
type backend interface {
	name() string
	connector(cfg Config) (driver.Connector, error)
	exec(ctx context.Context, session *sql.Conn, query string, args []any) (uint64, error)
	mapError(err error) (native.Status, string)
}

// backendConnector is the default ConnectorFunc.
func (e *Engine) backendConnector(cfg Config) (driver.Connector, error) {
	b, err := backendFor(cfg.DatabaseType)
	if err != nil {
		return nil, err
	}
	return b.connector(cfg)
}

// execSQL runs query through database/sql and reports RowsAffected.
func execSQL(ctx context.Context, session *sql.Conn, query string, args []any) (uint64, error) {
	res, err := session.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, nil
	}
	return uint64(n), nil
}

// mapCommonError classifies failures that look the same on every backend.
func mapCommonError(err error) (native.Status, string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return native.PoolTimedOut, fmt.Sprintf("timed out: %v", err)
	case errors.Is(err, sql.ErrNoRows):
		return native.RowNotFound, "row not found"
	case errors.Is(err, sql.ErrConnDone), errors.Is(err, driver.ErrBadConn):
		return native.IoError, fmt.Sprintf("connection lost: %v", err)
	}

	var (
		recordErr tls.RecordHeaderError
		verifyErr *tls.CertificateVerificationError
		authErr   x509.UnknownAuthorityError
		hostErr   x509.HostnameError
	)
	if errors.As(err, &recordErr) || errors.As(err, &verifyErr) ||
		errors.As(err, &authErr) || errors.As(err, &hostErr) {
		return native.TlsError, fmt.Sprintf("tls: %v", err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return native.IoError, fmt.Sprintf("i/o: %v", err)
	}

	return native.UnknownDatabaseError, err.Error()
}
