package engine

import (
	"bytes"
	"unicode/utf8"

	"github.com/koustreak/djcore/internal/native"
)

const (
	defaultHostname     = "localhost"
	defaultMySQLPort    = 3306
	defaultPostgresPort = 5432
)

// defaultPort is the server port assumed for t until one is set.
func defaultPort(t native.DatabaseType) uint16 {
	if t == native.DatabasePostgres {
		return defaultPostgresPort
	}
	return defaultMySQLPort
}

type settingsRecord struct {
	cfg Config
	// portSet is true once the port was set explicitly. Until then the port
	// follows the database type.
	portSet bool
	// attached is set once a connection took ownership of the record.
	attached bool
}

func defaultSettings() *settingsRecord {
	return &settingsRecord{cfg: Config{
		DatabaseType: native.DatabaseMySQL,
		Hostname:     defaultHostname,
		Port:         defaultPort(native.DatabaseMySQL),
		UseTLS:       native.TLSPreferred,
	}}
}

func (e *Engine) SettingsNew() native.Settings {
	return native.Settings(e.put(defaultSettings()))
}

// SettingsFree releases a settings record the caller owns. Records attached
// to a connection are released with the connection.
func (e *Engine) SettingsFree(s native.Settings) {
	rec, ok := get[*settingsRecord](e, uintptr(s))
	if !ok {
		if s != 0 {
			e.reportMisuse("settings_free", uintptr(s))
		}
		return
	}
	if rec.attached {
		e.countMisuse()
		e.reportMisuse("settings_free", uintptr(s))
		return
	}
	e.drop(uintptr(s))
}

func (e *Engine) settings(s native.Settings) (*settingsRecord, native.Status) {
	rec, ok := get[*settingsRecord](e, uintptr(s))
	if !ok {
		return nil, e.fail(uintptr(s), native.NullNotAllowed, "settings handle is null or released")
	}
	return rec, native.Success
}

// decodeCString reads a null-terminated UTF-8 parameter.
func (e *Engine) decodeCString(h uintptr, v []byte) (string, native.Status) {
	if v == nil {
		return "", e.fail(h, native.NullNotAllowed, "string argument is null")
	}
	end := bytes.IndexByte(v, 0)
	if end < 0 {
		return "", e.fail(h, native.BufferNotEnough, "string argument is not null-terminated")
	}
	if !utf8.Valid(v[:end]) {
		return "", e.fail(h, native.InvalidUTF8String, "string argument is not valid utf-8")
	}
	return string(v[:end]), native.Success
}

func (e *Engine) setString(s native.Settings, v []byte, set func(*Config, string)) native.Status {
	rec, st := e.settings(s)
	if st != native.Success {
		return st
	}
	str, st := e.decodeCString(uintptr(s), v)
	if st != native.Success {
		return st
	}
	set(&rec.cfg, str)
	return native.Success
}

func (e *Engine) getString(s native.Settings, read func(*Config) string) native.CString {
	rec, ok := get[*settingsRecord](e, uintptr(s))
	if !ok {
		return 0
	}
	return e.newCString(read(&rec.cfg))
}

func (e *Engine) SettingsSetDatabaseType(s native.Settings, t native.DatabaseType) native.Status {
	rec, st := e.settings(s)
	if st != native.Success {
		return st
	}
	if !t.Valid() {
		return e.fail(uintptr(s), native.InvalidEnumArgument, "invalid database type")
	}
	rec.cfg.DatabaseType = t
	if !rec.portSet {
		rec.cfg.Port = defaultPort(t)
	}
	return native.Success
}

func (e *Engine) SettingsSetHostname(s native.Settings, v []byte) native.Status {
	return e.setString(s, v, func(c *Config, str string) { c.Hostname = str })
}

func (e *Engine) SettingsSetUsername(s native.Settings, v []byte) native.Status {
	return e.setString(s, v, func(c *Config, str string) { c.Username = str })
}

func (e *Engine) SettingsSetPassword(s native.Settings, v []byte) native.Status {
	return e.setString(s, v, func(c *Config, str string) { c.Password = str })
}

func (e *Engine) SettingsSetDatabaseName(s native.Settings, v []byte) native.Status {
	return e.setString(s, v, func(c *Config, str string) { c.DatabaseName = str })
}

func (e *Engine) SettingsSetPort(s native.Settings, port uint16) native.Status {
	rec, st := e.settings(s)
	if st != native.Success {
		return st
	}
	rec.cfg.Port = port
	rec.portSet = true
	return native.Success
}

func (e *Engine) SettingsSetUseTLS(s native.Settings, mode native.TLSMode) native.Status {
	rec, st := e.settings(s)
	if st != native.Success {
		return st
	}
	if !mode.Valid() {
		return e.fail(uintptr(s), native.InvalidEnumArgument, "invalid tls mode")
	}
	rec.cfg.UseTLS = mode
	return native.Success
}

func (e *Engine) SettingsGetDatabaseType(s native.Settings) native.DatabaseType {
	rec, ok := get[*settingsRecord](e, uintptr(s))
	if !ok {
		return native.DatabaseMySQL
	}
	return rec.cfg.DatabaseType
}

func (e *Engine) SettingsGetHostname(s native.Settings) native.CString {
	return e.getString(s, func(c *Config) string { return c.Hostname })
}

func (e *Engine) SettingsGetUsername(s native.Settings) native.CString {
	return e.getString(s, func(c *Config) string { return c.Username })
}

func (e *Engine) SettingsGetPassword(s native.Settings) native.CString {
	return e.getString(s, func(c *Config) string { return c.Password })
}

func (e *Engine) SettingsGetDatabaseName(s native.Settings) native.CString {
	return e.getString(s, func(c *Config) string { return c.DatabaseName })
}

func (e *Engine) SettingsGetPort(s native.Settings) uint16 {
	rec, ok := get[*settingsRecord](e, uintptr(s))
	if !ok {
		return 0
	}
	return rec.cfg.Port
}

func (e *Engine) SettingsGetUseTLS(s native.Settings) native.TLSMode {
	rec, ok := get[*settingsRecord](e, uintptr(s))
	if !ok {
		return native.TLSPreferred
	}
	return rec.cfg.UseTLS
}
