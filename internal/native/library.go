package native

// Library is the full set of entry points a native engine exposes.
//
// Conventions:
//   - Calls that can fail return a Status; results come back through out
//     parameters, which are left untouched on failure.
//   - String parameters are null-terminated UTF-8 byte slices.
//   - CString results are allocated by the engine and owned by the caller,
//     who frees each exactly once with CStringFree.
//   - ConnectionNew takes ownership of the settings it is given. ExecuteQuery
//     and FetchQuery take ownership of the argument vector, on success and
//     on failure alike.
//   - ConnectionGetSettings and RowColumns return borrowed handles that must
//     never be freed by the caller.
type Library interface {
	// LastErrorMessage returns the message recorded by the most recent failed
	// call made on handle h, or a null CString when there is none. The handle
	// is the first handle argument of the failed call; ConnectionNew records
	// against its settings. Reading the message clears it, and freeing h
	// discards it.
	LastErrorMessage(h uintptr) CString
	// CStringRead copies the contents of s without its terminator.
	CStringRead(s CString) []byte
	CStringFree(s CString)

	SettingsNew() Settings
	SettingsFree(s Settings)
	SettingsSetDatabaseType(s Settings, t DatabaseType) Status
	SettingsSetHostname(s Settings, v []byte) Status
	SettingsSetUsername(s Settings, v []byte) Status
	SettingsSetPassword(s Settings, v []byte) Status
	SettingsSetDatabaseName(s Settings, v []byte) Status
	SettingsSetPort(s Settings, port uint16) Status
	SettingsSetUseTLS(s Settings, mode TLSMode) Status
	SettingsGetDatabaseType(s Settings) DatabaseType
	SettingsGetHostname(s Settings) CString
	SettingsGetUsername(s Settings) CString
	SettingsGetPassword(s Settings) CString
	SettingsGetDatabaseName(s Settings) CString
	SettingsGetPort(s Settings) uint16
	SettingsGetUseTLS(s Settings) TLSMode

	ConnectionNew(s Settings) Connection
	ConnectionFree(c Connection)
	ConnectionIsConnected(c Connection) bool
	ConnectionConnect(c Connection) Status
	ConnectionDisconnect(c Connection) Status
	ConnectionReconnect(c Connection) Status
	ConnectionGetSettings(c Connection) Settings
	ConnectionExecuteQuery(c Connection, query []byte, args ArgVector, affected *uint64) Status
	ConnectionFetchQuery(c Connection, query []byte, args ArgVector, out *Cursor) Status

	ArgVectorNew() ArgVector
	ArgVectorFree(v ArgVector)
	ArgVectorAdd(v ArgVector, data []byte, t NativeType) Status

	// CursorNext stores a freshly allocated row in out, or returns NoMoreRows.
	CursorNext(c Cursor, out *Row) Status
	CursorFree(c Cursor)

	RowFree(r Row)
	RowIsEmpty(r Row) bool
	RowColumnCount(r Row) int
	RowColumnWithName(r Row, name []byte, out *ColumnRef) Status
	RowColumnWithOrdinal(r Row, ordinal int, out *ColumnRef) Status
	// RowColumns fills out with borrowed column refs owned by the row. It
	// returns BufferNotEnough when out is shorter than the column count.
	RowColumns(r Row, out []ColumnRef) Status
	RowDecodeToAllocation(r Row, col ColumnRef, dst DecodedValue) Status

	ColumnRefFree(c ColumnRef)
	ColumnRefOrdinal(c ColumnRef) int
	ColumnRefName(c ColumnRef) CString
	ColumnRefType(c ColumnRef) ColumnType

	DecodedValueNew() DecodedValue
	DecodedValueFree(v DecodedValue)
	DecodedValueData(v DecodedValue) []byte
	DecodedValueSize(v DecodedValue) int
	DecodedValueType(v DecodedValue) NativeType
}

// CStr returns s as a null-terminated byte slice.
func CStr(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}
