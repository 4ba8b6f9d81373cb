package rowstore

import (
	"fmt"
	"time"
)

// String reads a text column; absent or null values read as "".
func String(row Row, col string) string {
	switch v := row[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

// Int reads an integer column regardless of the driver's integer width.
func Int(row Row, col string) int {
	switch v := row[col].(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint32:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}

// Time reads a timestamp column.
func Time(row Row, col string) time.Time {
	if v, ok := row[col].(time.Time); ok {
		return v
	}
	return time.Time{}
}

// Bool reads a boolean column.
func Bool(row Row, col string) bool {
	v, _ := row[col].(bool)
	return v
}
