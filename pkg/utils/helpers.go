package utils

import (
	"fmt"
	"math"
	"path/filepath"
	"strconv"
	"strings"
)

// IsMissing reports whether a raw cell holds no value
func IsMissing(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "na", "n/a", "nan", "null", "none", "?":
		return true
	default:
		return false
	}
}

// ParseNumber parses a raw cell as float64. Missing cells and non-finite
// numbers are reported as not ok.
func ParseNumber(s string) (float64, bool) {
	if IsMissing(s) {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, false
	}
	return f, true
}

// FormatValue renders a decoded JSON value as a CSV cell
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(val)
	default:
		return fmt.Sprint(val)
	}
}

// FormatFloat renders a float without trailing zeros
func FormatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// GetFileType determines the file type based on extension
func GetFileType(fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	switch ext {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".txt", ".log":
		return "text"
	default:
		return "unknown"
	}
}

// ContentType maps a file name to the MIME type used when persisting it
func ContentType(fileName string) string {
	switch GetFileType(fileName) {
	case "csv":
		return "text/csv"
	case "json":
		return "application/json"
	case "text":
		return "text/plain"
	default:
		return "application/octet-stream"
	}
}
