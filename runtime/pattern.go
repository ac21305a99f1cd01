// Package runtime drives collection: the device worker pool, the job
// runner that wires inventory, credentials, transport, validation and
// persistence together, and the batch runner composing jobs.
package runtime

import (
	"strconv"
	"strings"
	"time"
)

// timestampLayout is the capture filename timestamp, always UTC.
const timestampLayout = "20060102-150405"

// ExpandFilename substitutes the capture filename variables
// {device_name}, {device_id} and {timestamp}. Unknown variables pass
// through literally so operator typos are visible in the filename
// instead of silently vanishing.
func ExpandFilename(pattern, deviceName string, deviceID int64, at time.Time) string {
	replacer := strings.NewReplacer(
		"{device_name}", sanitizeName(deviceName),
		"{device_id}", strconv.FormatInt(deviceID, 10),
		"{timestamp}", at.UTC().Format(timestampLayout),
	)
	return replacer.Replace(pattern)
}

// sanitizeName strips path separators so a device name can never escape
// the capture directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "/", "-")
	name = strings.ReplaceAll(name, "\\", "-")
	return name
}
