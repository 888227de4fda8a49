// Package dailyfile stores measurement lines in one CSV file per day.
//
// The file for a line is chosen from the date in its first field:
//
//	"15-feb-17","10:32",1234,5678  ->  BC150217.csv
//
// Lines are appended exactly as received, each followed by a newline, and
// files are never rewritten or truncated. Writer.Process separates problems
// with a single line (corrupted data, safe to drop) from problems with the
// storage itself (unrecoverable, the collector must stop).
package dailyfile
