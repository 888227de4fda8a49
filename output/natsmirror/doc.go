// Package natsmirror republishes stored measurement lines on a NATS subject.
//
// A Mirror sits between the collector and the daily file writer. Each line is
// written to disk first; only lines that were stored are published, one
// message per line with the line as payload. Losing the broker never affects
// storage.
package natsmirror
