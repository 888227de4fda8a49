// Package errors provides the error taxonomy of the aethalometer collector.
//
// # Overview
//
// Every error that reaches the collector loop falls into one of three classes:
//
//   - Transient: the connection to the instrument dropped, timed out, or delivered
//     bytes that are not text. The collector closes the connection, waits the
//     reconnect delay and dials again. These errors never reach the runner.
//   - Corrupted: a single measurement line is malformed (too few values, an
//     unparseable date). The line is logged and dropped, processing continues.
//   - Unrecoverable: the storage medium failed (permission, disk full, missing
//     directory). The collector stops and the process exits non-zero.
//
// # Error Wrapping Pattern
//
// All wrapping follows the format
//
//	component.method: action failed: underlying error
//
// for example
//
//	dailyfile.Process: append to BC150217.csv failed: open /data/BC150217.csv: permission denied
//
// Use the classified wrappers where the class is known:
//
//	return errors.WrapCorrupted(errors.ErrTooFewValues, "dailyfile", "Process", "split line")
//	return errors.WrapUnrecoverable(err, "dailyfile", "Process", "append to "+name)
//
// # Classification
//
// Classification is decided by the ClassifiedError in the chain or by the
// sentinel errors declared here. Error messages are never inspected: a line
// that happens to contain the word "corrupted" is just data.
//
//	switch errors.Classify(err) {
//	case errors.ErrorCorrupted:
//	    logger.Warn("dropping line", "error", err)
//	case errors.ErrorUnrecoverable:
//	    return err
//	}
//
// Errors that carry no class and match no sentinel classify as unrecoverable, so
// that an unexpected failure stops the collector instead of losing data silently.
package errors
