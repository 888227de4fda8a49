// Package testutil provides fakes for testing the collector pipeline without
// hardware or a message broker.
//
// FakeInstrument is a TCP server standing in for an aethalometer: tests push
// lines to the connected client, drop the connection and count reconnects.
// RecordingSink captures the lines a collector forwards and can be told to
// fail. MockPublisher records what would have been published to NATS.
package testutil
