// Package tcp collects measurement lines from an aethalometer over TCP.
//
// The instrument streams newline terminated text records. A Collector dials
// it, reads one line at a time and hands each line to a Sink. Any transport
// problem (refused dial, dropped connection, no data for MessagePeriod,
// bytes that are not valid UTF-8) closes the connection; the collector then
// waits ReconnectPeriod and dials again, indefinitely.
//
// Errors returned by the Sink are split by class: corrupted lines are logged
// and dropped, anything unrecoverable stops Run and is returned to the caller.
//
//	collector, err := tcp.NewCollector(tcp.CollectorDeps{
//		Config: tcp.Config{
//			Host:            "10.0.0.5",
//			Port:            8002,
//			ReconnectPeriod: 10 * time.Second,
//			MessagePeriod:   time.Minute,
//		},
//		Sink:   writer,
//		Logger: logger,
//	})
//	if err != nil {
//		return err
//	}
//	return collector.Run(ctx)
package tcp
