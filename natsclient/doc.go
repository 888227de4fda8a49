// Package natsclient wraps a NATS connection used to publish stored lines.
//
// The client reconnects on its own (unlimited attempts by default) and
// reports its state through Status and Health. Publish never blocks on a
// missing connection: it returns ErrNotConnected so callers can count the
// miss and carry on.
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//		natsclient.WithReconnectWait(2*time.Second),
//		natsclient.WithRetryOnFailedConnect(true),
//		natsclient.WithLogger(logger),
//	)
//	if err != nil {
//		return err
//	}
//	if err := client.Connect(ctx); err != nil {
//		return err
//	}
//	defer client.Close(context.Background())
package natsclient
