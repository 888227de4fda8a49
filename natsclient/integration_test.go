//go:build integration

package natsclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// natsURL returns the server used by integration tests, skipping when unset.
func natsURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}
	return url
}

func TestIntegration_PublishReachesSubscriber(t *testing.T) {
	url := natsURL(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := NewClient(url)
	require.NoError(t, err)
	require.NoError(t, client.Connect(ctx))
	defer client.Close(ctx)

	assert.Equal(t, StatusConnected, client.Status())

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	received := make(chan *nats.Msg, 1)
	subscription, err := sub.ChanSubscribe("aethalometer.test", received)
	require.NoError(t, err)
	defer subscription.Unsubscribe()
	require.NoError(t, sub.Flush())

	line := `"15-feb-17","10:32",1234,5678`
	require.NoError(t, client.Publish(ctx, "aethalometer.test", []byte(line)))

	select {
	case msg := <-received:
		assert.Equal(t, line, string(msg.Data))
	case <-ctx.Done():
		t.Fatal("message not received")
	}
}
