package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/kapwatch/internal/disclosure"
)

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	client, err := pubsub.NewClient(context.Background(), "kapwatch-test", option.WithGRPCConn(conn))
	require.NoError(t, err)
	return client, srv
}

func TestNotifyPublishesJSON(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	client, srv := newFakeClient(t)
	_, err := client.CreateTopic(ctx, "disclosures")
	require.NoError(t, err)

	n := New(client, zap.NewNop())
	defer func() { _ = n.Close() }()

	msg := disclosure.Message{
		Text:      "<b>ACME</b>",
		ParseMode: disclosure.ParseModeHTML,
		Record:    disclosure.Record{Key: "1402231", Title: "Yeni İş İlişkisi", Company: "ACME", Source: "kap-api"},
	}
	require.NoError(t, n.Notify(ctx, "disclosures", msg))

	published := srv.Messages()
	require.Len(t, published, 1)
	assert.Equal(t, "1402231", published[0].Attributes["key"])
	assert.Equal(t, "kap-api", published[0].Attributes["source"])

	var got disclosure.Message
	require.NoError(t, json.Unmarshal(published[0].Data, &got))
	assert.Equal(t, msg, got)
}

func TestNotifyMissingTopic(t *testing.T) {
	t.Parallel()

	client, _ := newFakeClient(t)
	n := New(client, nil)
	defer func() { _ = n.Close() }()

	err := n.Notify(context.Background(), "missing", disclosure.Message{Text: "x"})
	require.Error(t, err)
}

func TestDialRequiresProject(t *testing.T) {
	t.Parallel()

	_, err := Dial(context.Background(), "", nil)
	require.ErrorIs(t, err, disclosure.ErrFatalConfig)
}
