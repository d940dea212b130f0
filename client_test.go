package meanstoend_test

import (
	"context"
	"testing"
	"time"

	mte "github.com/harveysanders/meanstoend"
	"github.com/harveysanders/meanstoend/inmem"
	"github.com/stretchr/testify/require"
)

func TestClient(t *testing.T) {
	_, addr := startServer(t, mte.ServerConfig{}, inmem.Open)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := mte.Dial(ctx, addr)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, client.Close())
	}()

	require.NoError(t, client.Insert(12_345, 101))
	require.NoError(t, client.Insert(12_346, 102))
	require.NoError(t, client.Insert(12_347, 100))
	require.NoError(t, client.Insert(40_960, 5))

	mean, err := client.Query(12_288, 16_384)
	require.NoError(t, err)
	require.Equal(t, int32(101), mean)

	mean, err = client.Query(40_000, 50_000)
	require.NoError(t, err)
	require.Equal(t, int32(5), mean)

	t.Run("query fails after the server drops the connection", func(t *testing.T) {
		require.NoError(t, client.Insert(40_960, 6))
		_, err := client.Query(0, 1)
		require.Error(t, err)
	})
}
