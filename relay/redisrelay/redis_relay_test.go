package redisrelay

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"refsync/domain"
	"refsync/relay"
)

type fakeClient struct {
	adds   []*redis.XAddArgs
	err    error
	closed bool
}

func (f *fakeClient) XAdd(ctx context.Context, a *redis.XAddArgs) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
		return cmd
	}
	f.adds = append(f.adds, a)
	cmd.SetVal("1-0")
	return cmd
}

func (f *fakeClient) Close() error {
	f.closed = true
	return nil
}

func TestPublisher_XAdd(t *testing.T) {
	fake := &fakeClient{}
	p := newWithClient(fake, true, Config{MaxLen: 1000})

	env := relay.Envelope{ID: "e-1", Kind: domain.KindDictionary, Change: domain.ChangeUpdate, EntityID: "d-1"}
	require.NoError(t, p.Publish(context.Background(), env))

	require.Len(t, fake.adds, 1)
	args := fake.adds[0]
	assert.Equal(t, "refsync:dictionary.update", args.Stream)
	assert.True(t, args.Approx)
	values := args.Values.(map[string]any)
	assert.Equal(t, "d-1", values["entity_id"])

	decoded, err := relay.Unmarshal([]byte(values["payload"].(string)))
	require.NoError(t, err)
	assert.Equal(t, domain.KindDictionary, decoded.Kind)

	require.NoError(t, p.Close())
	assert.True(t, fake.closed)
}

func TestPublisher_Error(t *testing.T) {
	fake := &fakeClient{err: errors.New("READONLY")}
	p := newWithClient(fake, false, Config{})
	err := p.Publish(context.Background(), relay.Envelope{ID: "e", Kind: domain.KindGroup, Change: domain.ChangeCreate})
	assert.EqualError(t, err, "READONLY")
	require.NoError(t, p.Close())
	assert.False(t, fake.closed)
}
