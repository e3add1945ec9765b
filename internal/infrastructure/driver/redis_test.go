package driver

import (
	"context"
	"errors"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
)

func TestRedisClient_Get(t *testing.T) {
	client, mock := redismock.NewClientMock()
	rdb := WrapRedisClient(client)
	ctx := context.Background()

	tests := []struct {
		name    string
		mocks   func()
		want    string
		wantErr error
	}{
		{
			name:  "value",
			mocks: func() { mock.ExpectGet("progress").SetVal(`{}`) },
			want:  `{}`,
		},
		{
			name:    "missing key",
			mocks:   func() { mock.ExpectGet("progress").RedisNil() },
			wantErr: ErrKeyNotFound,
		},
		{
			name:    "connection error",
			mocks:   func() { mock.ExpectGet("progress").SetErr(errors.New("MOCK_ERROR")) },
			wantErr: errors.New("MOCK_ERROR"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.mocks()
			got, err := rdb.Get(ctx, "progress")
			if tt.wantErr != nil {
				assert.EqualError(t, err, tt.wantErr.Error())
				assert.Equal(t, errors.Is(tt.wantErr, ErrKeyNotFound), IsKeyNotFound(err))
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisClient_Write(t *testing.T) {
	client, mock := redismock.NewClientMock()
	rdb := WrapRedisClient(client)
	ctx := context.Background()

	mock.ExpectSet("progress", `{"a":1}`, 0).SetVal("OK")
	assert.NoError(t, rdb.Set(ctx, "progress", `{"a":1}`, 0))

	mock.ExpectSet("progress", `{}`, 0).SetErr(errors.New("MOCK_ERROR"))
	assert.Error(t, rdb.Set(ctx, "progress", `{}`, 0))

	mock.ExpectExists("progress").SetVal(1)
	ok, err := rdb.Exists(ctx, "progress")
	assert.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExists("progress").SetVal(0)
	ok, err = rdb.Exists(ctx, "progress")
	assert.NoError(t, err)
	assert.False(t, ok)

	mock.ExpectDel("progress").SetVal(1)
	assert.NoError(t, rdb.Del(ctx, "progress"))

	mock.ExpectPing().SetVal("PONG")
	assert.NoError(t, rdb.Ping(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}
