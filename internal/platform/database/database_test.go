package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 到達不能なポートを指す接続文字列
const unreachableConnString = "postgres://ai:ai@127.0.0.1:1/ai?connect_timeout=2&sslmode=disable"

func TestSetupExtension_ConnectionFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := SetupExtension(ctx, unreachableConnString)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to connect")
}

func TestNew_PingFailure(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := New(ctx, unreachableConnString)
	require.Error(t, err)
	assert.Nil(t, db)
}

func TestSetupExtension_InvalidConnString(t *testing.T) {
	err := SetupExtension(context.Background(), "postgres://%zz")
	require.Error(t, err)
}
