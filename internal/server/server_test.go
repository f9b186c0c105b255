package server

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dirbookd/server/internal/credentials"
	"github.com/dirbookd/server/internal/directory"
	"github.com/dirbookd/server/internal/session"
	"github.com/dirbookd/server/internal/types"
)

func TestAcceptLoopServesLoginRoundTrip(t *testing.T) {
	dataDir := t.TempDir()
	d, err := directory.Open(dataDir, 4)
	require.NoError(t, err)

	salt, err := credentials.GenerateSalt()
	require.NoError(t, err)
	hash := credentials.HashPasswordWithSalt("hunter123", salt)
	require.NoError(t, d.Users.Privileged.Insert("root", hash))

	cfg := session.Config{
		AuthRateLimit:    time.Millisecond,
		MaxLoginAttempts: types.MaxLoginAttempts,
		ReadTimeout:      2 * time.Second,
		WriteTimeout:     2 * time.Second,
	}
	srv := New(d, nil, cfg)
	require.NoError(t, srv.Start("127.0.0.1:0", ""))
	defer srv.Stop()

	conn, err := net.Dial("tcp", srv.listener.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("0root:" + hash + "\n"))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, byte(types.RespSuccess), line[0])
}
