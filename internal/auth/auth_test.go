package auth_test

import (
	"bufio"
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"io"
	"net"
	"testing"

	apitypes "github.com/Alia5/padproxy/apitypes"
	"github.com/Alia5/padproxy/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveKey(t *testing.T) {
	k1, err := auth.DeriveKey("secret")
	require.NoError(t, err)
	assert.Len(t, k1, 32)

	k2, err := auth.DeriveKey("secret")
	require.NoError(t, err)
	assert.Equal(t, k1, k2)

	k3, err := auth.DeriveKey("other")
	require.NoError(t, err)
	assert.NotEqual(t, k1, k3)

	_, err = auth.DeriveKey("")
	assert.Error(t, err)
}

func TestDeriveSessionKey(t *testing.T) {
	key := bytes.Repeat([]byte{1}, 32)
	a := auth.DeriveSessionKey(key, []byte("server"), []byte("client"))
	b := auth.DeriveSessionKey(key, []byte("client"), []byte("server"))
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

// serveHandshake plays the server side: verifies the client proof and replies.
func serveHandshake(t *testing.T, conn net.Conn, key []byte, reply []byte) (clientNonce []byte, ok bool) {
	t.Helper()
	buf := make([]byte, len(auth.HandshakeMagic)+auth.NonceSize+sha256.Size)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, false
	}
	if string(buf[:len(auth.HandshakeMagic)]) != auth.HandshakeMagic {
		return nil, false
	}
	clientNonce = buf[len(auth.HandshakeMagic) : len(auth.HandshakeMagic)+auth.NonceSize]
	proof := buf[len(auth.HandshakeMagic)+auth.NonceSize:]
	ok = hmac.Equal(proof, auth.ClientAuth(key, clientNonce))
	_, _ = conn.Write(reply)
	return clientNonce, ok
}

func TestHandshake(t *testing.T) {
	key, err := auth.DeriveKey("pw")
	require.NoError(t, err)
	serverNonce := bytes.Repeat([]byte{0xab}, auth.NonceSize)

	tests := []struct {
		name    string
		reply   []byte
		wantErr string
		apiErr  bool
	}{
		{
			name:  "accepted",
			reply: append([]byte("OK\x00"), serverNonce...),
		},
		{
			name:    "unauthorized problem json",
			reply:   []byte(`{"status":401,"title":"Unauthorized","detail":"invalid password"}` + "\n"),
			wantErr: "401 Unauthorized: invalid password",
			apiErr:  true,
		},
		{
			name:    "garbage",
			reply:   []byte("nope"),
			wantErr: "invalid handshake response",
		},
		{
			name:    "truncated nonce",
			reply:   []byte("OK\x00abc"),
			wantErr: "read server nonce",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, server := net.Pipe()
			defer client.Close()

			proofOK := make(chan bool, 1)
			go func() {
				defer server.Close()
				_, ok := serveHandshake(t, server, key, tt.reply)
				proofOK <- ok
			}()

			cn, sn, err := auth.Handshake(bufio.NewReader(client), client, key)
			assert.True(t, <-proofOK, "server must accept the client proof")
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				if tt.apiErr {
					var ae *apitypes.ApiError
					assert.ErrorAs(t, err, &ae)
				}
				return
			}
			require.NoError(t, err)
			assert.Len(t, cn, auth.NonceSize)
			assert.Equal(t, serverNonce, sn)
		})
	}
}

func TestHandshakeArgs(t *testing.T) {
	var buf bytes.Buffer
	_, _, err := auth.Handshake(nil, &buf, []byte{1})
	assert.Error(t, err)
	_, _, err = auth.Handshake(bufio.NewReader(&buf), &buf, nil)
	assert.ErrorContains(t, err, "missing key")
}

func TestConnRoundTrip(t *testing.T) {
	a, b := net.Pipe()
	key := bytes.Repeat([]byte{7}, 32)

	ca, err := auth.WrapConn(a, key)
	require.NoError(t, err)
	cb, err := auth.WrapConn(b, key)
	require.NoError(t, err)
	defer ca.Close()
	defer cb.Close()

	msgs := [][]byte{[]byte("hello"), {0x00, 0x01, 0x02}, bytes.Repeat([]byte{0xee}, 4096)}
	go func() {
		for _, m := range msgs {
			_, _ = ca.Write(m)
		}
	}()

	for _, m := range msgs {
		got := make([]byte, len(m))
		_, err := io.ReadFull(cb, got)
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestConnRejectsTamperedPacket(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	key := bytes.Repeat([]byte{7}, 32)

	var raw bytes.Buffer
	rec := &recordConn{Conn: a, w: &raw}
	enc, err := auth.WrapConn(rec, key)
	require.NoError(t, err)
	_, err = enc.Write([]byte("payload"))
	require.NoError(t, err)

	pkt := raw.Bytes()
	pkt[len(pkt)-1] ^= 0xff

	dec, err := auth.WrapConn(b, key)
	require.NoError(t, err)
	go func() { _, _ = a.Write(pkt) }()
	_, err = dec.Read(make([]byte, 16))
	assert.Error(t, err)
}

// recordConn captures writes instead of sending them.
type recordConn struct {
	net.Conn
	w io.Writer
}

func (r *recordConn) Write(p []byte) (int, error) { return r.w.Write(p) }
