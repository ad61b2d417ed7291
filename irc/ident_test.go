// Copyright (c) 2026 MortalNet Authors
// released under the MIT license

package irc

import (
	"bufio"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestExchangeIdentQueryOrder drives the client side against a fake
// identd, checking the query carries the queried host's port first,
// per RFC 1413's <port-on-server>, <port-on-client> pair.
func TestExchangeIdentQueryOrder(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()

	got := make(chan string, 1)
	go func() {
		r := bufio.NewReader(server)
		line, err := r.ReadString('\n')
		if err != nil {
			got <- ""
			return
		}
		got <- line
		server.Write([]byte("6191, 23 : USERID : UNIX : stjoan\r\n"))
	}()

	userid, err := exchangeIdent(client, 6191, 23)
	require.NoError(t, err)
	assert.Equal(t, "stjoan", userid)
	assert.Equal(t, "6191, 23\r\n", <-got)
}

func TestParseIdentReply(t *testing.T) {
	userid, err := parseIdentReply("6113, 23 : USERID : UNIX : stjoan\r\n")
	require.NoError(t, err)
	assert.Equal(t, "stjoan", userid)
}

func TestParseIdentReplyErrorResponse(t *testing.T) {
	_, err := parseIdentReply("6113, 23 : ERROR : NO-USER\r\n")
	assert.Error(t, err)
}

func TestParseIdentReplyMalformed(t *testing.T) {
	_, err := parseIdentReply("nonsense\r\n")
	assert.Error(t, err)
}
