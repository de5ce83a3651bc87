package commands

import (
	"bytes"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/defistate/exchange-registry-go/differ"
	exchange "github.com/defistate/exchange-registry-go/protocols/exchange"
	"github.com/defistate/exchange-registry-go/streams/jsonrpc/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	brz = "0x420412E765BFa6d85aaaC94b4f7b708C89be2e2B"
	blu = "0x1111111111111111111111111111111111111111"
)

func newTestServer(t *testing.T) string {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := prometheus.NewRegistry()

	stateDiffer, err := differ.NewStateDiffer(&differ.StateDifferConfig{Registry: registry, Logger: logger})
	require.NoError(t, err)
	streamer, err := server.NewStreamer(server.StreamerConfig{ChainID: 1, Differ: stateDiffer, Logger: logger, Registry: registry})
	require.NoError(t, err)
	srv, err := server.New(server.Config{
		ListenAddr: "127.0.0.1:0",
		ChainID:    1,
		System:     exchange.NewSystem(exchange.WithListener(streamer.Notify)),
		Streamer:   streamer,
		Logger:     logger,
		Registry:   registry,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func run(t *testing.T, url string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--url", url}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCommands_ManagerScenario(t *testing.T) {
	url := newTestServer(t)

	out, err := run(t, url, "add-token", brz)
	require.NoError(t, err)
	assert.Contains(t, out, "approved "+brz)

	_, err = run(t, url, "add-token", blu)
	require.NoError(t, err)

	out, err = run(t, url, "list-tokens")
	require.NoError(t, err)
	assert.Equal(t, brz+"\n"+blu+"\n", out)

	_, err = run(t, url, "add-pair", brz, blu)
	require.NoError(t, err)

	out, err = run(t, url, "list-pairs")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], brz)
	assert.Contains(t, lines[1], blu)

	out, err = run(t, url, "pairs-for", blu)
	require.NoError(t, err)
	assert.Contains(t, out, brz)

	_, err = run(t, url, "remove-pair", blu, brz)
	require.NoError(t, err)

	out, err = run(t, url, "list-pairs")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "\n"), 1, "only the header remains")
}

func TestCommands_Errors(t *testing.T) {
	url := newTestServer(t)

	_, err := run(t, url, "add-token", "BRZ")
	assert.ErrorContains(t, err, "invalid address")

	_, err = run(t, url, "add-pair", brz, blu)
	assert.ErrorIs(t, err, exchange.ErrTokenNotApproved)

	_, err = run(t, url, "add-pair", brz)
	assert.Error(t, err, "add-pair takes two arguments")
}

func TestWebsocketURL(t *testing.T) {
	assert.Equal(t, "ws://127.0.0.1:8546", websocketURL("http://127.0.0.1:8546"))
	assert.Equal(t, "wss://registry.example", websocketURL("https://registry.example"))
	assert.Equal(t, "ws://host", websocketURL("ws://host"))
}
