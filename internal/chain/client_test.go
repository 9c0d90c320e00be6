package chain

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTipHeight(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/blocks/tip/height", r.URL.Path)
		fmt.Fprint(w, "840000\n")
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	h, err := c.TipHeight(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(840000), h)
}

func TestBlockHashAndStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/block-height/840000":
			fmt.Fprint(w, "000000000000000000018e3ea447b11385e3330348010e1b2418d0caf2ef5c48")
		case "/block/000000000000000000018e3ea447b11385e3330348010e1b2418d0caf2ef5c48":
			fmt.Fprint(w, `{
				"id": "000000000000000000018e3ea447b11385e3330348010e1b2418d0caf2ef5c48",
				"height": 840000,
				"timestamp": 1713571767,
				"tx_count": 3050,
				"extras": {"avgFeeRate": 612, "totalFees": 4012345}
			}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	hash, err := c.BlockHash(context.Background(), 840000)
	require.NoError(t, err)

	stats, err := c.Block(context.Background(), hash)
	require.NoError(t, err)
	require.Equal(t, int64(840000), stats.Height)
	require.Equal(t, hash, stats.Hash)
	require.Equal(t, int64(3050), stats.TxCount)
	require.Equal(t, int64(612), stats.AvgFeeRate)
	require.Equal(t, int64(1713571767), stats.Timestamp.Unix())
}

func TestNonOKStatusIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "backend unavailable", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	_, err := c.TipHeight(context.Background())
	require.Error(t, err)
}
