package clients

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestAuctionClient(t *testing.T) {
	lotID := uuid.New()
	serverTime := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/time", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"server_time":"2026-03-14T18:00:00Z"}`))
	})
	mux.HandleFunc("GET /api/lots/{id}/snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lot_id":"` + r.PathValue("id") + `","version":4,"status":"active","price":"102000"}`))
	})
	mux.HandleFunc("POST /api/lots/{id}/bids", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("missing content type")
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"bid below minimum","code":"below_minimum","minimum":"103000"}`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := NewAuctionClient(srv.URL)
	ctx := context.Background()

	got, err := c.ServerTime(ctx)
	if err != nil || !got.Equal(serverTime) {
		t.Fatalf("server time: %v %v", got, err)
	}

	snap, err := c.Snapshot(ctx, lotID)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.LotID != lotID || snap.Version != 4 || !snap.Price.Equal(decimal.RequireFromString("102000")) {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	_, err = c.PlaceBid(ctx, lotID, uuid.New(), decimal.RequireFromString("102500"))
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("want a 422 StatusError got %v", err)
	}
}
