package admin

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakePool struct {
	head      []byte
	headErr   error
	addErr    error
	lastTx    []byte
	lastFluff bool
}

func (p *fakePool) ChainHead() ([]byte, error) { return p.head, p.headErr }

func (p *fakePool) AddToPool(tx []byte, stem bool, _ []byte) error {
	p.lastTx = tx
	p.lastFluff = !stem
	return p.addErr
}

func TestHandlePushTxSuccess(t *testing.T) {
	pool := &fakePool{head: []byte("head")}
	s := NewServer(pool, nil, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	body := `{"tx_hex":"deadbeef"}`
	resp, err := http.Post(srv.URL+"/v1/pool/push_tx", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !bytes.Equal(pool.lastTx, []byte{0xde, 0xad, 0xbe, 0xef}) {
		t.Fatalf("lastTx = %x, want deadbeef", pool.lastTx)
	}
	if pool.lastFluff {
		t.Fatalf("expected stem (not fluff) by default when ?fluff is absent")
	}
}

func TestHandlePushTxMalformedHex(t *testing.T) {
	pool := &fakePool{head: []byte("head")}
	s := NewServer(pool, nil, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/pool/push_tx", "application/json", bytes.NewBufferString(`{"tx_hex":"zz"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

func TestHandlePushTxPoolRejection(t *testing.T) {
	pool := &fakePool{head: []byte("head"), addErr: errors.New("pool full")}
	s := NewServer(pool, nil, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/v1/pool/push_tx", "application/json", bytes.NewBufferString(`{"tx_hex":"ab"}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}
}

func TestHandlePeersWithNilRegistryReturnsEmptyList(t *testing.T) {
	s := NewServer(&fakePool{}, nil, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/peers")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var out []peerView
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("expected an empty list with a nil registry, got %+v", out)
	}
}

func TestHandleSyncStatusWithNilManagerReportsNoSync(t *testing.T) {
	s := NewServer(&fakePool{}, nil, nil)
	srv := httptest.NewServer(s)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/sync/status")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var out syncStatusView
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Status != "NoSync" {
		t.Fatalf("status = %q, want NoSync", out.Status)
	}
}
