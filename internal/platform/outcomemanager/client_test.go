package outcomemanager

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/backitlabs/backit-oracle/internal/domain"
	"github.com/backitlabs/backit-oracle/internal/oracle"
)

func sampleRequest() oracle.SubmissionRequest {
	return oracle.SubmissionRequest{
		CallID:          42,
		Value:           domain.OutcomeYes,
		Price:           105,
		TimestampMillis: 1700000000000,
		Signature:       []byte{0xde, 0xad, 0xbe, 0xef},
		PublicKeyHex:    "aabbcc",
	}
}

func TestDryRunSubmission(t *testing.T) {
	c := New("")
	if !c.DryRun() {
		t.Fatal("client with no endpoint must be in dry-run mode")
	}

	ref1, err := c.SubmitOutcome(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("dry-run submit: %v", err)
	}
	if !strings.HasPrefix(ref1, "dryrun-") {
		t.Errorf("tx ref %q lacks the dryrun- prefix", ref1)
	}

	ref2, _ := c.SubmitOutcome(context.Background(), sampleRequest())
	if ref1 == ref2 {
		t.Error("dry-run refs must be unique per submission")
	}
}

func TestSubmitOutcome(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/outcomes" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Write([]byte(`{"tx_hash":"stellar:abc123"}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	if c.DryRun() {
		t.Fatal("client with an endpoint must not be in dry-run mode")
	}

	ref, err := c.SubmitOutcome(context.Background(), sampleRequest())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ref != "stellar:abc123" {
		t.Errorf("tx ref = %q, want stellar:abc123", ref)
	}

	if got["call_id"] != float64(42) {
		t.Errorf("call_id = %v", got["call_id"])
	}
	if got["outcome"] != "YES" {
		t.Errorf("outcome = %v", got["outcome"])
	}
	if got["price"] != "105.0000000" {
		t.Errorf("price = %v, want the fixed 7-decimal form", got["price"])
	}
	if got["timestamp_ms"] != float64(1700000000000) {
		t.Errorf("timestamp_ms = %v", got["timestamp_ms"])
	}
	if got["signature"] != "deadbeef" {
		t.Errorf("signature = %v, want hex deadbeef", got["signature"])
	}
	if got["public_key"] != "aabbcc" {
		t.Errorf("public_key = %v", got["public_key"])
	}
}

func TestSubmitOutcome_Failures(t *testing.T) {
	cases := []struct {
		name    string
		handler http.HandlerFunc
		wantMsg string
	}{
		{
			name: "gateway error status",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "contract reverted", http.StatusBadRequest)
			},
			wantMsg: "unexpected status 400",
		},
		{
			name: "malformed response",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{"tx_hash":`))
			},
			wantMsg: "decode response",
		},
		{
			name: "missing tx hash",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(`{}`))
			},
			wantMsg: "no tx hash",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			c := New(srv.URL)
			_, err := c.SubmitOutcome(context.Background(), sampleRequest())
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tc.wantMsg) {
				t.Errorf("error %q does not mention %q", err, tc.wantMsg)
			}
		})
	}
}
