package task

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetJSON_ErrorEnvelopeBecomesServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"Invalid layer id","details":["layer 99"]}}`))
	}))
	defer srv.Close()

	err := GetJSON(context.Background(), srv.Client(), srv.URL, nil)
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("want ServerError, got %v", err)
	}
	if se.Message != "Invalid layer id" || se.Code != 400 {
		t.Fatalf("envelope not carried: %+v", se)
	}
}

func TestGetJSON_NonOKStatusBecomesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := GetJSON(context.Background(), srv.Client(), srv.URL, nil)
	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("want TransportError, got %v", err)
	}
	if te.Status != http.StatusBadGateway {
		t.Fatalf("status got %d", te.Status)
	}
}

func TestGetJSON_DecodesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"currentVersion":"10.81","mapName":"Layers"}`))
	}))
	defer srv.Close()

	var out struct {
		MapName string `json:"mapName"`
	}
	if err := GetJSON(context.Background(), srv.Client(), srv.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if out.MapName != "Layers" {
		t.Fatalf("decoded %+v", out)
	}
}

func TestGetBytes_BinaryBodyPassesThrough(t *testing.T) {
	blob := []byte{0x89, 'P', 'N', 'G'}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(blob)
	}))
	defer srv.Close()

	body, ct, err := GetBytes(context.Background(), srv.Client(), srv.URL)
	if err != nil {
		t.Fatalf("GetBytes: %v", err)
	}
	if ct != "image/png" || string(body) != string(blob) {
		t.Fatalf("got ct=%q body=%v", ct, body)
	}
}

func TestGetBytes_JSONErrorEnvelopeOnImageEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":{"message":"Export failed"}}`))
	}))
	defer srv.Close()

	_, _, err := GetBytes(context.Background(), srv.Client(), srv.URL)
	var se *ServerError
	if !errors.As(err, &se) {
		t.Fatalf("want ServerError from a 200 JSON failure, got %v", err)
	}
}

func TestGetBytes_ContextCancellation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("{}"))
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := GetBytes(ctx, srv.Client(), srv.URL); err == nil {
		t.Fatalf("expected error with canceled context")
	}
}
