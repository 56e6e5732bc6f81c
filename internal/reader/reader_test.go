package reader

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
)

func readerServer(t *testing.T, device, capture http.HandlerFunc) *HTTPReader {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /device", device)
	mux.HandleFunc("POST /capture", capture)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return NewHTTPReader(srv.URL+"/", 200*time.Millisecond)
}

func writeJSON(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func TestAvailable(t *testing.T) {
	r := readerServer(t, writeJSON(`{"connected":true,"serial":"SN-1"}`), writeJSON(`{}`))
	st, err := r.Available(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !st.Available || st.Model != DefaultModel || st.Serial != "SN-1" {
		t.Fatalf("unexpected status %+v", st)
	}

	r = readerServer(t, writeJSON(`{"connected":false}`), writeJSON(`{}`))
	st, err = r.Available(context.Background())
	if err != nil || st.Available {
		t.Fatalf("disconnected reader: %+v %v", st, err)
	}
}

func TestCapture(t *testing.T) {
	tpl := strings.Repeat("QUJD", 300)
	r := readerServer(t, writeJSON(`{"connected":true}`), writeJSON(`{"template":"`+tpl+`","quality":77}`))
	s, err := r.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Template != tpl || s.Quality != 77 {
		t.Fatalf("unexpected sample %+v", s)
	}

	r = readerServer(t, writeJSON(`{"connected":true}`), writeJSON(`{"template":"`+tpl+`"}`))
	s, err = r.Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if s.Quality != 50 {
		t.Fatalf("estimated quality = %d", s.Quality)
	}
}

func TestCaptureTimeoutIsDeviceError(t *testing.T) {
	r := readerServer(t, writeJSON(`{"connected":true}`), func(w http.ResponseWriter, req *http.Request) {
		<-req.Context().Done()
	})
	_, err := r.Capture(context.Background())
	if !apperr.IsKind(err, apperr.KindDevice) {
		t.Fatalf("expected device error, got %v", err)
	}
}

func TestDetect(t *testing.T) {
	r := readerServer(t, writeJSON(`{"connected":true}`), writeJSON(`{}`))
	if Detect(context.Background(), r) == nil {
		t.Fatal("expected a capability")
	}

	down := NewHTTPReader("http://127.0.0.1:1", time.Second)
	if c := Detect(context.Background(), down); c != nil {
		t.Fatalf("expected nil capability, got %T", c)
	}
}

func TestQualityFromSize(t *testing.T) {
	for n, want := range map[int]int{6000: 85, 4000: 70, 2500: 60, 1500: 50, 10: 40} {
		if got := qualityFromSize(n); got != want {
			t.Errorf("qualityFromSize(%d) = %d, want %d", n, got, want)
		}
	}
}
