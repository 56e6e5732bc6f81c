package biometric

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/models"
)

func TestHTTPMatcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req matchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		enrolled, _ := base64.StdEncoding.DecodeString(req.Enrolled)
		probe, _ := base64.StdEncoding.DecodeString(req.Probe)
		score := 12
		if string(enrolled) == string(probe) {
			score = 140
		}
		_ = json.NewEncoder(w).Encode(matchResponse{Score: score})
	}))
	defer srv.Close()

	m := NewHTTPMatcher(srv.URL)
	ctx := context.Background()

	score, err := m.Compare(ctx, []byte("abc"), []byte("abc"))
	if err != nil {
		t.Fatal(err)
	}
	if score != 100 {
		t.Errorf("score should be clamped to 100, got %d", score)
	}
	score, err = m.Compare(ctx, []byte("abc"), []byte("xyz"))
	if err != nil || score != 12 {
		t.Errorf("score = %d, %v", score, err)
	}
}

func TestHTTPMatcherErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	if _, err := NewHTTPMatcher(srv.URL).Compare(context.Background(), []byte("a"), []byte("a")); err == nil {
		t.Fatal("expected an error for a non-200 response")
	}
}

type fixedMatcher int

func (f fixedMatcher) Compare(context.Context, []byte, []byte) (int, error) { return int(f), nil }

func TestComparerThresholdAndCache(t *testing.T) {
	c, err := NewCipher("secret")
	if err != nil {
		t.Fatal(err)
	}
	cache, err := NewTemplateCache(time.Minute, 10)
	if err != nil {
		t.Fatal(err)
	}
	defer cache.Close()

	enc, _ := c.Encrypt([]byte("enrolled"))
	stored := &models.Biometric{ID: "b1", Template: enc}
	ctx := context.Background()

	res, err := NewComparer(c, fixedMatcher(59), cache, 60).Compare(ctx, stored, []byte("probe"))
	if err != nil || res.Match || res.Score != 59 {
		t.Fatalf("below threshold: %+v, %v", res, err)
	}
	res, err = NewComparer(c, fixedMatcher(60), cache, 60).Compare(ctx, stored, []byte("probe"))
	if err != nil || !res.Match {
		t.Fatalf("at threshold: %+v, %v", res, err)
	}

	// cached plaintext is used even if the stored ciphertext is later unreadable
	stored.Template = "garbage"
	cmp := NewComparer(c, fixedMatcher(80), cache, 60)
	if _, err := cmp.Compare(ctx, stored, []byte("probe")); err != nil {
		t.Fatalf("expected cached plaintext, got %v", err)
	}
	cmp.Forget(ctx, "b1")
	if _, err := cmp.Compare(ctx, stored, []byte("probe")); err == nil {
		t.Fatal("expected decrypt failure after the cache entry was dropped")
	}
}

func TestDecodeTemplate(t *testing.T) {
	if _, err := DecodeTemplate(template(2)); err != nil {
		t.Fatalf("valid template rejected: %v", err)
	}
	for _, bad := range []string{"", "abc", "%%%%" + template(2)} {
		if _, err := DecodeTemplate(bad); err == nil {
			t.Errorf("DecodeTemplate(%.10q) should fail", bad)
		}
	}
}

func TestTemplateCacheRejectsBadCapacity(t *testing.T) {
	for _, size := range []int{0, -1} {
		if _, err := NewTemplateCache(time.Minute, size); err == nil {
			t.Fatalf("size %d: expected an error", size)
		}
	}
}
