package biometric

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/models"
)

// Matcher scores the similarity of two fingerprint templates, 0 to 100.
// Real deployments delegate to the reader vendor's minutiae matcher.
type Matcher interface {
	Compare(ctx context.Context, enrolled, probe []byte) (int, error)
}

// ExactMatcher scores 100 on byte equality and 0 otherwise. Development only:
// two captures of the same finger never produce identical templates.
type ExactMatcher struct{}

func (ExactMatcher) Compare(_ context.Context, enrolled, probe []byte) (int, error) {
	if len(enrolled) == len(probe) && subtle.ConstantTimeCompare(enrolled, probe) == 1 {
		return 100, nil
	}
	return 0, nil
}

// HTTPMatcher calls an external matching service:
// POST {url} {"enrolled": b64, "probe": b64} -> {"score": n}.
type HTTPMatcher struct {
	URL    string
	Client *http.Client
}

func NewHTTPMatcher(url string) *HTTPMatcher {
	return &HTTPMatcher{URL: url, Client: &http.Client{Timeout: 5 * time.Second}}
}

type matchRequest struct {
	Enrolled string `json:"enrolled"`
	Probe    string `json:"probe"`
}

type matchResponse struct {
	Score int `json:"score"`
}

func (m *HTTPMatcher) Compare(ctx context.Context, enrolled, probe []byte) (int, error) {
	body, err := json.Marshal(matchRequest{
		Enrolled: base64.StdEncoding.EncodeToString(enrolled),
		Probe:    base64.StdEncoding.EncodeToString(probe),
	})
	if err != nil {
		return 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.URL, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.Client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("matcher returned status %d", resp.StatusCode)
	}
	var out matchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return clampScore(out.Score), nil
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

type MatchResult struct {
	Match bool
	Score int
}

// Comparer decrypts a stored template and scores it against a live capture
// using the configured threshold.
type Comparer struct {
	cipher    *Cipher
	matcher   Matcher
	cache     *TemplateCache
	threshold int
}

func NewComparer(c *Cipher, m Matcher, cache *TemplateCache, threshold int) *Comparer {
	return &Comparer{cipher: c, matcher: m, cache: cache, threshold: threshold}
}

func (c *Comparer) Compare(ctx context.Context, stored *models.Biometric, probe []byte) (MatchResult, error) {
	enrolled, err := c.plaintext(ctx, stored)
	if err != nil {
		return MatchResult{}, err
	}
	score, err := c.matcher.Compare(ctx, enrolled, probe)
	if err != nil {
		return MatchResult{}, err
	}
	score = clampScore(score)
	return MatchResult{Match: score >= c.threshold, Score: score}, nil
}

func (c *Comparer) plaintext(ctx context.Context, stored *models.Biometric) ([]byte, error) {
	if c.cache != nil {
		if b, ok := c.cache.Get(ctx, stored.ID); ok {
			return b, nil
		}
	}
	b, err := c.cipher.Decrypt(stored.Template)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Set(ctx, stored.ID, b)
	}
	return b, nil
}

func (c *Comparer) Forget(ctx context.Context, biometricID string) {
	if c.cache != nil {
		c.cache.Delete(ctx, biometricID)
	}
}
