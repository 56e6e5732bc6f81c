// Package reader talks to the fingerprint reader attached to a workstation.
//
// The reader is a capability resolved once at startup and passed to the
// flows that need it. A nil Capability means no reader is installed.
package reader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
)

const DefaultModel = "DigitalPersona 4500"

type Status struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
	Model     string `json:"modelo,omitempty"`
	Serial    string `json:"serial,omitempty"`
	Version   string `json:"version,omitempty"`
}

// Sample is one captured template with its quality score (0..100).
type Sample struct {
	Template   string
	Quality    int
	CapturedAt time.Time
}

type Capability interface {
	Available(ctx context.Context) (Status, error)
	Capture(ctx context.Context) (Sample, error)
}

// HTTPReader drives the vendor's local reader service:
// GET /device reports the attached reader, POST /capture waits for a finger.
type HTTPReader struct {
	BaseURL string
	Client  *http.Client
	// Window bounds a single capture.
	Window time.Duration
}

func NewHTTPReader(baseURL string, window time.Duration) *HTTPReader {
	return &HTTPReader{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{},
		Window:  window,
	}
}

type deviceResponse struct {
	Connected bool   `json:"connected"`
	Model     string `json:"model"`
	Serial    string `json:"serial"`
	Version   string `json:"version"`
}

type captureResponse struct {
	Template string `json:"template"`
	Quality  *int   `json:"quality"`
	Error    string `json:"error"`
}

func (r *HTTPReader) Available(ctx context.Context) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var dev deviceResponse
	if err := r.call(ctx, http.MethodGet, "/device", &dev); err != nil {
		return Status{Message: "Servicio del lector no disponible"}, err
	}
	if !dev.Connected {
		return Status{Message: "Lector no conectado. Verifique la conexión USB."}, nil
	}
	model := dev.Model
	if model == "" {
		model = DefaultModel
	}
	return Status{
		Available: true,
		Message:   "Lector disponible",
		Model:     model,
		Serial:    dev.Serial,
		Version:   dev.Version,
	}, nil
}

// Capture waits up to Window for a finger and returns the extracted template.
func (r *HTTPReader) Capture(ctx context.Context) (Sample, error) {
	if r.Window > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Window)
		defer cancel()
	}

	var out captureResponse
	if err := r.call(ctx, http.MethodPost, "/capture", &out); err != nil {
		if ctx.Err() != nil {
			return Sample{}, apperr.Device("Tiempo de captura agotado").Wrap(err)
		}
		return Sample{}, apperr.Device("No se pudo capturar la huella. Intente nuevamente.").Wrap(err)
	}
	if out.Error != "" || out.Template == "" {
		return Sample{}, apperr.Device("No se pudieron extraer las características de la huella.")
	}

	quality := qualityFromSize(len(out.Template))
	if out.Quality != nil {
		quality = *out.Quality
	}
	return Sample{Template: out.Template, Quality: quality, CapturedAt: time.Now()}, nil
}

func (r *HTTPReader) call(ctx context.Context, method, path string, dst any) error {
	var body *bytes.Reader
	if method == http.MethodPost {
		body = bytes.NewReader([]byte("{}"))
	} else {
		body = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("reader service returned status %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(dst)
}

// qualityFromSize estimates quality when the service does not score the
// sample. Larger templates carry more minutiae.
func qualityFromSize(n int) int {
	switch {
	case n > 5000:
		return 85
	case n > 3000:
		return 70
	case n > 2000:
		return 60
	case n > 1000:
		return 50
	default:
		return 40
	}
}

// Detect returns r when its service answers, nil otherwise.
func Detect(ctx context.Context, r *HTTPReader) Capability {
	if _, err := r.Available(ctx); err != nil {
		return nil
	}
	return r
}
