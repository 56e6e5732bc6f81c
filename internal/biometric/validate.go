package biometric

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/zaqqye/inhouse_attendance/internal/apperr"
	"github.com/zaqqye/inhouse_attendance/internal/models"
)

const (
	MinQuality        = 50
	MinTemplateLength = 100
)

var base64Pattern = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)

// DecodeTemplate checks the wire format of a template (a base64 blob longer
// than MinTemplateLength) and returns its bytes.
func DecodeTemplate(template string) ([]byte, error) {
	problems := templateProblems(template)
	if len(problems) > 0 {
		return nil, apperr.Validation("Formato de template inválido", problems...)
	}
	return base64.StdEncoding.DecodeString(template)
}

func templateProblems(template string) []string {
	if template == "" {
		return []string{"Template de huella es requerido"}
	}
	var problems []string
	if !base64Pattern.MatchString(template) {
		problems = append(problems, "Template debe estar codificado en base64")
	} else if _, err := base64.StdEncoding.DecodeString(template); err != nil {
		problems = append(problems, "Template base64 mal formado")
	}
	if len(template) <= MinTemplateLength {
		problems = append(problems, "Template demasiado corto")
	}
	return problems
}

type EnrollRequest struct {
	UserID     string      `json:"usuarioId"`
	Template   string      `json:"template"`
	Finger     string      `json:"dedo"`
	Quality    *int        `json:"calidad"`
	DeviceInfo *DeviceInfo `json:"deviceInfo"`
}

type DeviceInfo struct {
	Model      string `json:"modelo"`
	Serial     string `json:"serial"`
	Version    string `json:"version"`
	Resolution string `json:"resolucion"`
	Format     string `json:"formato"`
}

// validate collects every input problem rather than stopping at the first.
func (r EnrollRequest) validate() []string {
	var problems []string
	if strings.TrimSpace(r.UserID) == "" {
		problems = append(problems, "ID de usuario es requerido")
	}
	problems = append(problems, templateProblems(r.Template)...)
	if r.Finger == "" {
		problems = append(problems, "Dedo es requerido")
	} else if !models.Finger(r.Finger).Valid() {
		problems = append(problems, "Dedo inválido")
	}
	switch {
	case r.Quality == nil:
		problems = append(problems, "Calidad es requerida")
	case *r.Quality < 0 || *r.Quality > 100:
		problems = append(problems, "Calidad debe estar entre 0 y 100")
	case *r.Quality < MinQuality:
		problems = append(problems, fmt.Sprintf("Calidad insuficiente (%d%%). Mínimo requerido: %d%%", *r.Quality, MinQuality))
	}
	return problems
}
