package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const TerminalOTPHeader = "X-Terminal-OTP"

var totpOpts = totp.ValidateOpts{
	Period:    30,
	Skew:      1,
	Digits:    otp.DigitsSix,
	Algorithm: otp.AlgorithmSHA1,
}

func VerifyTOTP(code, secret string) bool {
	ok, err := totp.ValidateCustom(code, secret, time.Now(), totpOpts)
	if err != nil {
		return false
	}
	return ok
}

// TerminalCode returns the current code for secret, as sent by the terminal.
func TerminalCode(secret string, at time.Time) (string, error) {
	return totp.GenerateCodeCustom(secret, at, totpOpts)
}

// TerminalOTP guards the unattended fingerprint endpoint with a shared TOTP
// secret. An empty secret leaves the route open.
func TerminalOTP(secret string, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}
		code := strings.TrimSpace(c.GetHeader(TerminalOTPHeader))
		if code == "" || !VerifyTOTP(code, secret) {
			logger.WarnContext(c.Request.Context(), "Rejected terminal request", "ip", c.ClientIP())
			abort(c, http.StatusUnauthorized, "Terminal no autorizada")
			return
		}
		c.Next()
	}
}
