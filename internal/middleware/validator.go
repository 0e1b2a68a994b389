package middleware

import (
	"encoding/base64"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	domain "github.com/bryanwahyu/agrivision/internal/domain/analysis"
)

// Input validation and sanitization utilities

// MaxImageBytes is the largest decoded image accepted inline.
const MaxImageBytes = 10 << 20

var (
	analysisIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)
	backendIDPattern  = regexp.MustCompile(`^[a-z0-9][a-z0-9_.-]{0,63}$`)
)

// ValidateURL validates image URLs (http/https only, no internal hosts)
func ValidateURL(rawURL string) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid URL scheme: %s (allowed: http, https)", u.Scheme)
	}
	if u.Hostname() == "" {
		return fmt.Errorf("URL host cannot be empty")
	}

	// SSRF protection
	host := strings.ToLower(u.Hostname())
	if host == "localhost" || strings.HasSuffix(host, ".localhost") {
		return fmt.Errorf("localhost/internal IPs are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if ip.IsLoopback() || ip.IsUnspecified() || ip.IsLinkLocalUnicast() {
			return fmt.Errorf("localhost/internal IPs are not allowed")
		}
		if ip.IsPrivate() {
			return fmt.Errorf("private IP ranges are not allowed")
		}
	}

	return nil
}

// ValidateImageData checks that inline image data is base64 and not too large.
func ValidateImageData(data string) error {
	if strings.TrimSpace(data) == "" {
		return fmt.Errorf("image data cannot be empty")
	}
	if base64.StdEncoding.DecodedLen(len(data)) > MaxImageBytes {
		return fmt.Errorf("image data exceeds %d bytes", MaxImageBytes)
	}
	if _, err := base64.StdEncoding.DecodeString(data); err != nil {
		return fmt.Errorf("image data is not valid base64: %w", err)
	}
	return nil
}

// ValidateAnalysisID validates analysis id format
func ValidateAnalysisID(id string) error {
	if id == "" {
		return fmt.Errorf("analysis ID cannot be empty")
	}
	if !analysisIDPattern.MatchString(id) {
		return fmt.Errorf("invalid analysis ID format (alphanumeric, dash, underscore only, max 64 chars)")
	}
	return nil
}

// ValidateBackendID validates backend id format
func ValidateBackendID(id string) error {
	if !backendIDPattern.MatchString(id) {
		return fmt.Errorf("invalid backend ID: %q", id)
	}
	return nil
}

// SanitizeString removes dangerous characters from strings
func SanitizeString(input string) string {
	input = strings.ReplaceAll(input, "\x00", "")

	var result strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' || r == '\n' {
			result.WriteRune(r)
		}
	}

	return strings.TrimSpace(result.String())
}

// ValidateLimit validates pagination limit
func ValidateLimit(limit int) int {
	return domain.ClampLimit(limit)
}
