package facematch

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/kozaktomas/faceid/internal/face"
)

// MaxIdentityKeyLength bounds identity keys in bytes after normalization. The
// base64url form used for file names must stay under common name limits.
const MaxIdentityKeyLength = 128

// NormalizeIdentityKey trims surrounding whitespace and applies Unicode NFC so
// that composed and decomposed spellings of the same key (e.g. "Jiří") address
// the same identity. Case is preserved: keys are externally assigned IDs.
func NormalizeIdentityKey(key string) (string, error) {
	key = norm.NFC.String(strings.TrimSpace(key))
	if key == "" {
		return "", fmt.Errorf("identity key is required: %w", face.ErrInvalidInput)
	}
	if len(key) > MaxIdentityKeyLength {
		return "", fmt.Errorf("identity key longer than %d bytes: %w", MaxIdentityKeyLength, face.ErrInvalidInput)
	}
	if strings.ContainsAny(key, "\x00\n\r") {
		return "", fmt.Errorf("identity key contains control characters: %w", face.ErrInvalidInput)
	}
	return key, nil
}
