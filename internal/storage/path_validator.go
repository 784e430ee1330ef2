package storage

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"session-auth/pkg/apierror"
)

// PathValidator maps object keys ("profiles/42/ab12.png") onto files below a root directory.
type PathValidator struct {
	rootAbs string
}

func NewPathValidator(root string) (*PathValidator, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root path cannot be empty")
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve media root: %w", err)
	}

	return &PathValidator{rootAbs: rootAbs}, nil
}

func (v *PathValidator) RootAbs() string {
	return v.rootAbs
}

func (v *PathValidator) ResolveKey(key string) (string, error) {
	normalized := strings.Trim(strings.ReplaceAll(strings.TrimSpace(key), `\`, "/"), "/")
	if normalized == "" {
		return "", apierror.New("INVALID_KEY", "object key cannot be empty", key, http.StatusBadRequest)
	}

	if !validKeyCharacters(normalized) {
		return "", apierror.New("INVALID_KEY", "object key contains invalid characters", key, http.StatusBadRequest)
	}

	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." || segment == "." || segment == "" {
			return "", apierror.New("INVALID_KEY", "object key has an invalid segment", key, http.StatusBadRequest)
		}
	}

	resolvedAbs, err := filepath.Abs(filepath.Join(v.rootAbs, filepath.FromSlash(normalized)))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}

	if !isWithinRoot(v.rootAbs, resolvedAbs) {
		return "", apierror.New("INVALID_KEY", "object key resolves outside media root", key, http.StatusBadRequest)
	}

	return resolvedAbs, nil
}

// validKeyCharacters admits the alphabet of generated keys: ASCII letters,
// digits, '-', '_', '.' and '/' separators.
func validKeyCharacters(value string) bool {
	for _, char := range value {
		switch {
		case char >= 'a' && char <= 'z', char >= 'A' && char <= 'Z', char >= '0' && char <= '9':
		case char == '-' || char == '_' || char == '.' || char == '/':
		default:
			return false
		}
	}
	return true
}

func isWithinRoot(rootAbs string, candidateAbs string) bool {
	if candidateAbs == rootAbs {
		return false
	}

	return strings.HasPrefix(candidateAbs, rootAbs+string(filepath.Separator))
}
