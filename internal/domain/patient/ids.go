package patient

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewPatientID returns PAT-<unix millis>-<8 hex chars>.
func NewPatientID(now time.Time) string {
	return fmt.Sprintf("PAT-%d-%s", now.UnixMilli(), uuid.NewString()[:8])
}

// NewID returns prefix-<uuid> for entities nested inside a patient document.
func NewID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}

// ValidID reports whether id has the PAT- document key shape.
func ValidID(id string) bool {
	rest, ok := strings.CutPrefix(id, "PAT-")
	return ok && rest != "" && len(id) <= 64
}
