package identity

import (
	"fmt"

	"github.com/Harshitk-cp/soulgarden/internal/domain"
)

var ErrDocumentsNotFound = fmt.Errorf("identity documents %w", domain.ErrNotFound)
