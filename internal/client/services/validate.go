package services

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/formsync/internal/client/models"
	"github.com/dmitrijs2005/formsync/internal/common"
)

// Validate applies the structural checks a fresh submission must pass.
// Attachments are expected to be materialized already.
func Validate(p models.Payload) error {
	for name := range p.Fields {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("%w: empty field name", common.ErrValidation)
		}
		if name == common.AttachmentsKey || name == common.SubmittedAtKey {
			return fmt.Errorf("%w: field name %q is reserved", common.ErrValidation, name)
		}
	}

	for i, a := range p.Attachments {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("%w: attachment %d has no name", common.ErrValidation, i)
		}
		if a.Size < 0 {
			return fmt.Errorf("%w: attachment %q has negative size", common.ErrValidation, a.Name)
		}
		if b, ok := a.Content.(models.BytesBlob); ok && int64(len(b)) != a.Size {
			return fmt.Errorf("%w: attachment %q is %d bytes, declared %d",
				common.ErrValidation, a.Name, len(b), a.Size)
		}
	}

	return nil
}
