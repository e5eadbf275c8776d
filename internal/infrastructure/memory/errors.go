package memory

import (
	"fmt"

	"github.com/oksasatya/go-user-graph/internal/domain/entity"
)

func errInvalidField(f entity.RelationField) error {
	return fmt.Errorf("memory: invalid relation field %q", f)
}
