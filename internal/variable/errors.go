package variable

import (
	"fmt"

	"github.com/vkazantsev/diffgrid/internal/errs"
)

func errDstArity(got, want int) error {
	return fmt.Errorf("%w: got %d destination buffers, layout has %d variables", errs.SizeMismatch, got, want)
}

func errBufTooSmall(i, got, want int) error {
	return fmt.Errorf("%w: destination buffer %d has length %d, variable needs %d", errs.SizeMismatch, i, got, want)
}
