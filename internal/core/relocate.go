package core

import (
	"context"
	"fmt"
)

// Relocate moves an object within a bucket by copying it to dst and then
// deleting src. If the copy fails the source is left untouched. If the delete
// fails the object exists in both places and the caller gets ErrRelocate.
func Relocate(ctx context.Context, objects ObjectStore, bucket, src, dst string) error {
	if err := objects.Copy(ctx, bucket, src, dst); err != nil {
		return fmt.Errorf("%w: copy %s to %s: %w", ErrRelocate, src, dst, err)
	}
	if err := objects.Delete(ctx, bucket, src); err != nil {
		return fmt.Errorf("%w: delete %s: %w", ErrRelocate, src, err)
	}
	return nil
}
