package internal

import (
	"context"

	"github.com/xaionaro-go/rawpipeline/logger"
)

// Assert panics if the invariant is broken. The panic goes through the
// logger of ctx, so the belt fields (frame, task, ...) are reported with it.
func Assert(
	ctx context.Context,
	invariant bool,
	what string,
	values ...any,
) {
	if invariant {
		return
	}
	logger.Panicf(ctx, "broken invariant: %s %v", what, values)
}
