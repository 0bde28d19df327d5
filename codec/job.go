package codec

import (
	"context"
	"fmt"
)

// Job is a unit of asynchronous work. Exactly one completion callback fires
// per submitted job. The submitter releases its reference right after
// submission; the engine keeps its own while the job runs.
type Job interface {
	fmt.Stringer
	Submit(ctx context.Context) error
	Release()
	SetUserData(v any) error
	PopUserData() (any, error)
}
