package artifact

import "github.com/hupe1980/insightmesh/core"

// ErrNotFound is returned when an artifact for the given session / name pair
// does not exist in the store.
var ErrNotFound = core.NewError(core.KindValidation, "artifact", "artifact not found")
