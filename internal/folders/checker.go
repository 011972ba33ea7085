package folders

import (
	"context"
	"errors"
	"fmt"

	"odocs/api/internal/store"
)

const DefaultMaxDepth = 256

var (
	ErrCycle         = errors.New("folders: ancestor cycle")
	ErrDepthExceeded = errors.New("folders: ancestor chain too deep")
)

type Lookup interface {
	GetFolder(ctx context.Context, folderID string) (*store.Folder, error)
}

// Checker walks a folder's parent chain up to the workspace root.
type Checker struct {
	lookup   Lookup
	maxDepth int
}

func NewChecker(lookup Lookup) *Checker {
	return &Checker{lookup: lookup, maxDepth: DefaultMaxDepth}
}

func (c *Checker) WithMaxDepth(depth int) *Checker {
	if depth > 0 {
		c.maxDepth = depth
	}
	return c
}

// ValidPath reports whether folderID and all of its ancestors exist, are not
// deleted and belong to workspaceID. A chain that cannot be walked to the
// root returns false together with the reason.
func (c *Checker) ValidPath(ctx context.Context, folderID, workspaceID string) (bool, error) {
	visited := make(map[string]struct{})
	current := folderID
	for depth := 0; ; depth++ {
		if depth >= c.maxDepth {
			return false, ErrDepthExceeded
		}
		if _, seen := visited[current]; seen {
			return false, fmt.Errorf("%w at %s", ErrCycle, current)
		}
		visited[current] = struct{}{}

		folder, err := c.lookup.GetFolder(ctx, current)
		if err != nil {
			return false, fmt.Errorf("lookup folder %s: %w", current, err)
		}
		if folder == nil || folder.DeletedAt != nil || folder.WorkspaceID != workspaceID {
			return false, nil
		}
		if folder.ParentID == nil {
			return true, nil
		}
		current = *folder.ParentID
	}
}
