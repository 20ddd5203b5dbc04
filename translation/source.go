package translation

import (
	"context"
	"fmt"
	"os"

	"github.com/hazyhaar/manualtr/doctree"
	"github.com/hazyhaar/manualtr/treestore"
)

// FileSource serves one document tree from a JSON file, re-read on every
// Load so edits to the file are picked up.
type FileSource struct {
	Path string
}

// Load reads the file and checks that it holds docID.
func (f FileSource) Load(ctx context.Context, docID int64) (*doctree.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fh, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("translation: tree file: %w", err)
	}
	defer fh.Close()
	snap, err := doctree.ReadJSON(fh)
	if err != nil {
		return nil, fmt.Errorf("translation: tree file %s: %w", f.Path, err)
	}
	if snap.Document.ID != docID {
		return nil, fmt.Errorf("%w: %d (file %s holds %d)", treestore.ErrNotFound, docID, f.Path, snap.Document.ID)
	}
	return snap, nil
}
