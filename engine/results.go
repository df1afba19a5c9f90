package engine

import (
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/jsscheller/pdfr/export"
)

// Stage identifies where in the per-page pipeline a failure occurred.
type Stage string

const (
	StagePage    Stage = "page"
	StageRender  Stage = "render"
	StageEncode  Stage = "encode"
	StageWrite   Stage = "write"
	StageExtract Stage = "extract"
)

// PageResult is the outcome of processing one page: either an output file
// plus its metadata, or a failure tagged with the stage that produced it.
type PageResult struct {
	Page   int
	Path   string
	Format export.Format
	Width  int
	Height int
	Bytes  int
	Stage  Stage
	Err    error
}

// OK reports whether the page was processed successfully.
func (r PageResult) OK() bool { return r.Err == nil }

func failure(page int, stage Stage, err error) PageResult {
	return PageResult{Page: page, Stage: stage, Err: err}
}

// BatchResult aggregates the per-page outcomes of one run.
type BatchResult struct {
	RunID   ulid.ULID
	Results []PageResult
}

// Failed counts the pages that did not complete.
func (b *BatchResult) Failed() int {
	n := 0
	for _, r := range b.Results {
		if !r.OK() {
			n++
		}
	}
	return n
}

// Summary renders a one-line batch summary for logs and CLI output.
func (b *BatchResult) Summary() string {
	return fmt.Sprintf("run %s: %d pages, %d failed", b.RunID, len(b.Results), b.Failed())
}
