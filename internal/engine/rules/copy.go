package rules

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"go.trai.ch/kiln/internal/core/domain"
)

func (e *Engine) prepareCopy(n *domain.Node) bool {
	n.Command = ""
	n.LinkString = ""
	n.IncludeInBinary = false
	return e.fingerprintChanged(n.Output, copyKey(n))
}

func (e *Engine) workCopy(n *domain.Node) (Result, error) {
	src, dst := n.Input(), n.Output
	if src == dst {
		e.logger.Warn(fmt.Sprintf("%s: source and target is the same file, skipping", src))
		return Result{}, nil
	}

	written, err := e.fs.CopyBytes(src.String(), dst.String())
	if err != nil {
		return Result{}, commandFailed(n, "copy failed", err, 0, "")
	}
	if err := e.recordFingerprint(dst, copyKey(n)); err != nil {
		return Result{}, commandFailed(n, "copy failed", err, 0, "")
	}
	return Result{Description: fmt.Sprintf("copy %s -> %s (%s)", src, dst, humanize.Bytes(uint64(written)))}, nil
}

// CopyCommand is the shell equivalent of a copy node, used by exports.
func CopyCommand(n *domain.Node) string {
	return join([]string{"cp", Quote(n.Input().String()), Quote(n.Output.String())})
}

func copyKey(n *domain.Node) string {
	return "copy " + n.Input().String()
}
