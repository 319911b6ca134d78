package commenttree

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ButyrinIA/casefeed/internal/render"
)

// Render печатает видимое дерево в текстовом виде, с отступом по глубине
func (v *View) Render(w io.Writer, now time.Time) error {
	bw := bufio.NewWriter(w)
	if v.Empty() {
		fmt.Fprintln(bw, "No comments")
		return bw.Flush()
	}

	var walk func(n *Node)
	walk = func(n *Node) {
		indent := strings.Repeat("  ", n.Depth-1)
		author := n.Comment.User.FullName
		if author == "" {
			author = "Unknown"
		}
		fmt.Fprintf(bw, "%s%s · %s\n", indent, author, render.TimeAgo(n.Comment.CreatedAt, now))
		for _, line := range strings.Split(n.Comment.Content, "\n") {
			fmt.Fprintf(bw, "%s  %s\n", indent, line)
		}
		if len(n.Comment.Files) > 0 {
			fmt.Fprintf(bw, "%s  [%d attachment(s)]\n", indent, len(n.Comment.Files))
		}
		for _, r := range n.Replies {
			walk(r)
		}
		switch {
		case n.HiddenReplies > 0:
			fmt.Fprintf(bw, "%s  View more replies (%d)\n", indent, n.HiddenReplies)
		case n.Expanded && len(n.Replies) > 1:
			fmt.Fprintf(bw, "%s  Show less replies\n", indent)
		}
	}
	for _, n := range v.Tree() {
		walk(n)
	}

	if rest := v.Remaining(); rest > 0 {
		fmt.Fprintf(bw, "View more comments (%d more) | Show all comments\n", rest)
	}
	if v.CanShowLess() {
		fmt.Fprintln(bw, "Show less")
	}
	return bw.Flush()
}
