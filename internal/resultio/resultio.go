// Package resultio serializes and parses the canonical on-disk form of
// a duplicate-scene search result: an ordered list of groups, each an
// ordered list of file/offset entries. The format is a small
// self-describing text representation — one record per line, labeled
// fields — not real YAML; reading a file back never depends on a
// language-specific object graph, only on these named fields.
package resultio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/Eierkopp/viddup/internal/search"
	"github.com/Eierkopp/viddup/internal/store"
	"github.com/Eierkopp/viddup/internal/vidtypes"
)

// Write emits groups to w in canonical form:
//
//	- group:
//	    - fid: 1
//	      name: /a/x.mkv
//	      fps: 25
//	      duration: 600
//	      offset: 12.5
//
// A blank line separates groups for readability; it carries no
// semantic meaning and is ignored on read.
func Write(w io.Writer, groups []search.Group) error {
	bw := bufio.NewWriter(w)
	for i, g := range groups {
		if i > 0 {
			if _, err := bw.WriteString("\n"); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString("- group:\n"); err != nil {
			return err
		}
		for _, d := range g {
			fmt.Fprintf(bw, "    - fid: %d\n", d.FileInfo.Fid)
			fmt.Fprintf(bw, "      name: %s\n", d.FileInfo.Name)
			fmt.Fprintf(bw, "      fps: %s\n", formatFloat(d.FileInfo.FPS))
			fmt.Fprintf(bw, "      duration: %s\n", formatFloat(d.FileInfo.Duration))
			fmt.Fprintf(bw, "      offset: %s\n", formatFloat(d.Offset))
		}
	}
	return bw.Flush()
}

// Read parses the canonical form written by Write back into groups, in
// the same group and member order they were written.
func Read(r io.Reader) ([]search.Group, error) {
	sc := bufio.NewScanner(r)

	var groups []search.Group
	var current search.Group
	var pending *search.Detail

	flushDetail := func() {
		if pending != nil {
			current = append(current, *pending)
			pending = nil
		}
	}
	flushGroup := func() {
		flushDetail()
		if current != nil {
			groups = append(groups, current)
			current = nil
		}
	}

	for sc.Scan() {
		line := sc.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		switch {
		case trimmed == "- group:":
			flushGroup()
		case strings.HasPrefix(trimmed, "- fid:"):
			flushDetail()
			fid, err := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(trimmed, "- fid:")), 10, 64)
			if err != nil {
				return nil, fmt.Errorf("resultio: parse fid: %w", err)
			}
			pending = &search.Detail{FileInfo: vidtypes.FileInfo{Fid: fid}}
		case strings.HasPrefix(trimmed, "name:"):
			if pending == nil {
				return nil, fmt.Errorf("%w: resultio: name field before fid", vidtypes.ErrInvalidInput)
			}
			pending.FileInfo.Name = strings.TrimSpace(strings.TrimPrefix(trimmed, "name:"))
		case strings.HasPrefix(trimmed, "fps:"):
			if pending == nil {
				return nil, fmt.Errorf("%w: resultio: fps field before fid", vidtypes.ErrInvalidInput)
			}
			if err := setFloat(&pending.FileInfo.FPS, trimmed, "fps:"); err != nil {
				return nil, err
			}
		case strings.HasPrefix(trimmed, "duration:"):
			if pending == nil {
				return nil, fmt.Errorf("%w: resultio: duration field before fid", vidtypes.ErrInvalidInput)
			}
			if err := setFloat(&pending.FileInfo.Duration, trimmed, "duration:"); err != nil {
				return nil, err
			}
		case strings.HasPrefix(trimmed, "offset:"):
			if pending == nil {
				return nil, fmt.Errorf("%w: resultio: offset field before fid", vidtypes.ErrInvalidInput)
			}
			if err := setFloat(&pending.Offset, trimmed, "offset:"); err != nil {
				return nil, err
			}
		default:
			return nil, fmt.Errorf("%w: resultio: unrecognized line %q", vidtypes.ErrInvalidInput, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	flushGroup()
	return groups, nil
}

// Filter drops what has gone stale since groups were written to disk:
// members whose file is no longer readable, and members left with no
// remaining non-whitelisted partner in their group. A group reduced to
// fewer than two members carries no duplicate information and is
// dropped entirely.
func Filter(ctx context.Context, st store.Store, groups []search.Group) ([]search.Group, error) {
	var out []search.Group
	for _, g := range groups {
		g = filterUnreadable(g)
		g, err := filterWhitelisted(ctx, st, g)
		if err != nil {
			return nil, err
		}
		if len(g) > 1 {
			out = append(out, g)
		}
	}
	return out, nil
}

func filterUnreadable(g search.Group) search.Group {
	var live search.Group
	for _, d := range g {
		if isReadable(d.FileInfo.Name) {
			live = append(live, d)
		}
	}
	return live
}

// filterWhitelisted repeatedly drops any member that now has no
// non-whitelisted partner left among the survivors, mirroring the pair
// test search.Run applies before a group is ever formed.
func filterWhitelisted(ctx context.Context, st store.Store, g search.Group) (search.Group, error) {
	live := append(search.Group(nil), g...)
	for {
		drop := -1
		for i, d := range live {
			hasPartner := false
			for j, other := range live {
				if i == j {
					continue
				}
				wl, err := st.IsWhitelisted(ctx, d.FileInfo.Fid, other.FileInfo.Fid)
				if err != nil {
					return nil, err
				}
				if !wl {
					hasPartner = true
					break
				}
			}
			if !hasPartner {
				drop = i
				break
			}
		}
		if drop < 0 {
			return live, nil
		}
		live = append(live[:drop], live[drop+1:]...)
	}
}

func isReadable(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func setFloat(dst *float64, trimmed, prefix string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(trimmed, prefix)), 64)
	if err != nil {
		return fmt.Errorf("resultio: parse %s %w", prefix, err)
	}
	*dst = v
	return nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
