// Package review provides the BubbleTea interactive interface for
// browsing duplicate-scene groups a search already computed. It only
// renders the in-memory result set passed to New — no store access, no
// background search — matching the review UI's "requested-delete-only"
// scope: marking groups here only flags them to the caller (see Marked),
// which is responsible for actually writing whitelist entries.
package review

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Eierkopp/viddup/internal/search"
)

// ── Palette ──────────────────────────────────────────────────────────────

var (
	colorAccent  = lipgloss.Color("#7C6AF7")
	colorDim     = lipgloss.Color("#555555")
	colorMuted   = lipgloss.Color("#888888")
	colorText    = lipgloss.Color("#DDDDDD")
	colorSubdued = lipgloss.Color("#444444")
	colorGreen   = lipgloss.Color("#5AF078")
	colorWarn    = lipgloss.Color("#FFB454")

	sTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorText)
	sAccent  = lipgloss.NewStyle().Foreground(colorAccent)
	sDim     = lipgloss.NewStyle().Foreground(colorDim)
	sMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	sPath    = lipgloss.NewStyle().Foreground(colorText)
	sWarn    = lipgloss.NewStyle().Foreground(colorWarn)
	sGreen   = lipgloss.NewStyle().Foreground(colorGreen)
	sSel     = lipgloss.NewStyle().Background(lipgloss.Color("#1E1A3A")).Foreground(colorText)
	sHint    = lipgloss.NewStyle().Foreground(colorDim).Background(lipgloss.Color("#111111"))
	sDivider = lipgloss.NewStyle().Foreground(colorSubdued)
)

// Model is the BubbleTea application model over a fixed set of
// duplicate-scene groups.
type Model struct {
	groups      []search.Group
	cursor      int
	marked      map[int]bool // group index -> flagged for whitelist
	width       int
	height      int
	quitting    bool
}

// New builds a review Model over groups. Groups the caller already
// knows are whitelisted should be filtered out before calling New —
// the model has no way to re-check that itself.
func New(groups []search.Group) Model {
	return Model{groups: groups, marked: make(map[int]bool)}
}

// Marked returns the groups the user flagged for whitelisting, in
// group order.
func (m Model) Marked() []search.Group {
	var out []search.Group
	for i, g := range m.groups {
		if m.marked[i] {
			out = append(out, g)
		}
	}
	return out
}

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.groups)-1 {
				m.cursor++
			}
		case "w":
			if len(m.groups) > 0 {
				m.marked[m.cursor] = !m.marked[m.cursor]
			}
		}
	}
	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}
	var b strings.Builder
	w := clamp(m.width, 20, 200)
	divider := sDivider.Render(strings.Repeat("─", w-2))

	left := "  " + sTitle.Render("viddup") + "  " + sMuted.Render("duplicate scene review")
	right := sDim.Render(fmt.Sprintf("%d group(s)", len(m.groups)))
	fmt.Fprintln(&b, padBetween(left, right, w))
	fmt.Fprintln(&b, "  "+divider)

	if len(m.groups) == 0 {
		fmt.Fprintln(&b, "")
		fmt.Fprintln(&b, sMuted.Render("  no duplicate groups found"))
	} else {
		for i, g := range m.groups {
			m.renderGroup(&b, i, g)
		}
	}

	fmt.Fprintln(&b, "  "+divider)
	suppressed := len(m.Marked())
	status := sGreen.Render(fmt.Sprintf("  %d marked for whitelist", suppressed))
	hint := sHint.Render("↑↓/jk move  w toggle whitelist  q quit  ")
	fmt.Fprint(&b, padBetween(status, hint, w))
	return b.String()
}

func (m Model) renderGroup(b *strings.Builder, i int, g search.Group) {
	marker := "  "
	if m.marked[i] {
		marker = sWarn.Render("✓ ")
	}
	header := fmt.Sprintf("%s%s", marker, sAccent.Render(fmt.Sprintf("group %d (%d files)", i+1, len(g))))
	if i == m.cursor {
		header = sSel.Render(header)
	}
	fmt.Fprintln(b, "  "+header)
	for _, d := range g {
		line := fmt.Sprintf("      %s  %s", sPath.Render(d.FileInfo.Name), sMuted.Render(formatOffset(d.Offset)))
		fmt.Fprintln(b, line)
	}
}

func formatOffset(seconds float64) string {
	total := int(seconds)
	h, rem := total/3600, total%3600
	m, s := rem/60, rem%60
	return fmt.Sprintf("@ %02d:%02d:%02d", h, m, s)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func padBetween(left, right string, width int) string {
	lv := len([]rune(stripANSI(left)))
	rv := len([]rune(stripANSI(right)))
	gap := width - lv - rv - 2
	if gap < 1 {
		gap = 1
	}
	return left + strings.Repeat(" ", gap) + right
}

func stripANSI(s string) string {
	var b strings.Builder
	inEsc := false
	for _, c := range s {
		if c == '\x1b' {
			inEsc = true
		}
		if inEsc {
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				inEsc = false
			}
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}
