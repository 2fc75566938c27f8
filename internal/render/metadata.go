package render

import (
	"regexp"
	"strings"
)

// Metadata is the optional detail block printed under a task.
type Metadata struct {
	Assigned string `json:"assigned,omitempty"`
	Due      string `json:"due,omitempty"`
	Priority string `json:"priority,omitempty"`
	Assignee string `json:"assignee,omitempty"`
}

func (m *Metadata) Empty() bool {
	if m == nil {
		return true
	}
	return strings.TrimSpace(m.Assigned) == "" &&
		strings.TrimSpace(m.Due) == "" &&
		strings.TrimSpace(m.Priority) == "" &&
		strings.TrimSpace(m.Assignee) == ""
}

var (
	isoDate   = regexp.MustCompile(`^\d{4}-(\d{2})-(\d{2})$`)
	slashDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})$`)
)

// FormatMMDD shortens a date to MM-DD for the metadata panel.
func FormatMMDD(s string) string {
	s = strings.TrimSpace(s)
	if m := isoDate.FindStringSubmatch(s); m != nil {
		return m[1] + "-" + m[2]
	}
	if m := slashDate.FindStringSubmatch(s); m != nil {
		return pad2(m[1]) + "-" + pad2(m[2])
	}
	r := []rune(s)
	if len(r) > 5 {
		r = r[:5]
	}
	return string(r)
}

func pad2(s string) string {
	if len(s) == 1 {
		return "0" + s
	}
	return s
}

var priorityBolts = map[string]int{
	"normal": 1,
	"high":   2,
	"urgent": 3,
}

type metaRow struct {
	icon  string
	count int
	text  string
}

func metadataRows(m *Metadata) []metaRow {
	var rows []metaRow
	if v := strings.TrimSpace(m.Assigned); v != "" {
		rows = append(rows, metaRow{icon: "📋", count: 1, text: FormatMMDD(v)})
	}
	if v := strings.TrimSpace(m.Due); v != "" {
		rows = append(rows, metaRow{icon: "📅", count: 1, text: FormatMMDD(v)})
	}
	if v := strings.TrimSpace(m.Assignee); v != "" {
		rows = append(rows, metaRow{icon: "👤", count: 1, text: v})
	}
	if v := strings.TrimSpace(m.Priority); v != "" {
		if n, ok := priorityBolts[strings.ToLower(v)]; ok {
			rows = append(rows, metaRow{icon: "⚡", count: n})
		} else {
			rows = append(rows, metaRow{icon: "⚡", count: 1, text: v})
		}
	}
	return rows
}

// RenderMetadata draws one row per populated field. It returns nil when m
// has nothing to show.
func (e *Engine) RenderMetadata(m *Metadata) (*Canvas, error) {
	if m.Empty() {
		return nil, nil
	}
	l := e.layout
	rows := metadataRows(m)

	size := max(20, min(36, l.TaskFontSize/2))
	gap := max(6, size/3)

	f, err := e.fonts.Resolve(size)
	if err != nil {
		return nil, err
	}

	rowHeight := max(size, f.LineHeight())
	height := l.TopMargin + l.BottomMargin + len(rows)*rowHeight + (len(rows)-1)*gap
	c := NewCanvas(l.ReceiptWidth, height)

	y := l.TopMargin
	for _, row := range rows {
		x := l.LeftMargin
		icon, err := e.EmojiRaster(row.icon, size)
		if err == nil {
			for i := 0; i < row.count; i++ {
				c.Paste(icon, x, y+(rowHeight-icon.Bounds().Dy())/2)
				x += icon.Bounds().Dx() + gap/2
			}
		}
		if row.text != "" {
			x += gap
			c.DrawText(f.Face(), row.text, x, y+(rowHeight-f.LineHeight())/2-(f.Ascent()-f.LineHeight()))
		}
		y += rowHeight + gap
	}
	return c, nil
}
