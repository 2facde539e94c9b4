package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"

	"atelier/application/queries"
	"atelier/domain/core/valueobjects"
	"atelier/pkg/client"
)

var (
	headerStyle      = lipgloss.NewStyle().Bold(true)
	placeholderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	statusStyles     = map[string]lipgloss.Style{
		"pending":          lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
		"generating_image": lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		"completed":        lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"failed":           lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		"safety_violation": lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
	}
)

const statusWidth = 18

func renderStatus(status string) string {
	style, ok := statusStyles[status]
	if !ok {
		style = lipgloss.NewStyle()
	}
	return style.Width(statusWidth).Render(status)
}

// writeStructured prints v as JSON or YAML. YAML goes through JSON first so
// both formats share the json tags.
func writeStructured(w io.Writer, format string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	if format == "json" {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(generic); err != nil {
		return err
	}
	return enc.Close()
}

func writePaintings(w io.Writer, paintings []queries.PaintingView) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-36s  %-*s  %s", "PAINTING", statusWidth, "STATUS", "DETAIL")))
	for _, p := range paintings {
		fmt.Fprintf(w, "%-36s  %s  %s\n", p.ID, renderStatus(p.Status), paintingDetail(p))
	}
}

// writeView prints a reconciled batch: paintings first, then the
// placeholders still waiting for one.
func writeView(w io.Writer, view client.View) {
	settled := 0
	for _, e := range view.Entries {
		if e.Kind == client.KindReal && valueobjects.PaintingStatus(e.Painting.Status).IsTerminal() {
			settled++
		}
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%d/%d settled", settled, view.Expected)))
	for _, e := range view.Entries {
		if e.Kind == client.KindPlaceholder {
			fmt.Fprintf(w, "%-36s  %s  %s\n",
				fmt.Sprintf("(queued #%d)", e.Placeholder.Seq),
				placeholderStyle.Width(statusWidth).Render("waiting"),
				placeholderStyle.Render("since "+e.Placeholder.CreatedAt.Format("15:04:05")))
			continue
		}
		fmt.Fprintf(w, "%-36s  %s  %s\n", e.Painting.ID, renderStatus(e.Painting.Status), paintingDetail(e.Painting))
	}
}

func paintingDetail(p queries.PaintingView) string {
	switch {
	case p.ImageURL != "":
		return p.ImageURL
	case p.ErrorMessage != "":
		return p.ErrorMessage
	default:
		return truncate(p.Summary, 60)
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
