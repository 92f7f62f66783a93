package output

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/sentri-project/sentri/internal/model"
)

func RenderPretty(rec model.Record) string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205")).Render("sentri")
	fieldStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	successStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failureStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))

	lines := []string{title, ""}
	lines = append(lines, fieldStyle.Render("domain: "+rec.Domain))

	if rec.Error != nil {
		lines = append(lines, failureStyle.Render("error: "+*rec.Error))
		return strings.Join(lines, "\n")
	}

	tenant := "(none)"
	if rec.Tenant != nil {
		tenant = *rec.Tenant
	}
	lines = append(lines, fieldStyle.Render("tenant: "+tenant))

	if len(rec.FederatedDomains) > 0 {
		lines = append(lines, fieldStyle.Render("federated domains: "+strings.Join(rec.FederatedDomains, ", ")))
	} else {
		lines = append(lines, fieldStyle.Render("federated domains: (none)"))
	}

	if rec.MdiInstance != nil {
		lines = append(lines, successStyle.Render("MDI sensor detected: "+*rec.MdiInstance))
	} else {
		lines = append(lines, fieldStyle.Render("MDI sensor: not detected"))
	}

	lines = append(lines, fieldStyle.Render(fmt.Sprintf("processing time: %dms", rec.ProcessingTimeMs)))

	return strings.Join(lines, "\n")
}
