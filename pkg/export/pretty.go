package export

import (
	"github.com/charmbracelet/glamour"
	"github.com/pkg/errors"
)

const DefaultStyle = "dark"

// Pretty renders Markdown for a terminal using a glamour standard style
// ("dark", "light", "notty", ...).
func Pretty(md string, style string) (string, error) {
	if style == "" {
		style = DefaultStyle
	}
	out, err := glamour.Render(md, style)
	if err != nil {
		return "", errors.Wrap(err, "render markdown")
	}
	return out, nil
}
