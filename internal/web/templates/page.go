// Package templates holds the portal's templ components.
//
// Components are written in .templ files; the _templ.go files next to them
// are produced by `templ generate` and committed.
package templates

import "fmt"

// Flash levels.
const (
	FlashInfo    = "info"
	FlashSuccess = "success"
	FlashWarning = "warning"
	FlashError   = "error"
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Level   string `json:"l"`
	Message string `json:"m"`
}

// Page carries what every page needs besides its body.
type Page struct {
	Title     string
	Username  string // empty when signed out
	Flashes   []Flash
	CSRFToken string
}

func withTitle(p Page, title string) Page {
	p.Title = title
	return p
}

// alertLevel maps unknown levels to info so they never reach a class name.
func alertLevel(level string) string {
	switch level {
	case FlashInfo, FlashSuccess, FlashWarning, FlashError:
		return level
	default:
		return FlashInfo
	}
}

func megabytes(n int64) string {
	return fmt.Sprintf("%d MB", n>>20)
}

// FormatAverage renders a mean mark with two decimals.
func FormatAverage(avg float64) string {
	return fmt.Sprintf("%.2f", avg)
}
