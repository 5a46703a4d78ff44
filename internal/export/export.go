// Package export renders conversations as PDF transcripts.
package export

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/flemzord/chatgate/pkg/conversation"
)

// DefaultFontDir is where the DejaVu fonts are looked up.
const DefaultFontDir = "/usr/share/fonts/truetype/dejavu"

// DefaultTitle heads every transcript unless overridden.
const DefaultTitle = "Chat Transcript"

// ErrEmpty is returned when a conversation has no visible message.
var ErrEmpty = errors.New("export: conversation has no visible messages")

const (
	fontRegular = "DejaVuSans.ttf"
	fontBold    = "DejaVuSans-Bold.ttf"
)

// Exporter writes transcripts. The zero value is usable.
type Exporter struct {
	Title   string
	FontDir string
	Logger  *slog.Logger

	// Now is injectable for tests. Defaults to time.Now.
	Now func() time.Time
}

// Filename returns the download name for a transcript generated at t.
func Filename(t time.Time) string {
	return "chat_" + t.Format("20060102_150405") + ".pdf"
}

// Write renders the visible messages of c to w. The developer preamble is
// never part of the output.
func (e *Exporter) Write(w io.Writer, c *conversation.Conversation) error {
	msgs := c.Visible()
	if len(msgs) == 0 {
		return ErrEmpty
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	family, text := e.fonts(pdf)
	pdf.SetTitle(e.title(), true)
	pdf.SetCreator("chatgate", true)
	pdf.AddPage()

	pdf.SetFont(family, "B", 16)
	pdf.CellFormat(0, 10, text(e.title()), "", 1, "C", false, 0, "")
	pdf.SetFont(family, "", 10)
	pdf.CellFormat(0, 10, "Generated: "+e.now().Format("2006-01-02 15:04:05"), "", 1, "C", false, 0, "")
	pdf.Ln(5)

	for _, m := range msgs {
		pdf.SetFont(family, "B", 12)
		pdf.CellFormat(0, 8, m.Role.Label()+":", "", 1, "", false, 0, "")
		pdf.SetFont(family, "", 11)
		pdf.MultiCell(0, 6, text(m.Content), "", "", false)
		pdf.Ln(3)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("export: render pdf: %w", err)
	}
	return nil
}

// fonts registers DejaVu when both faces are present and returns the family
// plus the text filter matching its encoding. Core Helvetica only covers
// cp1252, so other runes are dropped before translation.
func (e *Exporter) fonts(pdf *fpdf.Fpdf) (string, func(string) string) {
	dir := e.FontDir
	if dir == "" {
		dir = DefaultFontDir
	}
	regular, errR := os.ReadFile(filepath.Join(dir, fontRegular))
	bold, errB := os.ReadFile(filepath.Join(dir, fontBold))
	if errR == nil && errB == nil {
		pdf.AddUTF8FontFromBytes("DejaVu", "", regular)
		pdf.AddUTF8FontFromBytes("DejaVu", "B", bold)
		if pdf.Ok() {
			return "DejaVu", normalizeNewlines
		}
		e.logger().Warn("dejavu fonts unusable, falling back to helvetica", "dir", dir, "error", pdf.Error())
		pdf.ClearError()
	}

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	return "Helvetica", func(s string) string {
		return tr(stripUnencodable(normalizeNewlines(s)))
	}
}

func (e *Exporter) title() string {
	if e.Title == "" {
		return DefaultTitle
	}
	return e.Title
}

func (e *Exporter) now() time.Time {
	if e.Now == nil {
		return time.Now()
	}
	return e.Now()
}

func (e *Exporter) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func normalizeNewlines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.ReplaceAll(s, "\t", "    ")
}

// cp1252Extras are the runes cp1252 maps into 0x80-0x9F.
const cp1252Extras = "€‚ƒ„…†‡ˆ‰Š‹ŒŽ‘’“”•–—˜™š›œžŸ"

// stripUnencodable drops runes the core fonts cannot render.
func stripUnencodable(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || (r >= 0x20 && r < 0x7F):
			return r
		case r >= 0xA0 && r <= 0xFF:
			return r
		case strings.ContainsRune(cp1252Extras, r):
			return r
		default:
			return -1
		}
	}, s)
}
