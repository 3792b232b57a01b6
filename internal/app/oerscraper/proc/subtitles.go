package proc

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pekasen/OER-Scraper/internal/app/oerscraper/program"
)

// Subtitles downloads TTML documents and parses them into cue rows
type Subtitles struct {
	Client *http.Client
}

// NewSubtitles with the given request timeout in seconds
func NewSubtitles(timeout int) *Subtitles {
	return &Subtitles{Client: &http.Client{Timeout: time.Duration(timeout) * time.Second}}
}

// xml:id lives in the xml namespace, not the ttml one
type ttmlStyle struct {
	ID string `xml:"http://www.w3.org/XML/1998/namespace id,attr"`
}

type ttmlSpan struct {
	Style string     `xml:"style,attr"`
	Text  string     `xml:",chardata"`
	Spans []ttmlSpan `xml:"span"`
}

type ttmlParagraph struct {
	Begin string     `xml:"begin,attr"`
	End   string     `xml:"end,attr"`
	Spans []ttmlSpan `xml:"span"`
}

type ttmlDocument struct {
	XMLName    xml.Name        `xml:"http://www.w3.org/ns/ttml tt"`
	Styles     []ttmlStyle     `xml:"head>styling>style"`
	Paragraphs []ttmlParagraph `xml:"body>div>p"`
}

// Download fetches the raw subtitle XML of an episode into filePath
func (s *Subtitles) Download(ctx context.Context, url, filePath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("can't build subtitle request: %w", err)
	}

	resp, err := s.Client.Do(req)
	if err != nil {
		return fmt.Errorf("subtitle request failed: %w", err)
	}
	defer resp.Body.Close() // nolint

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subtitle request returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("can't read subtitle body: %w", err)
	}

	return os.WriteFile(filePath, data, 0o644) // nolint
}

// ParseFile reads a previously downloaded TTML file into merged cue rows
func (s *Subtitles) ParseFile(filePath string) ([]program.Cue, error) {
	f, err := os.Open(filePath) // nolint
	if err != nil {
		return nil, err
	}
	defer f.Close() // nolint

	cues, err := ParseTTML(f)
	if err != nil {
		return nil, fmt.Errorf("can't parse %s: %w", filePath, err)
	}

	return program.MergeCues(cues), nil
}

// ParseTTML extracts one raw cue per <p> element, in document order. The cue
// text joins the paragraph's span texts, the speaker marker is the span style
// resolved against the document's style declarations.
func ParseTTML(r io.Reader) ([]program.Cue, error) {
	var doc ttmlDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}

	styles := map[string]bool{}
	for _, st := range doc.Styles {
		styles[st.ID] = true
	}

	var cues []program.Cue
	for _, p := range doc.Paragraphs {
		var text strings.Builder
		speaker := ""
		collectSpans(p.Spans, styles, &text, &speaker)
		cues = append(cues, program.Cue{
			Text:    strings.TrimSpace(text.String()),
			Speaker: speaker,
			Start:   p.Begin,
			End:     p.End,
		})
	}

	return cues, nil
}

func collectSpans(spans []ttmlSpan, styles map[string]bool, text *strings.Builder, speaker *string) {
	for _, span := range spans {
		if t := strings.TrimSpace(span.Text); t != "" {
			text.WriteString(" ")
			text.WriteString(t)
			if span.Style != "" && styles[span.Style] {
				*speaker = span.Style
			}
		}
		collectSpans(span.Spans, styles, text, speaker)
	}
}
