package program

import "strings"

// Cue is one timed subtitle line of an episode
type Cue struct {
	Text    string
	Speaker string // resolved style marker, speaker changes flip it
	Start   string // TTML clock value, e.g. 10:00:12.040
	End     string
}

// gongMarker flags the chime lines in tagesschau subtitles
const gongMarker = "* Gong *"

// MergeCues joins raw cues into sentence rows: a speaker change starts a new
// row, sentence-final punctuation closes the current one, chime lines are
// dropped. Unterminated text at the end of the input is discarded.
func MergeCues(cues []Cue) []Cue {
	var res []Cue
	var cur Cue

	emit := func() {
		text := strings.TrimSpace(cur.Text)
		if text == "" {
			return
		}
		res = append(res, Cue{
			Text:    strings.ReplaceAll(text, "  ", " "),
			Speaker: cur.Speaker,
			Start:   cur.Start,
			End:     cur.End,
		})
	}

	for _, c := range cues {
		if strings.Contains(c.Text, gongMarker) {
			continue
		}
		switch {
		case c.Speaker != cur.Speaker:
			emit()
			cur = c
		case endsSentence(c.Text):
			cur = accumulate(cur, c)
			emit()
			cur = Cue{}
		default:
			cur = accumulate(cur, c)
		}
	}
	return res
}

func accumulate(cur, c Cue) Cue {
	if cur.Text == "" && cur.Start == "" {
		cur.Start = c.Start
		cur.Speaker = c.Speaker
	}
	cur.Text += " " + c.Text
	cur.End = c.End
	return cur
}

func endsSentence(text string) bool {
	t := strings.TrimSpace(text)
	return strings.HasSuffix(t, ".") || strings.HasSuffix(t, "?") || strings.HasSuffix(t, "!")
}
