package proc

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pekasen/OER-Scraper/internal/app/oerscraper/program"
)

// folder names inside one program/date output folder
const (
	XMLFolder       = "xml-subtitles"
	SubtitlesFolder = "subtitles"
	VideoFolder     = "videos"
)

// Files lays out the per-program output folders and writes the CSV products
type Files struct {
	OutputFolder string
}

// ProgramPath returns {out}/{program}/{date}, creating it when missing
func (f *Files) ProgramPath(programID, date string) (string, error) {
	path := filepath.Join(f.OutputFolder, programID, date)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("can't create output folder %s: %w", path, err)
	}
	return path, nil
}

// StagePath returns a stage subfolder of the program/date folder, creating it
// when missing
func (f *Files) StagePath(programID, date, stage string) (string, error) {
	base, err := f.ProgramPath(programID, date)
	if err != nil {
		return "", err
	}
	path := filepath.Join(base, stage)
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", fmt.Errorf("can't create output folder %s: %w", path, err)
	}
	return path, nil
}

// WriteMetadata writes the per-program metadata CSV, one row per episode in
// input order. The output is deterministic for re-runs over identical input.
func (f *Files) WriteMetadata(programID, date string, episodes []*program.Episode) (string, error) {
	base, err := f.ProgramPath(programID, date)
	if err != nil {
		return "", err
	}
	path := filepath.Join(base, fmt.Sprintf("%s_%s.csv", programID, date))

	file, err := os.Create(path) // nolint
	if err != nil {
		return "", fmt.Errorf("can't create metadata csv %s: %w", path, err)
	}

	w := csv.NewWriter(file)
	err = writeMetadataRows(w, episodes)
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("can't write metadata csv %s: %w", path, err)
	}

	return path, nil
}

func writeMetadataRows(w *csv.Writer, episodes []*program.Episode) error {
	header := []string{
		"permanent_id", "channel", "topic", "title", "timestamp", "duration",
		"size", "url_website", "url_subtitle", "url_video", "url_video_low",
		"url_video_hd", "xml_path",
	}
	if err := w.Write(header); err != nil {
		return err
	}

	for _, e := range episodes {
		row := []string{
			e.ID,
			e.Channel,
			e.Topic,
			e.Title,
			e.Timestamp.UTC().Format("2006-01-02 15:04:05"),
			strconv.FormatInt(e.Duration, 10),
			strconv.FormatInt(e.Size, 10),
			e.URLWebsite,
			e.URLSubtitle,
			e.URLVideo,
			e.URLVideoLow,
			e.URLVideoHD,
			e.XMLPath,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// WriteCues writes the parsed cue rows of one episode, header
// text,color,start_time,end_time
func (f *Files) WriteCues(programID, date, episodeID string, cues []program.Cue) (string, error) {
	base, err := f.StagePath(programID, date, SubtitlesFolder)
	if err != nil {
		return "", err
	}
	path := filepath.Join(base, episodeID+".csv")

	file, err := os.Create(path) // nolint
	if err != nil {
		return "", fmt.Errorf("can't create cue csv %s: %w", path, err)
	}

	w := csv.NewWriter(file)
	err = w.Write([]string{"text", "color", "start_time", "end_time"})
	for _, c := range cues {
		if err != nil {
			break
		}
		err = w.Write([]string{c.Text, c.Speaker, c.Start, c.End})
	}
	w.Flush()
	if err == nil {
		err = w.Error()
	}
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return "", fmt.Errorf("can't write cue csv %s: %w", path, err)
	}

	return path, nil
}
