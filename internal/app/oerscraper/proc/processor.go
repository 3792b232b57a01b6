package proc

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	log "github.com/go-pkgz/lgr"
	"github.com/pekasen/OER-Scraper/internal/app/oerscraper/program"
	"github.com/pekasen/OER-Scraper/internal/configs"
)

// ScrapeOptions toggle the per-episode stages of one run
type ScrapeOptions struct {
	Subtitles bool
	Parsed    bool
	Videos    bool
	Start     time.Time // zero value disables the window filter
	End       time.Time
	SkipKnown bool
	Date      string // run date, folder name component
	RunID     string
}

// Processor runs the scrape pipeline for one program: fetch listing, download
// subtitles, parse cues, download videos, write metadata, record the catalog
type Processor struct {
	Storage   *BoltDB
	Files     *Files
	Client    *MediathekClient
	Subtitles *Subtitles
	Videos    *Videos
	S3Client  *S3Store
}

// ScrapeProgram fetches the listing of one program and runs the enabled
// stages over it. A listing failure aborts, per-episode failures are logged
// and skipped.
func (p *Processor) ScrapeProgram(ctx context.Context, programID string, query *configs.ProgramQuery, opts ScrapeOptions) error {
	episodes, err := p.Client.FetchListing(ctx, programID, query)
	if err != nil {
		return err
	}

	if len(episodes) == 0 {
		log.Printf("[WARN] querying for %q has returned no data", programID)
		return nil
	}

	episodes = filterWindow(episodes, opts.Start, opts.End)
	if len(episodes) == 0 {
		log.Printf("[WARN] no episodes of %q inside the time window", programID)
		return nil
	}

	if opts.Subtitles {
		p.downloadSubtitles(ctx, programID, episodes, opts)
	}
	if opts.Parsed {
		p.parseSubtitles(programID, episodes, opts.Date)
	}
	if opts.Videos {
		p.downloadVideos(ctx, programID, episodes, opts)
	}

	if _, err := p.Files.WriteMetadata(programID, opts.Date, episodes); err != nil {
		return err
	}

	var countNew int64
	for _, e := range episodes {
		e.RunID = opts.RunID
		created, err := p.Storage.SaveEpisode(programID, e)
		if err != nil {
			return fmt.Errorf("can't add episode %s to %s: %w", e.ID, programID, err)
		}
		if created {
			countNew++
		}
	}
	if countNew > 0 {
		log.Printf("[INFO] found %d new episodes for %s", countNew, programID)
	}

	return nil
}

func filterWindow(episodes []*program.Episode, start, end time.Time) []*program.Episode {
	if start.IsZero() {
		return episodes
	}

	var result []*program.Episode
	for _, e := range episodes {
		if e.Timestamp.Before(start) || e.Timestamp.After(end) {
			continue
		}
		result = append(result, e)
	}
	log.Printf("[INFO] filtering episodes between %s and %s, %d rows left",
		start.Format("2006-01-02 15:04:05"), end.Format("2006-01-02 15:04:05"), len(result))
	return result
}

func (p *Processor) downloadSubtitles(ctx context.Context, programID string, episodes []*program.Episode, opts ScrapeOptions) {
	dir, err := p.Files.StagePath(programID, opts.Date, XMLFolder)
	if err != nil {
		log.Printf("[ERROR] can't prepare subtitle folder for %s, %v", programID, err)
		return
	}

	for _, e := range episodes {
		relPath := path.Join(XMLFolder, e.ID+".xml")
		if opts.SkipKnown && p.knownWith(programID, e.ID, func(k *program.Episode) bool { return k.XMLPath != "" }) {
			// the cataloged artifact may live under an earlier run date, the
			// metadata csv must only point at files inside today's folder
			if _, err := os.Stat(filepath.Join(dir, e.ID+".xml")); err == nil {
				e.XMLPath = relPath
			}
			continue
		}

		if err := p.Subtitles.Download(ctx, e.URLSubtitle, filepath.Join(dir, e.ID+".xml")); err != nil {
			log.Printf("[WARN] can't download subtitle for %s, %v", e.ID, err)
			continue
		}
		e.XMLPath = relPath
	}
}

func (p *Processor) parseSubtitles(programID string, episodes []*program.Episode, date string) {
	base, err := p.Files.ProgramPath(programID, date)
	if err != nil {
		log.Printf("[ERROR] can't prepare output folder for %s, %v", programID, err)
		return
	}

	for _, e := range episodes {
		xmlFile := filepath.Join(base, XMLFolder, e.ID+".xml")
		if _, err := os.Stat(xmlFile); err != nil {
			log.Printf("[DEBUG] no subtitle file for %s, skipping parse", e.ID)
			continue
		}

		cues, err := p.Subtitles.ParseFile(xmlFile)
		if err != nil {
			log.Printf("[WARN] can't parse subtitle of %s, %v", e.ID, err)
			continue
		}

		if _, err := p.Files.WriteCues(programID, date, e.ID, cues); err != nil {
			log.Printf("[WARN] can't write cues of %s, %v", e.ID, err)
		}
	}
}

func (p *Processor) downloadVideos(ctx context.Context, programID string, episodes []*program.Episode, opts ScrapeOptions) {
	dir, err := p.Files.StagePath(programID, opts.Date, VideoFolder)
	if err != nil {
		log.Printf("[ERROR] can't prepare video folder for %s, %v", programID, err)
		return
	}

	for _, e := range episodes {
		url := e.VideoURL()
		if url == "" {
			continue
		}
		if opts.SkipKnown && p.knownWith(programID, e.ID, func(k *program.Episode) bool { return k.ArchivePath != "" }) {
			log.Printf("[DEBUG] video bundle of %s already cataloged, skipping", e.ID)
			continue
		}

		videoFile := filepath.Join(dir, e.ID+".mp4")
		if err := p.Videos.Download(ctx, url, videoFile); err != nil {
			log.Printf("[WARN] can't download video for %s, %v", e.ID, err)
			continue
		}

		zipPath, err := p.Videos.Archive(videoFile)
		if err != nil {
			log.Printf("[WARN] can't archive video for %s, %v", e.ID, err)
			continue
		}

		e.ArchivePath = path.Join(programID, opts.Date, VideoFolder, filepath.Base(zipPath))
		e.Status = program.Archived
	}
}

// knownWith reports whether the cataloged episode exists and passes check
func (p *Processor) knownWith(programID, episodeID string, check func(*program.Episode) bool) bool {
	known, err := p.Storage.GetEpisode(programID, episodeID)
	if err != nil {
		log.Printf("[WARN] can't read catalog entry %s, %v", episodeID, err)
		return false
	}
	return known != nil && check(known)
}

// UploadProgram sends archived bundles of one program to cloud storage, up to
// chunkSize total bytes (0 for no limit), then the program's metadata csv
func (p *Processor) UploadProgram(ctx context.Context, programID, date string, chunkSize int64) error {
	if p.S3Client == nil {
		log.Printf("[WARN] no cloud storage configured, skipping upload")
		return nil
	}

	episodes, err := p.Storage.FindEpisodesBySizeLimit(programID, program.Archived, chunkSize)
	if err != nil {
		return fmt.Errorf("can't find archived episodes of %s: %w", programID, err)
	}

	for _, e := range episodes {
		bundle := filepath.Join(p.Files.OutputFolder, filepath.FromSlash(e.ArchivePath))
		info, err := p.S3Client.UploadBundle(ctx, e.ArchivePath, bundle)
		if err != nil {
			log.Printf("[ERROR] can't upload bundle %s, %v", e.ArchivePath, err)
			continue
		}

		e.Location = info.Location
		if err := p.Storage.ChangeEpisodeStatus(programID, e, program.Uploaded); err != nil {
			log.Printf("[ERROR] can't mark episode %s uploaded, %v", e.ID, err)
			continue
		}
		log.Printf("[INFO] uploaded %s (%s) to %s", e.ID, humanize.Bytes(uint64(info.Size)), info.Location)
	}

	metadata := filepath.Join(p.Files.OutputFolder, programID, date, fmt.Sprintf("%s_%s.csv", programID, date))
	if _, err := os.Stat(metadata); err != nil {
		return nil
	}
	objectName := path.Join(programID, date, fmt.Sprintf("%s_%s.csv", programID, date))
	if _, err := p.S3Client.UploadMetadata(ctx, objectName, metadata); err != nil {
		log.Printf("[ERROR] can't upload metadata csv of %s, %v", programID, err)
	}

	return nil
}
