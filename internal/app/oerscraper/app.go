package oerscraper

import (
	"context"
	"sort"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/google/uuid"
	"github.com/pekasen/OER-Scraper/internal/app/oerscraper/proc"
	"github.com/pekasen/OER-Scraper/internal/configs"
)

// App wires the config to the scrape processor
type App struct {
	config    *configs.Conf
	processor *proc.Processor
}

// NewApplication creates the app from a loaded config and a wired processor
func NewApplication(conf *configs.Conf, p *proc.Processor) (*App, error) {
	app := App{config: conf, processor: p}
	return &app, nil
}

// FindPrograms returns the configured program queries
func (a *App) FindPrograms() map[string]configs.ProgramQuery {
	return a.config.Programs
}

// programNames in stable order, output must not depend on map iteration
func (a *App) programNames() []string {
	programs := a.FindPrograms()
	names := make([]string, 0, len(programs))
	for name := range programs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scrape runs the pipeline over every configured program, one after another.
// A listing failure aborts the whole run, per-episode failures are logged by
// the processor and skipped.
func (a *App) Scrape(ctx context.Context, opts proc.ScrapeOptions) error {
	if opts.Date == "" {
		opts.Date = time.Now().UTC().Format("2006-01-02")
	}
	if opts.RunID == "" {
		opts.RunID = uuid.New().String()
	}
	opts.SkipKnown = opts.SkipKnown || a.config.Scrape.SkipKnown

	log.Printf("[INFO] scrape run %s for %s", opts.RunID, opts.Date)

	for _, name := range a.programNames() {
		query := a.config.Programs[name]
		log.Printf("[INFO] scraping %s", name)
		if err := a.processor.ScrapeProgram(ctx, name, &query, opts); err != nil {
			return err
		}
	}
	return nil
}

// Upload sends archived bundles and metadata of every program to cloud
// storage, within the configured per-run size budget
func (a *App) Upload(ctx context.Context, date string) {
	if date == "" {
		date = time.Now().UTC().Format("2006-01-02")
	}

	for _, name := range a.programNames() {
		if err := a.processor.UploadProgram(ctx, name, date, a.config.Upload.ChunkSize); err != nil {
			log.Printf("[ERROR] can't upload episodes of %s, %v", name, err)
		}
	}
}
