package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	lgr "github.com/go-pkgz/lgr"
	"github.com/jessevdk/go-flags"
	"github.com/pekasen/OER-Scraper/internal/app/oerscraper"
	"github.com/pekasen/OER-Scraper/internal/app/oerscraper/proc"
	"github.com/pekasen/OER-Scraper/internal/configs"
)

var opts struct {
	Conf string `short:"c" long:"conf" env:"OER_CONF" default:"oerscraper.yml" description:"config file (yml)"`
	DB   string `short:"d" long:"db" env:"OER_DB" default:"var/oerscraper.bdb" description:"bolt db file"`

	Subtitles int `long:"subtitles" default:"1" choice:"0" choice:"1" description:"download subtitle XML"`
	Parsed    int `long:"parsed" default:"1" choice:"0" choice:"1" description:"parse subtitles to CSV"`
	Videos    int `long:"videos" default:"1" choice:"0" choice:"1" description:"download and archive videos"`

	Start    string `short:"S" long:"start" description:"window start (2006-01-02)"`
	End      string `short:"E" long:"end" description:"window end (2006-01-02)"`
	Interval int    `short:"I" long:"interval" default:"7" description:"window length in days when only one bound is given"`

	Upload bool `short:"u" long:"upload" description:"upload archived bundles to cloud storage"`
	Dbg    bool `long:"dbg" env:"DEBUG" description:"show debug info"`

	Args struct {
		OutputFolder string `positional-arg-name:"output-folder"`
	} `positional-args:"yes"`
}

func checkFileExists(filepath string) bool {
	if _, err := os.Stat(filepath); errors.Is(err, os.ErrNotExist) {
		return false
	}

	return true
}

func loadConfig() *configs.Conf {
	configFile := opts.Conf

	if !checkFileExists(configFile) {
		if configFile != "oerscraper.yml" {
			log.Fatalf("[ERROR] config file %s not found", configFile)
		}

		configFile = "configs/oerscraper.yml"
		if !checkFileExists(configFile) {
			return configs.Default()
		}
	}

	conf, err := configs.Load(configFile)
	if err != nil {
		log.Fatalf("[ERROR] can't load config %s, %v", configFile, err)
	}
	return conf
}

func parseWhen(value string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("can't parse time %q", value)
}

// timeWindow derives the missing bound from the interval when only one bound
// is given. Zero values disable filtering.
func timeWindow() (start, end time.Time) {
	if opts.Start == "" && opts.End == "" {
		return start, end
	}
	if opts.Interval < 0 {
		log.Fatalf("[ERROR] interval must not be negative")
	}

	var err error
	if opts.Start != "" {
		if start, err = parseWhen(opts.Start); err != nil {
			log.Fatalf("[ERROR] invalid start time, %v", err)
		}
	}
	if opts.End != "" {
		if end, err = parseWhen(opts.End); err != nil {
			log.Fatalf("[ERROR] invalid end time, %v", err)
		}
	}

	switch {
	case start.IsZero():
		start = end.AddDate(0, 0, -opts.Interval)
	case end.IsZero():
		end = start.AddDate(0, 0, opts.Interval)
	case end.Before(start):
		log.Fatalf("[ERROR] end time is before start time")
	}

	return start, end
}

func main() {
	p := flags.NewParser(&opts, flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		if err.(*flags.Error).Type != flags.ErrHelp {
			fmt.Printf("%v\n", err)
			os.Exit(1)
		}
		p.WriteHelp(os.Stderr)
		os.Exit(2)
	}

	if opts.Dbg {
		lgr.Setup(lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec)
	}

	conf := loadConfig()

	dbFile := opts.DB
	if conf.DB != "" && dbFile == "var/oerscraper.bdb" {
		dbFile = conf.DB
	}

	db, err := oerscraper.NewBoltDB(dbFile)
	if err != nil {
		log.Fatalf("[ERROR] can't create boltdb instance, %v", err)
	}

	var s3store *proc.S3Store
	if conf.CloudStorage.EndPointURL != "" {
		s3client, err := oerscraper.NewS3Client(
			conf.CloudStorage.EndPointURL,
			conf.CloudStorage.Secrets.Key,
			conf.CloudStorage.Secrets.Secret,
			true)
		if err != nil {
			log.Fatalf("[ERROR] can't create s3client instance, %v", err)
		}
		s3store = &proc.S3Store{Client: s3client, Location: conf.CloudStorage.Region, Bucket: conf.CloudStorage.Bucket}
	}

	outputFolder := opts.Args.OutputFolder
	if outputFolder == "" {
		outputFolder = conf.Storage.Folder
	}

	procEntity := &proc.Processor{
		Storage:   &proc.BoltDB{DB: db},
		Files:     &proc.Files{OutputFolder: outputFolder},
		Client:    proc.NewMediathekClient(conf.API.URL, conf.API.Timeout),
		Subtitles: proc.NewSubtitles(conf.API.Timeout),
		Videos:    proc.NewVideos(conf.API.Timeout),
		S3Client:  s3store,
	}

	app, err := oerscraper.NewApplication(conf, procEntity)
	if err != nil {
		log.Fatalf("[ERROR] can't create app, %v", err)
	}

	start, end := timeWindow()
	scrapeOpts := proc.ScrapeOptions{
		Subtitles: opts.Subtitles == 1,
		Parsed:    opts.Parsed == 1,
		Videos:    opts.Videos == 1,
		Start:     start,
		End:       end,
	}

	ctx := context.Background()
	if err := app.Scrape(ctx, scrapeOpts); err != nil {
		log.Fatalf("[ERROR] scrape run failed, %v", err)
	}

	if opts.Upload {
		app.Upload(ctx, "")
	}
}
