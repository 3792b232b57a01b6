package proc

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pekasen/OER-Scraper/internal/app/oerscraper/program"
)

// fake subtitle/video asset server plus a listing API pointing at it
func testBackends(t *testing.T) (api, assets *httptest.Server) {
	fixture, err := os.ReadFile("testdata/tagesschau.xml")
	require.NoError(t, err)

	assets = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sub.xml":
			_, _ = w.Write(fixture)
		case "/video.mp4":
			_, _ = w.Write([]byte("video bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(assets.Close)

	api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// the client filters on https prefixes, but httptest serves plain
		// http, so the subtitle URL is rewritten after the fetch in tests
		_, _ = fmt.Fprintf(w, `{
			"result": {
				"results": [
					{"channel": "ARD", "topic": "tagesschau", "title": "tagesschau 20:00",
					 "timestamp": 1724961600, "duration": 930, "size": 11,
					 "url_subtitle": "https://placeholder/sub.xml",
					 "url_video_low": "%s/video.mp4", "id": "a"}
				],
				"queryInfo": {"resultCount": 1}
			},
			"err": null
		}`, assets.URL)
	}))
	t.Cleanup(api.Close)

	return api, assets
}

func testProcessor(t *testing.T, apiURL, outputFolder string) *Processor {
	return &Processor{
		Storage:   testStore(t),
		Files:     &Files{OutputFolder: outputFolder},
		Client:    NewMediathekClient(apiURL, 10),
		Subtitles: NewSubtitles(10),
		Videos:    NewVideos(10),
	}
}

// fetch the listing and point the subtitle URL at the fake asset server
func fetchForTest(t *testing.T, p *Processor, assetsURL string) []*program.Episode {
	episodes, err := p.Client.FetchListing(context.Background(), "tagesschau", testQuery())
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	episodes[0].URLSubtitle = assetsURL + "/sub.xml"
	return episodes
}

func runStages(t *testing.T, p *Processor, episodes []*program.Episode, opts ScrapeOptions) {
	if opts.Subtitles {
		p.downloadSubtitles(context.Background(), "tagesschau", episodes, opts)
	}
	if opts.Parsed {
		p.parseSubtitles("tagesschau", episodes, opts.Date)
	}
	if opts.Videos {
		p.downloadVideos(context.Background(), "tagesschau", episodes, opts)
	}
	_, err := p.Files.WriteMetadata("tagesschau", opts.Date, episodes)
	require.NoError(t, err)
	for _, e := range episodes {
		e.RunID = opts.RunID
		_, err := p.Storage.SaveEpisode("tagesschau", e)
		require.NoError(t, err)
	}
}

func TestProcessorAllStages(t *testing.T) {
	api, assets := testBackends(t)
	out := t.TempDir()
	p := testProcessor(t, api.URL, out)

	opts := ScrapeOptions{Subtitles: true, Parsed: true, Videos: true, Date: "2024-08-30", RunID: "run-1"}
	episodes := fetchForTest(t, p, assets.URL)
	runStages(t, p, episodes, opts)

	base := filepath.Join(out, "tagesschau", "2024-08-30")

	assert.FileExists(t, filepath.Join(base, "tagesschau_2024-08-30.csv"))
	assert.FileExists(t, filepath.Join(base, XMLFolder, "tagesschau_1724961600.xml"))
	assert.FileExists(t, filepath.Join(base, SubtitlesFolder, "tagesschau_1724961600.csv"))
	assert.FileExists(t, filepath.Join(base, VideoFolder, "tagesschau_1724961600.zip"))
	assert.NoFileExists(t, filepath.Join(base, VideoFolder, "tagesschau_1724961600.mp4"))

	e := episodes[0]
	assert.Equal(t, "xml-subtitles/tagesschau_1724961600.xml", e.XMLPath)
	assert.Equal(t, "tagesschau/2024-08-30/videos/tagesschau_1724961600.zip", e.ArchivePath)
	assert.Equal(t, program.Archived, e.Status)

	known, err := p.Storage.GetEpisode("tagesschau", "tagesschau_1724961600")
	require.NoError(t, err)
	require.NotNil(t, known)
	assert.Equal(t, "run-1", known.RunID)
	assert.Equal(t, program.Archived, known.Status)
}

func TestScrapeProgram(t *testing.T) {
	api, _ := testBackends(t)
	out := t.TempDir()
	p := testProcessor(t, api.URL, out)

	opts := ScrapeOptions{Videos: true, Date: "2024-08-30", RunID: "run-2"}
	require.NoError(t, p.ScrapeProgram(context.Background(), "tagesschau", testQuery(), opts))

	base := filepath.Join(out, "tagesschau", "2024-08-30")
	assert.FileExists(t, filepath.Join(base, "tagesschau_2024-08-30.csv"))
	assert.FileExists(t, filepath.Join(base, VideoFolder, "tagesschau_1724961600.zip"))

	known, err := p.Storage.GetEpisode("tagesschau", "tagesschau_1724961600")
	require.NoError(t, err)
	require.NotNil(t, known)
	assert.Equal(t, "run-2", known.RunID)
}

func TestScrapeProgramListingFailureAborts(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer api.Close()

	p := testProcessor(t, api.URL, t.TempDir())
	err := p.ScrapeProgram(context.Background(), "tagesschau", testQuery(), ScrapeOptions{Date: "2024-08-30"})
	assert.Error(t, err)
}

func TestProcessorVideosDisabled(t *testing.T) {
	api, assets := testBackends(t)
	out := t.TempDir()
	p := testProcessor(t, api.URL, out)

	opts := ScrapeOptions{Subtitles: true, Parsed: true, Videos: false, Date: "2024-08-30"}
	runStages(t, p, fetchForTest(t, p, assets.URL), opts)

	base := filepath.Join(out, "tagesschau", "2024-08-30")

	// metadata and subtitle output still appear, no video artifacts at all
	assert.FileExists(t, filepath.Join(base, "tagesschau_2024-08-30.csv"))
	assert.FileExists(t, filepath.Join(base, XMLFolder, "tagesschau_1724961600.xml"))
	assert.FileExists(t, filepath.Join(base, SubtitlesFolder, "tagesschau_1724961600.csv"))
	assert.NoDirExists(t, filepath.Join(base, VideoFolder))
}

func TestProcessorIdempotentOutput(t *testing.T) {
	api, assets := testBackends(t)
	out := t.TempDir()
	p := testProcessor(t, api.URL, out)

	opts := ScrapeOptions{Subtitles: true, Parsed: true, Date: "2024-08-30"}

	runStages(t, p, fetchForTest(t, p, assets.URL), opts)
	base := filepath.Join(out, "tagesschau", "2024-08-30")
	metadata1, err := os.ReadFile(filepath.Join(base, "tagesschau_2024-08-30.csv"))
	require.NoError(t, err)
	cues1, err := os.ReadFile(filepath.Join(base, SubtitlesFolder, "tagesschau_1724961600.csv"))
	require.NoError(t, err)

	runStages(t, p, fetchForTest(t, p, assets.URL), opts)
	metadata2, err := os.ReadFile(filepath.Join(base, "tagesschau_2024-08-30.csv"))
	require.NoError(t, err)
	cues2, err := os.ReadFile(filepath.Join(base, SubtitlesFolder, "tagesschau_1724961600.csv"))
	require.NoError(t, err)

	assert.Equal(t, metadata1, metadata2)
	assert.Equal(t, cues1, cues2)
}

func TestProcessorSubtitleFailureContinues(t *testing.T) {
	api, assets := testBackends(t)
	out := t.TempDir()
	p := testProcessor(t, api.URL, out)

	episodes := fetchForTest(t, p, assets.URL)
	episodes = append(episodes, &program.Episode{
		ID:          "tagesschau_1725048000",
		Program:     "tagesschau",
		Timestamp:   time.Date(2024, 8, 30, 20, 0, 0, 0, time.UTC),
		URLSubtitle: assets.URL + "/missing.xml",
	})

	opts := ScrapeOptions{Subtitles: true, Parsed: true, Date: "2024-08-30"}
	runStages(t, p, episodes, opts)

	base := filepath.Join(out, "tagesschau", "2024-08-30")

	// the failed episode is skipped, the good one and the metadata survive
	assert.FileExists(t, filepath.Join(base, SubtitlesFolder, "tagesschau_1724961600.csv"))
	assert.NoFileExists(t, filepath.Join(base, XMLFolder, "tagesschau_1725048000.xml"))
	assert.Empty(t, episodes[1].XMLPath)

	data, err := os.ReadFile(filepath.Join(base, "tagesschau_2024-08-30.csv"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "tagesschau_1725048000")
}

func TestProcessorSkipKnown(t *testing.T) {
	fixture, err := os.ReadFile("testdata/tagesschau.xml")
	require.NoError(t, err)

	var subHits, videoHits atomic.Int32
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sub.xml":
			subHits.Add(1)
			_, _ = w.Write(fixture)
		case "/video.mp4":
			videoHits.Add(1)
			_, _ = w.Write([]byte("video bytes"))
		default:
			http.NotFound(w, r)
		}
	}))
	defer assets.Close()

	out := t.TempDir()
	p := &Processor{
		Storage:   testStore(t),
		Files:     &Files{OutputFolder: out},
		Subtitles: NewSubtitles(10),
		Videos:    NewVideos(10),
	}

	// cataloged with both artifacts from an earlier run date
	_, err = p.Storage.SaveEpisode("tagesschau", &program.Episode{
		ID:          "tagesschau_1",
		Program:     "tagesschau",
		XMLPath:     "xml-subtitles/tagesschau_1.xml",
		ArchivePath: "tagesschau/2024-08-29/videos/tagesschau_1.zip",
	})
	require.NoError(t, err)
	// cataloged, but without any artifacts
	_, err = p.Storage.SaveEpisode("tagesschau", &program.Episode{ID: "tagesschau_2", Program: "tagesschau"})
	require.NoError(t, err)

	episodes := []*program.Episode{
		{ID: "tagesschau_1", Program: "tagesschau", URLSubtitle: assets.URL + "/sub.xml", URLVideoLow: assets.URL + "/video.mp4"},
		{ID: "tagesschau_2", Program: "tagesschau", URLSubtitle: assets.URL + "/sub.xml", URLVideoLow: assets.URL + "/video.mp4"},
	}

	opts := ScrapeOptions{Subtitles: true, Videos: true, SkipKnown: true, Date: "2024-08-30"}
	p.downloadSubtitles(context.Background(), "tagesschau", episodes, opts)
	p.downloadVideos(context.Background(), "tagesschau", episodes, opts)

	// only the episode without cataloged artifacts is fetched again
	assert.Equal(t, int32(1), subHits.Load())
	assert.Equal(t, int32(1), videoHits.Load())

	// the cataloged subtitle lives under the earlier date, so the metadata of
	// today's run must not point at a file today's folder does not have
	assert.Empty(t, episodes[0].XMLPath)
	assert.Equal(t, "xml-subtitles/tagesschau_2.xml", episodes[1].XMLPath)

	base := filepath.Join(out, "tagesschau", "2024-08-30")
	assert.NoFileExists(t, filepath.Join(base, XMLFolder, "tagesschau_1.xml"))
	assert.FileExists(t, filepath.Join(base, XMLFolder, "tagesschau_2.xml"))
	assert.NoFileExists(t, filepath.Join(base, VideoFolder, "tagesschau_1.zip"))
	assert.FileExists(t, filepath.Join(base, VideoFolder, "tagesschau_2.zip"))
}

func TestProcessorSkipKnownUsesTodaysFile(t *testing.T) {
	var hits atomic.Int32
	assets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer assets.Close()

	out := t.TempDir()
	p := &Processor{Storage: testStore(t), Files: &Files{OutputFolder: out}, Subtitles: NewSubtitles(10)}

	dir := filepath.Join(out, "tagesschau", "2024-08-30", XMLFolder)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tagesschau_1.xml"), []byte("<tt/>"), 0o644))

	_, err := p.Storage.SaveEpisode("tagesschau", &program.Episode{
		ID:      "tagesschau_1",
		Program: "tagesschau",
		XMLPath: "xml-subtitles/tagesschau_1.xml",
	})
	require.NoError(t, err)

	episodes := []*program.Episode{{ID: "tagesschau_1", Program: "tagesschau", URLSubtitle: assets.URL + "/sub.xml"}}
	p.downloadSubtitles(context.Background(), "tagesschau", episodes,
		ScrapeOptions{Subtitles: true, SkipKnown: true, Date: "2024-08-30"})

	assert.Zero(t, hits.Load(), "known artifact present today, no fetch")
	assert.Equal(t, "xml-subtitles/tagesschau_1.xml", episodes[0].XMLPath)
}

func TestFilterWindow(t *testing.T) {
	episodes := []*program.Episode{
		{ID: "a", Timestamp: time.Date(2024, 8, 28, 20, 0, 0, 0, time.UTC)},
		{ID: "b", Timestamp: time.Date(2024, 8, 29, 20, 0, 0, 0, time.UTC)},
		{ID: "c", Timestamp: time.Date(2024, 8, 31, 20, 0, 0, 0, time.UTC)},
	}

	start := time.Date(2024, 8, 29, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 8, 29, 20, 0, 0, 0, time.UTC)

	got := filterWindow(episodes, start, end)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	// bounds are inclusive on the broadcast timestamp
	got = filterWindow(episodes, episodes[0].Timestamp, episodes[2].Timestamp)
	assert.Len(t, got, 3)

	// zero start disables filtering
	assert.Len(t, filterWindow(episodes, time.Time{}, end), 3)
}
