// Package configs for work with configurations
package configs

import (
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is the public MediathekView query endpoint.
const DefaultAPIURL = "https://mediathekviewweb.de/api/query"

// Conf for config yaml
type Conf struct {
	Programs map[string]ProgramQuery `yaml:"programs"`
	API      struct {
		URL     string `yaml:"url"`
		Timeout int    `yaml:"timeout"` // seconds
	} `yaml:"api"`
	Scrape struct {
		SkipKnown bool `yaml:"skip_known"`
	} `yaml:"scrape"`
	CloudStorage struct {
		EndPointURL string `yaml:"endpoint_url"`
		Bucket      string `yaml:"bucket"`
		Region      string `yaml:"region"`
		Secrets     struct {
			Key    string `yaml:"aws_key"`
			Secret string `yaml:"aws_secret"`
		} `yaml:"secrets"`
	} `yaml:"cloud_storage"`
	Upload struct {
		ChunkSize int64 `yaml:"chunk_size"` // max bytes uploaded per run, 0 for no limit
	} `yaml:"upload"`
	DB      string `yaml:"db"`
	Storage struct {
		Folder string `yaml:"folder"`
	} `yaml:"storage"`
}

// QuerySpec is one field filter of a listing query
type QuerySpec struct {
	Fields []string `yaml:"fields" json:"fields"`
	Query  string   `yaml:"query" json:"query"`
}

// ProgramQuery defines the listing query for one program. The json tags follow
// the API request body, the struct is sent to the API as-is.
type ProgramQuery struct {
	Queries     []QuerySpec `yaml:"queries" json:"queries"`
	SortBy      string      `yaml:"sortBy" json:"sortBy"`
	SortOrder   string      `yaml:"sortOrder" json:"sortOrder"`
	Future      bool        `yaml:"future" json:"future"`
	Offset      int         `yaml:"offset" json:"offset"`
	Size        int         `yaml:"size" json:"size"`
	MinDuration int         `yaml:"min_duration" json:"min_duration"`
}

// Load config from file
func Load(fileName string) (res *Conf, err error) {
	res = &Conf{}
	data, err := os.ReadFile(fileName) // nolint
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, res); err != nil {
		return nil, err
	}
	res.applyDefaults()
	return res, nil
}

// Default returns a config with the built-in program list and default endpoints
func Default() *Conf {
	res := &Conf{}
	res.applyDefaults()
	return res
}

func (c *Conf) applyDefaults() {
	if c.API.URL == "" {
		c.API.URL = DefaultAPIURL
	}
	if c.API.Timeout <= 0 {
		c.API.Timeout = 10
	}
	if c.Storage.Folder == "" {
		c.Storage.Folder = "output"
	}
	if len(c.Programs) == 0 {
		c.Programs = DefaultPrograms()
	}
}

// DefaultPrograms is the built-in list of German news and talkshow programs,
// used whenever the config file has no programs section
func DefaultPrograms() map[string]ProgramQuery {
	shows := []struct {
		name        string
		channel     string
		minDuration int
	}{
		{"tagesschau", "ard", 300},
		{"heute journal", "zdf", 1200},
		{"anne will", "ard", 2400},
		{"maischberger", "ard", 2400},
		{"maybrit illner", "zdf", 2400},
		{"markus lanz", "zdf", 2400},
		{"hart aber fair", "ard", 2400},
	}

	res := make(map[string]ProgramQuery, len(shows))
	for _, s := range shows {
		res[s.name] = ProgramQuery{
			Queries: []QuerySpec{
				{Fields: []string{"title", "topic"}, Query: s.name},
				{Fields: []string{"channel"}, Query: s.channel},
			},
			SortBy:      "timestamp",
			SortOrder:   "desc",
			Size:        8000,
			MinDuration: s.minDuration,
		}
	}
	return res
}
