package proc

import (
	"encoding/json"

	"github.com/boltdb/bolt"
	log "github.com/go-pkgz/lgr"
	"github.com/pekasen/OER-Scraper/internal/app/oerscraper/program"
)

// BoltDB episode catalog, one bucket per program keyed by permanent id
type BoltDB struct {
	DB *bolt.DB
}

// SaveEpisode to the program bucket, reports whether the key was new
func (b *BoltDB) SaveEpisode(programID string, episode *program.Episode) (bool, error) {
	created := false
	err := b.DB.Update(func(tx *bolt.Tx) error {
		bucket, e := tx.CreateBucketIfNotExists([]byte(programID))
		if e != nil {
			return e
		}

		key := []byte(episode.ID)
		if bucket.Get(key) == nil {
			created = true
		}

		jdata, jerr := json.Marshal(episode)
		if jerr != nil {
			return jerr
		}

		return bucket.Put(key, jdata)
	})

	return created, err
}

// GetEpisode from the program bucket, nil when unknown
func (b *BoltDB) GetEpisode(programID, episodeID string) (*program.Episode, error) {
	var episode *program.Episode
	err := b.DB.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(programID))
		if bucket == nil {
			return nil
		}

		item := bucket.Get([]byte(episodeID))
		if item == nil {
			return nil
		}

		episode = &program.Episode{}
		return json.Unmarshal(item, episode)
	})

	if err != nil {
		return nil, err
	}
	return episode, nil
}

// FindEpisodesByStatus in the program bucket, key order
func (b *BoltDB) FindEpisodesByStatus(programID string, filterStatus program.Status) ([]*program.Episode, error) {
	var result []*program.Episode
	err := b.DB.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(programID))
		if bucket == nil {
			return nil
		}

		c := bucket.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			item := program.Episode{}
			if err := json.Unmarshal(v, &item); err != nil {
				log.Printf("[WARN] failed to unmarshal, %v", err)
				continue
			}
			if item.Status != filterStatus {
				continue
			}
			result = append(result, &item)
		}
		return nil
	})

	return result, err
}

// ChangeEpisodeStatus in the store
func (b *BoltDB) ChangeEpisodeStatus(programID string, episode *program.Episode, status program.Status) error {
	episode.Status = status
	_, err := b.SaveEpisode(programID, episode)
	return err
}

// FindEpisodesBySizeLimit returns the first episodes of the given status whose
// total size stays within sizeLimit, 0 for no limit
func (b *BoltDB) FindEpisodesBySizeLimit(programID string, status program.Status, sizeLimit int64) ([]*program.Episode, error) {
	episodes, err := b.FindEpisodesByStatus(programID, status)
	if err != nil {
		return nil, err
	}

	var sizes int64
	var result = make([]*program.Episode, len(episodes))
	for i, episode := range episodes {
		if sizeLimit > 0 && sizes+episode.Size > sizeLimit {
			return result[:i], nil
		}
		sizes += episode.Size
		result[i] = episode
	}

	return result, nil
}
