package store

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/herbie30/PODCASTAPP/internal/domain"
	"github.com/herbie30/PODCASTAPP/internal/observe"
	bolt "go.etcd.io/bbolt"
)

// Bucket names
var (
	bucketPodcasts      = []byte("podcasts")
	bucketEpisodes      = []byte("episodes")
	bucketEpisodeIndex  = []byte("episode_index")
	bucketSubscriptions = []byte("subscriptions")
	bucketHistory       = []byte("history")
	bucketHistoryIDs    = []byte("history_ids")
	bucketBookmarks     = []byte("bookmarks")
	bucketProgress      = []byte("progress")
	bucketMeta          = []byte("meta")
)

var allBuckets = [][]byte{
	bucketPodcasts, bucketEpisodes, bucketEpisodeIndex, bucketSubscriptions,
	bucketHistory, bucketHistoryIDs, bucketBookmarks, bucketProgress, bucketMeta,
}

var allTables = []domain.Table{
	domain.TablePodcasts, domain.TableEpisodes, domain.TableSubscriptions,
	domain.TableHistory, domain.TableBookmarks, domain.TableProgress,
}

// errStop ends a bucket scan early without failing the transaction
var errStop = errors.New("stop scan")

// BoltStore implements domain.Store using BoltDB.
type BoltStore struct {
	db *bolt.DB

	// Ephemeral stores live in a temp dir removed on Close
	tempDir string

	mu        sync.Mutex // Protects revisions
	revisions map[domain.Table]uint64
	watchers  map[domain.Table]*observe.Value[uint64]
}

// NewStore opens (or creates) the database under baseDir. Data is
// partitioned per catalog so IDs from different catalogs never mix.
// An empty baseDir opens a throwaway database.
func NewStore(baseDir, catalogURL string) (*BoltStore, error) {
	var tempDir string
	dir := baseDir
	if dir == "" {
		var err error
		tempDir, err = os.MkdirTemp("", "podcastapp-*")
		if err != nil {
			return nil, err
		}
		dir = tempDir
	} else if catalogURL != "" {
		dir = filepath.Join(baseDir, hashCatalogURL(catalogURL))
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, "podcastapp.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{
		db:        db,
		tempDir:   tempDir,
		revisions: make(map[domain.Table]uint64),
		watchers:  make(map[domain.Table]*observe.Value[uint64]),
	}
	for _, t := range allTables {
		s.watchers[t] = observe.NewValueWith[uint64](0)
	}
	return s, nil
}

func hashCatalogURL(catalogURL string) string {
	normalized := strings.TrimRight(strings.ToLower(catalogURL), "/")
	hash := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(hash[:6])
}

func (s *BoltStore) Close() error {
	for _, w := range s.watchers {
		w.Close()
	}
	err := s.db.Close()
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
	return err
}

// Watch yields the revision of table after each committed write
func (s *BoltStore) Watch(table domain.Table) *observe.Subscription[uint64] {
	w, ok := s.watchers[table]
	if !ok {
		w = observe.NewValue[uint64]()
		w.Close()
	}
	return w.Subscribe()
}

// === Generic helpers ===

func (s *BoltStore) notify(tables ...domain.Table) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range tables {
		s.revisions[t]++
		s.watchers[t].Set(s.revisions[t])
	}
}

// update runs fn in a write transaction and notifies watchers after commit
func (s *BoltStore) update(op string, fn func(tx *bolt.Tx) error, tables ...domain.Table) error {
	if err := s.db.Update(fn); err != nil {
		return wrapErr(op, err)
	}
	s.notify(tables...)
	return nil
}

func (s *BoltStore) view(op string, fn func(tx *bolt.Tx) error) error {
	if err := s.db.View(fn); err != nil {
		return wrapErr(op, err)
	}
	return nil
}

func wrapErr(op string, err error) error {
	var se *domain.StoreError
	if errors.As(err, &se) || errors.Is(err, domain.ErrNotFound) {
		return err
	}
	return &domain.StoreError{Kind: domain.StoreIOFailure, Op: op, Err: err}
}

func constraint(op, format string, args ...interface{}) error {
	return &domain.StoreError{Kind: domain.StoreConstraintViolation, Op: op, Err: fmt.Errorf(format, args...)}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, domain.ErrNotFound)
}

func put(b *bolt.Bucket, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func get(b *bolt.Bucket, key string, dest interface{}) (bool, error) {
	v := b.Get([]byte(key))
	if v == nil {
		return false, nil
	}
	return true, json.Unmarshal(v, dest)
}

// scanPrefix decodes every value under prefix in key order
func scanPrefix[T any](b *bolt.Bucket, prefix string, fn func(key []byte, v T) error) error {
	c := b.Cursor()
	p := []byte(prefix)
	for k, v := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, v = c.Next() {
		var item T
		if err := json.Unmarshal(v, &item); err != nil {
			return err
		}
		if err := fn(k, item); err != nil {
			if errors.Is(err, errStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

func episodeKey(podcastID, episodeID string) string {
	return "pod:" + podcastID + ":ep:" + episodeID
}

func historyKey(e domain.HistoryEntry) string {
	return fmt.Sprintf("%020d:%s", e.TimestampMillis, e.ID)
}

// === Podcasts ===

func (s *BoltStore) UpsertPodcast(p domain.Podcast) error {
	if p.ID == "" {
		return constraint("upsert podcast", "podcast id is empty")
	}
	return s.update("upsert podcast", func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketPodcasts), p.ID, p)
	}, domain.TablePodcasts)
}

func (s *BoltStore) GetPodcast(id string) (domain.Podcast, error) {
	var p domain.Podcast
	err := s.view("get podcast", func(tx *bolt.Tx) error {
		ok, err := get(tx.Bucket(bucketPodcasts), id, &p)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("podcast", id)
		}
		return nil
	})
	return p, err
}

func (s *BoltStore) ListPodcasts() ([]domain.Podcast, error) {
	var podcasts []domain.Podcast
	err := s.view("list podcasts", func(tx *bolt.Tx) error {
		return scanPrefix(tx.Bucket(bucketPodcasts), "", func(_ []byte, p domain.Podcast) error {
			podcasts = append(podcasts, p)
			return nil
		})
	})
	return podcasts, err
}

// === Episodes ===

// UpsertEpisodes writes all episodes of one podcast in a single transaction.
// The podcast row must exist.
func (s *BoltStore) UpsertEpisodes(podcastID string, episodes []domain.Episode) error {
	const op = "upsert episodes"
	return s.update(op, func(tx *bolt.Tx) error {
		if tx.Bucket(bucketPodcasts).Get([]byte(podcastID)) == nil {
			return constraint(op, "podcast %q is not cached", podcastID)
		}
		eb := tx.Bucket(bucketEpisodes)
		ib := tx.Bucket(bucketEpisodeIndex)
		for _, ep := range episodes {
			if ep.ID == "" {
				return constraint(op, "episode id is empty")
			}
			if ep.PodcastID == "" {
				ep.PodcastID = podcastID
			}
			if ep.PodcastID != podcastID {
				return constraint(op, "episode %q belongs to podcast %q", ep.ID, ep.PodcastID)
			}
			if owner := ib.Get([]byte(ep.ID)); owner != nil && string(owner) != podcastID {
				return constraint(op, "episode %q already cached under podcast %q", ep.ID, owner)
			}
			if err := put(eb, episodeKey(podcastID, ep.ID), ep); err != nil {
				return err
			}
			if err := ib.Put([]byte(ep.ID), []byte(podcastID)); err != nil {
				return err
			}
		}
		return nil
	}, domain.TableEpisodes)
}

func (s *BoltStore) GetEpisode(id string) (domain.Episode, error) {
	var ep domain.Episode
	err := s.view("get episode", func(tx *bolt.Tx) error {
		var err error
		ep, err = getEpisode(tx, id)
		return err
	})
	return ep, err
}

func getEpisode(tx *bolt.Tx, id string) (domain.Episode, error) {
	var ep domain.Episode
	owner := tx.Bucket(bucketEpisodeIndex).Get([]byte(id))
	if owner == nil {
		return ep, notFound("episode", id)
	}
	ok, err := get(tx.Bucket(bucketEpisodes), episodeKey(string(owner), id), &ep)
	if err != nil {
		return ep, err
	}
	if !ok {
		return ep, notFound("episode", id)
	}
	return ep, nil
}

// ListEpisodes returns cached episodes newest first
func (s *BoltStore) ListEpisodes(podcastID string) ([]domain.Episode, error) {
	var episodes []domain.Episode
	err := s.view("list episodes", func(tx *bolt.Tx) error {
		return scanPrefix(tx.Bucket(bucketEpisodes), "pod:"+podcastID+":ep:", func(_ []byte, ep domain.Episode) error {
			episodes = append(episodes, ep)
			return nil
		})
	})
	sort.SliceStable(episodes, func(i, j int) bool {
		return episodes[i].PublishedAt.After(episodes[j].PublishedAt)
	})
	return episodes, err
}

func (s *BoltStore) FindEpisodeByAudioURL(audioURL string) (domain.Episode, error) {
	var found domain.Episode
	err := s.view("find episode", func(tx *bolt.Tx) error {
		err := scanPrefix(tx.Bucket(bucketEpisodes), "", func(_ []byte, ep domain.Episode) error {
			if ep.AudioURL == audioURL {
				found = ep
				return errStop
			}
			return nil
		})
		if err != nil {
			return err
		}
		if found.ID == "" {
			return notFound("episode with url", audioURL)
		}
		return nil
	})
	return found, err
}

// DeleteEpisode removes an episode and its progress. Episodes referenced by
// history or bookmarks are rejected.
func (s *BoltStore) DeleteEpisode(id string) error {
	const op = "delete episode"
	return s.update(op, func(tx *bolt.Tx) error {
		ep, err := getEpisode(tx, id)
		if err != nil {
			return err
		}
		referenced := false
		check := func(_ []byte, episodeID string) error {
			if episodeID == id {
				referenced = true
				return errStop
			}
			return nil
		}
		err = scanPrefix(tx.Bucket(bucketHistory), "", func(k []byte, h domain.HistoryEntry) error {
			return check(k, h.EpisodeID)
		})
		if err != nil {
			return err
		}
		if !referenced {
			err = scanPrefix(tx.Bucket(bucketBookmarks), "", func(k []byte, b domain.Bookmark) error {
				return check(k, b.EpisodeID)
			})
			if err != nil {
				return err
			}
		}
		if referenced {
			return constraint(op, "episode %q is referenced by history or bookmarks", id)
		}
		if err := tx.Bucket(bucketEpisodes).Delete([]byte(episodeKey(ep.PodcastID, id))); err != nil {
			return err
		}
		if err := tx.Bucket(bucketEpisodeIndex).Delete([]byte(id)); err != nil {
			return err
		}
		return tx.Bucket(bucketProgress).Delete([]byte(id))
	}, domain.TableEpisodes, domain.TableProgress)
}

func (s *BoltStore) EpisodesFetchedAt(podcastID string) (time.Time, bool) {
	return s.metaTime("fetched:" + podcastID)
}

func (s *BoltStore) SetEpisodesFetchedAt(podcastID string, at time.Time) error {
	return s.setMeta("set fetched at", "fetched:"+podcastID, at)
}

// === Subscriptions ===

// AddSubscription returns false if the podcast was already subscribed
func (s *BoltStore) AddSubscription(sub domain.Subscription) (bool, error) {
	const op = "add subscription"
	added := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(bucketPodcasts).Get([]byte(sub.PodcastID)) == nil {
			return constraint(op, "podcast %q is not cached", sub.PodcastID)
		}
		b := tx.Bucket(bucketSubscriptions)
		if b.Get([]byte(sub.PodcastID)) != nil {
			return nil
		}
		added = true
		if err := tx.Bucket(bucketMeta).Delete([]byte("unsubscribed:" + sub.PodcastID)); err != nil {
			return err
		}
		return put(b, sub.PodcastID, sub)
	})
	if err != nil {
		return false, wrapErr(op, err)
	}
	if added {
		s.notify(domain.TableSubscriptions)
	}
	return added, nil
}

// RemoveSubscription returns false if the podcast was not subscribed
func (s *BoltStore) RemoveSubscription(podcastID string) (bool, error) {
	removed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSubscriptions)
		if b.Get([]byte(podcastID)) == nil {
			return nil
		}
		removed = true
		return b.Delete([]byte(podcastID))
	})
	if err != nil {
		return false, wrapErr("remove subscription", err)
	}
	if removed {
		s.notify(domain.TableSubscriptions)
	}
	return removed, nil
}

func (s *BoltStore) IsSubscribed(podcastID string) (bool, error) {
	subscribed := false
	err := s.view("is subscribed", func(tx *bolt.Tx) error {
		subscribed = tx.Bucket(bucketSubscriptions).Get([]byte(podcastID)) != nil
		return nil
	})
	return subscribed, err
}

// ListSubscriptions returns subscriptions ordered by subscribe time
func (s *BoltStore) ListSubscriptions() ([]domain.Subscription, error) {
	var subs []domain.Subscription
	err := s.view("list subscriptions", func(tx *bolt.Tx) error {
		return scanPrefix(tx.Bucket(bucketSubscriptions), "", func(_ []byte, sub domain.Subscription) error {
			subs = append(subs, sub)
			return nil
		})
	})
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].SubscribedAt.Before(subs[j].SubscribedAt)
	})
	return subs, err
}

func (s *BoltStore) SetUnsubscribedAt(podcastID string, at time.Time) error {
	return s.setMeta("set unsubscribed at", "unsubscribed:"+podcastID, at)
}

func (s *BoltStore) UnsubscribedAt(podcastID string) (time.Time, bool) {
	return s.metaTime("unsubscribed:" + podcastID)
}

// === History ===

// InsertHistory appends an entry. Re-inserting an ID already present is a
// no-op and returns false.
func (s *BoltStore) InsertHistory(entry domain.HistoryEntry) (bool, error) {
	const op = "insert history"
	inserted := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		if entry.ID == "" {
			return constraint(op, "history id is empty")
		}
		ids := tx.Bucket(bucketHistoryIDs)
		if ids.Get([]byte(entry.ID)) != nil {
			return nil
		}
		ep, err := getEpisode(tx, entry.EpisodeID)
		if errors.Is(err, domain.ErrNotFound) {
			return constraint(op, "episode %q is not cached", entry.EpisodeID)
		}
		if err != nil {
			return err
		}
		if entry.PodcastID == "" {
			entry.PodcastID = ep.PodcastID
		}
		if entry.PodcastID != ep.PodcastID {
			return constraint(op, "episode %q belongs to podcast %q", ep.ID, ep.PodcastID)
		}
		key := historyKey(entry)
		if err := put(tx.Bucket(bucketHistory), key, entry); err != nil {
			return err
		}
		inserted = true
		return ids.Put([]byte(entry.ID), []byte(key))
	})
	if err != nil {
		return false, wrapErr(op, err)
	}
	if inserted {
		s.notify(domain.TableHistory)
	}
	return inserted, nil
}

// ListHistory returns all entries oldest first
func (s *BoltStore) ListHistory() ([]domain.HistoryEntry, error) {
	var entries []domain.HistoryEntry
	err := s.view("list history", func(tx *bolt.Tx) error {
		return scanPrefix(tx.Bucket(bucketHistory), "", func(_ []byte, h domain.HistoryEntry) error {
			entries = append(entries, h)
			return nil
		})
	})
	return entries, err
}

func (s *BoltStore) LatestHistory() (domain.HistoryEntry, bool, error) {
	var entry domain.HistoryEntry
	found := false
	err := s.view("latest history", func(tx *bolt.Tx) error {
		_, v := tx.Bucket(bucketHistory).Cursor().Last()
		if v == nil {
			return nil
		}
		found = true
		return json.Unmarshal(v, &entry)
	})
	return entry, found, err
}

// === Bookmarks ===

func (s *BoltStore) UpsertBookmark(b domain.Bookmark) error {
	const op = "upsert bookmark"
	return s.update(op, func(tx *bolt.Tx) error {
		if b.ID == "" {
			return constraint(op, "bookmark id is empty")
		}
		ep, err := getEpisode(tx, b.EpisodeID)
		if errors.Is(err, domain.ErrNotFound) {
			return constraint(op, "episode %q is not cached", b.EpisodeID)
		}
		if err != nil {
			return err
		}
		if b.PodcastID == "" {
			b.PodcastID = ep.PodcastID
		}
		if b.PodcastID != ep.PodcastID {
			return constraint(op, "episode %q belongs to podcast %q", ep.ID, ep.PodcastID)
		}
		return put(tx.Bucket(bucketBookmarks), b.ID, b)
	}, domain.TableBookmarks)
}

func (s *BoltStore) GetBookmark(id string) (domain.Bookmark, error) {
	var b domain.Bookmark
	err := s.view("get bookmark", func(tx *bolt.Tx) error {
		ok, err := get(tx.Bucket(bucketBookmarks), id, &b)
		if err != nil {
			return err
		}
		if !ok {
			return notFound("bookmark", id)
		}
		return nil
	})
	return b, err
}

func (s *BoltStore) DeleteBookmark(id string) error {
	return s.update("delete bookmark", func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketBookmarks)
		if b.Get([]byte(id)) == nil {
			return notFound("bookmark", id)
		}
		return b.Delete([]byte(id))
	}, domain.TableBookmarks)
}

// ListBookmarks returns bookmarks of one podcast (all when podcastID is
// empty) ordered by episode then position.
func (s *BoltStore) ListBookmarks(podcastID string) ([]domain.Bookmark, error) {
	var bookmarks []domain.Bookmark
	err := s.view("list bookmarks", func(tx *bolt.Tx) error {
		return scanPrefix(tx.Bucket(bucketBookmarks), "", func(_ []byte, b domain.Bookmark) error {
			if podcastID == "" || b.PodcastID == podcastID {
				bookmarks = append(bookmarks, b)
			}
			return nil
		})
	})
	sort.SliceStable(bookmarks, func(i, j int) bool {
		if bookmarks[i].EpisodeID != bookmarks[j].EpisodeID {
			return bookmarks[i].EpisodeID < bookmarks[j].EpisodeID
		}
		return bookmarks[i].PositionSeconds < bookmarks[j].PositionSeconds
	})
	return bookmarks, err
}

// === Progress & settings ===

func (s *BoltStore) SaveProgress(p domain.Progress) error {
	const op = "save progress"
	return s.update(op, func(tx *bolt.Tx) error {
		if tx.Bucket(bucketEpisodeIndex).Get([]byte(p.EpisodeID)) == nil {
			return constraint(op, "episode %q is not cached", p.EpisodeID)
		}
		return put(tx.Bucket(bucketProgress), p.EpisodeID, p)
	}, domain.TableProgress)
}

func (s *BoltStore) GetProgress(episodeID string) (domain.Progress, bool) {
	var p domain.Progress
	found := false
	s.db.View(func(tx *bolt.Tx) error {
		ok, err := get(tx.Bucket(bucketProgress), episodeID, &p)
		found = ok && err == nil
		return nil
	})
	return p, found
}

func (s *BoltStore) SaveSpeed(multiplier float64) error {
	return s.update("save speed", func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketMeta), "speed", multiplier)
	})
}

func (s *BoltStore) Speed() (float64, bool) {
	var speed float64
	found := false
	s.db.View(func(tx *bolt.Tx) error {
		ok, err := get(tx.Bucket(bucketMeta), "speed", &speed)
		found = ok && err == nil
		return nil
	})
	return speed, found
}

func (s *BoltStore) setMeta(op, key string, at time.Time) error {
	return s.update(op, func(tx *bolt.Tx) error {
		return put(tx.Bucket(bucketMeta), key, at.UnixNano())
	})
}

func (s *BoltStore) metaTime(key string) (time.Time, bool) {
	var nanos int64
	found := false
	s.db.View(func(tx *bolt.Tx) error {
		ok, err := get(tx.Bucket(bucketMeta), key, &nanos)
		found = ok && err == nil
		return nil
	})
	if !found {
		return time.Time{}, false
	}
	return time.Unix(0, nanos), true
}
