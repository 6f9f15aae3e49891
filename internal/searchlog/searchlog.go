// Package searchlog records where consumers search from, with reduced
// precision, and clusters those searches into a popularity heatmap.
package searchlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rubiojr/fuelview/pkg/geo"
)

const (
	decimalBase                        = 10
	defaultReducePrecisionDecimalPlace = 2
	defaultCacheSize                   = -1024 * 1024 // negative value for pages
	defaultPageSize                    = 4096
	clusterDistanceMeters              = 1000.0
)

type Storage struct {
	db  *sql.DB
	log *slog.Logger
}

// LocationLog represents a row in the location_logs table
type LocationLog struct {
	ID          int64
	Latitude    float64
	Longitude   float64
	Distance    float64
	SearchCount int64
	SearchTime  time.Time
	LastSearch  time.Time
}

// PopularLocation represents a clustered area of searches with its popularity
type PopularLocation struct {
	Latitude    float64 `json:"lat"`
	Longitude   float64 `json:"lng"`
	SearchCount int64   `json:"weight"` // Used as weight in heatmaps
	Radius      float64 `json:"radius"` // Largest search radius in the cluster, in km
}

func NewStorage(ctx context.Context, dbPath string, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}

	if err := configureSQLitePragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	s := &Storage{db: db, log: logger}
	if s.log == nil {
		s.log = slog.New(slog.DiscardHandler)
	}

	if err := s.createLocationLogsTable(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating location_logs table: %w", err)
	}

	return s, nil
}

func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createLocationLogsTable(ctx context.Context) error {
	createTableSQL := `
	CREATE TABLE IF NOT EXISTS location_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		latitude REAL NOT NULL,
		longitude REAL NOT NULL,
		distance REAL NOT NULL,
		search_count INTEGER NOT NULL DEFAULT 1,
		search_time TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		last_search TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_location_logs_coordinates ON location_logs (latitude, longitude);
	`

	if _, err := s.db.ExecContext(ctx, createTableSQL); err != nil {
		return fmt.Errorf("error creating location_logs table: %w", err)
	}

	s.log.Debug("Location logs table created or verified")
	return nil
}

func configureSQLitePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []struct {
		stmt string
		what string
	}{
		{"PRAGMA busy_timeout = 10000;", "busy timeout"},
		{"PRAGMA journal_mode = WAL;", "journal mode"},
		{"PRAGMA auto_vacuum = INCREMENTAL;", "auto vacuum"},
		{"PRAGMA temp_store = FILE;", "temp store"},
		{"PRAGMA synchronous = NORMAL;", "synchronous"},
		{fmt.Sprintf("PRAGMA cache_size = %d;", defaultCacheSize), "cache size"},
		{fmt.Sprintf("PRAGMA page_size = %d;", defaultPageSize), "page size"},
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.stmt); err != nil {
			return fmt.Errorf("error setting %s: %w", p.what, err)
		}
	}
	return nil
}

func reduceLocationPrecision(lat, lng float64, decimalPlaces int) (roundedLat, roundedLng float64) {
	factor := math.Pow(decimalBase, float64(decimalPlaces))
	roundedLat = math.Round(lat*factor) / factor
	roundedLng = math.Round(lng*factor) / factor
	return
}

// LogSearchLocation records a search around p with the given radius in km.
// Coordinates are rounded to two decimals (about 1 km) before storing, and
// repeated searches from the same rounded spot bump its counter.
func (s *Storage) LogSearchLocation(ctx context.Context, p geo.Point, radiusKm float64) error {
	lat, lng := reduceLocationPrecision(p.Lat, p.Lng, defaultReducePrecisionDecimalPlace)

	var id int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id FROM location_logs
		WHERE latitude = ?
		AND longitude = ?
		LIMIT 1
	`, lat, lng).Scan(&id)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO location_logs (latitude, longitude, distance)
			VALUES (?, ?, ?)
		`, lat, lng, radiusKm)
		if err != nil {
			return fmt.Errorf("error logging search location: %w", err)
		}
	case err != nil:
		return fmt.Errorf("error checking for existing location: %w", err)
	default:
		_, err = s.db.ExecContext(ctx, `
			UPDATE location_logs
			SET search_count = search_count + 1, last_search = CURRENT_TIMESTAMP, distance = ?
			WHERE id = ?
		`, radiusKm, id)
		if err != nil {
			return fmt.Errorf("error updating search location: %w", err)
		}
	}

	s.log.Debug("Search location logged", "latitude", lat, "longitude", lng)
	return nil
}

// GetLocationLogs retrieves location logs ordered by search count.
// A limit of 0 returns every row.
func (s *Storage) GetLocationLogs(ctx context.Context, limit int) ([]LocationLog, error) {
	query := `SELECT id, latitude, longitude, distance, search_count, search_time, last_search
			  FROM location_logs
			  ORDER BY search_count DESC, id ASC `

	var args []any
	if limit > 0 {
		query += "LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error retrieving location logs: %w", err)
	}
	defer rows.Close()

	var logs []LocationLog
	for rows.Next() {
		var logEntry LocationLog
		var searchTime, lastSearch any
		if err := rows.Scan(
			&logEntry.ID,
			&logEntry.Latitude,
			&logEntry.Longitude,
			&logEntry.Distance,
			&logEntry.SearchCount,
			&searchTime,
			&lastSearch,
		); err != nil {
			return nil, fmt.Errorf("error scanning location log: %w", err)
		}
		logEntry.SearchTime = parseTimestamp(searchTime)
		logEntry.LastSearch = parseTimestamp(lastSearch)
		logs = append(logs, logEntry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}

	return logs, nil
}

// The driver hands TIMESTAMP columns back either as time.Time or as the
// text CURRENT_TIMESTAMP produced.
func parseTimestamp(v any) time.Time {
	var text string
	switch t := v.(type) {
	case time.Time:
		return t
	case string:
		text = t
	case []byte:
		text = string(t)
	default:
		return time.Time{}
	}
	for _, layout := range []string{time.DateTime, time.RFC3339Nano} {
		if ts, err := time.Parse(layout, text); err == nil {
			return ts
		}
	}
	return time.Time{}
}

// GetPopularLocationHeatmap clusters logged searches that are within about
// 1 km of each other and returns up to limit clusters, most searched first.
// A limit of 0 returns every cluster.
func (s *Storage) GetPopularLocationHeatmap(ctx context.Context, limit int) ([]PopularLocation, error) {
	logs, err := s.GetLocationLogs(ctx, 0)
	if err != nil {
		return nil, err
	}

	processed := make(map[int64]bool)
	var popularLocations []PopularLocation

	for i, entry := range logs {
		if processed[entry.ID] {
			continue
		}
		processed[entry.ID] = true

		cluster := PopularLocation{
			Latitude:    entry.Latitude,
			Longitude:   entry.Longitude,
			SearchCount: entry.SearchCount,
			Radius:      entry.Distance,
		}
		center := geo.Point{Lat: entry.Latitude, Lng: entry.Longitude}

		for j, other := range logs {
			if i == j || processed[other.ID] {
				continue
			}
			if geo.DistanceMeters(center, geo.Point{Lat: other.Latitude, Lng: other.Longitude}) > clusterDistanceMeters {
				continue
			}
			processed[other.ID] = true

			// weighted average of the cluster center
			totalWeight := cluster.SearchCount + other.SearchCount
			cluster.Latitude = (cluster.Latitude*float64(cluster.SearchCount) +
				other.Latitude*float64(other.SearchCount)) / float64(totalWeight)
			cluster.Longitude = (cluster.Longitude*float64(cluster.SearchCount) +
				other.Longitude*float64(other.SearchCount)) / float64(totalWeight)

			cluster.SearchCount += other.SearchCount
			if other.Distance > cluster.Radius {
				cluster.Radius = other.Distance
			}
		}

		popularLocations = append(popularLocations, cluster)
	}

	sort.SliceStable(popularLocations, func(i, j int) bool {
		return popularLocations[i].SearchCount > popularLocations[j].SearchCount
	})

	if limit > 0 && len(popularLocations) > limit {
		popularLocations = popularLocations[:limit]
	}
	return popularLocations, nil
}

// DeleteOldRecords removes locations not searched in the last daysOld days.
func (s *Storage) DeleteOldRecords(ctx context.Context, daysOld int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -daysOld).Format(time.DateTime)

	res, err := s.db.ExecContext(ctx, "DELETE FROM location_logs WHERE last_search < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("error deleting old location logs: %w", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("error counting deleted location logs: %w", err)
	}

	s.log.Info("Completed location_logs cleanup", "deleted_count", deleted)
	return deleted, nil
}

func (s *Storage) VacuumDatabase(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "PRAGMA incremental_vacuum(1000)"); err != nil {
		return fmt.Errorf("error performing incremental vacuum: %w", err)
	}
	return nil
}
