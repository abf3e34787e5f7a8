package warden

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// Location is the result of a GeoIP lookup.
type Location struct {
	City    string
	Country string
}

// GeoIPReader resolves client addresses using a MaxMind GeoLite2-City database.
type GeoIPReader struct {
	db *geoip2.Reader
}

// NewGeoIPReader opens a MaxMind GeoLite2-City database.
func NewGeoIPReader(dbPath string) (*GeoIPReader, error) {
	if dbPath == "" {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: failed to open database: %w", err)
	}
	return &GeoIPReader{db: db}, nil
}

// Lookup returns the city and country of ip, in English where available.
func (r *GeoIPReader) Lookup(ip string) (*Location, error) {
	if r == nil || r.db == nil {
		return nil, ErrGeoIPDatabaseNotConfigured
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidIP, ip)
	}
	if IsPrivateIP(ip) {
		return &Location{}, nil
	}

	record, err := r.db.City(parsed)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeoIPLookupFailed, err)
	}

	return &Location{
		City:    englishName(record.City.Names),
		Country: englishName(record.Country.Names),
	}, nil
}

// englishName prefers the "en" entry, falling back to any other.
func englishName(names map[string]string) string {
	if name, ok := names["en"]; ok {
		return name
	}
	for _, name := range names {
		return name
	}
	return ""
}

// Close closes the GeoIP database.
func (r *GeoIPReader) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}
