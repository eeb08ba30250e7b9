package geo

import (
	"fmt"
	"net"

	"github.com/oschwald/geoip2-golang"
)

// ErrInvalidIP is returned when the IP cannot be parsed.
var ErrInvalidIP = fmt.Errorf("invalid IP address")

// Resolver maps a client IP to a country for lead enrichment. Optional:
// a nil Resolver simply leaves the country blank.
type Resolver interface {
	Country(ip string) (string, error)
	Close() error
}

type maxmindResolver struct {
	db *geoip2.Reader
}

// NewMaxMindResolver opens a MaxMind GeoLite2/GeoIP2 database file.
func NewMaxMindResolver(dbPath string) (Resolver, error) {
	db, err := geoip2.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open geoip database %s: %w", dbPath, err)
	}
	return &maxmindResolver{db: db}, nil
}

func (g *maxmindResolver) Country(ip string) (string, error) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return "", ErrInvalidIP
	}

	record, err := g.db.Country(parsed)
	if err != nil {
		return "", err
	}
	return record.Country.Names["en"], nil
}

func (g *maxmindResolver) Close() error {
	return g.db.Close()
}
