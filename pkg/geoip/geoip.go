package geoip

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/oschwald/geoip2-golang"
)

// Location is the geographic data known for an address.
type Location struct {
	CountryCode string
	Country     string
	City        string
	Latitude    float64
	Longitude   float64
}

// Reader is the part of *geoip2.Reader used by Locator.
type Reader interface {
	City(ip net.IP) (*geoip2.City, error)
	Close() error
}

// Opener opens the database at path.
type Opener func(path string) (Reader, error)

func openFile(path string) (Reader, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Option configures a Locator.
type Option func(*Locator)

// WithDatabase sets the City database path.
func WithDatabase(path string) Option {
	return func(l *Locator) { l.path = path }
}

// WithLanguage sets the language used for place names. English is used
// when a name is missing in that language.
func WithLanguage(lang string) Option {
	return func(l *Locator) { l.lang = lang }
}

// WithOpener replaces the database opener.
func WithOpener(open Opener) Option {
	return func(l *Locator) { l.open = open }
}

// Locator looks up addresses in a lazily opened City database.
type Locator struct {
	path string
	lang string
	open Opener

	mu     sync.Mutex
	reader Reader
}

// New returns a Locator. No file is touched until the first lookup.
func New(opts ...Option) *Locator {
	l := &Locator{
		path: "GeoLite2-City.mmdb",
		lang: "en",
		open: openFile,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Locate returns the location of address. A nil Location with a nil error
// means the database has no data for it.
func (l *Locator) Locate(ctx context.Context, address string) (*Location, error) {
	ip := net.ParseIP(address)
	if ip == nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}

	r, err := l.acquire()
	if err != nil {
		return nil, err
	}

	rec, err := r.City(ip)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.Country.IsoCode == "" {
		return nil, nil
	}

	return &Location{
		CountryCode: rec.Country.IsoCode,
		Country:     l.name(rec.Country.Names),
		City:        l.name(rec.City.Names),
		Latitude:    rec.Location.Latitude,
		Longitude:   rec.Location.Longitude,
	}, nil
}

// Close releases the database if it was opened.
func (l *Locator) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reader == nil {
		return nil
	}
	err := l.reader.Close()
	l.reader = nil
	return err
}

func (l *Locator) acquire() (Reader, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.reader != nil {
		return l.reader, nil
	}
	r, err := l.open(l.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	l.reader = r
	return r, nil
}

func (l *Locator) name(names map[string]string) string {
	if n := names[l.lang]; n != "" {
		return n
	}
	return names["en"]
}
