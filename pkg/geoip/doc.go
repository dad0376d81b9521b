// Package geoip resolves client addresses to a country and city using a
// MaxMind City database.
//
// The database is opened lazily on the first lookup. When it cannot be
// opened the lookup fails with ErrUnavailable and the next lookup tries
// again, so a database dropped in place later is picked up without a
// restart. Failures are never cached.
//
//	loc := geoip.New(geoip.WithDatabase("/var/lib/geoip/GeoLite2-City.mmdb"))
//	defer loc.Close()
//
//	where, err := loc.Locate(ctx, "81.2.69.142")
//	if err == nil && where != nil {
//		fmt.Println(where.CountryCode, where.City)
//	}
package geoip
