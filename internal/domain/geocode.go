package domain

import (
	"context"
	"log/slog"
)

// EnrichWithGeocoding fills in coordinates or an address the payload did
// not carry. If geocoder is nil the request is returned untouched; on
// failure Geo.Source is "failed" and the rest of the record is unchanged.
func EnrichWithGeocoding(ctx context.Context, req Request, geocoder Geocoder, logger *slog.Logger) Request {
	if geocoder == nil {
		return req
	}

	hasCoords := !req.Location.IsZero()
	place := placeQuery(req)

	// Forward geocode: free-text place → coordinates.
	if !hasCoords && place != "" {
		result, err := geocoder.ForwardGeocode(ctx, place)
		if err != nil {
			logger.Warn("forward geocoding failed",
				"request_id", req.ID,
				"place", place,
				"error", err,
			)
			req.Geo.Source = "failed"
			return req
		}
		if result.Lat != 0 || result.Lng != 0 {
			req.Location = Location{Lat: result.Lat, Lng: result.Lng}
			req.Geo = GeoEnrichment{
				FormattedAddress: result.FormattedAddress,
				PlaceName:        result.PlaceName,
				Confidence:       result.Confidence,
				Source:           "forward",
			}
			if req.Address == AddressPlaceholder && result.FormattedAddress != "" {
				req.Address = result.FormattedAddress
			}
			return req
		}
		req.Geo.Source = "original"
		return req
	}

	// Reverse geocode: coordinates → address, only when none was reported.
	if hasCoords && req.Address == AddressPlaceholder {
		result, err := geocoder.ReverseGeocode(ctx, req.Location.Lat, req.Location.Lng)
		if err != nil {
			logger.Warn("reverse geocoding failed",
				"request_id", req.ID,
				"lat", req.Location.Lat,
				"lng", req.Location.Lng,
				"error", err,
			)
			req.Geo.Source = "failed"
			return req
		}
		if result.FormattedAddress != "" {
			req.Address = result.FormattedAddress
			req.Geo = GeoEnrichment{
				FormattedAddress: result.FormattedAddress,
				PlaceName:        result.PlaceName,
				Confidence:       result.Confidence,
				Source:           "reverse",
			}
			return req
		}
	}

	req.Geo.Source = "original"
	return req
}

// placeQuery picks the best free-text description of where the request is.
func placeQuery(req Request) string {
	if req.Address != AddressPlaceholder {
		return req.Address
	}
	return TextualPlace(req.OriginalData)
}
