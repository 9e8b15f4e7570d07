package geo

import (
	"fmt"
	"math"

	"github.com/ukydev/fuel-logistics/internal/models"
)

// EarthRadiusKm is the mean Earth radius used by HaversineKm.
const EarthRadiusKm = 6371.0

func toRad(deg float64) float64 {
	return deg * math.Pi / 180
}

// HaversineKm returns the great-circle distance between a and b in kilometres.
func HaversineKm(a, b models.Location) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLon := toRad(b.Lon - a.Lon)
	lat1 := toRad(a.Lat)
	lat2 := toRad(b.Lat)
	s := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(s), math.Sqrt(1-s))
	return EarthRadiusKm * c
}

// FormatETA renders the travel time for distanceKm at speedKmh as "1h 05m".
// Sub-minute remainders round up so a vehicle that has not arrived never shows "0h 00m".
func FormatETA(distanceKm, speedKmh float64) string {
	if speedKmh <= 0 || math.IsInf(distanceKm, 0) || math.IsNaN(distanceKm) {
		return "unknown"
	}
	if distanceKm <= 0 {
		return "0h 00m"
	}
	minutes := int(math.Ceil(distanceKm / speedKmh * 60))
	return fmt.Sprintf("%dh %02dm", minutes/60, minutes%60)
}
