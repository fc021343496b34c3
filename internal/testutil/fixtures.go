package testutil

import (
	"fmt"

	"github.com/target/cyano-batch/internal/domain/model"
)

// LocationResponse returns an upstream payload shaped like the water-quality
// API's location response with the given number of observations.
func LocationResponse(lat, lon float64, observations int) model.LocationResponse {
	outputs := make([]any, 0, observations)
	for i := range observations {
		outputs = append(outputs, map[string]any{
			"imageDate":               fmt.Sprintf("2024-04-%02d", i%28+1),
			"satelliteImageType":      "OLCI",
			"satelliteImageFrequency": "daily",
			"cellConcentration":       float64(1000 * (i + 1)),
			"maxCellConcentration":    float64(2000 * (i + 1)),
			"latitude":                lat,
			"longitude":               lon,
			"validCellsCount":         float64(9),
		})
	}
	return model.LocationResponse{
		"user_latitude":  lat,
		"user_longitude": lon,
		"metaInfo": map[string]any{
			"locationName":     "Lake Apopka",
			"locationLat":      lat,
			"locationLng":      lon,
			"status":           "OK",
			"requestTimestamp": "2024-05-01T12:00:00Z",
			"queryDate":        "2024-05-01",
		},
		"outputs": outputs,
	}
}

// StartRequest builds a valid batch request for user with n locations.
func StartRequest(username string, n int) model.StartBatchJobRequest {
	locs := make([]model.LocationRequest, 0, n)
	for i := range n {
		locs = append(locs, model.LocationRequest{
			Latitude:  28.5 + float64(i)/10,
			Longitude: -81.6,
			Type:      model.LocationTypeDaily,
		})
	}
	return model.StartBatchJobRequest{
		Username:  username,
		Filename:  "lakes.csv",
		Locations: locs,
	}
}
