package main

import (
	"fmt"

	"thirdcoast.systems/scanwatch/internal/config"
	"thirdcoast.systems/scanwatch/internal/enrich"
	"thirdcoast.systems/scanwatch/internal/geo"
	"thirdcoast.systems/scanwatch/internal/llm"
	"thirdcoast.systems/scanwatch/internal/transcribe"
	"thirdcoast.systems/scanwatch/pkg/ffmpeg"
)

// buildCollaborators wires the external services every enrichment stage
// calls from the service configuration.
func buildCollaborators(svc config.Services) (enrich.Collaborators, error) {
	tr, err := transcribe.New(svc)
	if err != nil {
		return enrich.Collaborators{}, err
	}
	if w, ok := tr.(*transcribe.Whisper); ok {
		w.LogStartupInfo()
	}

	chat := llm.NewClient(llm.Config{
		APIURL:            svc.LLMAPIURL,
		APIKey:            svc.LLMAPIKey,
		RequestsPerSecond: svc.RequestsPerSec,
	})

	area := geo.ServiceArea{
		Locality: svc.ServiceArea,
		State:    svc.ServiceState,
		Bounds: geo.Bounds{
			South: svc.ServiceSouth,
			West:  svc.ServiceWest,
			North: svc.ServiceNorth,
			East:  svc.ServiceEast,
		},
	}
	if area.Locality == "" || area.State == "" {
		return enrich.Collaborators{}, fmt.Errorf("service area locality and state are required")
	}

	return enrich.Collaborators{
		Transcriber: tr,
		Classifier:  llm.NewClassifier(chat, svc.LLMClassifyModel),
		Extractor:   llm.NewExtractor(chat, svc.LLMExtractModel),
		Geocoder: geo.NewGeocoder(geo.GeocoderOptions{
			URL:               svc.GeocodeURL,
			APIKey:            svc.GoogleAPIKey,
			Area:              area,
			Timeout:           svc.HTTPTimeout,
			RequestsPerSecond: svc.RequestsPerSec,
		}),
		Imagery: geo.StreetView{Key: svc.GoogleAPIKey},
		Parcels: geo.NewParcelClient(geo.ParcelOptions{
			URL:               svc.ParcelURL,
			BufferMeters:      svc.ParcelBufferM,
			Layers:            svc.ParcelLayers,
			Timeout:           svc.HTTPTimeout,
			RequestsPerSecond: svc.RequestsPerSec,
		}),
		Probe: ffmpeg.ProbeDuration,
	}, nil
}
