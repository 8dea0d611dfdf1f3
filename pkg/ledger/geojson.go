package ledger

import (
	"fmt"
	"io"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/unklstewy/ads-bturns/pkg/turn"
)

// FeatureCollection builds a GeoJSON point collection, one feature per turn.
func FeatureCollection(events []turn.Event) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, ev := range events {
		f := geojson.NewFeature(orb.Point{ev.Longitude, ev.Latitude})
		f.ID = ev.ID.String()
		f.Properties["timestamp"] = ev.Time.UTC().Format(TimeLayout)
		f.Properties["callsign"] = ev.Callsign
		f.Properties["regis"] = ev.Registration
		f.Properties["hex"] = ev.TrackID
		f.Properties["method"] = string(ev.Method)
		f.Properties["heading_change"] = ev.HeadingChange
		fc.Append(f)
	}
	return fc
}

// WriteGeoJSON writes events as a GeoJSON FeatureCollection.
func WriteGeoJSON(w io.Writer, events []turn.Event) error {
	data, err := FeatureCollection(events).MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal turns: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write turns: %w", err)
	}
	return nil
}
