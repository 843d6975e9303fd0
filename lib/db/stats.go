package db

import (
	"github.com/cedarkv/cedar/lib/db/util"
	"github.com/goccy/go-json"
)

// Stats is a point-in-time summary of the database, served by the debug
// HTTP endpoint and logged on shutdown. All values are estimates taken
// without stopping the world.
type Stats struct {
	Keys            int `json:"keys"`
	KeysWithExpiry  int `json:"keys_with_expiry"`
	Channels        int `json:"channels"`
	Subscribers     int `json:"subscribers"`
	AvgValueBytes   int `json:"avg_value_bytes"`
	MedianValueSize int `json:"median_value_bytes"`
}

// Stats collects a summary of the current state
func (d *Database) Stats() Stats {
	hist := util.NewSizeHistogram()

	d.mu.Lock()
	keys := len(d.entries)
	withExpiry := d.expiry.Len()
	for _, e := range d.entries {
		hist.AddSample(len(e.Data))
	}
	d.mu.Unlock()

	channels := 0
	subscribers := 0
	d.channels.Range(func(_ string, b *bus) bool {
		channels++
		b.mu.Lock()
		subscribers += len(b.subs)
		b.mu.Unlock()
		return true
	})

	return Stats{
		Keys:            keys,
		KeysWithExpiry:  withExpiry,
		Channels:        channels,
		Subscribers:     subscribers,
		AvgValueBytes:   hist.AverageSize(),
		MedianValueSize: hist.MedianEstimate(),
	}
}

// JSON renders the stats for the debug endpoint
func (s Stats) JSON() ([]byte, error) {
	return json.Marshal(s)
}
