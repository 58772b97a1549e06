package main

import (
	"encoding/json"
	"os"
	"strings"
	"time"

	"github.com/irctrakz/pathsock/pkg/engine"
	"github.com/irctrakz/pathsock/pkg/logging"
	"github.com/irctrakz/pathsock/pkg/socket"
)

type statsReport struct {
	Timestamp string            `json:"ts"`
	Socket    map[string]uint64 `json:"socket"`
	PerPath   map[string]uint64 `json:"perPathSends"`
	Engine    map[string]uint64 `json:"engine"`
}

// runMetricsReporter periodically logs socket and engine counters. The
// interval comes from METRICS_INTERVAL (duration string, default 30s).
func runMetricsReporter(tbl *socket.Table, eng *engine.UDPEngine, handle int32) {
	iv := strings.TrimSpace(os.Getenv("METRICS_INTERVAL"))
	d, err := time.ParseDuration(iv)
	if err != nil || d <= 0 {
		d = 30 * time.Second
	}

	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for range ticker.C {
		dumpStats(tbl, eng, handle)
	}
}

func dumpStats(tbl *socket.Table, eng *engine.UDPEngine, handle int32) {
	snap, err := tbl.Stats(handle)
	if err != nil {
		logging.Warnf("metrics: stats unavailable: %v", err)
		return
	}
	defer snap.Release()

	c, err := snap.Counters()
	if err != nil {
		return
	}
	em := eng.Metrics()

	report := statsReport{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Socket: map[string]uint64{
			"messagesSent":     c.MessagesSent,
			"messagesReceived": c.MessagesReceived,
			"bytesSent":        c.BytesSent,
			"bytesReceived":    c.BytesReceived,
			"failures":         c.Failures,
		},
		PerPath: c.SendsPerPath,
		Engine: map[string]uint64{
			"datagramsSent":     em.DatagramsSent,
			"datagramsReceived": em.DatagramsReceived,
			"backlogDrops":      em.BacklogDrops,
			"errors":            em.Errors,
		},
	}

	buf, err := json.Marshal(report)
	if err != nil {
		return
	}
	logging.Infof("metrics: %s", string(buf))
}
