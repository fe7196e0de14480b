package dashboard

import (
	"encoding/json"
	"time"

	stocksync "github.com/stockbook/stockbook/internal/sync"
)

// MessageType names the payload carried by a Message.
type MessageType string

const (
	// MessageTypeSyncComplete carries a SyncCompleteData.
	MessageTypeSyncComplete MessageType = "sync_complete"

	// MessageTypeStats carries a StatsData.
	MessageTypeStats MessageType = "stats"
)

// Message is one frame of the feed.
type Message struct {
	Type      MessageType     `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EntitySyncData is the outcome for one entity in a cycle.
type EntitySyncData struct {
	Entity  string `json:"entity"`
	Pending int    `json:"pending"`
	Pushed  int    `json:"pushed"`
	Stale   int    `json:"stale,omitempty"`
	Error   string `json:"error,omitempty"`
}

// SyncCompleteData describes a finished sync cycle.
type SyncCompleteData struct {
	Online   bool             `json:"online"`
	Pushed   int              `json:"pushed"`
	Entities []EntitySyncData `json:"entities,omitempty"`
	Duration time.Duration    `json:"duration"`
}

// StatsData is the shop's state as seen by the daemon: rows waiting to be
// pushed and stock that needs attention.
type StatsData struct {
	Pending    map[string]int `json:"pending"`
	Items      int            `json:"items"`
	OutOfStock int            `json:"out_of_stock"`
	RunningLow int            `json:"running_low"`
	LastSync   *time.Time     `json:"last_sync,omitempty"`
	Online     bool           `json:"online"`
}

func newMessage(typ MessageType, at time.Time, data any) (Message, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Message{}, err
	}
	if at.IsZero() {
		at = time.Now()
	}
	return Message{Type: typ, Timestamp: at, Data: raw}, nil
}

func syncData(report *stocksync.Report) SyncCompleteData {
	data := SyncCompleteData{
		Online:   report.Online,
		Pushed:   report.TotalPushed(),
		Duration: report.FinishedAt.Sub(report.StartedAt),
	}
	for _, e := range report.Entities {
		ed := EntitySyncData{
			Entity:  string(e.Entity),
			Pending: e.Pending,
			Pushed:  e.Pushed,
			Stale:   e.Stale,
		}
		if e.Err != nil {
			ed.Error = e.Err.Error()
		}
		data.Entities = append(data.Entities, ed)
	}
	return data
}
