package device

import "time"

// State is a flat or nested map of quota parameter names to values, as
// reported by the cloud REST API or pushed over MQTT. Keys follow the
// vendor's module-prefixed naming (for example "bmsMaster.soc").
type State map[string]any

// Info describes a device registered on the cloud account.
type Info struct {
	// SN is the device serial number, the primary identifier everywhere.
	SN string `json:"sn"`

	// Name is the user-assigned device name, if set.
	Name string `json:"deviceName,omitempty"`

	// ProductName is the vendor product name (for example "DELTA Pro 3").
	ProductName string `json:"productName,omitempty"`

	// Online reports cloud-side reachability (1 = online, 0 = offline).
	Online int `json:"online"`
}

// IsOnline reports whether the cloud considers the device reachable.
func (i Info) IsOnline() bool {
	return i.Online == 1
}

// Snapshot is a point-in-time view of a device's state together with
// provenance metadata. Coordinators publish snapshots to listeners and the
// persistence layer after every refresh.
type Snapshot struct {
	// SN is the device serial number.
	SN string `json:"sn"`

	// State is the merged quota state at the time of the snapshot.
	State State `json:"state"`

	// Source identifies what produced the snapshot (rest, mqtt, merged).
	Source string `json:"source"`

	// UpdatedAt is when the snapshot was assembled (UTC).
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot source values.
const (
	SourceREST    = "rest"
	SourceMQTT    = "mqtt"
	SourceMerged  = "merged"
	SourceCommand = "command"
)

// MergeStates returns a new State containing base overlaid with overlay.
// Overlay values win on key conflict. Neither input is modified, and the
// merge is shallow: nested maps are replaced, not merged, matching how the
// cloud reports whole quota modules per key.
func MergeStates(base, overlay State) State {
	merged := make(State, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// CloneState returns a shallow copy of s. A nil state clones to an empty
// non-nil state so callers can mutate the result safely.
func CloneState(s State) State {
	clone := make(State, len(s))
	for k, v := range s {
		clone[k] = v
	}
	return clone
}
