package observability

import (
	"strconv"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// NodeName is the metric/log label of a radio node.
func NodeName(id int) string {
	if id == 0 {
		return "ground"
	}
	return "vehicle-" + strconv.Itoa(id)
}

// NodeLogger derives a child of the global logger tagged with the node id.
func NodeLogger(id int) zerolog.Logger {
	return log.Logger.With().Str("node", NodeName(id)).Int("sensor_id", id).Logger()
}
