package config

import (
	"fmt"
	"os"
	"strings"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "vehicle":
		return vehicleTemplate, nil
	case "ground":
		return groundTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const vehicleTemplate = `[sensor]
id = 1
vehicles = 2
loop_delay = "10ms"
slot_duration = "100ms"
custom_queue = 256
relay_queue = 64

[transport]
kind = "udp"
ip = "127.0.0.1"
port = 10100
buffer_size = 1500

[mission]
kind = "rf_sensor"
dump_file = "mission_dump.json"
altitude = 10.0
poll_interval = "250ms"
measurement_delay = "1s"

[status]
enabled = true
addr = ":8091"
cors_origins = ["http://localhost:3000"]

[log]
level = "info"
file = ""
`

const groundTemplate = `[sensor]
id = 0
vehicles = 2
loop_delay = "10ms"
slot_duration = "100ms"

[transport]
kind = "udp"
ip = "127.0.0.1"
port = 10100
buffer_size = 1500

[ground]
max_retries = 10
ack_timeout = "1s"
record_db = "measurements.db"

[ground.backoff]
initial_delay = "100ms"
multiplier = 2.0
max_delay = "2s"
jitter = true

[status]
enabled = true
addr = ":8090"
cors_origins = ["http://localhost:3000"]

[log]
level = "info"
`
