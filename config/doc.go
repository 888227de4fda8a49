// Package config loads the collector configuration.
//
// Configuration is layered: built-in defaults, then each file added to the
// Loader (JSON or YAML, chosen by extension), then AETHALOMETER_* environment
// variables. Later layers only override the keys they set.
//
//	producer:
//	  ip: 10.0.0.5
//	  port: 8002
//	reconnect_period: 10    # seconds, or "10s"
//	message_period: 1m
//	storage_directory: /data/aethalometer
//	log:
//	  level: debug
//
// Durations accept either a number of seconds or a Go duration string.
//
// Existing INI deployment files (extension .ini) load without changes. Only
// these keys are read; other sections such as logger settings are ignored:
//
//	[base]
//	reconnect_period = 10         ; reconnect_period
//	message_period = 60           ; message_period
//
//	[aethalometer]
//	producer_ip = 10.0.0.5        ; producer.ip
//	producer_port = 8002          ; producer.port
//	storage_directory = /data     ; storage_directory
//
// To migrate, keep the INI file as the first layer and add a YAML layer for
// the settings INI cannot express (log, metrics, nats).
//
// The nats section also takes timeout, client_name and either user and
// password or token. AETHALOMETER_NATS_USER, AETHALOMETER_NATS_PASSWORD and
// AETHALOMETER_NATS_TOKEN keep credentials out of files.
//
// The loader does not check that the storage directory exists; the command
// does that before starting the collector.
package config
