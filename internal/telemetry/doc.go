// Package telemetry turns engine run events into metrics, MQTT messages
// and InfluxDB points. Each exporter is an engine.Observer; the run
// command registers the ones enabled in configuration.
//
//	engine ──► Metrics         prometheus counters and histograms
//	       ──► EventPublisher  <prefix>/run/{state,step,finished}
//	       ──► PointRecorder   sleepgrind_step / sleepgrind_run points
package telemetry
