// Package mqtt provides MQTT connectivity for SleepGrind.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing run and step events with QoS guarantees
//   - Subscriptions used for remote run control
//   - Last Will and Testament (LWT) so dashboards notice a crashed runner
//
// # Architecture
//
// The runner publishes to a small topic tree under a configurable prefix
// (default "sleepgrind"):
//
//	sleepgrind/system/status     retained online/offline status (LWT)
//	sleepgrind/run/state         retained latest run state
//	sleepgrind/run/step          one message per completed step
//	sleepgrind/run/finished      one message per finished run
//	sleepgrind/command/stop      subscribed; any message aborts the run
//
// Script "mqtt" actions publish to their own configured topics through the
// same client.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.PublishJSON(topics.RunState(), state, true)
package mqtt
