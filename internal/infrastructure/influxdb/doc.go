// Package influxdb records run timing in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library with connection
// management, batched non-blocking writes and health checks.
//
// # Measurements
//
//	sleepgrind_step   one point per completed step
//	  tags:   script, kind (winner kind)
//	  fields: run_id, step, from, winner, candidates, results, visits,
//	          evaluation_ms, effect_ms
//
//	sleepgrind_run    one point per finished run
//	  tags:   script, status
//	  fields: run_id, reason, steps, duration_ms
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteStep(influxdb.StepPoint{...})
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Write errors are delivered asynchronously to the SetOnError callback.
package influxdb
