// Package influxdb records lockgate diagnostics in InfluxDB v2.
//
// It wraps influxdb-client-go with connection management, batched
// non-blocking writes and a health check. Three measurements are written:
//
//	refresh_cycle  one point per coordinator cycle (probe, duration, counts)
//	lock_refresh   one point per lock per cycle (outcome, attempts, code)
//	lock_state     bolt position and battery when a lock's state changes
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteLockState("front", true, 80, time.Now())
//
// # Error Handling
//
// Writes never block or return errors. Failed batches are delivered to the
// callback registered with SetOnError.
package influxdb
