// Package influxdb records appliance telemetry in InfluxDB.
//
// A Client is bound to one appliance serial and writes three series:
//   - environment: numeric sensor readings reported by the appliance
//   - connection: one point per connection status transition
//   - faults: the number of active faults after each fault report
//
// # Usage
//
//	sink, err := influxdb.Connect(ctx, cfg.InfluxDB, influxdb.Options{
//	    Serial: serial,
//	    Logger: log,
//	})
//	if err != nil {
//	    return err
//	}
//	defer sink.Close()
//
//	dev.AddEnvironmentalCallback(func(readings map[string]string) {
//	    sink.RecordEnvironmental(readings, time.Now())
//	})
//
// # Thread Safety
//
// All methods are safe for concurrent use. Points are batched according to
// batch_size and flush_interval; rejected batches are logged and counted in
// WriteFailures rather than returned.
package influxdb
