// Package influxdb records MQTT traffic metrics in InfluxDB v2.
//
// It is optional: Connect returns ErrDisabled unless influxdb.enabled is
// set. When connected, the shell calls RecordMessage for every message it
// ingests, producing one mqtt_traffic point per message tagged by topic,
// and RecordFilterStats on the `stats` command.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.RecordMessage(msg, shown)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Batch failures are reported asynchronously through
// SetOnError.
package influxdb
