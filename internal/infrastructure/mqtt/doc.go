// Package mqtt connects the smartpot core to an MQTT broker.
//
// Smart pots publish readings on smartpot/telemetry/{serial}. The core
// subscribes to smartpot/telemetry/+ and hands each message to the
// telemetry pipeline. It also keeps a retained online/offline status on
// smartpot/system/status, with a last will covering crashes.
//
//	Smart pot → MQTT Broker → Core → live subscribers / alerts
//
// The client reconnects on its own with exponential backoff and restores
// its subscriptions afterwards. Handlers run on paho goroutines; errors
// they return are logged, panics are recovered.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllTelemetry(), 1, pipeline.HandleMQTT)
package mqtt
