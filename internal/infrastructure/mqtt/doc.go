// Package mqtt connects rrdcore to an MQTT broker with paho.mqtt.golang.
//
// Devices publish JSON updates to rrdcore/update/<name>; the ingest service
// subscribes through this package and applies them. Applied updates are
// echoed on rrdcore/updated/<name> and failures on rrdcore/error/<name>.
// A retained message on rrdcore/system/status tracks whether rrdcore is
// online, backed by a Last Will for unclean disconnects.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	err = client.Subscribe(mqtt.Topics{}.AllUpdates(), 1, handle)
//
// Subscriptions are tracked and replayed after the client reconnects, since
// sessions are clean. Handler panics are recovered and counted.
//
// Brokers reachable beyond localhost should require credentials and TLS.
package mqtt
