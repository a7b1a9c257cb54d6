// Package bridge mirrors bus events to Kafka and feeds external records back.
//
// Mirror subscribes to the bus at low priority so that game handlers run
// first. Its handler only enqueues; a separate goroutine batches records to
// the broker, so the engine loop never waits on the network.
//
// Ingest reads records from a topic and queues them on the bus as Custom
// events, to be drained by the engine loop like any other event.
package bridge
