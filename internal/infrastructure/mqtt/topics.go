package mqtt

import "fmt"

// Topic prefixes used by mqttinspect.
const (
	// TopicPrefixClients is the base for per-client presence topics.
	TopicPrefixClients = "mqttinspect/clients"

	// TopicPrefixSys is the broker's reserved statistics tree. Wildcard
	// filters starting with + or # never match it.
	TopicPrefixSys = "$SYS"
)

// Topics provides builders for the topics mqttinspect publishes to or
// subscribes to by name.
//
//	topics := mqtt.Topics{}
//	presence := topics.Presence("mqttinspect-1a2b3c4d")
//	// Returns: "mqttinspect/clients/mqttinspect-1a2b3c4d/status"
type Topics struct{}

// Presence returns the retained status topic for a client.
//
// Example: mqttinspect/clients/mqttinspect-1a2b3c4d/status
func (Topics) Presence(clientID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixClients, clientID)
}

// AllTopics returns the filter for all ordinary traffic.
// It does not include $SYS topics.
//
// Pattern: #
func (Topics) AllTopics() string {
	return "#"
}

// AllSys returns the filter for broker statistics.
//
// Pattern: $SYS/#
func (Topics) AllSys() string {
	return TopicPrefixSys + "/#"
}
