package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes for the rrdcore topic hierarchy.
//
// Producers publish samples to rrdcore/update/{name}; rrdcore answers on
// rrdcore/updated/{name} or rrdcore/error/{name}.
const (
	// TopicPrefix is the base for all rrdcore topics.
	TopicPrefix = "rrdcore"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "rrdcore/system"
)

// Topics provides builders for rrdcore MQTT topics.
//
//	topics := mqtt.Topics{}
//	topics.Update("power")  // "rrdcore/update/power"
//	topics.AllUpdates()     // "rrdcore/update/+"
type Topics struct{}

// Update returns the topic producers publish samples for a database to.
//
// Example: rrdcore/update/power
func (Topics) Update(name string) string {
	return fmt.Sprintf("%s/update/%s", TopicPrefix, name)
}

// Updated returns the topic announcing an applied update.
//
// Example: rrdcore/updated/power
func (Topics) Updated(name string) string {
	return fmt.Sprintf("%s/updated/%s", TopicPrefix, name)
}

// Error returns the topic carrying a rejected update's diagnostic.
//
// Example: rrdcore/error/power
func (Topics) Error(name string) string {
	return fmt.Sprintf("%s/error/%s", TopicPrefix, name)
}

// SystemStatus returns the retained online/offline status topic.
//
// Example: rrdcore/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllUpdates returns a pattern matching every update topic.
//
// Pattern: rrdcore/update/+
func (Topics) AllUpdates() string {
	return fmt.Sprintf("%s/update/+", TopicPrefix)
}

// AllTopics returns a pattern matching all rrdcore topics.
//
// Pattern: rrdcore/#
func (Topics) AllTopics() string {
	return TopicPrefix + "/#"
}

// UpdateName extracts the database name from an update topic.
// It returns false for any other topic or an empty name.
func (Topics) UpdateName(topic string) (string, bool) {
	name, ok := strings.CutPrefix(topic, TopicPrefix+"/update/")
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}
