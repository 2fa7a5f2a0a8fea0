package mqtt

import "strings"

// topicPrefix roots every topic this service publishes.
const topicPrefix = "tallycore"

// Topics builds the topic strings used by Tally Core.
//
// Layout:
//
//	tallycore/system/status        service online/offline (retained + LWT)
//	tallycore/obs/status           OBS connection state (retained)
//	tallycore/tally/{deviceId}     per-device tally state (retained)
type Topics struct{}

// SystemStatus is the service availability topic.
func (Topics) SystemStatus() string {
	return topicPrefix + "/system/status"
}

// OBSStatus is the OBS connection state topic.
func (Topics) OBSStatus() string {
	return topicPrefix + "/obs/status"
}

// TallyStatus is the per-device tally state topic.
func (Topics) TallyStatus(deviceID string) string {
	return topicPrefix + "/tally/" + sanitizeTopicLevel(deviceID)
}

// sanitizeTopicLevel strips characters with MQTT topic semantics from a
// single level. Self-registered device IDs arrive from the network and
// must not carry separators or wildcards into a topic.
func sanitizeTopicLevel(level string) string {
	replacer := strings.NewReplacer("/", "_", "+", "_", "#", "_")
	return replacer.Replace(level)
}
