package mqtt

import "strings"

// DefaultTopicPrefix roots every topic when no prefix is configured.
const DefaultTopicPrefix = "sleepgrind"

// Topics builds SleepGrind topic names under a prefix.
//
//	topics := mqtt.NewTopics("lab/runner-1")
//	topics.RunStep() // "lab/runner-1/run/step"
type Topics struct {
	prefix string
}

// NewTopics returns builders rooted at prefix. Surrounding slashes are
// trimmed and an empty prefix selects DefaultTopicPrefix.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the topic root.
func (t Topics) Prefix() string {
	if t.prefix == "" {
		return DefaultTopicPrefix
	}
	return t.prefix
}

func (t Topics) join(parts ...string) string {
	return t.Prefix() + "/" + strings.Join(parts, "/")
}

// SystemStatus is the retained online/offline topic, also used for the LWT.
func (t Topics) SystemStatus() string { return t.join("system", "status") }

// RunState is the retained topic holding the latest run state.
func (t Topics) RunState() string { return t.join("run", "state") }

// RunStep receives one message per completed step.
func (t Topics) RunStep() string { return t.join("run", "step") }

// RunFinished receives one message per finished run.
func (t Topics) RunFinished() string { return t.join("run", "finished") }

// CommandStop aborts the current run when any message arrives on it.
func (t Topics) CommandStop() string { return t.join("command", "stop") }
