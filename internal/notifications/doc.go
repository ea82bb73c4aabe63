// Package notifications delivers run events to ntfy.
//
// The ntfy topic URL comes from notifications.ntfy_topic. When it is empty,
// or an event is switched off in config, Publish is a no-op. Workflow code
// depends only on the Service interface.
package notifications
