// Package actions provides the named gestures Action nodes refer to.
//
// A Registry maps names to Funcs. Built-in gestures (scroll_down,
// scroll_up) are registered from code; further actions can be declared in
// the actions section of the configuration:
//
//	actions:
//	  - name: notify_done
//	    type: mqtt
//	    topic: home/grind/done
//	    payload: '{"done": true}'
//	  - name: settle
//	    type: pause
//	    duration: 2s
//
// A name missing from the registry is not an error here; the engine logs
// it and carries on.
package actions
