// Package rules loads declarative speech rules and evaluates them against
// events.
//
// A rule document is YAML:
//
//	classes:
//	  com.example.Switch: android.widget.CompoundButton
//	rules:
//	  - filter:
//	      eventType: TYPE_VIEW_TEXT_CHANGED
//	      className: android.widget.EditText
//	    formatter:
//	      template: "%1$s changed to %2$s"
//	      selectors:
//	        - property: beforeText
//	        - property: text
//	    metadata:
//	      queuing: QUEUE
//
// Filters and formatters may instead name a registered implementation with
// "custom: name". Rules are evaluated in order and the first match wins.
package rules
