// Package topology declares machines, their states and transitions in YAML
// and builds running corofsm machines from the declaration.
//
// Every state runs one of the stock tasks from package tasks, selected by
// the state's task kind:
//
//	machines:
//	  - name: PingPong
//	    initial: ping
//	    states:
//	      - name: ping
//	        task: countdown
//	        next: ToPong
//	        on:
//	          - {event: ToPong, to: pong}
//	      - name: pong
//	        task: countdown
//	        next: ToPing
//	        on:
//	          - {event: ToPing, to: ping}
//
// A transition naming another machine is a hand-off.
package topology
