// Package config loads deskbus configuration.
//
// Configuration is a single YAML document. Missing fields keep the values of
// Default, selected environment variables override the file, and Validate
// reports every problem at once:
//
//	namespace: shell
//	log:
//	  level: info
//	  format: console
//	distribution:
//	  strategy: all
//	  timeout: 5s
//	middleware:
//	  rate_limit:
//	    enabled: true
//	    limit: 100
//	    window: 1s
//	debugger:
//	  capacity: 1000
//	diag:
//	  enabled: true
//	  listen: 127.0.0.1:7070
package config
