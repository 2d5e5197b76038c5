// Package config loads the livesync YAML configuration.
//
// Values of the form ${VAR} are expanded from the environment before parsing,
// so tokens can stay out of the file:
//
//	server:
//	  url: https://api.example.com
//	auth:
//	  token: ${LIVESYNC_TOKEN}
package config
